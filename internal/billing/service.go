package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinware/clinic-backoffice/internal/actor"
	"github.com/clinware/clinic-backoffice/internal/audit"
	"github.com/clinware/clinic-backoffice/internal/redisclient"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrVisitNotFound    = errors.New("visit not found")
	ErrNoLineItems      = errors.New("invoice needs at least one line item")
	ErrInvalidQuantity  = errors.New("line item quantity must be positive")
	ErrInvalidUnitPrice = errors.New("line item unit price must be positive")
	ErrVisitBeingBilled = errors.New("visit is currently being billed, please retry")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	audits audit.Sink
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, audits audit.Sink, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		audits: audits,
		log:    log,
	}
}

type LineInput struct {
	ServiceID uuid.UUID
	Quantity  int32
	UnitPrice decimal.Decimal
}

type CreateInvoiceInput struct {
	PatientID   uuid.UUID
	VisitID     *uuid.UUID
	InvoiceDate time.Time
	Paid        bool
	Items       []LineInput
}

func (in *CreateInvoiceInput) Validate() error {
	if in.PatientID == uuid.Nil {
		return ErrPatientNotFound
	}
	if len(in.Items) == 0 {
		return ErrNoLineItems
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if !item.UnitPrice.IsPositive() {
			return ErrInvalidUnitPrice
		}
	}
	return nil
}

// Total is the creation-time sum of quantity times unit price over all line
// items, computed in decimal so repeated additions cannot drift.
func (in *CreateInvoiceInput) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range in.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt32(item.Quantity)))
	}
	return total
}

// CreateInvoice persists the header and its line items atomically. When the
// invoice references a visit, at most one invoice may exist for it: checked
// here before the insert, held by a lock against concurrent billing of the
// same visit, and backed by a partial unique index on invoices(visit_id).
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*Invoice, error) {
	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	invoiceDate := in.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = time.Now().UTC()
	}

	ok, err := s.repo.PatientExists(ctx, in.PatientID)
	if err != nil {
		return nil, fmt.Errorf("check patient: %w", err)
	}
	if !ok {
		return nil, ErrPatientNotFound
	}

	if in.VisitID != nil {
		ok, err := s.repo.VisitExists(ctx, *in.VisitID)
		if err != nil {
			return nil, fmt.Errorf("check visit: %w", err)
		}
		if !ok {
			return nil, ErrVisitNotFound
		}
	}

	items := make([]LineItem, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, LineItem{
			ServiceID: item.ServiceID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	header := &Invoice{
		PatientID:   in.PatientID,
		VisitID:     in.VisitID,
		InvoiceDate: invoiceDate,
		Total:       in.Total(),
		Paid:        in.Paid,
	}

	var created *Invoice

	insert := func(txCtx context.Context) error {
		if in.VisitID != nil {
			existing, err := s.repo.GetByVisit(txCtx, *in.VisitID)
			if err != nil && !errors.Is(err, ErrInvoiceNotFound) {
				return fmt.Errorf("check visit invoice: %w", err)
			}
			if existing != nil {
				return ErrVisitAlreadyInvoiced
			}
		}

		inv, err := s.repo.CreateInvoice(txCtx, header, items)
		if err != nil {
			return err
		}

		created = inv
		return nil
	}

	if in.VisitID != nil {
		err = s.locker.WithLock(ctx, visitLockKey(*in.VisitID), insert)
	} else {
		err = insert(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrVisitBeingBilled
		}
		return nil, err
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID:  act.UserID,
		Action:   "invoice.create",
		Table:    "invoices",
		RecordID: created.ID,
		Detail:   fmt.Sprintf("total=%s items=%d", created.Total.StringFixed(2), len(items)),
	})

	return created, nil
}

// MarkPaid flips the paid flag. A second call is a harmless no-op reported
// as alreadyPaid; the total and line items are never touched.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) (inv *Invoice, alreadyPaid bool, err error) {
	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, false, err
	}

	inv, err = s.repo.MarkPaid(ctx, id)
	if err != nil {
		if errors.Is(err, ErrInvoiceAlreadyPaid) {
			return inv, true, nil
		}
		return nil, false, err
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID:  act.UserID,
		Action:   "invoice.pay",
		Table:    "invoices",
		RecordID: id,
	})

	return inv, false, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*InvoiceDetail, error) {
	return s.repo.GetDetail(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Invoice, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

func visitLockKey(visitID uuid.UUID) string {
	return fmt.Sprintf("lock:invoice:visit:%s", visitID)
}
