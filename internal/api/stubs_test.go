package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinware/clinic-backoffice/internal/audit"
	"github.com/clinware/clinic-backoffice/internal/billing"
	"github.com/clinware/clinic-backoffice/internal/observability/metrics"
	"github.com/clinware/clinic-backoffice/internal/scheduling"
	"github.com/clinware/clinic-backoffice/internal/visit"
)

// The handler tests run real services over in-memory repositories, so the
// full request path is exercised: routing, auth, JSON, service rules, error
// mapping.

func slotTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return parsed
}

type passLocker struct{}

func (passLocker) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

type world struct {
	scheduling *schedulingRepo
	visits     *visitRepo
	billing    *billingRepo
}

func newWorld() *world {
	refs := &refSet{patients: map[uuid.UUID]bool{}, doctors: map[uuid.UUID]bool{}, visitIDs: map[uuid.UUID]bool{}}
	return &world{
		scheduling: &schedulingRepo{refs: refs},
		visits:     &visitRepo{refs: refs},
		billing:    &billingRepo{refs: refs, items: map[uuid.UUID][]billing.LineItem{}},
	}
}

func (w *world) router() http.Handler {
	log := zerolog.Nop()
	appointments := scheduling.NewService(w.scheduling, passLocker{}, audit.NopSink{}, log)
	visits := visit.NewService(w.visits, appointments, audit.NopSink{}, log)
	invoices := billing.NewService(w.billing, passLocker{}, audit.NopSink{}, log)

	return NewRouter(RouterConfig{
		Appointments: appointments,
		Visits:       visits,
		Invoices:     invoices,
		Metrics:      metrics.New(prometheus.NewRegistry()),
		Logger:       log,
		Env:          "test",
		Version:      "test",
	})
}

func (w *world) knownPatient() uuid.UUID {
	id := uuid.New()
	w.scheduling.refs.patients[id] = true
	return id
}

func (w *world) knownDoctor() uuid.UUID {
	id := uuid.New()
	w.scheduling.refs.doctors[id] = true
	return id
}

// refSet is the shared directory every stub repo checks references against.
type refSet struct {
	patients map[uuid.UUID]bool
	doctors  map[uuid.UUID]bool
	visitIDs map[uuid.UUID]bool
}

type schedulingRepo struct {
	refs         *refSet
	appointments []*scheduling.Appointment
}

func (r *schedulingRepo) GetByID(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	for _, a := range r.appointments {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, scheduling.ErrAppointmentNotFound
}

func (r *schedulingRepo) CountScheduledAt(_ context.Context, doctorID uuid.UUID, at time.Time, excludeID *uuid.UUID) (int, error) {
	n := 0
	for _, a := range r.appointments {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.DoctorID == doctorID && a.StartsAt.Equal(at) && a.Status == scheduling.StatusScheduled {
			n++
		}
	}
	return n, nil
}

func (r *schedulingRepo) Insert(_ context.Context, appt *scheduling.Appointment) (*scheduling.Appointment, error) {
	appt.ID = uuid.New()
	appt.CreatedAt = time.Now().UTC()
	appt.UpdatedAt = appt.CreatedAt
	r.appointments = append(r.appointments, appt)
	cp := *appt
	return &cp, nil
}

func (r *schedulingRepo) Update(_ context.Context, appt *scheduling.Appointment) (*scheduling.Appointment, error) {
	for i, a := range r.appointments {
		if a.ID == appt.ID {
			cp := *appt
			r.appointments[i] = &cp
			out := cp
			return &out, nil
		}
	}
	return nil, scheduling.ErrAppointmentNotFound
}

func (r *schedulingRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to scheduling.Status) (*scheduling.Appointment, error) {
	for _, a := range r.appointments {
		if a.ID == id && a.Status == from {
			a.Status = to
			cp := *a
			return &cp, nil
		}
	}
	return nil, scheduling.ErrAppointmentNotFound
}

func (r *schedulingRepo) ListScheduledForDay(_ context.Context, patientID, doctorID uuid.UUID, dayStart, dayEnd time.Time) ([]scheduling.Appointment, error) {
	var out []scheduling.Appointment
	for _, a := range r.appointments {
		if a.PatientID != patientID || a.DoctorID != doctorID || a.Status != scheduling.StatusScheduled {
			continue
		}
		if a.StartsAt.Before(dayStart) || !a.StartsAt.Before(dayEnd) {
			continue
		}
		out = append(out, *a)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StartsAt.Before(out[j-1].StartsAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (r *schedulingRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]scheduling.Appointment, error) {
	var out []scheduling.Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *schedulingRepo) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	return r.refs.patients[id], nil
}

func (r *schedulingRepo) DoctorExists(_ context.Context, id uuid.UUID) (bool, error) {
	return r.refs.doctors[id], nil
}

type visitRepo struct {
	refs   *refSet
	visits []*visit.Visit
}

func (r *visitRepo) Insert(_ context.Context, v *visit.Visit) (*visit.Visit, error) {
	v.ID = uuid.New()
	v.CreatedAt = time.Now().UTC()
	v.UpdatedAt = v.CreatedAt
	r.visits = append(r.visits, v)
	r.refs.visitIDs[v.ID] = true
	cp := *v
	return &cp, nil
}

func (r *visitRepo) Update(_ context.Context, v *visit.Visit) (*visit.Visit, error) {
	for i, existing := range r.visits {
		if existing.ID == v.ID {
			cp := *v
			r.visits[i] = &cp
			out := cp
			return &out, nil
		}
	}
	return nil, visit.ErrVisitNotFound
}

func (r *visitRepo) GetByID(_ context.Context, id uuid.UUID) (*visit.Visit, error) {
	for _, v := range r.visits {
		if v.ID == id {
			cp := *v
			return &cp, nil
		}
	}
	return nil, visit.ErrVisitNotFound
}

func (r *visitRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]visit.Visit, error) {
	var out []visit.Visit
	for _, v := range r.visits {
		if v.PatientID == patientID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *visitRepo) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	return r.refs.patients[id], nil
}

func (r *visitRepo) DoctorExists(_ context.Context, id uuid.UUID) (bool, error) {
	return r.refs.doctors[id], nil
}

type billingRepo struct {
	refs     *refSet
	invoices []*billing.Invoice
	items    map[uuid.UUID][]billing.LineItem
}

func (r *billingRepo) CreateInvoice(_ context.Context, inv *billing.Invoice, items []billing.LineItem) (*billing.Invoice, error) {
	if inv.VisitID != nil {
		for _, existing := range r.invoices {
			if existing.VisitID != nil && *existing.VisitID == *inv.VisitID {
				return nil, billing.ErrVisitAlreadyInvoiced
			}
		}
	}
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now().UTC()
	r.invoices = append(r.invoices, inv)
	r.items[inv.ID] = items
	cp := *inv
	return &cp, nil
}

func (r *billingRepo) GetHeader(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.ID == id {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, billing.ErrInvoiceNotFound
}

func (r *billingRepo) GetDetail(ctx context.Context, id uuid.UUID) (*billing.InvoiceDetail, error) {
	header, err := r.GetHeader(ctx, id)
	if err != nil {
		return nil, err
	}
	return &billing.InvoiceDetail{Invoice: *header, Items: r.items[id]}, nil
}

func (r *billingRepo) GetByVisit(_ context.Context, visitID uuid.UUID) (*billing.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.VisitID != nil && *inv.VisitID == visitID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, billing.ErrInvoiceNotFound
}

func (r *billingRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]billing.Invoice, error) {
	var out []billing.Invoice
	for _, inv := range r.invoices {
		if inv.PatientID == patientID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *billingRepo) MarkPaid(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.ID == id {
			if inv.Paid {
				cp := *inv
				return &cp, billing.ErrInvoiceAlreadyPaid
			}
			inv.Paid = true
			cp := *inv
			return &cp, nil
		}
	}
	return nil, billing.ErrInvoiceNotFound
}

func (r *billingRepo) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	return r.refs.patients[id], nil
}

func (r *billingRepo) VisitExists(_ context.Context, id uuid.UUID) (bool, error) {
	return r.refs.visitIDs[id], nil
}
