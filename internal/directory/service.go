package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinware/clinic-backoffice/internal/actor"
	"github.com/clinware/clinic-backoffice/internal/audit"
)

var (
	ErrMissingName  = errors.New("first and last name are required")
	ErrPatientInUse = errors.New("patient is referenced by appointments, visits or invoices")
)

type Service struct {
	repo   Repository
	audits audit.Sink
	log    zerolog.Logger
}

func NewService(repo Repository, audits audit.Sink, log zerolog.Logger) *Service {
	return &Service{repo: repo, audits: audits, log: log}
}

// NewPatient carries the fields accepted at registration.
type NewPatient struct {
	Code        string // optional, generated when empty
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Sex         string
	Phone       string
	Address     string
	Insurance   string
}

func (n *NewPatient) Validate() error {
	if strings.TrimSpace(n.FirstName) == "" || strings.TrimSpace(n.LastName) == "" {
		return ErrMissingName
	}
	return nil
}

func (s *Service) Register(ctx context.Context, in NewPatient) (*Patient, error) {
	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	code := strings.TrimSpace(in.Code)
	if code == "" {
		code = generateCode()
	}

	p := &Patient{
		Code:        code,
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		DateOfBirth: in.DateOfBirth,
		Sex:         in.Sex,
		Phone:       in.Phone,
		Address:     in.Address,
		Insurance:   in.Insurance,
	}

	created, err := s.repo.InsertPatient(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID:  act.UserID,
		Action:   "patient.register",
		Table:    "patients",
		RecordID: created.ID,
		Detail:   created.Code,
	})

	return created, nil
}

// PatientUpdate carries the editable fields. Code is immutable once assigned.
type PatientUpdate struct {
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Sex         string
	Phone       string
	Address     string
	Insurance   string
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in PatientUpdate) (*Patient, error) {
	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return nil, ErrMissingName
	}

	existing, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.FirstName = strings.TrimSpace(in.FirstName)
	existing.LastName = strings.TrimSpace(in.LastName)
	existing.DateOfBirth = in.DateOfBirth
	existing.Sex = in.Sex
	existing.Phone = in.Phone
	existing.Address = in.Address
	existing.Insurance = in.Insurance

	updated, err := s.repo.UpdatePatient(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID:  act.UserID,
		Action:   "patient.update",
		Table:    "patients",
		RecordID: updated.ID,
	})

	return updated, nil
}

// Delete removes a patient. It is blocked while any appointment, visit or
// invoice still references the record.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	act, err := actor.FromContext(ctx)
	if err != nil {
		return err
	}

	if _, err := s.repo.GetPatientByID(ctx, id); err != nil {
		return err
	}

	refs, err := s.repo.CountPatientReferences(ctx, id)
	if err != nil {
		return fmt.Errorf("count patient references: %w", err)
	}
	if refs > 0 {
		return ErrPatientInUse
	}

	if err := s.repo.DeletePatient(ctx, id); err != nil {
		return err
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID:  act.UserID,
		Action:   "patient.delete",
		Table:    "patients",
		RecordID: id,
	})

	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatientByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Patient, error) {
	return s.repo.GetPatientByCode(ctx, strings.TrimSpace(code))
}

func (s *Service) Search(ctx context.Context, query string, limit, offset int) ([]Patient, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.SearchPatients(ctx, strings.TrimSpace(query), limit, offset)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctorByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	return s.repo.ListDoctors(ctx)
}

func generateCode() string {
	return "P-" + strings.ToUpper(uuid.NewString()[:8])
}
