package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinware/clinic-backoffice/internal/actor"
	"github.com/clinware/clinic-backoffice/internal/audit"
	"github.com/clinware/clinic-backoffice/internal/scheduling"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrMissingInstant  = errors.New("visit time is required")
)

// Completer is the appointment auto-completion hook, satisfied by
// *scheduling.Service.
type Completer interface {
	CompleteForVisit(ctx context.Context, patientID, doctorID uuid.UUID, day time.Time) (*scheduling.Appointment, error)
}

type Service struct {
	repo         Repository
	appointments Completer
	audits       audit.Sink
	log          zerolog.Logger
}

func NewService(repo Repository, appointments Completer, audits audit.Sink, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		audits:       audits,
		log:          log,
	}
}

type RecordInput struct {
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	VisitedAt    time.Time
	Diagnosis    string
	LabRequest   string
	Prescription string
}

func (in *RecordInput) Validate() error {
	if in.PatientID == uuid.Nil {
		return ErrPatientNotFound
	}
	if in.DoctorID == uuid.Nil {
		return ErrDoctorNotFound
	}
	if in.VisitedAt.IsZero() {
		return ErrMissingInstant
	}
	return nil
}

// Record persists the visit, then completes a matching scheduled appointment
// for the same patient, doctor and calendar day. The visit write is primary:
// a failed auto-completion is logged, never propagated, because the visit
// row is already committed.
func (s *Service) Record(ctx context.Context, in RecordInput) (*Visit, error) {
	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if err := s.checkReferences(ctx, in.PatientID, in.DoctorID); err != nil {
		return nil, err
	}

	created, err := s.repo.Insert(ctx, &Visit{
		PatientID:    in.PatientID,
		DoctorID:     in.DoctorID,
		VisitedAt:    in.VisitedAt.UTC(),
		Diagnosis:    in.Diagnosis,
		LabRequest:   in.LabRequest,
		Prescription: in.Prescription,
	})
	if err != nil {
		return nil, fmt.Errorf("record visit: %w", err)
	}

	detail := ""
	completed, err := s.appointments.CompleteForVisit(ctx, in.PatientID, in.DoctorID, created.VisitedAt)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("visit_id", created.ID.String()).
			Msg("appointment auto-completion failed")
	} else if completed != nil {
		detail = fmt.Sprintf("completed appointment %s", completed.ID)
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID:  act.UserID,
		Action:   "visit.record",
		Table:    "visits",
		RecordID: created.ID,
		Detail:   detail,
	})

	return created, nil
}

type UpdateInput struct {
	Diagnosis    string
	LabRequest   string
	Prescription string
}

// Update edits the clinical text fields. Patient, doctor and instant are
// identity and stay fixed.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Visit, error) {
	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Diagnosis = in.Diagnosis
	existing.LabRequest = in.LabRequest
	existing.Prescription = in.Prescription

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("update visit: %w", err)
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID:  act.UserID,
		Action:   "visit.update",
		Table:    "visits",
		RecordID: id,
	})

	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Visit, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) checkReferences(ctx context.Context, patientID, doctorID uuid.UUID) error {
	ok, err := s.repo.PatientExists(ctx, patientID)
	if err != nil {
		return fmt.Errorf("check patient: %w", err)
	}
	if !ok {
		return ErrPatientNotFound
	}

	ok, err = s.repo.DoctorExists(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("check doctor: %w", err)
	}
	if !ok {
		return ErrDoctorNotFound
	}

	return nil
}
