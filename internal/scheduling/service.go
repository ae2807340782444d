package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinware/clinic-backoffice/internal/actor"
	"github.com/clinware/clinic-backoffice/internal/audit"
	"github.com/clinware/clinic-backoffice/internal/redisclient"
)

var (
	ErrSlotTaken        = errors.New("slot already has a scheduled appointment")
	ErrSlotBeingBooked  = errors.New("slot is currently being booked, please retry")
	ErrPatientNotFound  = errors.New("patient not found")
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrMissingInstant   = errors.New("appointment time is required")
	ErrInvalidStatus    = errors.New("invalid appointment status")
	ErrAlreadyCancelled = errors.New("appointment is already cancelled")
	ErrTerminalState    = errors.New("appointment is in a terminal state")
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

// IsSlotAvailable is the booking guard: a slot is free iff no scheduled
// appointment occupies the same (doctor, instant) pair. Cancelled and
// completed appointments never block.
func (s *Service) IsSlotAvailable(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID *uuid.UUID) (bool, error) {
	count, err := s.repo.CountScheduledAt(ctx, doctorID, at.UTC().Truncate(time.Minute), excludeID)
	if err != nil {
		return false, fmt.Errorf("count scheduled at slot: %w", err)
	}
	return count == 0, nil
}

type BookInput struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	StartsAt  time.Time
}

func (in *BookInput) Validate() error {
	if in.PatientID == uuid.Nil {
		return ErrPatientNotFound
	}
	if in.DoctorID == uuid.Nil {
		return ErrDoctorNotFound
	}
	if in.StartsAt.IsZero() {
		return ErrMissingInstant
	}
	return nil
}

// Book reserves a slot. The guard's read-then-write runs inside a per slot
// lock so concurrent requests for the same slot cannot both insert; the
// partial unique index on (doctor_id, starts_at) is the storage backstop.
func (s *Service) Book(ctx context.Context, in BookInput) (*Appointment, error) {
	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	startsAt := in.StartsAt.UTC().Truncate(time.Minute)

	if err := s.checkReferences(ctx, in.PatientID, in.DoctorID); err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithLock(ctx, slotLockKey(in.DoctorID, startsAt), func(lockCtx context.Context) error {
		count, err := s.repo.CountScheduledAt(lockCtx, in.DoctorID, startsAt, nil)
		if err != nil {
			return fmt.Errorf("booking guard: %w", err)
		}
		if count > 0 {
			return ErrSlotTaken
		}

		appt, err := s.repo.Insert(lockCtx, &Appointment{
			PatientID: in.PatientID,
			DoctorID:  in.DoctorID,
			StartsAt:  startsAt,
			Status:    StatusScheduled,
		})
		if err != nil {
			return err
		}

		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID:  act.UserID,
		Action:   "appointment.book",
		Table:    "appointments",
		RecordID: created.ID,
		Detail:   fmt.Sprintf("doctor=%s at=%s", in.DoctorID, startsAt.Format(time.RFC3339)),
	})

	return created, nil
}

// Cancel sets status = cancelled. Cancellation never violates the slot
// invariant, so no guard check is needed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch appt.Status {
	case StatusCancelled:
		return nil, ErrAlreadyCancelled
	case StatusCompleted:
		return nil, ErrTerminalState
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusScheduled, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Status moved underneath us between the read and the CAS.
			return nil, ErrTerminalState
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID:  act.UserID,
		Action:   "appointment.cancel",
		Table:    "appointments",
		RecordID: id,
	})

	return updated, nil
}

type EditInput struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
	StartsAt time.Time
	Status   Status
}

func (in *EditInput) Validate() error {
	if in.DoctorID == uuid.Nil {
		return ErrDoctorNotFound
	}
	if in.StartsAt.IsZero() {
		return ErrMissingInstant
	}
	if !in.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Edit applies doctor, time and status changes in one update. The guard is
// re-run only when the appointment stays (or becomes) scheduled and the
// doctor or the instant actually differ from the stored values.
func (s *Service) Edit(ctx context.Context, in EditInput) (*Appointment, error) {
	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}

	if existing.Status.Terminal() && in.Status != existing.Status {
		return nil, ErrTerminalState
	}

	startsAt := in.StartsAt.UTC().Truncate(time.Minute)
	slotChanged := in.DoctorID != existing.DoctorID || !startsAt.Equal(existing.StartsAt)
	needsGuard := in.Status == StatusScheduled && slotChanged

	existing.DoctorID = in.DoctorID
	existing.StartsAt = startsAt
	existing.Status = in.Status

	var updated *Appointment

	applyUpdate := func(updCtx context.Context) error {
		if needsGuard {
			if ok, err := s.repo.DoctorExists(updCtx, in.DoctorID); err != nil {
				return fmt.Errorf("check doctor: %w", err)
			} else if !ok {
				return ErrDoctorNotFound
			}

			excludeID := in.ID
			count, err := s.repo.CountScheduledAt(updCtx, in.DoctorID, startsAt, &excludeID)
			if err != nil {
				return fmt.Errorf("booking guard: %w", err)
			}
			if count > 0 {
				return ErrSlotTaken
			}
		}

		appt, err := s.repo.Update(updCtx, existing)
		if err != nil {
			return err
		}

		updated = appt
		return nil
	}

	if needsGuard {
		err = s.locker.WithLock(ctx, slotLockKey(in.DoctorID, startsAt), applyUpdate)
	} else {
		err = applyUpdate(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID:  act.UserID,
		Action:   "appointment.edit",
		Table:    "appointments",
		RecordID: in.ID,
		Detail:   fmt.Sprintf("status=%s", in.Status),
	})

	return updated, nil
}

// CompleteForVisit completes the scheduled appointment matching a recorded
// visit: same patient, same doctor, same calendar day, time-of-day ignored.
// When several match, the earliest instant wins. No match is a no-op.
func (s *Service) CompleteForVisit(ctx context.Context, patientID, doctorID uuid.UUID, day time.Time) (*Appointment, error) {
	act, err := actor.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	candidates, err := s.repo.ListScheduledForDay(ctx, patientID, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("find matching appointments: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	target := candidates[0]
	if len(candidates) > 1 {
		s.log.Warn().
			Str("patient_id", patientID.String()).
			Str("doctor_id", doctorID.String()).
			Int("matches", len(candidates)).
			Msg("multiple scheduled appointments match visit day, completing earliest")
	}

	completed, err := s.repo.UpdateStatus(ctx, target.ID, StatusScheduled, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Raced with a cancel or another visit; nothing to complete.
			return nil, nil
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.audits.Record(ctx, audit.Entry{
		ActorID:  act.UserID,
		Action:   "appointment.autocomplete",
		Table:    "appointments",
		RecordID: completed.ID,
		Detail:   "completed by visit",
	})

	return completed, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
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

func slotLockKey(doctorID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("lock:slot:%s:%s", doctorID, at.Format("2006-01-02T15:04"))
}
