package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CountScheduledAt is the booking guard query: scheduled appointments
	// for the doctor at the exact instant, optionally excluding one id
	// (used when re-validating an edit against itself).
	CountScheduledAt(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID *uuid.UUID) (int, error)

	Insert(ctx context.Context, appt *Appointment) (*Appointment, error)
	Update(ctx context.Context, appt *Appointment) (*Appointment, error)

	// UpdateStatus transitions only when the stored status still matches
	// `from`. Returns ErrAppointmentNotFound when the row is gone or the
	// status moved underneath us.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// ListScheduledForDay returns scheduled appointments for the patient
	// and doctor within [dayStart, dayEnd), ordered by starts_at.
	ListScheduledForDay(ctx context.Context, patientID, doctorID uuid.UUID, dayStart, dayEnd time.Time) ([]Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
}
