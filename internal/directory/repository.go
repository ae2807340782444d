package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrPatientCodeTaken = errors.New("patient code already in use")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	InsertPatient(ctx context.Context, p *Patient) (*Patient, error)
	UpdatePatient(ctx context.Context, p *Patient) (*Patient, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByCode(ctx context.Context, code string) (*Patient, error)
	SearchPatients(ctx context.Context, query string, limit, offset int) ([]Patient, error)
	DeletePatient(ctx context.Context, id uuid.UUID) error

	// CountPatientReferences reports how many appointments, visits and
	// invoices reference the patient. Used by the deletion guard.
	CountPatientReferences(ctx context.Context, id uuid.UUID) (int, error)

	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
}
