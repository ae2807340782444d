package visit

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrVisitNotFound = errors.New("visit not found")

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Insert(ctx context.Context, v *Visit) (*Visit, error)
	Update(ctx context.Context, v *Visit) (*Visit, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Visit, error)

	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
}
