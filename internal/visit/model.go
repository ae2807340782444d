package visit

import (
	"time"

	"github.com/google/uuid"
)

// Visit records a clinical encounter. It is created independently of any
// appointment; when one matches, the scheduling service completes it as a
// side effect of recording the visit.
type Visit struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	VisitedAt    time.Time
	Diagnosis    string
	LabRequest   string
	Prescription string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
