package directory

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the registry record referenced by appointments, visits and
// invoices. It is created once at registration and never duplicated.
type Patient struct {
	ID          uuid.UUID
	Code        string // unique human-readable identifier, e.g. P-3F19C2A4
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Sex         string
	Phone       string
	Address     string
	Insurance   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Doctor is a user with the doctor role. Read-only from this service's
// perspective.
type Doctor struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
}
