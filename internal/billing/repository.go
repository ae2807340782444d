package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrVisitAlreadyInvoiced = errors.New("visit already has an invoice")
	ErrInvoiceAlreadyPaid   = errors.New("invoice is already paid")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// CreateInvoice inserts the header and every line item inside one
	// transaction; any failure rolls back all of it.
	CreateInvoice(ctx context.Context, inv *Invoice, items []LineItem) (*Invoice, error)

	GetHeader(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*InvoiceDetail, error)
	GetByVisit(ctx context.Context, visitID uuid.UUID) (*Invoice, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Invoice, error)

	// MarkPaid flips paid when it is still false. Returns
	// ErrInvoiceAlreadyPaid when the flag was already set.
	MarkPaid(ctx context.Context, id uuid.UUID) (*Invoice, error)

	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	VisitExists(ctx context.Context, id uuid.UUID) (bool, error)
}
