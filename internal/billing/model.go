package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice is the billing header. Total is fixed at creation time as the sum
// of the line items; later payment-status changes never recompute it.
type Invoice struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	VisitID     *uuid.UUID
	InvoiceDate time.Time
	Total       decimal.Decimal
	Paid        bool
	CreatedAt   time.Time
}

// LineItem is one billable (service, quantity, unit price) entry. Items are
// written once as a batch and immutable afterwards.
type LineItem struct {
	ID        uuid.UUID
	InvoiceID uuid.UUID
	ServiceID uuid.UUID
	Quantity  int32
	UnitPrice decimal.Decimal
}

// VisitSummary is the joined visit context shown alongside an invoice.
type VisitSummary struct {
	ID         uuid.UUID
	VisitedAt  time.Time
	DoctorID   uuid.UUID
	DoctorName string
}

// InvoiceDetail is the read-side shape: header plus line items plus, when
// linked, the visit and its doctor.
type InvoiceDetail struct {
	Invoice
	Items []LineItem
	Visit *VisitSummary
}
