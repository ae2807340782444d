package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinware/clinic-backoffice/internal/billing"
	"github.com/clinware/clinic-backoffice/internal/directory"
	"github.com/clinware/clinic-backoffice/internal/scheduling"
	"github.com/clinware/clinic-backoffice/internal/visit"
)

// Requests. IDs arrive as strings and are parsed in the handlers; times are
// RFC 3339.

type RegisterPatientRequest struct {
	Code        string `json:"code,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"` // 2006-01-02
	Sex         string `json:"sex,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Insurance   string `json:"insurance,omitempty"`
}

type UpdatePatientRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Sex         string `json:"sex,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Insurance   string `json:"insurance,omitempty"`
}

type BookAppointmentRequest struct {
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	StartsAt  time.Time `json:"starts_at"`
}

type EditAppointmentRequest struct {
	DoctorID string    `json:"doctor_id"`
	StartsAt time.Time `json:"starts_at"`
	Status   string    `json:"status"`
}

type RecordVisitRequest struct {
	PatientID    string    `json:"patient_id"`
	DoctorID     string    `json:"doctor_id"`
	VisitedAt    time.Time `json:"visited_at"`
	Diagnosis    string    `json:"diagnosis,omitempty"`
	LabRequest   string    `json:"lab_request,omitempty"`
	Prescription string    `json:"prescription,omitempty"`
}

type UpdateVisitRequest struct {
	Diagnosis    string `json:"diagnosis"`
	LabRequest   string `json:"lab_request"`
	Prescription string `json:"prescription"`
}

type InvoiceLineRequest struct {
	ServiceID string          `json:"service_id"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type CreateInvoiceRequest struct {
	PatientID   string               `json:"patient_id"`
	VisitID     string               `json:"visit_id,omitempty"`
	InvoiceDate string               `json:"invoice_date,omitempty"` // 2006-01-02
	Paid        bool                 `json:"paid"`
	Items       []InvoiceLineRequest `json:"items"`
}

// Responses.

type PatientResponse struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	Sex         string    `json:"sex,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	Insurance   string    `json:"insurance,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toPatientResponse(p *directory.Patient) PatientResponse {
	resp := PatientResponse{
		ID:        p.ID,
		Code:      p.Code,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Sex:       p.Sex,
		Phone:     p.Phone,
		Address:   p.Address,
		Insurance: p.Insurance,
		CreatedAt: p.CreatedAt,
	}
	if p.DateOfBirth != nil {
		resp.DateOfBirth = p.DateOfBirth.Format("2006-01-02")
	}
	return resp
}

type DoctorResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email,omitempty"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartsAt  time.Time `json:"starts_at"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		StartsAt:  a.StartsAt,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
	}
}

type VisitResponse struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patient_id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	VisitedAt    time.Time `json:"visited_at"`
	Diagnosis    string    `json:"diagnosis,omitempty"`
	LabRequest   string    `json:"lab_request,omitempty"`
	Prescription string    `json:"prescription,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toVisitResponse(v *visit.Visit) VisitResponse {
	return VisitResponse{
		ID:           v.ID,
		PatientID:    v.PatientID,
		DoctorID:     v.DoctorID,
		VisitedAt:    v.VisitedAt,
		Diagnosis:    v.Diagnosis,
		LabRequest:   v.LabRequest,
		Prescription: v.Prescription,
		CreatedAt:    v.CreatedAt,
	}
}

type InvoiceLineResponse struct {
	ID        uuid.UUID       `json:"id"`
	ServiceID uuid.UUID       `json:"service_id"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type InvoiceVisitResponse struct {
	ID         uuid.UUID `json:"id"`
	VisitedAt  time.Time `json:"visited_at"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	DoctorName string    `json:"doctor_name"`
}

type InvoiceResponse struct {
	ID          uuid.UUID             `json:"id"`
	PatientID   uuid.UUID             `json:"patient_id"`
	VisitID     *uuid.UUID            `json:"visit_id,omitempty"`
	InvoiceDate string                `json:"invoice_date"`
	Total       decimal.Decimal       `json:"total"`
	Paid        bool                  `json:"paid"`
	Items       []InvoiceLineResponse `json:"items,omitempty"`
	Visit       *InvoiceVisitResponse `json:"visit,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

func toInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:          inv.ID,
		PatientID:   inv.PatientID,
		VisitID:     inv.VisitID,
		InvoiceDate: inv.InvoiceDate.Format("2006-01-02"),
		Total:       inv.Total,
		Paid:        inv.Paid,
		CreatedAt:   inv.CreatedAt,
	}
}

func toInvoiceDetailResponse(d *billing.InvoiceDetail) InvoiceResponse {
	resp := toInvoiceResponse(&d.Invoice)
	for _, item := range d.Items {
		resp.Items = append(resp.Items, InvoiceLineResponse{
			ID:        item.ID,
			ServiceID: item.ServiceID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	if d.Visit != nil {
		resp.Visit = &InvoiceVisitResponse{
			ID:         d.Visit.ID,
			VisitedAt:  d.Visit.VisitedAt,
			DoctorID:   d.Visit.DoctorID,
			DoctorName: d.Visit.DoctorName,
		}
	}
	return resp
}

type ServiceResponse struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
