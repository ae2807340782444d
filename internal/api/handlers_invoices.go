package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinware/clinic-backoffice/internal/billing"
	"github.com/clinware/clinic-backoffice/internal/observability/metrics"
)

func createInvoiceHandler(svc *billing.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateInvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		var visitID *uuid.UUID
		if req.VisitID != "" {
			id, err := uuid.Parse(req.VisitID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_visit_id", "visit_id must be a valid UUID")
				return
			}
			visitID = &id
		}

		var invoiceDate time.Time
		if req.InvoiceDate != "" {
			invoiceDate, err = time.Parse("2006-01-02", req.InvoiceDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_invoice_date", "invoice_date must be YYYY-MM-DD")
				return
			}
		}

		items := make([]billing.LineInput, 0, len(req.Items))
		for _, item := range req.Items {
			serviceID, err := uuid.Parse(item.ServiceID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
				return
			}
			items = append(items, billing.LineInput{
				ServiceID: serviceID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			})
		}

		inv, err := svc.CreateInvoice(r.Context(), billing.CreateInvoiceInput{
			PatientID:   patientID,
			VisitID:     visitID,
			InvoiceDate: invoiceDate,
			Paid:        req.Paid,
			Items:       items,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		m.IncInvoiceCreated()

		writeJSON(w, http.StatusCreated, toInvoiceResponse(inv))
	}
}

func getInvoiceHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_invoice_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toInvoiceDetailResponse(detail))
	}
}

type payInvoiceResponse struct {
	Invoice InvoiceResponse `json:"invoice"`
	Note    string          `json:"note,omitempty"`
}

func payInvoiceHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_invoice_id", "id must be a valid UUID")
			return
		}

		inv, alreadyPaid, err := svc.MarkPaid(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := payInvoiceResponse{Invoice: toInvoiceResponse(inv)}
		if alreadyPaid {
			resp.Note = "invoice was already paid"
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func listPatientInvoicesHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		invoices, err := svc.ListByPatient(r.Context(), patientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]InvoiceResponse, 0, len(invoices))
		for i := range invoices {
			resp = append(resp, toInvoiceResponse(&invoices[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
