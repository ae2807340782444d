package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinware/clinic-backoffice/internal/visit"
)

func recordVisitHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecordVisitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		v, err := svc.Record(r.Context(), visit.RecordInput{
			PatientID:    patientID,
			DoctorID:     doctorID,
			VisitedAt:    req.VisitedAt,
			Diagnosis:    req.Diagnosis,
			LabRequest:   req.LabRequest,
			Prescription: req.Prescription,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toVisitResponse(v))
	}
}

func getVisitHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
			return
		}

		v, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitResponse(v))
	}
}

func updateVisitHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
			return
		}

		var req UpdateVisitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		v, err := svc.Update(r.Context(), id, visit.UpdateInput{
			Diagnosis:    req.Diagnosis,
			LabRequest:   req.LabRequest,
			Prescription: req.Prescription,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitResponse(v))
	}
}

func listPatientVisitsHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		limit, offset := pagination(r)

		visits, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]VisitResponse, 0, len(visits))
		for i := range visits {
			resp = append(resp, toVisitResponse(&visits[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
