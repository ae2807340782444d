package api

import (
	"errors"
	"net/http"

	"github.com/clinware/clinic-backoffice/internal/actor"
	"github.com/clinware/clinic-backoffice/internal/billing"
	"github.com/clinware/clinic-backoffice/internal/catalog"
	"github.com/clinware/clinic-backoffice/internal/directory"
	"github.com/clinware/clinic-backoffice/internal/scheduling"
	"github.com/clinware/clinic-backoffice/internal/visit"
)

// handleServiceError maps domain sentinels onto the HTTP error taxonomy:
// validation 400, missing actor 401, not found 404, conflict 409, anything
// else 500. Conflicts and validation failures never left partial state
// behind, so the message is safe to show as-is.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, actor.ErrNoActor):
		writeError(w, http.StatusUnauthorized, "no_actor", err.Error())

	// Validation
	case errors.Is(err, directory.ErrMissingName),
		errors.Is(err, scheduling.ErrMissingInstant),
		errors.Is(err, scheduling.ErrInvalidStatus),
		errors.Is(err, visit.ErrMissingInstant),
		errors.Is(err, billing.ErrNoLineItems),
		errors.Is(err, billing.ErrInvalidQuantity),
		errors.Is(err, billing.ErrInvalidUnitPrice):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())

	// Not found
	case errors.Is(err, directory.ErrPatientNotFound),
		errors.Is(err, directory.ErrDoctorNotFound),
		errors.Is(err, scheduling.ErrPatientNotFound),
		errors.Is(err, scheduling.ErrDoctorNotFound),
		errors.Is(err, scheduling.ErrAppointmentNotFound),
		errors.Is(err, visit.ErrPatientNotFound),
		errors.Is(err, visit.ErrDoctorNotFound),
		errors.Is(err, visit.ErrVisitNotFound),
		errors.Is(err, billing.ErrPatientNotFound),
		errors.Is(err, billing.ErrVisitNotFound),
		errors.Is(err, billing.ErrInvoiceNotFound),
		errors.Is(err, catalog.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	// Conflict
	case errors.Is(err, scheduling.ErrSlotTaken),
		errors.Is(err, scheduling.ErrSlotBeingBooked),
		errors.Is(err, scheduling.ErrAlreadyCancelled),
		errors.Is(err, scheduling.ErrTerminalState),
		errors.Is(err, billing.ErrVisitAlreadyInvoiced),
		errors.Is(err, billing.ErrVisitBeingBilled),
		errors.Is(err, directory.ErrPatientInUse),
		errors.Is(err, directory.ErrPatientCodeTaken):
		writeError(w, http.StatusConflict, "conflict", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "the operation failed, it is safe to retry")
	}
}
