package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/personnel-engine/generic"
)

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a service error onto its HTTP status and stable
// error code. Server-side failures are logged; client errors are not.
func writeServiceError(w http.ResponseWriter, log *logrus.Entry, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error(message)
	}
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    errorCode(err),
		Details: err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorCode checks refinements before their parents.
func errorCode(err error) string {
	switch {
	case errors.Is(err, generic.ErrMalformedLabel), errors.Is(err, generic.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, generic.ErrVersionConflict):
		return "VERSION_CONFLICT"
	case errors.Is(err, generic.ErrDuplicateIdentifier):
		return "DUPLICATE_IDENTIFIER"
	case errors.Is(err, generic.ErrDuplicateField):
		return "DUPLICATE_FIELD"
	case errors.Is(err, generic.ErrInvalidDateRange):
		return "INVALID_DATE_RANGE"
	case errors.Is(err, generic.ErrAlreadyConverted):
		return "ALREADY_CONVERTED"
	case errors.Is(err, generic.ErrAlreadyEnded):
		return "ALREADY_ENDED"
	case errors.Is(err, generic.ErrAlreadyInactive):
		return "ALREADY_INACTIVE"
	case errors.Is(err, generic.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, generic.ErrRoleInUse):
		return "ROLE_IN_USE"
	case errors.Is(err, generic.ErrMissingActor):
		return "MISSING_ACTOR"
	case errors.Is(err, generic.ErrValidation):
		return "VALIDATION"
	case errors.Is(err, generic.ErrExhaustedAttempts):
		return "EXHAUSTED_ATTEMPTS"
	default:
		return "INTERNAL"
	}
}

// validationDetails flattens validator errors into field -> rule.
func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[fe.Field()] = rule
	}
	return out
}
