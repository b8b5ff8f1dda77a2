package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-scenarios/internal/logger"
	"github.com/mind-engage/mindengage-scenarios/internal/scenario"
)

type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e apiError) Error() string { return e.Code + ": " + e.Message }

func badRequest(msg string) apiError {
	return apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: msg}
}

// toAPIError maps domain errors to status codes. EmptyScenario is checked
// before NotFound because it wraps it.
func toAPIError(err error) apiError {
	var ae apiError
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, scenario.ErrEmptyScenario):
		return apiError{http.StatusNotFound, "empty_scenario", err.Error()}
	case errors.Is(err, scenario.ErrNotFound):
		return apiError{http.StatusNotFound, "not_found", err.Error()}
	case errors.Is(err, scenario.ErrInvalidState):
		return apiError{http.StatusConflict, "invalid_state", err.Error()}
	case errors.Is(err, scenario.ErrScenarioInUse):
		return apiError{http.StatusConflict, "scenario_in_use", err.Error()}
	case errors.Is(err, scenario.ErrStaleAttempt):
		return apiError{http.StatusConflict, "conflict", err.Error()}
	case errors.Is(err, scenario.ErrInvalidGraph), errors.As(err, &verr):
		return badRequest(err.Error())
	default:
		return apiError{http.StatusInternalServerError, "internal", "internal error"}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	ae := toAPIError(err)
	if ae.Status >= 500 {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, ae.Status, ae)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
