package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"quiz-attempt-service/internal/domain"
)

type errorDetail struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// statusOf maps the domain error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	var (
		validation  *domain.ValidationError
		notFound    *domain.NotFoundError
		eligibility *domain.EligibilityError
		state       *domain.StateError
		concurrency *domain.ConcurrencyError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &eligibility):
		return http.StatusForbidden
	case errors.As(err, &state):
		if state.Reason == domain.ReasonNotAttemptOwner || state.Reason == domain.ReasonForbidden {
			return http.StatusForbidden
		}
		return http.StatusConflict
	case errors.As(err, &concurrency):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err; internal failures are logged and reported without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusOf(err)
	detail := errorDetail{Reason: string(domain.ReasonOf(err)), Message: err.Error()}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		detail.Message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
