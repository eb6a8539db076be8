package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Handler exposes the attempt use cases over JSON/HTTP.
type Handler struct {
	service  *app.AttemptService
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(service *app.AttemptService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Routes registers the attempt API under r.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requireViewer)
		r.Get("/quizzes/available", h.handleListAvailable)
		r.Get("/quizzes/{quizID}/eligibility", h.handleEligibility)
		r.Get("/quizzes/{quizID}/attempts", h.handleListAttempts)
		r.Post("/quizzes/{quizID}/attempts", h.handleStartAttempt)
		r.Get("/attempts/{attemptID}", h.handleGetAttempt)
		r.Put("/attempts/{attemptID}/answers", h.handleSubmitAnswers)
		r.Post("/attempts/{attemptID}/finish", h.handleFinish)
		r.Post("/attempts/{attemptID}/regrade", h.handleRegrade)
	})
}

type answerRequest struct {
	QuestionID        string   `json:"questionId" validate:"required"`
	SelectedOptionIDs []string `json:"selectedOptionIds" validate:"dive,required"`
}

type submitAnswersRequest struct {
	Answers []answerRequest `json:"answers" validate:"required,min=1,dive"`
}

func (r submitAnswersRequest) submissions() []domain.AnswerSubmission {
	out := make([]domain.AnswerSubmission, 0, len(r.Answers))
	for _, a := range r.Answers {
		out = append(out, domain.AnswerSubmission{QuestionID: a.QuestionID, SelectedOptionIDs: a.SelectedOptionIDs})
	}
	return out
}

func (h *Handler) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.service.ListAvailable(r.Context(), viewerFrom(r.Context()), h.now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizzes": quizzes})
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	eligibility, err := h.service.CanAttempt(r.Context(), viewerFrom(r.Context()), chi.URLParam(r, "quizID"), h.now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibility)
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.service.ListAttempts(r.Context(), viewerFrom(r.Context()), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (h *Handler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	attempt, err := h.service.StartAttempt(r.Context(), viewer, chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	content, err := h.service.GetAttemptContent(r.Context(), viewer, attempt.ID, r.Header.Get("Accept-Language"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, content)
}

func (h *Handler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	locale := r.URL.Query().Get("locale")
	if locale == "" {
		locale = r.Header.Get("Accept-Language")
	}
	content, err := h.service.GetAttemptContent(r.Context(), viewerFrom(r.Context()), chi.URLParam(r, "attemptID"), locale)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (h *Handler) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	var req submitAnswersRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	attemptID := chi.URLParam(r, "attemptID")
	if err := h.service.SubmitAnswers(r.Context(), viewerFrom(r.Context()), attemptID, req.submissions()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.FinishAttempt(r.Context(), viewerFrom(r.Context()), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRegrade(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RegradeAttempt(r.Context(), viewerFrom(r.Context()), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decode parses a JSON body and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.ValidationError{Reason: domain.ReasonMalformed, Detail: "invalid JSON body"}
	}
	return checkStruct(h.validate, dst)
}

func checkStruct(validate *validator.Validate, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, fe.Namespace()+" "+fe.Tag())
		}
	}
	return &domain.ValidationError{Reason: domain.ReasonMalformed, Detail: strings.Join(fields, "; ")}
}
