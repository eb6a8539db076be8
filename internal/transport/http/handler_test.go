package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	catalog := memory.NewCatalog()
	catalog.PutQuiz(sampleQuiz())
	catalog.PutQuestions(sampleQuestions()...)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := app.NewAttemptService(memory.NewQuizRepository(catalog, time.Minute), catalog, catalog, memory.NewAttemptStore(), app.WithLogger(logger))

	r := chi.NewRouter()
	NewHandler(service, logger).Routes(r)
	r.Get("/ws", NewWSHandler(service, logger).ServeWS)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func call(t *testing.T, server *httptest.Server, method, path, profile, roles string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if profile != "" {
		req.Header.Set(headerUserID, "user-"+profile)
		req.Header.Set(headerProfileID, profile)
		req.Header.Set(headerRoles, roles)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func reasonIn(t *testing.T, raw []byte) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode error body %q: %v", raw, err)
	}
	return body.Error.Reason
}

func startAttempt(t *testing.T, server *httptest.Server, profile string) app.AttemptContent {
	t.Helper()
	status, raw := call(t, server, http.MethodPost, "/quizzes/quiz-1/attempts", profile, "student", nil)
	if status != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d: %s", status, raw)
	}
	var content app.AttemptContent
	if err := json.Unmarshal(raw, &content); err != nil {
		t.Fatalf("decode content: %v", err)
	}
	return content
}

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t)

	content := startAttempt(t, server, "s1")
	if len(content.Questions) != 2 || content.MaxScore != 3 {
		t.Fatalf("unexpected content: %+v", content)
	}

	attemptPath := "/attempts/" + content.Attempt.ID
	status, raw := call(t, server, http.MethodGet, attemptPath, "s1", "student", nil)
	if status != http.StatusOK {
		t.Fatalf("get attempt: %d %s", status, raw)
	}
	if bytes.Contains(raw, []byte(`"correct"`)) || bytes.Contains(raw, []byte(`"isCorrect"`)) {
		t.Fatalf("answer key leaked before grading: %s", raw)
	}

	answers := map[string]any{"answers": []map[string]any{
		{"questionId": "q1", "selectedOptionIds": []string{"T"}},
		{"questionId": "q2", "selectedOptionIds": []string{"A"}},
	}}
	if status, raw := call(t, server, http.MethodPut, attemptPath+"/answers", "s1", "student", answers); status != http.StatusNoContent {
		t.Fatalf("submit: %d %s", status, raw)
	}

	status, raw = call(t, server, http.MethodPost, attemptPath+"/finish", "s1", "student", nil)
	if status != http.StatusOK {
		t.Fatalf("finish: %d %s", status, raw)
	}
	var result domain.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Score != 2 || result.MaxScore != 3 {
		t.Fatalf("expected 2/3, got %+v", result)
	}

	status, raw = call(t, server, http.MethodPost, "/quizzes/quiz-1/attempts", "s1", "student", nil)
	if status != http.StatusForbidden || reasonIn(t, raw) != string(domain.ReasonAttemptsExhausted) {
		t.Fatalf("expected 403 ATTEMPTS_EXHAUSTED, got %d %s", status, raw)
	}

	status, raw = call(t, server, http.MethodGet, "/quizzes/quiz-1/attempts", "s1", "student", nil)
	if status != http.StatusOK || !bytes.Contains(raw, []byte(`"GRADED"`)) {
		t.Fatalf("list attempts: %d %s", status, raw)
	}
}

func TestErrorMapping(t *testing.T) {
	server := newTestServer(t)
	content := startAttempt(t, server, "s1")
	answersPath := "/attempts/" + content.Attempt.ID + "/answers"

	cases := []struct {
		name       string
		method     string
		path       string
		profile    string
		roles      string
		body       any
		wantStatus int
		wantReason domain.Reason
	}{
		{"missing identity", http.MethodGet, "/quizzes/available", "", "", nil, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"unknown quiz", http.MethodPost, "/quizzes/nope/attempts", "s2", "student", nil, http.StatusNotFound, domain.ReasonNotFound},
		{"unknown attempt", http.MethodGet, "/attempts/nope", "s1", "student", nil, http.StatusNotFound, domain.ReasonNotFound},
		{"foreign attempt", http.MethodPost, "/attempts/" + content.Attempt.ID + "/finish", "s2", "student", nil, http.StatusForbidden, domain.ReasonNotAttemptOwner},
		{"malformed json", http.MethodPut, answersPath, "s1", "student", "{", http.StatusBadRequest, domain.ReasonMalformed},
		{"no answers", http.MethodPut, answersPath, "s1", "student", map[string]any{"answers": []any{}}, http.StatusBadRequest, domain.ReasonMalformed},
		{"unknown option", http.MethodPut, answersPath, "s1", "student",
			map[string]any{"answers": []map[string]any{{"questionId": "q1", "selectedOptionIds": []string{"Z"}}}},
			http.StatusBadRequest, domain.ReasonUnknownOption},
		{"empty selection", http.MethodPut, answersPath, "s1", "student",
			map[string]any{"answers": []map[string]any{{"questionId": "q1", "selectedOptionIds": []string{}}}},
			http.StatusBadRequest, domain.ReasonEmptySelection},
		{"student regrade", http.MethodPost, "/attempts/" + content.Attempt.ID + "/regrade", "s1", "student", nil, http.StatusForbidden, domain.ReasonForbidden},
		{"regrade in progress", http.MethodPost, "/attempts/" + content.Attempt.ID + "/regrade", "t1", "teacher", nil, http.StatusConflict, domain.ReasonInvalidAttemptState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, raw := call(t, server, tc.method, tc.path, tc.profile, tc.roles, tc.body)
			if status != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, status, raw)
			}
			if got := reasonIn(t, raw); got != string(tc.wantReason) {
				t.Fatalf("expected reason %s, got %s", tc.wantReason, got)
			}
		})
	}
}

func TestListAvailableAndEligibility(t *testing.T) {
	server := newTestServer(t)

	status, raw := call(t, server, http.MethodGet, "/quizzes/available", "s1", "student", nil)
	if status != http.StatusOK {
		t.Fatalf("available: %d %s", status, raw)
	}
	var listing struct {
		Quizzes []app.AvailableQuiz `json:"quizzes"`
	}
	if err := json.Unmarshal(raw, &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Quizzes) != 1 || listing.Quizzes[0].QuizID != "quiz-1" || listing.Quizzes[0].AttemptsRemaining != 1 {
		t.Fatalf("unexpected listing: %+v", listing.Quizzes)
	}

	status, raw = call(t, server, http.MethodGet, "/quizzes/quiz-1/eligibility", "s1", "student", nil)
	if status != http.StatusOK || !bytes.Contains(raw, []byte(`"allowed":true`)) {
		t.Fatalf("eligibility: %d %s", status, raw)
	}
}

func TestStatusOfUnknownErrorIsInternal(t *testing.T) {
	if got := statusOf(io.ErrUnexpectedEOF); got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
	rec := httptest.NewRecorder()
	writeError(rec, slog.New(slog.NewTextHandler(io.Discard, nil)), io.ErrUnexpectedEOF)
	if strings.Contains(rec.Body.String(), "unexpected EOF") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:           "quiz-1",
		Title:        "Science basics",
		Status:       domain.QuizPublished,
		MaxAttempts:  domain.AttemptLimit(1),
		TimeLimitSec: 600,
		Audience:     []domain.AudienceRule{{Scope: domain.AudienceAll}},
		Questions: []domain.QuestionRef{
			{QuestionID: "q1", Points: 1, OrderIndex: 0},
			{QuestionID: "q2", Points: 2, OrderIndex: 1},
		},
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:     "q1",
			Type:   domain.TrueFalse,
			Prompt: map[string]string{"en": "Water boils at 100C at sea level."},
			Options: []domain.Option{
				{ID: "T", Text: map[string]string{"en": "True"}, Correct: true, OrderIndex: 0},
				{ID: "F", Text: map[string]string{"en": "False"}, OrderIndex: 1},
			},
		},
		{
			ID:     "q2",
			Type:   domain.MCQMulti,
			Prompt: map[string]string{"en": "Which are noble gases?"},
			Options: []domain.Option{
				{ID: "A", Text: map[string]string{"en": "Helium"}, Correct: true, OrderIndex: 0},
				{ID: "B", Text: map[string]string{"en": "Neon"}, Correct: true, OrderIndex: 1},
				{ID: "C", Text: map[string]string{"en": "Oxygen"}, OrderIndex: 2},
			},
		},
	}
}
