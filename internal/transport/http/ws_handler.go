package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// WSHandler keeps one attempt open over a websocket for answer autosave.
type WSHandler struct {
	service  *app.AttemptService
	logger   *slog.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service:  service,
		logger:   logger,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type savedPayload struct {
	QuestionIDs []string `json:"questionIds"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and serves autosave messages for one attempt:
// "answer" carries a submitAnswersRequest, "finish" grades the attempt and ends the session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	viewer := ViewerFromRequest(r)
	attemptID := r.URL.Query().Get("attemptId")
	if attemptID == "" || viewer.UserID == "" {
		http.Error(w, "missing attemptId or identity", http.StatusBadRequest)
		return
	}

	content, err := h.service.GetAttemptContent(r.Context(), viewer, attemptID, r.URL.Query().Get("locale"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	out := newOutbox(conn, func(err error) {
		h.logger.Warn("ws write error", "attempt_id", attemptID, "error", err)
	})
	defer out.close()

	if !out.push(outboundMessage[any]{Type: "attempt", Payload: content}) {
		return
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		var msg outboundMessage[any]
		done := false
		switch inbound.Type {
		case "answer":
			msg = h.answer(r, viewer, attemptID, inbound.Payload)
		case "finish":
			result, err := h.service.FinishAttempt(r.Context(), viewer, attemptID)
			if err != nil {
				msg = h.errorMessage(err)
				break
			}
			msg = outboundMessage[any]{Type: "result", Payload: result}
			done = true
		default:
			msg = h.errorMessage(&domain.ValidationError{Reason: domain.ReasonMalformed, Detail: "unsupported message type"})
		}
		if !out.push(msg) || done {
			return
		}
	}
}

func (h *WSHandler) answer(r *http.Request, viewer domain.Viewer, attemptID string, payload json.RawMessage) outboundMessage[any] {
	var req submitAnswersRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.errorMessage(&domain.ValidationError{Reason: domain.ReasonMalformed, Detail: "invalid answer payload"})
	}
	if err := checkStruct(h.validate, &req); err != nil {
		return h.errorMessage(err)
	}
	if err := h.service.SubmitAnswers(r.Context(), viewer, attemptID, req.submissions()); err != nil {
		return h.errorMessage(err)
	}
	ids := make([]string, 0, len(req.Answers))
	for _, a := range req.Answers {
		ids = append(ids, a.QuestionID)
	}
	return outboundMessage[any]{Type: "saved", Payload: savedPayload{QuestionIDs: ids}}
}

type jsonWriter interface {
	WriteJSON(v interface{}) error
}

// outbox serializes writes onto a connection from a single goroutine;
// gorilla connections do not support concurrent writers.
type outbox struct {
	send chan outboundMessage[any]
	done chan struct{}
}

func newOutbox(w jsonWriter, onError func(error)) *outbox {
	o := &outbox{
		send: make(chan outboundMessage[any], 16),
		done: make(chan struct{}),
	}
	go func() {
		defer close(o.done)
		for msg := range o.send {
			if err := w.WriteJSON(msg); err != nil {
				onError(err)
				return
			}
		}
	}()
	return o
}

// push queues msg and reports false once the writer has stopped.
func (o *outbox) push(msg outboundMessage[any]) bool {
	select {
	case o.send <- msg:
		return true
	case <-o.done:
		return false
	}
}

// close flushes queued messages and waits for the writer to exit.
func (o *outbox) close() {
	close(o.send)
	<-o.done
}

func (h *WSHandler) errorMessage(err error) outboundMessage[any] {
	detail := errorDetail{Reason: string(domain.ReasonOf(err)), Message: err.Error()}
	if statusOf(err) == http.StatusInternalServerError {
		h.logger.Error("ws request failed", "error", err)
		detail.Message = "internal error"
	}
	return outboundMessage[any]{Type: "error", Payload: detail}
}
