package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

const maxPayloadBytes = 1 << 20

// Enqueuer accepts a batch for background dispatch.
type Enqueuer interface {
	Enqueue(batch Batch) (Batch, error)
}

// Handler exposes the notification triggers.
type Handler struct {
	queue  Enqueuer
	logger *logging.Logger
}

func NewHandler(queue Enqueuer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{queue: queue, logger: logger}
}

// RegisterRoutes mounts the triggers; expected under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/notifications/{kind}", h.trigger)
}

type triggerPayload struct {
	Events []Event `json:"events"`
}

type triggerResponse struct {
	Status  string `json:"status"`
	BatchID string `json:"batch_id"`
	Events  int    `json:"events"`
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseTemplateKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := decodeEvents(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.queue.Enqueue(Batch{Template: kind, Events: events})
	if err != nil {
		if errors.Is(err, ErrQueueFull) {
			h.logger.Warn("dispatch handler: queue full", "template", string(kind), "events", len(events))
			writeError(w, http.StatusServiceUnavailable, "dispatch queue is full, retry later")
			return
		}
		h.logger.Error("dispatch handler: enqueue", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info("dispatch handler: batch accepted", "batch_id", batch.ID, "template", string(kind), "events", len(events))
	writeJSON(w, http.StatusOK, triggerResponse{Status: "accepted", BatchID: batch.ID, Events: len(events)})
}

// decodeEvents accepts {"events":[...]} or a bare array.
func decodeEvents(body io.Reader) ([]Event, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty body")
	}

	if raw[0] == '[' {
		var events []Event
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("invalid events array: %w", err)
		}
		return events, nil
	}

	var payload triggerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if payload.Events == nil {
		return nil, errors.New("missing events")
	}
	return payload.Events, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
