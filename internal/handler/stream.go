package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/deputeti-ai/chat-gateway/internal/model"
	"github.com/deputeti-ai/chat-gateway/internal/service"
	"github.com/deputeti-ai/chat-gateway/pkg/logger"
	"github.com/deputeti-ai/chat-gateway/pkg/metrics"
)

// DefaultHeartbeat is the interval between heartbeat events.
const DefaultHeartbeat = 30 * time.Second

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	sessions  *service.ConversationSessions
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(sessions *service.ConversationSessions, heartbeat time.Duration, log *logger.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{
		sessions:  sessions,
		logger:    log,
		heartbeat: heartbeat,
	}
}

// Sessions handles GET /api/v1/sessions/events. The current list is sent
// first, then a fresh snapshot after every session change. A subscriber that
// falls behind only receives the latest snapshot.
func (h *StreamHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The stream outlives the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("failed to clear write deadline", zap.Error(err))
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	updates := make(chan []model.SessionIndexEntry, 1)
	unsubscribe := h.sessions.Subscribe(func(list []model.SessionIndexEntry) {
		for {
			select {
			case updates <- list:
				return
			default:
			}
			// Replace the stale snapshot waiting in the buffer.
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := sendSSEEvent(w, flusher, "sessions", listResponse(h.sessions.Sessions())); err != nil {
		h.logger.Warn("failed to send sessions snapshot", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected")
			return

		case list := <-updates:
			if err := sendSSEEvent(w, flusher, "sessions", listResponse(list)); err != nil {
				h.logger.Warn("failed to send sessions snapshot", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func listResponse(list []model.SessionIndexEntry) *model.ListSessionsResponse {
	if list == nil {
		list = []model.SessionIndexEntry{}
	}
	return &model.ListSessionsResponse{
		Sessions: list,
		Total:    len(list),
	}
}

// sendSSEEvent sends a Server-Sent Event.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
