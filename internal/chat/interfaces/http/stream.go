package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/application"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/observability/metrics"
)

// sseWriter serializes frame writes from the generation goroutine and the
// heartbeat ticker. After the terminal frame nothing else is written.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

var errStreamClosed = errors.New("stream closed")

func (s *sseWriter) writeEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// writeTerminal writes the final result or error frame and seals the stream.
func (s *sseWriter) writeTerminal(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	s.closed = true
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// streamEmitter adapts sseWriter to the application.Emitter interface.
type streamEmitter struct {
	writer *sseWriter
}

func (e *streamEmitter) Meta(meta application.StreamMeta) error {
	return e.writer.writeEvent("meta", meta)
}

func (e *streamEmitter) Token(token string) error {
	return e.writer.writeEvent("token", map[string]string{"content": token})
}

// StreamHandler serves GET|POST /api/v1/chat/stream.
type StreamHandler struct {
	service   ChatService
	heartbeat time.Duration
	timeout   time.Duration
	logger    *log.Logger
}

// NewStreamHandler constructs the SSE handler.
func NewStreamHandler(service ChatService, heartbeat, timeout time.Duration, logger *log.Logger) (*StreamHandler, error) {
	if service == nil {
		return nil, errors.New("stream handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &StreamHandler{service: service, heartbeat: heartbeat, timeout: timeout, logger: logger}, nil
}

// ServeHTTP streams one answer. Input arrives via query string (GET, for
// EventSource clients) or JSON body (POST).
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := decodeStreamRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.StreamOpened()
	started := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	writer := &sseWriter{w: w, flusher: flusher}
	heartbeatDone := make(chan struct{})
	go h.runHeartbeat(ctx, writer, heartbeatDone)

	result, err := h.service.Stream(ctx, req.toApplication(r), &streamEmitter{writer: writer})

	close(heartbeatDone)

	if err != nil {
		status := statusFor(err)
		h.logger.Printf("chat stream: failed (%d): %v", status, err)
		if werr := writer.writeTerminal("error", map[string]any{
			"error":  publicMessage(err, status),
			"status": status,
		}); werr != nil && !errors.Is(werr, errStreamClosed) {
			h.logger.Printf("chat stream: error frame write failed: %v", werr)
		}
		metrics.ObserveChat("sse", metrics.ResultError, time.Since(started))
		metrics.StreamClosed("error")
		return
	}

	if werr := writer.writeTerminal("result", result); werr != nil {
		h.logger.Printf("chat stream: result frame write failed: %v", werr)
	}
	metrics.ObserveChat("sse", metrics.ResultSuccess, time.Since(started))
	metrics.StreamClosed("done")
}

// runHeartbeat pings on a fixed interval until the request finishes. A failed
// ping write is logged and the stream continues.
func (h *StreamHandler) runHeartbeat(ctx context.Context, writer *sseWriter, done <-chan struct{}) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := writer.writeEvent("ping", map[string]int64{"ts": time.Now().Unix()})
			if err != nil {
				if errors.Is(err, errStreamClosed) {
					return
				}
				h.logger.Printf("chat stream: heartbeat write failed: %v", err)
				continue
			}
			metrics.IncHeartbeat()
		}
	}
}

func decodeStreamRequest(r *http.Request) (chatRequest, error) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		return chatRequest{
			Question: q.Get("question"),
			Token:    q.Get("token"),
			TripID:   q.Get("tripId"),
			UserID:   q.Get("userId"),
			Since:    q.Get("since"),
			Until:    q.Get("until"),
			Timezone: q.Get("timezone"),
		}, nil
	default:
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return chatRequest{}, errors.New("invalid request body")
		}
		return req, nil
	}
}
