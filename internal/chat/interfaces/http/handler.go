// Package http exposes the chat service over a single-shot JSON endpoint and
// an SSE streaming endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/application"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/observability/metrics"
)

// ChatService is the application surface the handlers call.
type ChatService interface {
	Ask(ctx context.Context, req application.Request) (*domain.ChatResult, error)
	Stream(ctx context.Context, req application.Request, emitter application.Emitter) (*domain.ChatResult, error)
}

type chatRequest struct {
	Question string `json:"question"`
	Token    string `json:"token"`
	TripID   string `json:"tripId"`
	UserID   string `json:"userId"`
	Since    string `json:"since"`
	Until    string `json:"until"`
	Timezone string `json:"timezone"`
}

func (c chatRequest) toApplication(r *http.Request) application.Request {
	return application.Request{
		Question: c.Question,
		Token:    c.Token,
		Bearer:   bearerToken(r),
		TripID:   c.TripID,
		UserID:   c.UserID,
		Since:    c.Since,
		Until:    c.Until,
		Timezone: c.Timezone,
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// ChatHandler serves POST /api/v1/chat.
type ChatHandler struct {
	service ChatService
	timeout time.Duration
	logger  *log.Logger
}

// NewChatHandler constructs the single-shot handler.
func NewChatHandler(service ChatService, timeout time.Duration, logger *log.Logger) (*ChatHandler, error) {
	if service == nil {
		return nil, errors.New("chat handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatHandler{service: service, timeout: timeout, logger: logger}, nil
}

// ServeHTTP handles one question and replies with the terminal result.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	started := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		metrics.ObserveChat("http", metrics.ResultError, time.Since(started))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.service.Ask(ctx, req.toApplication(r))
	if err != nil {
		status := statusFor(err)
		h.logger.Printf("chat: request failed (%d): %v", status, err)
		writeError(w, status, publicMessage(err, status))
		metrics.ObserveChat("http", metrics.ResultError, time.Since(started))
		return
	}

	writeJSON(w, http.StatusOK, result)
	metrics.ObserveChat("http", metrics.ResultSuccess, time.Since(started))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAnswering):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps backend details out of 5xx bodies.
func publicMessage(err error, status int) string {
	if status >= 500 {
		return http.StatusText(status)
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
