package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/application"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
)

type stubService struct {
	result *domain.ChatResult
	err    error
	meta   *application.StreamMeta
	tokens []string
	delay  time.Duration
	got    application.Request
}

func (s *stubService) Ask(_ context.Context, req application.Request) (*domain.ChatResult, error) {
	s.got = req
	return s.result, s.err
}

func (s *stubService) Stream(ctx context.Context, req application.Request, emitter application.Emitter) (*domain.ChatResult, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	if s.meta != nil {
		if err := emitter.Meta(*s.meta); err != nil {
			return nil, err
		}
	}
	for _, token := range s.tokens {
		if err := emitter.Token(token); err != nil {
			return nil, err
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, nil
}

func quietLogger() *log.Logger {
	return log.New(&strings.Builder{}, "", 0)
}

func TestChatHandlerHappyPath(t *testing.T) {
	svc := &stubService{result: &domain.ChatResult{Answer: "42 USD", Model: "m", Provider: "p"}}
	handler, err := NewChatHandler(svc, time.Second, quietLogger())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	body := `{"question":"how much?","tripId":"trip-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result domain.ChatResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Answer != "42 USD" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if svc.got.Bearer != "tok123" || svc.got.TripID != "trip-1" {
		t.Fatalf("request not forwarded: %+v", svc.got)
	}
}

func TestChatHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid input", err: fmt.Errorf("%w: empty question", domain.ErrInvalidInput), status: http.StatusBadRequest},
		{name: "unauthorized", err: fmt.Errorf("%w: token expired", domain.ErrUnauthorized), status: http.StatusUnauthorized},
		{name: "answering", err: fmt.Errorf("%w: upstream", domain.ErrAnswering), status: http.StatusBadGateway},
		{name: "execution", err: fmt.Errorf("%w: template failed", domain.ErrExecution), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, err := NewChatHandler(&stubService{err: tc.err}, time.Second, quietLogger())
			if err != nil {
				t.Fatalf("new handler: %v", err)
			}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"question":"q"}`))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestChatHandlerHidesInternalErrors(t *testing.T) {
	handler, _ := NewChatHandler(&stubService{err: errors.New("pq: relation chat_audit_logs does not exist")}, time.Second, quietLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"question":"q"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if strings.Contains(rec.Body.String(), "pq:") {
		t.Fatalf("5xx body leaks internals: %s", rec.Body.String())
	}
}

func TestChatHandlerRejectsBadJSONAndMethod(t *testing.T) {
	handler, _ := NewChatHandler(&stubService{}, time.Second, quietLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method status = %d", rec.Code)
	}
}

func TestCORSAllowList(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := CORS([]string{"https://app.example.com"}, next)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatal("allowed origin not reflected")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("disallowed origin reflected")
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
}
