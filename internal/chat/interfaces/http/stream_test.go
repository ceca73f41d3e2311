package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/application"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
)

type frame struct {
	event string
	data  string
}

func parseFrames(t *testing.T, body string) []frame {
	t.Helper()
	var frames []frame
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var f frame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				f.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if f.event == "" {
			t.Fatalf("frame without event: %q", block)
		}
		frames = append(frames, f)
	}
	return frames
}

func newStream(t *testing.T, svc ChatService, heartbeat time.Duration) *StreamHandler {
	t.Helper()
	handler, err := NewStreamHandler(svc, heartbeat, time.Second, quietLogger())
	if err != nil {
		t.Fatalf("new stream handler: %v", err)
	}
	return handler
}

func TestStreamHappyPath(t *testing.T) {
	svc := &stubService{
		meta:   &application.StreamMeta{RequestID: "req-1", TimeRange: domain.TimeRange{Since: "2026-08-01", Until: "2026-08-18", Timezone: "UTC"}, Scope: "trip-123…"},
		tokens: []string{"You ", "spent ", "42 USD."},
		result: &domain.ChatResult{Answer: "You spent 42 USD.", Model: "m"},
	}
	handler := newStream(t, svc, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/stream?question=how+much%3F&tripId=trip-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	if rec.Header().Get("X-Accel-Buffering") != "no" {
		t.Fatal("proxy buffering header missing")
	}

	frames := parseFrames(t, rec.Body.String())
	if len(frames) != 5 {
		t.Fatalf("expected 5 frames, got %d: %+v", len(frames), frames)
	}
	if frames[0].event != "meta" || !strings.Contains(frames[0].data, "req-1") {
		t.Fatalf("first frame not meta: %+v", frames[0])
	}
	for _, f := range frames[1:4] {
		if f.event != "token" {
			t.Fatalf("expected token frame, got %+v", f)
		}
	}
	last := frames[len(frames)-1]
	if last.event != "result" || !strings.Contains(last.data, "You spent 42 USD.") {
		t.Fatalf("terminal frame wrong: %+v", last)
	}
	if svc.got.Question != "how much?" || svc.got.TripID != "trip-1" {
		t.Fatalf("query input not decoded: %+v", svc.got)
	}
}

func TestStreamPostBody(t *testing.T) {
	svc := &stubService{result: &domain.ChatResult{Answer: "ok"}}
	handler := newStream(t, svc, time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(`{"question":"totals","userId":"user-9"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	frames := parseFrames(t, rec.Body.String())
	if len(frames) != 1 || frames[0].event != "result" {
		t.Fatalf("unexpected frames: %+v", frames)
	}
	if svc.got.UserID != "user-9" {
		t.Fatalf("body input not decoded: %+v", svc.got)
	}
}

func TestStreamAuthFailureEmitsSingleErrorEvent(t *testing.T) {
	svc := &stubService{err: fmt.Errorf("%w: token expired", domain.ErrUnauthorized)}
	handler := newStream(t, svc, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/stream?question=how+much%3F&token=expired", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	frames := parseFrames(t, rec.Body.String())
	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame, got %d: %+v", len(frames), frames)
	}
	if frames[0].event != "error" {
		t.Fatalf("expected error event, got %+v", frames[0])
	}
	if !strings.Contains(frames[0].data, "401") && !strings.Contains(frames[0].data, "token expired") {
		t.Fatalf("error frame lacks detail: %+v", frames[0])
	}
	for _, f := range frames {
		if f.event == "token" || f.event == "result" {
			t.Fatalf("no token or result may follow an auth failure: %+v", frames)
		}
	}
}

func TestStreamHeartbeat(t *testing.T) {
	svc := &stubService{result: &domain.ChatResult{Answer: "ok"}, delay: 60 * time.Millisecond}
	handler := newStream(t, svc, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/stream?question=slow", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	frames := parseFrames(t, rec.Body.String())
	pings := 0
	for _, f := range frames {
		if f.event == "ping" {
			pings++
		}
	}
	if pings == 0 {
		t.Fatalf("expected at least one ping frame: %+v", frames)
	}
	if frames[len(frames)-1].event != "result" {
		t.Fatalf("terminal frame must be last: %+v", frames)
	}
}

func TestStreamRejectsUnsupportedMethod(t *testing.T) {
	handler := newStream(t, &stubService{}, time.Minute)
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/chat/stream", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}
