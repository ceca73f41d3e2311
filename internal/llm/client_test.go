package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/observability/metrics"
)

// newCompletionServer serves a minimal OpenAI-compatible completion endpoint.
// The "missing" model always 404s so the fallback path can be exercised.
func newCompletionServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Model == "missing" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"message":"model not found","type":"invalid_request_error","code":"model_not_found"}}`)
			return
		}
		if body.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, delta := range []string{"you ", "spent ", "42"} {
				fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":%q,\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", body.Model, delta)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"1","object":"chat.completion","created":1,"model":%q,"choices":[{"index":0,"message":{"role":"assistant","content":"you spent 42"},"finish_reason":"stop"}],"usage":{"prompt_tokens":9,"completion_tokens":3,"total_tokens":12}}`, body.Model)
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server, model, fallback string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		APIKey:        "test",
		BaseURL:       srv.URL + "/v1",
		Model:         model,
		FallbackModel: fallback,
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// tokenCount reads the accumulated token counter for one stage from the
// default registry.
func tokenCount(t *testing.T, stage string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "tripchat_llm_tokens_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "stage" && label.GetValue() == stage {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCompleteRecordsTokenUsage(t *testing.T) {
	metrics.Init(nil, nil)
	srv := newCompletionServer(t)
	defer srv.Close()
	c := newTestClient(t, srv, "primary", "")

	before := tokenCount(t, "completion")
	resp, err := c.Complete(context.Background(), Request{User: "how much did I spend?"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "you spent 42" {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.Model != "primary" {
		t.Fatalf("model = %q", resp.Model)
	}
	if got := tokenCount(t, "completion") - before; got != 12 {
		t.Fatalf("recorded %v tokens, want usage total 12", got)
	}
}

func TestStreamRecordsEmittedTokens(t *testing.T) {
	metrics.Init(nil, nil)
	srv := newCompletionServer(t)
	defer srv.Close()
	c := newTestClient(t, srv, "primary", "")

	before := tokenCount(t, "stream")
	var tokens []string
	resp, err := c.Stream(context.Background(), Request{User: "how much?"}, func(token string) error {
		tokens = append(tokens, token)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if resp.Content != "you spent 42" {
		t.Fatalf("content = %q", resp.Content)
	}
	if len(tokens) != 3 {
		t.Fatalf("expected 3 deltas, got %d", len(tokens))
	}
	if got := tokenCount(t, "stream") - before; got != 3 {
		t.Fatalf("recorded %v tokens, want one per delta", got)
	}
}

func TestCompleteFallsBackWhenModelUnavailable(t *testing.T) {
	srv := newCompletionServer(t)
	defer srv.Close()
	c := newTestClient(t, srv, "missing", "backup")

	resp, err := c.Complete(context.Background(), Request{User: "totals"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Model != "backup" {
		t.Fatalf("expected fallback model, got %q", resp.Model)
	}
}
