package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Request carries one question and its credentials to the server.
type Request struct {
	Question string `json:"question"`
	Token    string `json:"token,omitempty"`
	TripID   string `json:"tripId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Since    string `json:"since,omitempty"`
	Until    string `json:"until,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Transport opens one streaming connection. Implementations differ only in
// how the request reaches the server; the frame format is shared.
type Transport interface {
	Open(ctx context.Context, baseURL string, req Request) (io.ReadCloser, error)
}

// EventSourceTransport issues a GET with the request in the query string,
// the shape a browser EventSource would produce.
type EventSourceTransport struct {
	HTTPClient *http.Client
}

func (t *EventSourceTransport) Open(ctx context.Context, baseURL string, req Request) (io.ReadCloser, error) {
	query := url.Values{}
	query.Set("question", req.Question)
	setIfPresent(query, "token", req.Token)
	setIfPresent(query, "tripId", req.TripID)
	setIfPresent(query, "userId", req.UserID)
	setIfPresent(query, "since", req.Since)
	setIfPresent(query, "until", req.Until)
	setIfPresent(query, "timezone", req.Timezone)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	return t.do(httpReq)
}

func (t *EventSourceTransport) do(httpReq *http.Request) (io.ReadCloser, error) {
	resp, err := client(t.HTTPClient).Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// FetchTransport issues a POST with a JSON body and parses the chunked
// response, for environments where EventSource is unavailable.
type FetchTransport struct {
	HTTPClient *http.Client
}

func (t *FetchTransport) Open(ctx context.Context, baseURL string, req Request) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := client(t.HTTPClient).Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func setIfPresent(query url.Values, key, value string) {
	if value != "" {
		query.Set(key, value)
	}
}

func client(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
