// Package client consumes the chat SSE endpoint: transport selection with a
// fetch fallback, heartbeat supervision, and a single in-flight stream.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
)

// Handler receives every parsed event in arrival order.
type Handler func(Event)

// DecodeResult unmarshals a terminal result event.
func (e Event) DecodeResult() (*domain.ChatResult, error) {
	if e.Type != "result" {
		return nil, fmt.Errorf("client: %s event is not a result", e.Type)
	}
	var result domain.ChatResult
	if err := json.Unmarshal(e.Data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Client streams answers from a chat server. Starting a new question aborts
// any stream still in flight.
type Client struct {
	baseURL   string
	primary   Transport
	secondary Transport
	heartbeat time.Duration
	logger    *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// Option customizes a Client.
type Option func(*Client)

// WithTransports overrides the preferred and fallback transports. A nil
// secondary disables the fallback.
func WithTransports(primary, secondary Transport) Option {
	return func(c *Client) {
		c.primary = primary
		c.secondary = secondary
	}
}

// WithHeartbeatInterval sets the expected server ping period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a client for the given stream endpoint URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("client: empty base url")
	}
	c := &Client{
		baseURL:   baseURL,
		primary:   &EventSourceTransport{},
		secondary: &FetchTransport{},
		heartbeat: 15 * time.Second,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.primary == nil {
		return nil, errors.New("client: nil primary transport")
	}
	return c, nil
}

// Stream asks one question and blocks until the terminal event, delivering
// every frame to handler. A stream already in flight is aborted first.
func (c *Client) Stream(ctx context.Context, req Request, handler Handler) error {
	if handler == nil {
		return errors.New("client: nil handler")
	}
	if strings.TrimSpace(req.Question) == "" {
		return errors.New("client: empty question")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		if c.gen == gen {
			c.cancel = nil
		}
		c.mu.Unlock()
	}()

	transport := c.primary
	usedFallback := c.secondary == nil
	gotContent := false
	reconnected := false

	for {
		body, err := c.open(ctx, transport, req)
		if err != nil {
			if !gotContent && !usedFallback && ctx.Err() == nil {
				c.logger.Printf("client: primary transport failed, trying fallback: %v", err)
				transport = c.secondary
				usedFallback = true
				continue
			}
			return fmt.Errorf("client: open stream: %w", err)
		}

		done, err := c.consume(ctx, body, handler, &gotContent, &reconnected)
		if !done {
			c.logger.Printf("client: heartbeat missed, reconnecting")
			continue
		}
		if err != nil && !gotContent && !usedFallback && ctx.Err() == nil {
			c.logger.Printf("client: stream ended before content, trying fallback: %v", err)
			transport = c.secondary
			usedFallback = true
			continue
		}
		return err
	}
}

// open starts one connection attempt. Header receipt gets the same budget the
// watchdog grants a silent stream; a server that accepts the connection but
// never responds must not block the client forever.
func (c *Client) open(ctx context.Context, transport Transport, req Request) (io.ReadCloser, error) {
	type opened struct {
		body io.ReadCloser
		err  error
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	results := make(chan opened, 1)
	go func() {
		body, err := transport.Open(attemptCtx, c.baseURL, req)
		results <- opened{body: body, err: err}
	}()

	timer := time.NewTimer(2 * c.heartbeat)
	defer timer.Stop()
	select {
	case res := <-results:
		if res.err != nil {
			cancel()
			return nil, res.err
		}
		// The attempt context must outlive the body read; Close releases it.
		return &cancelOnClose{ReadCloser: res.body, cancel: cancel}, nil
	case <-timer.C:
		cancel()
		if res := <-results; res.body != nil {
			res.body.Close()
		}
		return nil, errors.New("client: no response before heartbeat deadline")
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Abort cancels the in-flight stream, if any.
func (c *Client) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// consume reads one connection until a terminal event, a heartbeat timeout,
// or a transport failure. A false done return asks the caller to reconnect.
func (c *Client) consume(ctx context.Context, body io.ReadCloser, handler Handler, gotContent, reconnected *bool) (done bool, err error) {
	events := make(chan Event, 64)
	errs := make(chan error, 1)
	go func() {
		errs <- parseFrames(body, events)
		close(events)
	}()
	defer func() {
		body.Close()
		go func() {
			for range events {
			}
		}()
	}()

	// The watchdog allows one full interval of slack before declaring the
	// connection dead.
	wait := 2 * c.heartbeat
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()

		case event, ok := <-events:
			if !ok {
				if perr := <-errs; perr != nil {
					return true, fmt.Errorf("client: read stream: %w", perr)
				}
				return true, errors.New("client: stream closed before terminal event")
			}
			*gotContent = true
			*reconnected = false
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)

			handler(event)
			if event.Terminal() {
				return true, nil
			}

		case <-timer.C:
			if *reconnected {
				return true, errors.New("client: heartbeat lost after reconnect")
			}
			*reconnected = true
			return false, nil
		}
	}
}
