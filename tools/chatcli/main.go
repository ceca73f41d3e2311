// chatcli streams one question to a running chat server and prints the
// answer as tokens arrive.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/client"
)

type config struct {
	serverURL string
	question  string
	token     string
	tripID    string
	userID    string
	since     string
	until     string
	timezone  string
	heartbeat time.Duration
	showMeta  bool
}

func main() {
	cfg := parseFlags()
	logger := log.New(os.Stderr, "chatcli ", log.LstdFlags)

	c, err := client.New(cfg.serverURL+"/api/v1/chat/stream",
		client.WithLogger(logger),
		client.WithHeartbeatInterval(cfg.heartbeat),
	)
	if err != nil {
		logger.Fatalf("client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	req := client.Request{
		Question: cfg.question,
		Token:    cfg.token,
		TripID:   cfg.tripID,
		UserID:   cfg.userID,
		Since:    cfg.since,
		Until:    cfg.until,
		Timezone: cfg.timezone,
	}

	err = c.Stream(ctx, req, func(event client.Event) {
		switch event.Type {
		case "meta":
			if cfg.showMeta {
				fmt.Fprintf(os.Stderr, "meta: %s\n", event.Data)
			}
		case "token":
			var payload struct {
				Content string `json:"content"`
			}
			if json.Unmarshal(event.Data, &payload) == nil {
				fmt.Print(payload.Content)
			}
		case "result":
			fmt.Println()
			result, err := event.DecodeResult()
			if err != nil {
				logger.Printf("result decode: %v", err)
				return
			}
			if result.UsedFallback {
				fmt.Fprintf(os.Stderr, "(fallback: %s)\n", result.FallbackReason)
			}
			if cfg.showMeta && result.SQL != "" {
				fmt.Fprintf(os.Stderr, "sql: %s\n", result.SQL)
			}
		case "error":
			fmt.Println()
			logger.Printf("server error: %s", event.Data)
		}
	})
	if err != nil {
		logger.Fatalf("stream: %v", err)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.serverURL, "server", "http://localhost:8080", "chat server base URL")
	flag.StringVar(&cfg.question, "q", "", "question to ask (required)")
	flag.StringVar(&cfg.token, "token", "", "scoped access token")
	flag.StringVar(&cfg.tripID, "trip", "", "explicit trip id (anonymous servers only)")
	flag.StringVar(&cfg.userID, "user", "", "explicit user id (anonymous servers only)")
	flag.StringVar(&cfg.since, "since", "", "window start (ISO date or natural language)")
	flag.StringVar(&cfg.until, "until", "", "window end (ISO date or natural language)")
	flag.StringVar(&cfg.timezone, "tz", "", "IANA timezone override")
	flag.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Second, "expected server ping interval")
	flag.BoolVar(&cfg.showMeta, "v", false, "print meta and SQL diagnostics to stderr")
	flag.Parse()

	if cfg.question == "" {
		flag.Usage()
		os.Exit(2)
	}
	return cfg
}
