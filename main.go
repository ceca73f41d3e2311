package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/audit"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/auth"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/application"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/infrastructure/postgres"
	chathttp "github.com/ShayFeldboy1010/tripay-sub000/internal/chat/interfaces/http"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/planner"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/llm"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	chatCfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatalf("chat config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxConns)

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	llmClient, err := llm.NewClient(llm.Config{
		APIKey:        chatCfg.LLM.APIKey,
		BaseURL:       chatCfg.LLM.BaseURL,
		Provider:      chatCfg.LLM.Provider,
		Model:         chatCfg.LLM.Model,
		FallbackModel: chatCfg.LLM.FallbackModel,
	}, logger)
	if err != nil {
		logger.Fatalf("llm client error: %v", err)
	}

	plannerService, err := planner.NewPlanner(llmClient, logger)
	if err != nil {
		logger.Fatalf("planner error: %v", err)
	}
	executor, err := postgres.NewExecutor(db, logger)
	if err != nil {
		logger.Fatalf("executor error: %v", err)
	}
	templates, err := postgres.NewTemplates(db)
	if err != nil {
		logger.Fatalf("templates error: %v", err)
	}

	chatService, err := application.NewService(plannerService, executor, templates, llmClient, auditRepo, chatCfg, logger)
	if err != nil {
		logger.Fatalf("chat service error: %v", err)
	}

	chatHandler, err := chathttp.NewChatHandler(chatService, chatCfg.Timeout(), logger)
	if err != nil {
		logger.Fatalf("chat handler error: %v", err)
	}
	streamHandler, err := chathttp.NewStreamHandler(chatService, chatCfg.HeartbeatInterval(), chatCfg.Timeout(), logger)
	if err != nil {
		logger.Fatalf("stream handler error: %v", err)
	}
	policy := auth.Policy{AllowAnonymous: chatCfg.AllowAnonymous}
	healthHandler := chathttp.NewHealthHandler(db, llmClient, policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/chat", chatHandler)
	mux.Handle("/api/v1/chat/stream", streamHandler)
	mux.Handle("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	handler := loggingMiddleware(chathttp.CORS(chatCfg.AllowedOrigins, mux), logger)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	logger.Printf("http listening on %s (auth=%s, model=%s)", cfg.HTTPAddr, policy.Mode(), chatCfg.LLM.Model)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
	DBMaxConns  int
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		DBMaxConns:  getenvIntDefault("DB_MAX_CONNS", 10),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the logging wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
