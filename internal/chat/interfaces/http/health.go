package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/auth"
)

// LLMPinger reports whether the model endpoint is reachable.
type LLMPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /healthz with read-only dependency checks.
type HealthHandler struct {
	db     *sql.DB
	llm    LLMPinger
	policy auth.Policy
}

// NewHealthHandler constructs the health handler. Either dependency may be
// nil and reports as "absent".
func NewHealthHandler(db *sql.DB, llm LLMPinger, policy auth.Policy) *HealthHandler {
	return &HealthHandler{db: db, llm: llm, policy: policy}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{
		"status": "ok",
		"auth":   h.policy.Mode(),
		"db":     "ok",
		"llm":    "ok",
	}

	if h.db == nil {
		body["db"] = "absent"
	} else if err := h.db.PingContext(ctx); err != nil {
		body["db"] = "unreachable"
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}

	if h.llm == nil {
		body["llm"] = "absent"
	} else if err := h.llm.Ping(ctx); err != nil {
		body["llm"] = "unreachable"
		body["status"] = "degraded"
	}

	writeJSON(w, status, body)
}
