// Package application orchestrates a chat request from question to grounded
// answer: scope resolution, time window resolution, planning, scoped
// execution with deterministic fallback, and answer generation.
package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/audit"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/auth"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/fallback"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/infrastructure/postgres"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/planner"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/llm"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/observability/metrics"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/timewindow"
)

// Request is one user question plus the credentials and window hints that
// arrived with it.
type Request struct {
	Question  string
	Token     string
	Bearer    string
	TripID    string
	UserID    string
	Since     string
	Until     string
	Timezone  string
	RequestID string
}

// StreamMeta is the first frame of a streamed response. Scope carries only
// the truncated id.
type StreamMeta struct {
	RequestID string           `json:"requestId"`
	TimeRange domain.TimeRange `json:"timeRange"`
	Scope     string           `json:"scope"`
}

// Emitter receives intermediate stream frames. The terminal result or error
// stays with the caller, which owns the transport.
type Emitter interface {
	Meta(meta StreamMeta) error
	Token(token string) error
}

// PlanGenerator produces a typed query plan from a question.
type PlanGenerator interface {
	GenerateSQLPlan(ctx context.Context, question string, in planner.PlanInput) (*domain.Plan, error)
}

// PlanExecutor runs a validated plan under a server-injected scope and window.
type PlanExecutor interface {
	ExecutePlan(ctx context.Context, plan *domain.Plan, in postgres.ExecInput) (*domain.ExecutionResult, error)
}

// TemplateRunner executes a deterministic fallback template.
type TemplateRunner interface {
	Run(ctx context.Context, template fallback.Template, scope auth.Scope, window timewindow.Window) (*domain.ExecutionResult, error)
}

// AnswerClient generates the final answer text.
type AnswerClient interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
	Stream(ctx context.Context, req llm.Request, onToken func(token string) error) (llm.Response, error)
	Provider() string
	Model() string
}

// Service is the chat orchestrator. One instance serves all requests; each
// request runs on its own goroutine chain with no shared mutable state.
type Service struct {
	planner   PlanGenerator
	executor  PlanExecutor
	templates TemplateRunner
	llm       AnswerClient
	audit     audit.Logger
	policy    auth.Policy
	secret    []byte
	cfg       Config
	logger    *log.Logger
}

// NewService constructs the orchestrator. The audit logger may be nil.
func NewService(p PlanGenerator, e PlanExecutor, t TemplateRunner, a AnswerClient, auditLog audit.Logger, cfg Config, logger *log.Logger) (*Service, error) {
	if p == nil {
		return nil, errors.New("chat service: nil planner")
	}
	if e == nil {
		return nil, errors.New("chat service: nil executor")
	}
	if t == nil {
		return nil, errors.New("chat service: nil templates")
	}
	if a == nil {
		return nil, errors.New("chat service: nil llm client")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		planner:   p,
		executor:  e,
		templates: t,
		llm:       a,
		audit:     auditLog,
		policy:    auth.Policy{AllowAnonymous: cfg.AllowAnonymous},
		secret:    []byte(cfg.JWTSecret),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Ask runs the full lifecycle and returns the terminal result.
func (s *Service) Ask(ctx context.Context, req Request) (*domain.ChatResult, error) {
	return s.run(ctx, req, nil)
}

// Stream runs the same lifecycle, emitting meta and token frames as they are
// produced. The returned result is the terminal payload; the caller writes
// the terminal frame.
func (s *Service) Stream(ctx context.Context, req Request, emitter Emitter) (*domain.ChatResult, error) {
	if emitter == nil {
		return nil, errors.New("chat service: nil emitter")
	}
	return s.run(ctx, req, emitter)
}

func (s *Service) run(ctx context.Context, req Request, emitter Emitter) (*domain.ChatResult, error) {
	started := time.Now()
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	scope, err := auth.ResolveScope(auth.Credentials{
		Token:  req.Token,
		Bearer: req.Bearer,
		TripID: req.TripID,
		UserID: req.UserID,
	}, s.secret, s.policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, err)
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = s.cfg.Timezone
	}
	window, err := timewindow.Resolve(req.Since, req.Until, timezone, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}
	timeRange := domain.TimeRange{
		Since:    window.SinceDate(),
		Until:    window.UntilDate(),
		Timezone: window.Timezone,
	}

	if emitter != nil {
		if err := emitter.Meta(StreamMeta{RequestID: requestID, TimeRange: timeRange, Scope: scope.Truncated()}); err != nil {
			return nil, fmt.Errorf("chat service: meta emit: %w", err)
		}
	}

	comp, err := s.compute(ctx, question, scope, window)
	if err != nil {
		s.writeAudit(ctx, requestID, scope, question, comp, "", audit.OutcomeError, started)
		return nil, err
	}

	answer, err := s.answer(ctx, question, comp, timeRange, emitter)
	if err != nil {
		s.writeAudit(ctx, requestID, scope, question, comp, "", audit.OutcomeError, started)
		return nil, fmt.Errorf("%w: %s", domain.ErrAnswering, err)
	}

	outcome := audit.OutcomeAnswered
	if comp.UsedFallback {
		outcome = audit.OutcomeFallback
	}
	s.writeAudit(ctx, requestID, scope, question, comp, answer.Model, outcome, started)

	result := &domain.ChatResult{
		Answer:         answer.Content,
		Model:          answer.Model,
		Provider:       s.llm.Provider(),
		Plan:           comp.Plan,
		UsedFallback:   comp.UsedFallback,
		FallbackReason: comp.FallbackReason,
		SQL:            comp.Result.SQL,
		TimeRange:      timeRange,
		Aggregates:     comp.Result.Aggregates,
		Rows:           previewRows(comp.Result.Rows, s.previewCap()),
		CurrencyNote:   comp.Result.Aggregates.CurrencyNote,
	}
	return result, nil
}

// compute resolves a plan and an execution result, recovering planning and
// execution failures through the deterministic templates.
func (s *Service) compute(ctx context.Context, question string, scope auth.Scope, window timewindow.Window) (domain.Computation, error) {
	comp := domain.Computation{}

	plan, planErr := s.planner.GenerateSQLPlan(ctx, question, planner.PlanInput{
		Since:       window.SinceDate(),
		Until:       window.UntilDate(),
		Timezone:    window.Timezone,
		ScopeColumn: scope.Column,
	})
	if planErr != nil {
		metrics.IncPlanAttempt(metrics.ResultError)
		s.logger.Printf("chat: planning failed, falling back: %v", planErr)
		return s.fallbackCompute(ctx, comp, domain.FallbackPlannerError, domain.Intent(""), question, scope, window)
	}
	metrics.IncPlanAttempt(metrics.ResultSuccess)
	comp.Plan = plan

	result, execErr := s.executor.ExecutePlan(ctx, plan, postgres.ExecInput{Scope: scope, Window: window})
	if execErr != nil {
		s.logger.Printf("chat: execution failed, falling back: %v", execErr)
		return s.fallbackCompute(ctx, comp, domain.FallbackDBError, plan.Intent, question, scope, window)
	}
	metrics.ObserveExecutorRows(len(result.Rows))
	comp.Result = result
	return comp, nil
}

func (s *Service) fallbackCompute(ctx context.Context, comp domain.Computation, reason domain.FallbackReason, intent domain.Intent, question string, scope auth.Scope, window timewindow.Window) (domain.Computation, error) {
	template := fallback.Classify(intent, question)
	metrics.IncFallback(string(reason), string(template))

	result, err := s.templates.Run(ctx, template, scope, window)
	if err != nil {
		comp.UsedFallback = true
		comp.FallbackReason = reason
		return comp, fmt.Errorf("%w: fallback template %s: %s", domain.ErrExecution, template, err)
	}
	comp.Result = result
	comp.UsedFallback = true
	comp.FallbackReason = reason
	return comp, nil
}

func (s *Service) answer(ctx context.Context, question string, comp domain.Computation, timeRange domain.TimeRange, emitter Emitter) (llm.Response, error) {
	system, user := buildAnswerPrompt(question, comp, timeRange, s.previewCap())
	req := llm.Request{System: system, User: user, Temperature: 0.3}

	if emitter == nil {
		return s.llm.Complete(ctx, req)
	}
	return s.llm.Stream(ctx, req, emitter.Token)
}

func (s *Service) previewCap() int {
	if s.cfg.PreviewRows <= 0 || s.cfg.PreviewRows > domain.PreviewRows {
		return domain.PreviewRows
	}
	return s.cfg.PreviewRows
}

func (s *Service) writeAudit(ctx context.Context, requestID string, scope auth.Scope, question string, comp domain.Computation, model, outcome string, started time.Time) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		RequestID:      requestID,
		ScopeColumn:    scope.Column,
		ScopeDigest:    audit.Digest(scope.ID),
		QuestionDigest: audit.Digest(question),
		Outcome:        outcome,
		FallbackReason: string(comp.FallbackReason),
		Model:          model,
		DurationMs:     time.Since(started).Milliseconds(),
	}
	if comp.Plan != nil {
		entry.Intent = string(comp.Plan.Intent)
	}
	if comp.Result != nil {
		entry.RowCount = len(comp.Result.Rows)
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.Printf("chat: audit write failed: %v", err)
	}
}

func previewRows(rows []domain.ExpenseRow, limit int) []domain.ExpenseRow {
	if len(rows) <= limit {
		return rows
	}
	return rows[:limit]
}
