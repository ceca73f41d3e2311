// Package planner asks the language model for a typed query plan and
// validates the response field by field. The model's output is treated as
// untrusted input throughout: unknown enum values are dropped, limits are
// clamped, and the proposed SQL text is only ever handed to the validator,
// never to the database.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/chat/domain"
	"github.com/ShayFeldboy1010/tripay-sub000/internal/llm"
)

// CompletionClient is the slice of the llm client the planner needs.
type CompletionClient interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Planner turns free-text questions into domain.Plans.
type Planner struct {
	client CompletionClient
	logger *log.Logger
}

// NewPlanner constructs a Planner.
func NewPlanner(client CompletionClient, logger *log.Logger) (*Planner, error) {
	if client == nil {
		return nil, errors.New("planner: nil completion client")
	}
	return &Planner{client: client, logger: logger}, nil
}

// GenerateSQLPlan produces a validated plan for the question. Non-English
// questions are best-effort translated first; a malformed model response is
// retried once with a JSON-only reminder before the call fails with a
// planning error.
func (p *Planner) GenerateSQLPlan(ctx context.Context, question string, in PlanInput) (*domain.Plan, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrPlanning)
	}

	question = p.maybeTranslate(ctx, question)
	system := systemPrompt(in)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		user := question
		if attempt > 0 {
			user += jsonReminder
		}
		resp, err := p.client.Complete(ctx, llm.Request{
			System:      system,
			User:        user,
			JSONOnly:    true,
			Temperature: 0.1,
		})
		if err != nil {
			// The llm client already retries transport-level failures on
			// its fallback model. A reminder prompt cannot fix those, so
			// the call fails here rather than burning a second attempt.
			return nil, fmt.Errorf("%w: %v", domain.ErrPlanning, err)
		}
		plan, err := parsePlan(resp.Content)
		if err != nil {
			if p.logger != nil {
				p.logger.Printf("planner: attempt %d parse failed: %v", attempt+1, err)
			}
			lastErr = err
			continue
		}
		return plan, nil
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrPlanning, lastErr)
}

// maybeTranslate asks the model for an English rendition when the question
// carries non-Latin script. Failures fall through to the original text; a
// broken translation must never block planning.
func (p *Planner) maybeTranslate(ctx context.Context, question string) string {
	if !hasNonLatinScript(question) {
		return question
	}
	resp, err := p.client.Complete(ctx, llm.Request{
		System:      translatePrompt,
		User:        question,
		Temperature: 0,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		if p.logger != nil {
			p.logger.Printf("planner: translation skipped: %v", err)
		}
		return question
	}
	return strings.TrimSpace(resp.Content)
}

func hasNonLatinScript(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.In(r, unicode.Latin) {
			return true
		}
	}
	return false
}
