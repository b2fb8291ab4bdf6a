// backend/internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mathtutor-ai/backend/internal/config"
	"github.com/mathtutor-ai/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrUnsafeOutput is returned when a generated solution failed the
// output guardrail screening.
var ErrUnsafeOutput = errors.New("generated output failed safety screening")

// ReasonNoEvidence is the rejection reason used when web augmentation
// produced nothing to ground a solution on.
const ReasonNoEvidence = "no supporting evidence found"

// Collaborators are injected so per-request isolation and test
// substitution stay straightforward.

type Gateway interface {
	Validate(ctx context.Context, rawText string) models.Query
	ValidateOutput(steps []string, finalAnswer string) bool
}

type Retriever interface {
	Retrieve(ctx context.Context, query models.Query, k int, minScore float64) (*models.EvidenceSet, error)
}

type Collector interface {
	Collect(ctx context.Context, query models.Query) (*models.EvidenceSet, error)
}

type Generator interface {
	Generate(ctx context.Context, query models.Query, set *models.EvidenceSet) (*models.Solution, error)
}

// Answer is the terminal product of one request.
type Answer struct {
	Query    models.Query
	Decision models.RoutingDecision
	Solution *models.Solution
}

// Orchestrator walks each request through the routing state machine.
// It is stateless across requests: every Process call builds a fresh
// machine and evidence lifecycle.
type Orchestrator struct {
	gateway      Gateway
	retriever    Retriever
	collector    Collector
	generator    Generator
	interactions models.InteractionRepository
	routing      config.RoutingConfig
	llmModel     string
	logger       *logrus.Logger
}

func New(
	gateway Gateway,
	retriever Retriever,
	collector Collector,
	generator Generator,
	interactions models.InteractionRepository,
	routing config.RoutingConfig,
	llmModel string,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		gateway:      gateway,
		retriever:    retriever,
		collector:    collector,
		generator:    generator,
		interactions: interactions,
		routing:      routing,
		llmModel:     llmModel,
		logger:       logger,
	}
}

// Process answers one question: validate, retrieve, optionally augment
// with web evidence, generate, and record the routing decision. The
// returned Answer carries a REJECTED decision instead of an error for
// polite refusals; errors are reserved for generation failures and
// cancellation.
func (o *Orchestrator) Process(ctx context.Context, rawText, userSession string) (*Answer, error) {
	start := time.Now()
	m := newMachine()

	query := o.gateway.Validate(ctx, rawText)
	if err := m.transition(StateValidated); err != nil {
		return nil, err
	}

	log := o.logger.WithField("correlation_id", query.CorrelationID)

	if !query.Accepted {
		if err := m.transition(StateRejected); err != nil {
			return nil, err
		}
		log.WithField("reason", query.RejectReason).Info("Query rejected by gateway")
		answer := o.rejectedAnswer(query, 0)
		o.persist(answer, userSession, time.Since(start))
		return answer, nil
	}

	if err := m.transition(StateKBLookup); err != nil {
		return nil, err
	}

	kbSet, err := o.retriever.Retrieve(ctx, query, o.routing.K, o.routing.MinScore)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Retrieval being down degrades to web search instead of
		// failing the request.
		log.WithError(err).Warn("Retrieval unavailable, falling back to web search")
		kbSet = &models.EvidenceSet{Insufficient: true}
	}

	decision := models.RoutingDecision{
		CorrelationID: query.CorrelationID,
		KBTopScore:    kbSet.TopScore(),
		MinScore:      o.routing.MinScore,
		MinSufficient: o.routing.MinSufficient,
		DecidedAt:     time.Now(),
	}

	evidence := kbSet
	if kbSet.Insufficient {
		if err := m.transition(StateWebLookup); err != nil {
			return nil, err
		}

		webSet, werr := o.collector.Collect(ctx, query)
		if werr != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if werr != nil || len(webSet.Items) == 0 {
			// Configured policy: no web evidence means a polite
			// refusal rather than an ungrounded best-effort answer.
			if err := m.transition(StateRejected); err != nil {
				return nil, err
			}
			log.Info("Web evidence exhausted, rejecting")
			query.RejectReason = ReasonNoEvidence
			answer := o.rejectedAnswer(query, decision.KBTopScore)
			o.persist(answer, userSession, time.Since(start))
			return answer, nil
		}

		// Merge the heterogeneous evidence and freeze the set before
		// generation.
		merged := &models.EvidenceSet{Items: append(kbSet.Items, webSet.Items...)}
		merged.SortByScore()
		evidence = merged
		decision.Path = models.PathWebAugmented
		decision.WebResultCount = webSet.CountKind(models.EvidenceWeb)
	} else {
		decision.Path = models.PathKBOnly
	}

	if decision.Path == models.PathWebAugmented && evidence.CountKind(models.EvidenceWeb) == 0 {
		return nil, fmt.Errorf("routing decision inconsistent with evidence composition")
	}

	if err := m.transition(StateGenerating); err != nil {
		return nil, err
	}

	solution, err := o.generator.Generate(ctx, query, evidence)
	if err != nil {
		if terr := m.transition(StateFailed); terr != nil {
			return nil, terr
		}
		log.WithError(err).WithField("path", decision.Path).Error("Generation failed")
		return nil, err
	}

	if len(solution.Steps) == 0 || solution.FinalAnswer == "" {
		// The generator contract guarantees this; a violation here is
		// a bug, not a retryable condition.
		if terr := m.transition(StateFailed); terr != nil {
			return nil, terr
		}
		return nil, fmt.Errorf("generator returned structurally invalid solution")
	}

	if !o.gateway.ValidateOutput(solution.Steps, solution.FinalAnswer) {
		if terr := m.transition(StateFailed); terr != nil {
			return nil, terr
		}
		return nil, ErrUnsafeOutput
	}

	if err := m.transition(StateDone); err != nil {
		return nil, err
	}

	answer := &Answer{
		Query:    query,
		Decision: decision,
		Solution: solution,
	}

	log.WithFields(logrus.Fields{
		"path":         decision.Path,
		"kb_top_score": decision.KBTopScore,
		"web_results":  decision.WebResultCount,
		"steps":        len(solution.Steps),
		"elapsed_ms":   time.Since(start).Milliseconds(),
	}).Info("Request completed")

	o.persist(answer, userSession, time.Since(start))
	return answer, nil
}

func (o *Orchestrator) rejectedAnswer(query models.Query, kbTopScore float64) *Answer {
	return &Answer{
		Query: query,
		Decision: models.RoutingDecision{
			CorrelationID: query.CorrelationID,
			Path:          models.PathRejected,
			KBTopScore:    kbTopScore,
			MinScore:      o.routing.MinScore,
			MinSufficient: o.routing.MinSufficient,
			DecidedAt:     time.Now(),
		},
	}
}

// persist records the interaction and its routing decision. Storage
// failures are logged, never surfaced to the caller.
func (o *Orchestrator) persist(answer *Answer, userSession string, elapsed time.Duration) {
	if o.interactions == nil {
		return
	}
	if answer.Query.Text == "" {
		// Blank input carries nothing worth auditing.
		return
	}

	interaction := &models.Interaction{
		CorrelationID:  answer.Query.CorrelationID,
		Question:       answer.Query.Text,
		RoutingPath:    string(answer.Decision.Path),
		RejectReason:   answer.Query.RejectReason,
		KBTopScore:     answer.Decision.KBTopScore,
		MinScore:       answer.Decision.MinScore,
		MinSufficient:  answer.Decision.MinSufficient,
		WebResultCount: answer.Decision.WebResultCount,
		LLMModel:       o.llmModel,
		UserSession:    userSession,
		ResponseTimeMs: int(elapsed.Milliseconds()),
	}

	if answer.Solution != nil {
		interaction.Steps = models.StringArray(answer.Solution.Steps)
		interaction.FinalAnswer = answer.Solution.FinalAnswer
		interaction.ContextUsed = contextSnippet(answer.Solution.Evidence, 1000)
	}

	if err := o.interactions.Create(interaction); err != nil {
		o.logger.WithError(err).WithField("correlation_id", answer.Query.CorrelationID).Error("Failed to persist interaction")
	}
}

// contextSnippet keeps a bounded audit trail of the evidence used.
func contextSnippet(set *models.EvidenceSet, limit int) string {
	if set == nil {
		return ""
	}
	var parts []string
	for _, item := range set.Items {
		parts = append(parts, item.Text)
	}
	combined := strings.Join(parts, "\n\n")
	if len(combined) > limit {
		combined = combined[:limit]
	}
	return combined
}
