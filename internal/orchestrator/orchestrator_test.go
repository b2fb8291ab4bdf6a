package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mathtutor-ai/backend/internal/config"
	"github.com/mathtutor-ai/backend/internal/gateway"
	"github.com/mathtutor-ai/backend/internal/generation"
	"github.com/mathtutor-ai/backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	accepted     bool
	rejectReason string
	outputOK     bool
}

func (f *fakeGateway) Validate(ctx context.Context, rawText string) models.Query {
	return models.Query{
		CorrelationID: "44444444-4444-4444-4444-444444444444",
		Text:          rawText,
		Accepted:      f.accepted,
		RejectReason:  f.rejectReason,
		ReceivedAt:    time.Now(),
	}
}

func (f *fakeGateway) ValidateOutput(steps []string, finalAnswer string) bool {
	return f.outputOK
}

type fakeRetriever struct {
	set   *models.EvidenceSet
	err   error
	calls int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query models.Query, k int, minScore float64) (*models.EvidenceSet, error) {
	f.calls++
	return f.set, f.err
}

type fakeCollector struct {
	set   *models.EvidenceSet
	err   error
	calls int
}

func (f *fakeCollector) Collect(ctx context.Context, query models.Query) (*models.EvidenceSet, error) {
	f.calls++
	return f.set, f.err
}

type fakeGenerator struct {
	solution *models.Solution
	err      error
	calls    int
	gotSet   *models.EvidenceSet
}

func (f *fakeGenerator) Generate(ctx context.Context, query models.Query, set *models.EvidenceSet) (*models.Solution, error) {
	f.calls++
	f.gotSet = set
	return f.solution, f.err
}

type memoryInteractions struct {
	created []*models.Interaction
}

func (m *memoryInteractions) Create(interaction *models.Interaction) error {
	m.created = append(m.created, interaction)
	return nil
}

func (m *memoryInteractions) GetByCorrelationID(id string) (*models.Interaction, error) {
	for _, interaction := range m.created {
		if interaction.CorrelationID == id {
			return interaction, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *memoryInteractions) GetRecent(limit int) ([]models.Interaction, error) { return nil, nil }
func (m *memoryInteractions) CountByPath() (map[string]int, error)              { return nil, nil }
func (m *memoryInteractions) Count() (int64, error)                             { return int64(len(m.created)), nil }

func routingConfig() config.RoutingConfig {
	return config.RoutingConfig{
		MinScore:      0.70,
		K:             5,
		MinSufficient: 1,
	}
}

func kbEvidence(score float64) *models.EvidenceSet {
	return &models.EvidenceSet{Items: []models.EvidenceItem{{
		Kind:       models.EvidenceKB,
		Text:       "Problem: 2x + 5 = 13\nAnswer: x = 4",
		Score:      score,
		Provenance: "point-1",
	}}}
}

func webEvidence() *models.EvidenceSet {
	return &models.EvidenceSet{Items: []models.EvidenceItem{{
		Kind:       models.EvidenceWeb,
		Text:       "Subtract five then divide by two.",
		Score:      0.61,
		Provenance: "https://example.com/algebra",
	}}}
}

func validSolution() *models.Solution {
	return &models.Solution{
		Steps:       []string{"Subtract 5 from both sides", "Divide by 2"},
		FinalAnswer: "x = 4",
	}
}

func newTestOrchestrator(gw Gateway, ret Retriever, col Collector, gen Generator, repo models.InteractionRepository) *Orchestrator {
	return New(gw, ret, col, gen, repo, routingConfig(), "test-model", logrus.New())
}

func TestProcess_RejectedQuerySkipsAllCollaborators(t *testing.T) {
	retriever := &fakeRetriever{}
	collector := &fakeCollector{}
	generator := &fakeGenerator{}
	repo := &memoryInteractions{}

	o := newTestOrchestrator(
		&fakeGateway{accepted: false, rejectReason: gateway.ReasonOffTopic},
		retriever, collector, generator, repo,
	)

	answer, err := o.Process(context.Background(), "tell me a joke", "session-1")
	require.NoError(t, err)

	assert.Equal(t, models.PathRejected, answer.Decision.Path)
	assert.Equal(t, gateway.ReasonOffTopic, answer.Query.RejectReason)
	assert.Nil(t, answer.Solution)

	assert.Zero(t, retriever.calls)
	assert.Zero(t, collector.calls)
	assert.Zero(t, generator.calls)

	require.Len(t, repo.created, 1)
	assert.Equal(t, string(models.PathRejected), repo.created[0].RoutingPath)
}

func TestProcess_SufficientKBTakesKBOnlyPath(t *testing.T) {
	collector := &fakeCollector{}
	generator := &fakeGenerator{solution: validSolution()}
	repo := &memoryInteractions{}

	o := newTestOrchestrator(
		&fakeGateway{accepted: true, outputOK: true},
		&fakeRetriever{set: kbEvidence(0.92)},
		collector, generator, repo,
	)

	answer, err := o.Process(context.Background(), "solve 2x + 5 = 13", "session-1")
	require.NoError(t, err)

	assert.Equal(t, models.PathKBOnly, answer.Decision.Path)
	assert.Zero(t, collector.calls, "collector must not run when KB evidence suffices")
	assert.Equal(t, 1, generator.calls)
	assert.InDelta(t, 0.92, answer.Decision.KBTopScore, 0.001)
	assert.Zero(t, answer.Decision.WebResultCount)

	require.Len(t, repo.created, 1)
	assert.Equal(t, string(models.PathKBOnly), repo.created[0].RoutingPath)
	assert.Equal(t, "x = 4", repo.created[0].FinalAnswer)
}

func TestProcess_InsufficientKBTriggersWebAugmentation(t *testing.T) {
	collector := &fakeCollector{set: webEvidence()}
	generator := &fakeGenerator{solution: validSolution()}
	repo := &memoryInteractions{}

	o := newTestOrchestrator(
		&fakeGateway{accepted: true, outputOK: true},
		&fakeRetriever{set: &models.EvidenceSet{Insufficient: true}},
		collector, generator, repo,
	)

	answer, err := o.Process(context.Background(), "solve an obscure equation", "session-1")
	require.NoError(t, err)

	assert.Equal(t, models.PathWebAugmented, answer.Decision.Path)
	assert.Equal(t, 1, collector.calls)
	assert.Equal(t, 1, answer.Decision.WebResultCount)

	require.NotNil(t, generator.gotSet)
	assert.GreaterOrEqual(t, generator.gotSet.CountKind(models.EvidenceWeb), 1)
}

func TestProcess_MergedEvidenceKeepsKBItems(t *testing.T) {
	kb := kbEvidence(0.55)
	kb.Insufficient = true
	generator := &fakeGenerator{solution: validSolution()}

	o := newTestOrchestrator(
		&fakeGateway{accepted: true, outputOK: true},
		&fakeRetriever{set: kb},
		&fakeCollector{set: webEvidence()},
		generator, &memoryInteractions{},
	)

	_, err := o.Process(context.Background(), "solve something rare", "session-1")
	require.NoError(t, err)

	require.NotNil(t, generator.gotSet)
	assert.Equal(t, 1, generator.gotSet.CountKind(models.EvidenceKB))
	assert.Equal(t, 1, generator.gotSet.CountKind(models.EvidenceWeb))
}

func TestProcess_WebExhaustedRejectsPolitely(t *testing.T) {
	generator := &fakeGenerator{}
	repo := &memoryInteractions{}

	o := newTestOrchestrator(
		&fakeGateway{accepted: true, outputOK: true},
		&fakeRetriever{set: &models.EvidenceSet{Insufficient: true}},
		&fakeCollector{set: &models.EvidenceSet{Insufficient: true}, err: errors.New("web search exhausted")},
		generator, repo,
	)

	answer, err := o.Process(context.Background(), "solve the unsolvable", "session-1")
	require.NoError(t, err)

	assert.Equal(t, models.PathRejected, answer.Decision.Path)
	assert.Equal(t, ReasonNoEvidence, answer.Query.RejectReason)
	assert.Zero(t, generator.calls)

	require.Len(t, repo.created, 1)
	assert.Equal(t, string(models.PathRejected), repo.created[0].RoutingPath)
}

func TestProcess_RetrievalFailureDegradesToWeb(t *testing.T) {
	collector := &fakeCollector{set: webEvidence()}
	generator := &fakeGenerator{solution: validSolution()}

	o := newTestOrchestrator(
		&fakeGateway{accepted: true, outputOK: true},
		&fakeRetriever{err: errors.New("qdrant unreachable")},
		collector, generator, &memoryInteractions{},
	)

	answer, err := o.Process(context.Background(), "solve 3x = 9", "session-1")
	require.NoError(t, err)

	assert.Equal(t, models.PathWebAugmented, answer.Decision.Path)
	assert.Equal(t, 1, collector.calls)
}

func TestProcess_GenerationFailureSurfacesError(t *testing.T) {
	repo := &memoryInteractions{}

	o := newTestOrchestrator(
		&fakeGateway{accepted: true, outputOK: true},
		&fakeRetriever{set: kbEvidence(0.9)},
		&fakeCollector{},
		&fakeGenerator{err: generation.ErrInvalidStructure},
		repo,
	)

	_, err := o.Process(context.Background(), "solve 2x = 4", "session-1")

	assert.ErrorIs(t, err, generation.ErrInvalidStructure)
	assert.Empty(t, repo.created, "failed requests are not persisted as answers")
}

func TestProcess_UnsafeOutputFails(t *testing.T) {
	o := newTestOrchestrator(
		&fakeGateway{accepted: true, outputOK: false},
		&fakeRetriever{set: kbEvidence(0.9)},
		&fakeCollector{},
		&fakeGenerator{solution: validSolution()},
		&memoryInteractions{},
	)

	_, err := o.Process(context.Background(), "solve 2x = 4", "session-1")
	assert.ErrorIs(t, err, ErrUnsafeOutput)
}

func TestProcess_PersistedDecisionMatchesAnswer(t *testing.T) {
	repo := &memoryInteractions{}

	o := newTestOrchestrator(
		&fakeGateway{accepted: true, outputOK: true},
		&fakeRetriever{set: kbEvidence(0.88)},
		&fakeCollector{},
		&fakeGenerator{solution: validSolution()},
		repo,
	)

	answer, err := o.Process(context.Background(), "solve 2x + 5 = 13", "session-42")
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	stored := repo.created[0]
	assert.Equal(t, answer.Query.CorrelationID, stored.CorrelationID)
	assert.Equal(t, string(answer.Decision.Path), stored.RoutingPath)
	assert.InDelta(t, answer.Decision.KBTopScore, stored.KBTopScore, 0.001)
	assert.Equal(t, 0.70, stored.MinScore)
	assert.Equal(t, "session-42", stored.UserSession)
	assert.Equal(t, []string(stored.Steps), answer.Solution.Steps)
}
