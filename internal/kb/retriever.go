// backend/internal/kb/retriever.go
package kb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mathtutor-ai/backend/internal/llm"
	"github.com/mathtutor-ai/backend/internal/models"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

// ErrUnavailable signals that embedding or the nearest-neighbor search
// failed; the orchestrator treats it as an insufficient result and
// falls back to web search.
var ErrUnavailable = errors.New("knowledge retrieval unavailable")

// Payload keys stored with every KB point.
const (
	payloadText       = "text"
	payloadInsertedAt = "inserted_at"
	payloadSubject    = "subject"
)

// PointSearcher is the slice of the qdrant client the retriever needs.
type PointSearcher interface {
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// Retriever embeds query text and performs nearest-neighbor search over
// the math knowledge collection.
type Retriever struct {
	searcher      PointSearcher
	embedder      llm.Embedder
	collection    string
	minSufficient int
	logger        *logrus.Logger
}

func NewRetriever(searcher PointSearcher, embedder llm.Embedder, collection string, minSufficient int, logger *logrus.Logger) *Retriever {
	return &Retriever{
		searcher:      searcher,
		embedder:      embedder,
		collection:    collection,
		minSufficient: minSufficient,
		logger:        logger,
	}
}

// Retrieve returns up to k candidates with similarity >= minScore,
// sorted by score descending with ties broken by newer insertion. A set
// with fewer than the configured minimum count of candidates is marked
// insufficient.
func (r *Retriever) Retrieve(ctx context.Context, query models.Query, k int, minScore float64) (*models.EvidenceSet, error) {
	vector, err := r.embedder.Embed(ctx, query.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding failed: %v", ErrUnavailable, err)
	}

	points, err := r.searcher.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: vector search failed: %v", ErrUnavailable, err)
	}

	set := &models.EvidenceSet{}
	for _, point := range points {
		score := float64(point.GetScore())
		if score < minScore {
			continue
		}

		item := models.EvidenceItem{
			Kind:       models.EvidenceKB,
			Score:      score,
			Provenance: point.GetId().GetUuid(),
		}

		if payload := point.GetPayload(); payload != nil {
			item.Text = payload[payloadText].GetStringValue()
			if raw := payload[payloadInsertedAt].GetStringValue(); raw != "" {
				if ts, perr := time.Parse(time.RFC3339, raw); perr == nil {
					item.InsertedAt = ts
				}
			}
		}

		if item.Text == "" {
			// Point without readable payload is useless as evidence.
			continue
		}

		set.Items = append(set.Items, item)
	}

	set.SortByScore()
	set.Insufficient = len(set.Items) < r.minSufficient

	r.logger.WithFields(logrus.Fields{
		"correlation_id": query.CorrelationID,
		"candidates":     len(points),
		"kept":           len(set.Items),
		"min_score":      minScore,
		"insufficient":   set.Insufficient,
	}).Debug("KB retrieval completed")

	return set, nil
}
