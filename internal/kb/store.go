// backend/internal/kb/store.go
package kb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mathtutor-ai/backend/internal/llm"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

// Entry is one solved problem heading into the knowledge base.
type Entry struct {
	Text    string
	Subject string
	Type    string
}

// PointWriter is the slice of the qdrant client the ingestion path
// needs. Ingestion is out-of-band; the request path never writes.
type PointWriter interface {
	CollectionExists(ctx context.Context, collection string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
}

// Store handles knowledge-base ingestion for the seeder.
type Store struct {
	writer     PointWriter
	embedder   llm.Embedder
	collection string
	logger     *logrus.Logger
}

func NewStore(writer PointWriter, embedder llm.Embedder, collection string, logger *logrus.Logger) *Store {
	return &Store{
		writer:     writer,
		embedder:   embedder,
		collection: collection,
		logger:     logger,
	}
}

// EnsureCollection creates the cosine-distance collection sized to the
// embedder's dimension if it does not exist yet.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.writer.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.writer.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.embedder.Dimension()),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	s.logger.WithField("collection", s.collection).Info("Created knowledge base collection")
	return nil
}

// Add embeds the entry and upserts it with an inserted_at payload used
// as the secondary sort key at retrieval time.
func (s *Store) Add(ctx context.Context, entry Entry) (string, error) {
	if entry.Text == "" {
		return "", fmt.Errorf("entry text is required")
	}

	vector, err := s.embedder.Embed(ctx, entry.Text)
	if err != nil {
		return "", fmt.Errorf("failed to embed entry: %w", err)
	}

	pointID := uuid.NewString()
	_, err = s.writer.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadText:       entry.Text,
				payloadSubject:    entry.Subject,
				"type":            entry.Type,
				payloadInsertedAt: time.Now().UTC().Format(time.RFC3339),
			}),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert point: %w", err)
	}

	return pointID, nil
}
