// backend/internal/feedback/service.go
package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mathtutor-ai/backend/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidRating      = errors.New("invalid rating")
	ErrUnknownCorrelation = errors.New("unknown correlation id")
)

var validRatings = map[string]bool{
	"helpful":           true,
	"needs_improvement": true,
}

// Service records user feedback against answered questions and exposes
// aggregate statistics for offline threshold tuning. Writes are append
// only: duplicate submissions add rows, they never overwrite history.
// Feedback never alters live routing behavior.
type Service struct {
	feedback     models.FeedbackRepository
	interactions models.InteractionRepository
	logger       *logrus.Logger
}

func NewService(feedback models.FeedbackRepository, interactions models.InteractionRepository, logger *logrus.Logger) *Service {
	return &Service{
		feedback:     feedback,
		interactions: interactions,
		logger:       logger,
	}
}

// Record appends one feedback record for an existing interaction.
func (s *Service) Record(ctx context.Context, correlationID, rating, comment string) (*models.FeedbackRecord, error) {
	if !validRatings[rating] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRating, rating)
	}

	if _, err := s.interactions.GetByCorrelationID(correlationID); err != nil {
		s.logger.WithField("correlation_id", correlationID).Warn("Feedback for unknown interaction")
		return nil, fmt.Errorf("%w: %s", ErrUnknownCorrelation, correlationID)
	}

	record := &models.FeedbackRecord{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		Rating:        rating,
		Comment:       comment,
	}

	if err := s.feedback.Create(record); err != nil {
		return nil, fmt.Errorf("failed to store feedback: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"rating":         rating,
	}).Info("Feedback recorded")

	return record, nil
}

// Summarize aggregates feedback counts, routing-path distribution and
// the helpful rate for offline analysis.
func (s *Service) Summarize(ctx context.Context) (*models.FeedbackSummary, error) {
	byRating, err := s.feedback.CountByRating()
	if err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}

	byPath, err := s.interactions.CountByPath()
	if err != nil {
		return nil, fmt.Errorf("failed to count interactions: %w", err)
	}

	totalInteractions, err := s.interactions.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count interactions: %w", err)
	}

	total := 0
	for _, count := range byRating {
		total += count
	}

	helpfulRate := 0.0
	if total > 0 {
		helpfulRate = float64(byRating["helpful"]) / float64(total)
	}

	return &models.FeedbackSummary{
		TotalFeedback:    total,
		CountsByRating:   byRating,
		CountsByPath:     byPath,
		HelpfulRate:      helpfulRate,
		TotalInteraction: int(totalInteractions),
	}, nil
}
