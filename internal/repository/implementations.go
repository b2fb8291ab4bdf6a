package repository

import (
	"github.com/mathtutor-ai/backend/internal/models"
	"gorm.io/gorm"
)

// InteractionRepositoryImpl implements InteractionRepository
type InteractionRepositoryImpl struct {
	db *gorm.DB
}

func NewInteractionRepository(db *gorm.DB) models.InteractionRepository {
	return &InteractionRepositoryImpl{db: db}
}

func (r *InteractionRepositoryImpl) Create(interaction *models.Interaction) error {
	return r.db.Create(interaction).Error
}

func (r *InteractionRepositoryImpl) GetByCorrelationID(id string) (*models.Interaction, error) {
	var interaction models.Interaction
	err := r.db.Preload("Feedback").
		Where("correlation_id = ?", id).
		First(&interaction).Error
	if err != nil {
		return nil, err
	}
	return &interaction, nil
}

func (r *InteractionRepositoryImpl) GetRecent(limit int) ([]models.Interaction, error) {
	var interactions []models.Interaction
	err := r.db.Order("created_at DESC").
		Limit(limit).
		Find(&interactions).Error
	return interactions, err
}

func (r *InteractionRepositoryImpl) CountByPath() (map[string]int, error) {
	type row struct {
		RoutingPath string
		Count       int
	}
	var rows []row
	err := r.db.Model(&models.Interaction{}).
		Select("routing_path, COUNT(*) as count").
		Group("routing_path").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.RoutingPath] = r.Count
	}
	return counts, nil
}

func (r *InteractionRepositoryImpl) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Interaction{}).Count(&count).Error
	return count, err
}

// FeedbackRepositoryImpl implements FeedbackRepository. The interface
// exposes no update or delete: feedback history is append-only.
type FeedbackRepositoryImpl struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) models.FeedbackRepository {
	return &FeedbackRepositoryImpl{db: db}
}

func (r *FeedbackRepositoryImpl) Create(record *models.FeedbackRecord) error {
	return r.db.Create(record).Error
}

func (r *FeedbackRepositoryImpl) GetByCorrelationID(correlationID string) ([]models.FeedbackRecord, error) {
	var records []models.FeedbackRecord
	err := r.db.Where("correlation_id = ?", correlationID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

func (r *FeedbackRepositoryImpl) GetRecent(limit int) ([]models.FeedbackRecord, error) {
	var records []models.FeedbackRecord
	err := r.db.Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *FeedbackRepositoryImpl) CountByRating() (map[string]int, error) {
	type row struct {
		Rating string
		Count  int
	}
	var rows []row
	err := r.db.Model(&models.FeedbackRecord{}).
		Select("rating, COUNT(*) as count").
		Group("rating").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Rating] = r.Count
	}
	return counts, nil
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	Interaction models.InteractionRepository
	Feedback    models.FeedbackRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		Interaction: NewInteractionRepository(db),
		Feedback:    NewFeedbackRepository(db),
	}
}
