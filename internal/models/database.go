package models

// GORM models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// StringArray for PostgreSQL array support
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	return fmt.Sprintf("{%s}", strings.Join(s, ",")), nil
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "{}" {
			*s = StringArray{}
			return nil
		}
		v = strings.Trim(v, "{}")
		if v == "" {
			*s = StringArray{}
			return nil
		}
		*s = StringArray(strings.Split(v, ","))
	case []byte:
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
	return nil
}

// Interaction persists one answered (or rejected) question together
// with its routing decision. Created once per request, never mutated.
type Interaction struct {
	CorrelationID  string      `json:"correlation_id" gorm:"primaryKey"`
	Question       string      `json:"question" gorm:"not null"`
	Steps          StringArray `json:"steps" gorm:"type:text[]"`
	FinalAnswer    string      `json:"final_answer"`
	RoutingPath    string      `json:"routing_path" gorm:"not null;check:routing_path IN ('KB_ONLY','WEB_AUGMENTED','REJECTED')"`
	RejectReason   string      `json:"reject_reason"`
	KBTopScore     float64     `json:"kb_top_score"`
	MinScore       float64     `json:"min_score"`
	MinSufficient  int         `json:"min_sufficient"`
	WebResultCount int         `json:"web_result_count"`
	ContextUsed    string      `json:"context_used"` // truncated evidence snippet for audit
	LLMModel       string      `json:"llm_model"`
	UserSession    string      `json:"user_session"`
	ResponseTimeMs int         `json:"response_time_ms"`
	CreatedAt      time.Time   `json:"created_at"`

	// Associations
	Feedback []FeedbackRecord `json:"feedback" gorm:"foreignKey:CorrelationID"`
}

// FeedbackRecord is an append-only user rating of a solution. Duplicate
// submissions for the same correlation id append new rows; existing
// rows are never updated or deleted.
type FeedbackRecord struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	CorrelationID string    `json:"correlation_id" gorm:"not null;index"`
	Rating        string    `json:"rating" gorm:"not null;check:rating IN ('helpful','needs_improvement')"`
	Comment       string    `json:"comment"`
	CreatedAt     time.Time `json:"created_at"`
}

// FeedbackSummary aggregates feedback for offline threshold tuning.
type FeedbackSummary struct {
	TotalFeedback    int            `json:"total_feedback"`
	CountsByRating   map[string]int `json:"counts_by_rating"`
	CountsByPath     map[string]int `json:"counts_by_path"`
	HelpfulRate      float64        `json:"helpful_rate"`
	TotalInteraction int            `json:"total_interactions"`
}

// Repository interfaces

type InteractionRepository interface {
	Create(interaction *Interaction) error
	GetByCorrelationID(id string) (*Interaction, error)
	GetRecent(limit int) ([]Interaction, error)
	CountByPath() (map[string]int, error)
	Count() (int64, error)
}

// FeedbackRepository is append-only: no Update or Delete.
type FeedbackRepository interface {
	Create(record *FeedbackRecord) error
	GetByCorrelationID(correlationID string) ([]FeedbackRecord, error)
	GetRecent(limit int) ([]FeedbackRecord, error)
	CountByRating() (map[string]int, error)
}

// TableName methods for custom table names
func (Interaction) TableName() string    { return "interactions" }
func (FeedbackRecord) TableName() string { return "feedback_records" }

// Model validation methods
func (i *Interaction) Validate() error {
	if i.CorrelationID == "" {
		return fmt.Errorf("correlation id is required")
	}
	if i.Question == "" {
		return fmt.Errorf("question is required")
	}
	switch RoutingPath(i.RoutingPath) {
	case PathKBOnly, PathWebAugmented, PathRejected:
	default:
		return fmt.Errorf("invalid routing path: %s", i.RoutingPath)
	}
	return nil
}

func (f *FeedbackRecord) Validate() error {
	if f.CorrelationID == "" {
		return fmt.Errorf("correlation id is required")
	}
	if f.Rating != "helpful" && f.Rating != "needs_improvement" {
		return fmt.Errorf("invalid rating: %s", f.Rating)
	}
	return nil
}

// GORM hooks
func (i *Interaction) BeforeCreate(tx *gorm.DB) error {
	return i.Validate()
}

func (f *FeedbackRecord) BeforeCreate(tx *gorm.DB) error {
	return f.Validate()
}
