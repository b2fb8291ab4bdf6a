package models

type SolveRequest struct {
	Question string `json:"question" binding:"required"`
}

type SolveResponse struct {
	CorrelationID   string   `json:"correlation_id"`
	Steps           []string `json:"steps"`
	FinalAnswer     string   `json:"final_answer"`
	RoutingPath     string   `json:"routing_path"`
	RejectionReason string   `json:"rejection_reason,omitempty"`
	ResponseTimeMs  int      `json:"response_time_ms"`
}

type FeedbackRequest struct {
	CorrelationID string `json:"correlation_id" binding:"required"`
	Rating        string `json:"rating" binding:"required"`
	Comment       string `json:"comment"`
}

type FeedbackResponse struct {
	Accepted   bool   `json:"accepted"`
	FeedbackID string `json:"feedback_id,omitempty"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
