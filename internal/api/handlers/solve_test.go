package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mathtutor-ai/backend/internal/feedback"
	"github.com/mathtutor-ai/backend/internal/generation"
	"github.com/mathtutor-ai/backend/internal/models"
	"github.com/mathtutor-ai/backend/internal/orchestrator"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const correlationID = "66666666-6666-6666-6666-666666666666"

type fakeSolver struct {
	answer *orchestrator.Answer
	err    error
}

func (f *fakeSolver) Process(ctx context.Context, rawText, userSession string) (*orchestrator.Answer, error) {
	return f.answer, f.err
}

type fakeFeedback struct {
	record *models.FeedbackRecord
	err    error
}

func (f *fakeFeedback) Record(ctx context.Context, correlationID, rating, comment string) (*models.FeedbackRecord, error) {
	return f.record, f.err
}

func (f *fakeFeedback) Summarize(ctx context.Context) (*models.FeedbackSummary, error) {
	return &models.FeedbackSummary{TotalFeedback: 2, HelpfulRate: 0.5}, nil
}

func solvedAnswer() *orchestrator.Answer {
	return &orchestrator.Answer{
		Query: models.Query{CorrelationID: correlationID, Text: "solve 2x = 4", Accepted: true},
		Decision: models.RoutingDecision{
			CorrelationID: correlationID,
			Path:          models.PathKBOnly,
			DecidedAt:     time.Now(),
		},
		Solution: &models.Solution{
			Steps:       []string{"Divide both sides by 2"},
			FinalAnswer: "x = 2",
		},
	}
}

func rejectedAnswer() *orchestrator.Answer {
	return &orchestrator.Answer{
		Query: models.Query{CorrelationID: correlationID, Text: "tell me a joke", RejectReason: "off-topic"},
		Decision: models.RoutingDecision{
			CorrelationID: correlationID,
			Path:          models.PathRejected,
			DecidedAt:     time.Now(),
		},
	}
}

func setupRouter(solver Solver, feedbackService FeedbackService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewSolveHandler(solver, feedbackService, nil, logrus.New())

	router := gin.New()
	router.POST("/api/v1/solve", handler.HandleSolve)
	router.POST("/api/v1/feedback", handler.HandleFeedback)
	router.GET("/api/v1/feedback/summary", handler.HandleFeedbackSummary)
	return router
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleSolve_Success(t *testing.T) {
	router := setupRouter(&fakeSolver{answer: solvedAnswer()}, &fakeFeedback{})

	w := postJSON(router, "/api/v1/solve", models.SolveRequest{Question: "solve 2x = 4"})

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Success bool                 `json:"success"`
		Data    models.SolveResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, correlationID, envelope.Data.CorrelationID)
	assert.Equal(t, "x = 2", envelope.Data.FinalAnswer)
	assert.Equal(t, "KB_ONLY", envelope.Data.RoutingPath)
	assert.Empty(t, envelope.Data.RejectionReason)
}

func TestHandleSolve_RejectedQuery(t *testing.T) {
	router := setupRouter(&fakeSolver{answer: rejectedAnswer()}, &fakeFeedback{})

	w := postJSON(router, "/api/v1/solve", models.SolveRequest{Question: "tell me a joke"})

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.SolveResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "REJECTED", envelope.Data.RoutingPath)
	assert.Equal(t, "off-topic", envelope.Data.RejectionReason)
	assert.Empty(t, envelope.Data.Steps)
}

func TestHandleSolve_EmptyQuestion(t *testing.T) {
	router := setupRouter(&fakeSolver{}, &fakeFeedback{})

	w := postJSON(router, "/api/v1/solve", map[string]string{"question": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(router, "/api/v1/solve", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSolve_GenerationTimeout(t *testing.T) {
	router := setupRouter(&fakeSolver{err: generation.ErrTimeout}, &fakeFeedback{})

	w := postJSON(router, "/api/v1/solve", models.SolveRequest{Question: "solve 2x = 4"})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestHandleSolve_GenerationFailure(t *testing.T) {
	router := setupRouter(&fakeSolver{err: generation.ErrInvalidStructure}, &fakeFeedback{})

	w := postJSON(router, "/api/v1/solve", models.SolveRequest{Question: "solve 2x = 4"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleFeedback_Success(t *testing.T) {
	record := &models.FeedbackRecord{ID: "fb-1", CorrelationID: correlationID, Rating: "helpful"}
	router := setupRouter(&fakeSolver{}, &fakeFeedback{record: record})

	w := postJSON(router, "/api/v1/feedback", models.FeedbackRequest{
		CorrelationID: correlationID,
		Rating:        "helpful",
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.FeedbackResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Accepted)
	assert.Equal(t, "fb-1", envelope.Data.FeedbackID)
}

func TestHandleFeedback_UnknownCorrelation(t *testing.T) {
	router := setupRouter(&fakeSolver{}, &fakeFeedback{err: feedback.ErrUnknownCorrelation})

	w := postJSON(router, "/api/v1/feedback", models.FeedbackRequest{
		CorrelationID: correlationID,
		Rating:        "helpful",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleFeedback_InvalidRating(t *testing.T) {
	router := setupRouter(&fakeSolver{}, &fakeFeedback{err: feedback.ErrInvalidRating})

	w := postJSON(router, "/api/v1/feedback", models.FeedbackRequest{
		CorrelationID: correlationID,
		Rating:        "five stars",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleFeedback_MalformedCorrelationID(t *testing.T) {
	router := setupRouter(&fakeSolver{}, &fakeFeedback{})

	w := postJSON(router, "/api/v1/feedback", models.FeedbackRequest{
		CorrelationID: "not-a-uuid",
		Rating:        "helpful",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleFeedbackSummary(t *testing.T) {
	router := setupRouter(&fakeSolver{}, &fakeFeedback{})

	req := httptest.NewRequest("GET", "/api/v1/feedback/summary", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.FeedbackSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 2, envelope.Data.TotalFeedback)
}
