// backend/internal/api/handlers/solve.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mathtutor-ai/backend/internal/database"
	"github.com/mathtutor-ai/backend/internal/feedback"
	"github.com/mathtutor-ai/backend/internal/generation"
	"github.com/mathtutor-ai/backend/internal/models"
	"github.com/mathtutor-ai/backend/internal/orchestrator"
	"github.com/mathtutor-ai/backend/pkg/utils"
	"github.com/sirupsen/logrus"
)

const (
	maxQuestionLength = 2000
	requestTimeout    = 90 * time.Second
	solutionCacheTTL  = 10 * time.Minute
)

// Solver processes one question end to end.
type Solver interface {
	Process(ctx context.Context, rawText, userSession string) (*orchestrator.Answer, error)
}

// FeedbackService records ratings and summarizes them.
type FeedbackService interface {
	Record(ctx context.Context, correlationID, rating, comment string) (*models.FeedbackRecord, error)
	Summarize(ctx context.Context) (*models.FeedbackSummary, error)
}

type SolveHandler struct {
	solver   Solver
	feedback FeedbackService
	cache    *database.Cache
	logger   *logrus.Logger
}

func NewSolveHandler(solver Solver, feedbackService FeedbackService, cache *database.Cache, logger *logrus.Logger) *SolveHandler {
	return &SolveHandler{
		solver:   solver,
		feedback: feedbackService,
		cache:    cache,
		logger:   logger,
	}
}

// HandleSolve processes math question requests
func (h *SolveHandler) HandleSolve(c *gin.Context) {
	startTime := time.Now()

	var req models.SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Invalid solve request")
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Question cannot be empty", nil)
		return
	}
	if len(question) > maxQuestionLength {
		utils.ErrorResponse(c, http.StatusBadRequest, "Question too long (max 2000 characters)", nil)
		return
	}

	userSession := h.getUserSession(c)

	h.logger.WithFields(logrus.Fields{
		"user_session": userSession,
		"length":       len(question),
	}).Info("Processing solve request")

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	cacheKey := utils.MD5Hash(strings.ToLower(question))
	if h.cache != nil {
		cached := &models.SolveResponse{}
		if err := h.cache.GetCachedSolution(ctx, cacheKey, cached); err == nil {
			h.logger.Debug("Solution served from cache")
			cached.ResponseTimeMs = int(time.Since(startTime).Milliseconds())
			utils.SuccessResponse(c, http.StatusOK, "Solution found", cached)
			return
		}
	}

	answer, err := h.solver.Process(ctx, question, userSession)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, generation.ErrTimeout):
			utils.ErrorResponse(c, http.StatusGatewayTimeout, "Solution generation timed out", err)
		case errors.Is(err, generation.ErrInvalidStructure):
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to generate a valid solution", err)
		default:
			h.logger.WithError(err).Error("Solve failed")
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to process question", err)
		}
		return
	}

	response := buildSolveResponse(answer, time.Since(startTime))

	if h.cache != nil && answer.Decision.Path != models.PathRejected {
		if err := h.cache.CacheSolution(ctx, cacheKey, response, solutionCacheTTL); err != nil {
			h.logger.WithError(err).Warn("Failed to cache solution")
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "Solution found", response)
}

// HandleFeedback records user feedback on a solution
func (h *SolveHandler) HandleFeedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid feedback format", err)
		return
	}

	if !utils.ValidateCorrelationID(req.CorrelationID) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid correlation id", nil)
		return
	}

	record, err := h.feedback.Record(c.Request.Context(), req.CorrelationID, req.Rating, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, feedback.ErrInvalidRating):
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid rating", err)
		case errors.Is(err, feedback.ErrUnknownCorrelation):
			utils.ErrorResponse(c, http.StatusNotFound, "Unknown correlation id", err)
		default:
			h.logger.WithError(err).Error("Failed to save feedback")
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to save feedback", err)
		}
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Feedback recorded", models.FeedbackResponse{
		Accepted:   true,
		FeedbackID: record.ID,
	})
}

// HandleFeedbackSummary returns aggregate feedback statistics
func (h *SolveHandler) HandleFeedbackSummary(c *gin.Context) {
	summary, err := h.feedback.Summarize(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to summarize feedback")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to summarize feedback", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Feedback summary", summary)
}

func buildSolveResponse(answer *orchestrator.Answer, elapsed time.Duration) models.SolveResponse {
	response := models.SolveResponse{
		CorrelationID:  answer.Query.CorrelationID,
		RoutingPath:    string(answer.Decision.Path),
		ResponseTimeMs: int(elapsed.Milliseconds()),
	}

	if answer.Decision.Path == models.PathRejected {
		response.RejectionReason = answer.Query.RejectReason
		return response
	}

	if answer.Solution != nil {
		response.Steps = answer.Solution.Steps
		response.FinalAnswer = answer.Solution.FinalAnswer
	}
	return response
}

func (h *SolveHandler) getUserSession(c *gin.Context) string {
	if session := c.GetHeader("X-Session-ID"); session != "" {
		return session
	}

	// Basic fingerprinting from IP + User-Agent
	userAgent := c.GetHeader("User-Agent")
	clientIP := c.ClientIP()
	return utils.GenerateSessionID(clientIP + userAgent)
}
