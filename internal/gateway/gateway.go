// backend/internal/gateway/gateway.go
package gateway

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/mathtutor-ai/backend/internal/llm"
	"github.com/mathtutor-ai/backend/internal/models"
	"github.com/mathtutor-ai/backend/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Rejection reasons surfaced to the caller.
const (
	ReasonEmptyInput    = "empty input"
	ReasonOffTopic      = "off-topic"
	ReasonUnsafeContent = "unsafe content"
	ReasonUnavailable   = "classifier unavailable"
)

var (
	mathSymbolPattern = regexp.MustCompile(`[\+\-\*\/\^\=\<\>\(\)\[\]\{\}\d]`)
	wordPattern       = regexp.MustCompile(`\b\w+\b`)

	prohibitedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(sex|porn|explicit|nsfw|xxx)\b`),
		regexp.MustCompile(`(?i)\b(hack|exploit|steal|illegal)\b`),
		regexp.MustCompile(`(?i)\bhow\s+to\s+(make|create|build)\s+(bomb|explosive|weapon)`),
		regexp.MustCompile(`(?i)\bpersonal\s+(information|data|address|phone|email)\b`),
		regexp.MustCompile(`(?i)\bpassword\b`),
		regexp.MustCompile(`(?i)\bcredit\s+card\b`),
		regexp.MustCompile(`(?i)\bsocial\s+security\b`),
	}
)

// mathKeywords is the lightweight in-domain vocabulary used before any
// LLM classification is attempted.
var mathKeywords = map[string]bool{
	"math": true, "algebra": true, "geometry": true, "calculus": true,
	"trigonometry": true, "equation": true, "formula": true, "solve": true,
	"simplify": true, "factor": true, "expand": true, "derivative": true,
	"integral": true, "function": true, "graph": true, "polynomial": true,
	"matrix": true, "vector": true, "number": true, "probability": true,
	"statistics": true, "mean": true, "median": true, "mode": true,
	"variance": true, "theorem": true, "axiom": true, "proof": true,
	"angle": true, "triangle": true, "circle": true, "square": true,
	"rectangle": true, "polygon": true, "expression": true, "variable": true,
	"constant": true, "coefficient": true, "exponent": true, "logarithm": true,
	"root": true, "percentage": true, "ratio": true, "proportion": true,
	"limit": true, "sequence": true, "series": true, "summation": true,
	"factorial": true, "combination": true, "permutation": true,
	"binomial": true, "divide": true, "multiply": true, "addition": true,
	"subtraction": true, "multiplication": true, "division": true,
	"fraction": true, "decimal": true, "prime": true, "integer": true,
}

// Gateway validates and classifies raw input before any retrieval or
// generation work happens. It holds no mutable state.
type Gateway struct {
	classifier llm.Completer // optional; nil disables LLM fallback
	logger     *logrus.Logger
}

func New(classifier llm.Completer, logger *logrus.Logger) *Gateway {
	return &Gateway{
		classifier: classifier,
		logger:     logger,
	}
}

// Validate classifies raw text as an in-domain mathematics question and
// returns an immutable Query carrying the verdict and a fresh
// correlation id.
func (g *Gateway) Validate(ctx context.Context, rawText string) models.Query {
	query := models.Query{
		CorrelationID: utils.NewCorrelationID(),
		Text:          strings.TrimSpace(rawText),
		ReceivedAt:    time.Now(),
	}

	if query.Text == "" {
		query.RejectReason = ReasonEmptyInput
		return query
	}

	for _, pattern := range prohibitedPatterns {
		if pattern.MatchString(query.Text) {
			g.logger.WithField("correlation_id", query.CorrelationID).Warn("Input rejected: prohibited content")
			query.RejectReason = ReasonUnsafeContent
			return query
		}
	}

	if len(wordPattern.FindAllString(query.Text, -1)) == 0 {
		query.RejectReason = ReasonEmptyInput
		return query
	}

	hasSymbols := mathSymbolPattern.MatchString(query.Text)
	keywordCount := g.countMathKeywords(query.Text)

	if hasSymbols || keywordCount > 0 {
		g.logger.WithFields(logrus.Fields{
			"correlation_id": query.CorrelationID,
			"keywords":       keywordCount,
			"symbols":        hasSymbols,
		}).Debug("Input accepted by keyword check")
		query.Accepted = true
		return query
	}

	// Uncertain case: defer to the LLM classifier. Classifier failure
	// fails closed so the safety guarantee holds.
	if g.classifier == nil {
		query.RejectReason = ReasonOffTopic
		return query
	}

	isMath, err := g.classifyWithLLM(ctx, query.Text)
	if err != nil {
		g.logger.WithError(err).WithField("correlation_id", query.CorrelationID).Warn("LLM classification failed, rejecting")
		query.RejectReason = ReasonUnavailable
		return query
	}

	if !isMath {
		query.RejectReason = ReasonOffTopic
		return query
	}

	query.Accepted = true
	return query
}

// ValidateOutput screens generated solution text against the prohibited
// patterns before it reaches the caller.
func (g *Gateway) ValidateOutput(steps []string, finalAnswer string) bool {
	combined := strings.Join(steps, " ") + " " + finalAnswer
	for _, pattern := range prohibitedPatterns {
		if pattern.MatchString(combined) {
			g.logger.Warn("Output rejected: prohibited content")
			return false
		}
	}
	return true
}

func (g *Gateway) countMathKeywords(text string) int {
	count := 0
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if mathKeywords[word] {
			count++
		}
	}
	return count
}

const classifierSystemPrompt = `You classify user queries. Answer with exactly one word: MATH if the query is directly related to mathematical concepts, problems, or education, otherwise NOT_MATH.`

func (g *Gateway) classifyWithLLM(ctx context.Context, text string) (bool, error) {
	response, err := g.classifier.Complete(ctx, classifierSystemPrompt, "Query: "+text)
	if err != nil {
		return false, err
	}

	verdict := strings.ToUpper(strings.TrimSpace(response))
	g.logger.WithField("verdict", verdict).Debug("LLM classification")
	return strings.Contains(verdict, "MATH") && !strings.Contains(verdict, "NOT_MATH"), nil
}
