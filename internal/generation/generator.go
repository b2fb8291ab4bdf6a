// backend/internal/generation/generator.go
package generation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mathtutor-ai/backend/internal/llm"
	"github.com/mathtutor-ai/backend/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidStructure is returned when the model output never
	// parsed into steps plus a final answer within the retry budget.
	ErrInvalidStructure = errors.New("generated solution has invalid structure")

	// ErrTimeout is returned when a single generation call exceeded
	// its deadline. Fatal for the request; no retry.
	ErrTimeout = errors.New("generation timed out")
)

var (
	stepPattern        = regexp.MustCompile(`(?mi)^\s*(?:step\s*)?(\d+)[\.:\)]\s*(.+)$`)
	finalAnswerPattern = regexp.MustCompile(`(?i)final\s+answer\s*[:\-]\s*(.+)`)
)

// Phrases indicating the model could not produce a grounded solution.
var cannotAnswerPhrases = []string{
	"cannot provide a complete solution",
	"don't have enough information",
	"insufficient information",
	"not enough context",
	"cannot solve this problem",
	"unable to provide a solution",
}

const solverSystemPrompt = `You are an expert math professor who gives clear, step-by-step explanations.

When answering:
1. Break the solution into clear, logical steps.
2. Explain each step in simple language.
3. Use the provided evidence; never invent mathematical facts that contradict it.
4. Double-check calculations.

Format your response exactly as:
Step 1: <first step>
Step 2: <second step>
...
Final answer: <the answer>

If the evidence is insufficient to solve the problem reliably, say so explicitly instead of guessing.`

type GeneratorConfig struct {
	MaxAttempts   int
	Timeout       time.Duration
	ContextBudget int
	Model         string
}

// Generator fuses evidence into a bounded context and produces a
// structured step-by-step solution. Structural validity is enforced
// post-hoc; numeric correctness is not guaranteed.
type Generator struct {
	completer llm.Completer
	config    GeneratorConfig
	logger    *logrus.Logger
}

func NewGenerator(completer llm.Completer, config GeneratorConfig, logger *logrus.Logger) *Generator {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Generator{
		completer: completer,
		config:    config,
		logger:    logger,
	}
}

// Generate produces a Solution grounded on the evidence set. Retries up
// to MaxAttempts on structural violations; a timeout is fatal.
func (g *Generator) Generate(ctx context.Context, query models.Query, set *models.EvidenceSet) (*models.Solution, error) {
	fused := Fuse(set, g.config.ContextBudget)
	userPrompt := buildUserPrompt(query.Text, fused)

	var lastErr error
	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		genCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
		raw, err := g.completer.Complete(genCtx, solverSystemPrompt, userPrompt)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			lastErr = err
			g.logger.WithError(err).WithFields(logrus.Fields{
				"correlation_id": query.CorrelationID,
				"attempt":        attempt,
			}).Warn("Generation call failed")
			continue
		}

		if phrase, found := detectCannotAnswer(raw); found {
			g.logger.WithFields(logrus.Fields{
				"correlation_id": query.CorrelationID,
				"phrase":         phrase,
			}).Info("Model reported insufficient evidence")
			return &models.Solution{
				Steps:       []string{strings.TrimSpace(raw)},
				FinalAnswer: "I don't have enough information to provide a complete solution.",
				BestEffort:  true,
				Evidence:    set,
			}, nil
		}

		solution, parseErr := parseSolution(raw)
		if parseErr != nil {
			lastErr = parseErr
			g.logger.WithError(parseErr).WithFields(logrus.Fields{
				"correlation_id": query.CorrelationID,
				"attempt":        attempt,
			}).Warn("Generated solution failed structural validation, retrying")
			continue
		}

		solution.Evidence = set
		return solution, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrInvalidStructure, lastErr)
}

func buildUserPrompt(question string, evidence []models.EvidenceItem) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Question: %s\n\n", question)

	if len(evidence) > 0 {
		builder.WriteString("Here is relevant evidence that may help answer this question:\n\n")
		builder.WriteString(BuildContext(evidence))
		builder.WriteString("\n\n")
	}

	builder.WriteString("Provide a step-by-step solution, explaining each step clearly as if teaching a student.")
	return builder.String()
}

// parseSolution extracts ordered steps and the final answer, enforcing
// the structure contract: at least one step and exactly one answer.
func parseSolution(raw string) (*models.Solution, error) {
	answerMatch := finalAnswerPattern.FindStringSubmatch(raw)
	if answerMatch == nil {
		return nil, fmt.Errorf("no final answer line found")
	}
	finalAnswer := strings.TrimSpace(answerMatch[1])
	if finalAnswer == "" {
		return nil, fmt.Errorf("empty final answer")
	}

	// Steps are everything before the final answer line.
	body := raw[:strings.Index(raw, answerMatch[0])]

	var steps []string
	for _, match := range stepPattern.FindAllStringSubmatch(body, -1) {
		step := strings.TrimSpace(match[2])
		if step != "" {
			steps = append(steps, step)
		}
	}

	if len(steps) == 0 {
		// Fall back to paragraphs when the model skipped numbering.
		for _, paragraph := range strings.Split(body, "\n\n") {
			paragraph = strings.TrimSpace(paragraph)
			if paragraph != "" {
				steps = append(steps, paragraph)
			}
		}
	}

	if len(steps) == 0 {
		return nil, fmt.Errorf("no solution steps found")
	}

	return &models.Solution{
		Steps:       steps,
		FinalAnswer: finalAnswer,
	}, nil
}

func detectCannotAnswer(raw string) (string, bool) {
	lowered := strings.ToLower(raw)
	for _, phrase := range cannotAnswerPhrases {
		if strings.Contains(lowered, phrase) {
			return phrase, true
		}
	}
	return "", false
}
