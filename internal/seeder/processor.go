// backend/internal/seeder/processor.go
package seeder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mathtutor-ai/backend/internal/kb"
)

// DatasetProblem is one record of the solved-problems dataset.
type DatasetProblem struct {
	Question    string `json:"question"`
	Type        string `json:"type"`
	Gold        string `json:"gold"`
	Description string `json:"description"`
	Subject     string `json:"subject"`
}

// FewShotExample is one worked example keyed by problem type.
type FewShotExample struct {
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
}

// ContentProcessor handles text processing and cleanup before entries
// are embedded.
type ContentProcessor struct {
	multiWhitespace *regexp.Regexp
	htmlTags        *regexp.Regexp
	markupArtifacts *regexp.Regexp
}

func NewContentProcessor() *ContentProcessor {
	return &ContentProcessor{
		multiWhitespace: regexp.MustCompile(`[ \t]+`),
		htmlTags:        regexp.MustCompile(`<[^>]*>`),
		markupArtifacts: regexp.MustCompile(`\$\$|\\\[|\\\]`),
	}
}

// CleanContent removes unwanted formatting and normalizes text
func (cp *ContentProcessor) CleanContent(content string) string {
	// Remove HTML tags
	content = cp.htmlTags.ReplaceAllString(content, "")

	// Strip display-math delimiters, keep the math itself
	content = cp.markupArtifacts.ReplaceAllString(content, "")

	// Normalize horizontal whitespace
	content = cp.multiWhitespace.ReplaceAllString(content, " ")

	// Remove excessive newlines
	lines := strings.Split(content, "\n")
	var cleaned []string
	emptyLines := 0

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			emptyLines++
			if emptyLines <= 2 { // Allow max 2 consecutive empty lines
				cleaned = append(cleaned, "")
			}
		} else {
			emptyLines = 0
			cleaned = append(cleaned, line)
		}
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// BuildProblemEntry turns a dataset record into a knowledge base entry.
// Question and answer are kept together in one embedded text so that
// retrieval lands on the worked answer, not just the prompt.
func (cp *ContentProcessor) BuildProblemEntry(problem DatasetProblem) (kb.Entry, error) {
	question := cp.CleanContent(problem.Question)
	answer := cp.CleanContent(problem.Gold)

	if question == "" {
		return kb.Entry{}, fmt.Errorf("problem has no question text")
	}

	return kb.Entry{
		Text:    fmt.Sprintf("Problem: %s\nAnswer: %s", question, answer),
		Subject: problem.Subject,
		Type:    problem.Type,
	}, nil
}

// BuildFewShotEntry turns a worked example into a knowledge base entry.
func (cp *ContentProcessor) BuildFewShotEntry(problemType string, example FewShotExample) (kb.Entry, error) {
	problem := cp.CleanContent(example.Problem)
	solution := cp.CleanContent(example.Solution)

	if problem == "" || solution == "" {
		return kb.Entry{}, fmt.Errorf("few-shot example for %q is incomplete", problemType)
	}

	return kb.Entry{
		Text:    fmt.Sprintf("Problem: %s\nSolution: %s", problem, solution),
		Subject: "math",
		Type:    problemType,
	}, nil
}
