// backend/internal/generation/fusion.go
package generation

import (
	"fmt"
	"strings"

	"github.com/mathtutor-ai/backend/internal/models"
)

// nearDuplicateThreshold is the token-overlap ratio above which two
// evidence items are considered the same content.
const nearDuplicateThreshold = 0.9

// Fuse deduplicates near-identical evidence items and trims the set to
// the context budget, dropping lowest-scored items first. The input set
// is not modified.
func Fuse(set *models.EvidenceSet, budget int) []models.EvidenceItem {
	if set == nil || len(set.Items) == 0 {
		return nil
	}

	ordered := make([]models.EvidenceItem, len(set.Items))
	copy(ordered, set.Items)
	working := &models.EvidenceSet{Items: ordered}
	working.SortByScore()

	var kept []models.EvidenceItem
	used := 0
	for _, candidate := range working.Items {
		if isNearDuplicate(candidate, kept) {
			continue
		}
		if used+len(candidate.Text) > budget {
			if len(kept) == 0 && budget > 0 {
				// Never produce an empty context when evidence exists:
				// truncate the single best item to fit.
				candidate.Text = candidate.Text[:budget]
				kept = append(kept, candidate)
			}
			break
		}
		used += len(candidate.Text)
		kept = append(kept, candidate)
	}

	return kept
}

func isNearDuplicate(candidate models.EvidenceItem, kept []models.EvidenceItem) bool {
	for _, existing := range kept {
		if tokenOverlap(candidate.Text, existing.Text) >= nearDuplicateThreshold {
			return true
		}
	}
	return false
}

// tokenOverlap computes the Jaccard similarity of the two texts' token
// sets.
func tokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if setB[token] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,?!:;()[]")
		if word != "" {
			tokens[word] = true
		}
	}
	return tokens
}

// BuildContext renders fused evidence into the single prompt context,
// with exhaustive handling of both evidence kinds.
func BuildContext(items []models.EvidenceItem) string {
	var builder strings.Builder
	for _, item := range items {
		switch item.Kind {
		case models.EvidenceKB:
			fmt.Fprintf(&builder, "[Knowledge base entry %s (relevance: %.2f)]\n%s\n\n", item.Provenance, item.Score, item.Text)
		case models.EvidenceWeb:
			fmt.Fprintf(&builder, "[Web source: %s (relevance: %.2f)]\n%s\n\n", item.Provenance, item.Score, item.Text)
		default:
			fmt.Fprintf(&builder, "[Evidence (relevance: %.2f)]\n%s\n\n", item.Score, item.Text)
		}
	}
	return strings.TrimSpace(builder.String())
}
