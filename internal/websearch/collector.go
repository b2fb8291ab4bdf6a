// backend/internal/websearch/collector.go
package websearch

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mathtutor-ai/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrExhausted signals that every search/fetch/extract attempt failed
// and no web evidence could be collected.
var ErrExhausted = errors.New("web search exhausted")

var leadingVerbPattern = regexp.MustCompile(`(?i)^(solve|calculate|find|determine|what is|how to|evaluate|simplify|prove)\s+`)

// Domains whose results are boosted during page selection.
var preferredDomains = []string{
	"khanacademy.org",
	"mathsisfun.com",
	"purplemath.com",
	"mathworld.wolfram.com",
	"math.stackexchange.com",
	"brilliant.org",
	"en.wikipedia.org",
	"wolframalpha.com",
	"symbolab.com",
	".edu",
}

var boostKeywords = []string{"formula", "equation", "solution", "solve", "math", "problem", "answer", "proof"}

// Searcher produces candidate URLs for a query.
type Searcher interface {
	SearchWithRetry(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// PageExtractor fetches and cleans one page.
type PageExtractor interface {
	Extract(ctx context.Context, pageURL string) (string, error)
}

type CollectorConfig struct {
	MaxResults   int
	MaxPages     int
	FetchWorkers int
}

// Collector turns a query into web evidence: search, pick the most
// promising pages, extract them with bounded parallelism, and score
// each extracted item against the query.
type Collector struct {
	searcher  Searcher
	extractor PageExtractor
	config    CollectorConfig
	logger    *logrus.Logger
}

func NewCollector(searcher Searcher, extractor PageExtractor, config CollectorConfig, logger *logrus.Logger) *Collector {
	return &Collector{
		searcher:  searcher,
		extractor: extractor,
		config:    config,
		logger:    logger,
	}
}

// Collect gathers web evidence for the query. Individual page failures
// are dropped; if nothing at all could be collected the returned set is
// empty, marked insufficient, and ErrExhausted is reported.
func (c *Collector) Collect(ctx context.Context, query models.Query) (*models.EvidenceSet, error) {
	searchQuery := formulateSearchQuery(query.Text)

	results, err := c.searcher.SearchWithRetry(ctx, searchQuery, c.config.MaxResults)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		c.logger.WithError(err).WithField("correlation_id", query.CorrelationID).Error("Search API failed")
		return &models.EvidenceSet{Insufficient: true}, ErrExhausted
	}

	if len(results) == 0 {
		c.logger.WithField("correlation_id", query.CorrelationID).Warn("Search returned no results")
		return &models.EvidenceSet{Insufficient: true}, ErrExhausted
	}

	ranked := rankResults(results, query.Text)
	if len(ranked) > c.config.MaxPages {
		ranked = ranked[:c.config.MaxPages]
	}

	items := c.extractPages(ctx, ranked, query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := &models.EvidenceSet{Items: items}
	set.SortByScore()
	if len(set.Items) == 0 {
		set.Insufficient = true
		return set, ErrExhausted
	}

	c.logger.WithFields(logrus.Fields{
		"correlation_id": query.CorrelationID,
		"pages_tried":    len(ranked),
		"items":          len(set.Items),
	}).Debug("Web evidence collected")

	return set, nil
}

// extractPages fetches the ranked pages with bounded parallelism.
// Failed pages are logged and dropped.
func (c *Collector) extractPages(ctx context.Context, ranked []scoredResult, query models.Query) []models.EvidenceItem {
	workers := c.config.FetchWorkers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	var items []models.EvidenceItem

	for _, candidate := range ranked {
		wg.Add(1)
		sem <- struct{}{}
		go func(candidate scoredResult) {
			defer wg.Done()
			defer func() { <-sem }()

			content, err := c.extractor.Extract(ctx, candidate.result.URL)
			if err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"correlation_id": query.CorrelationID,
					"url":            candidate.result.URL,
				}).Warn("Page extraction failed, dropping")
				return
			}

			item := models.EvidenceItem{
				Kind:       models.EvidenceWeb,
				Text:       content,
				Score:      relevanceScore(query.Text, content, candidate.boost),
				Provenance: candidate.result.URL,
				InsertedAt: time.Now(),
			}

			mu.Lock()
			items = append(items, item)
			mu.Unlock()
		}(candidate)
	}

	wg.Wait()
	return items
}

// formulateSearchQuery strips leading imperative verbs and frames the
// question as a math problem lookup.
func formulateSearchQuery(question string) string {
	query := leadingVerbPattern.ReplaceAllString(strings.TrimSpace(question), "")
	return "math problem " + strings.ToLower(query) + " solution"
}

type scoredResult struct {
	result Result
	boost  float64
}

// rankResults orders search results by how promising they look before
// any page is fetched: educational domains and math keywords in the
// title or snippet raise the boost.
func rankResults(results []Result, question string) []scoredResult {
	ranked := make([]scoredResult, 0, len(results))
	for _, result := range results {
		boost := 1.0

		for _, domain := range preferredDomains {
			if strings.Contains(result.URL, domain) {
				boost *= 1.5
				break
			}
		}

		title := strings.ToLower(result.Title)
		snippet := strings.ToLower(result.Snippet)
		for _, keyword := range boostKeywords {
			if strings.Contains(title, keyword) {
				boost *= 1.2
				break
			}
		}
		for _, keyword := range boostKeywords {
			if strings.Contains(snippet, keyword) {
				boost *= 1.1
				break
			}
		}

		ranked = append(ranked, scoredResult{result: result, boost: boost})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].boost > ranked[j].boost
	})
	return ranked
}

// maxBoost is the largest product rankResults can assign; used to keep
// relevance scores inside [0,1].
const maxBoost = 1.5 * 1.2 * 1.1

// relevanceScore combines lexical coverage of the query terms in the
// extracted text with the pre-fetch boost.
func relevanceScore(question, content string, boost float64) float64 {
	coverage := termCoverage(question, content)
	score := 0.5*coverage + 0.5*(boost/maxBoost)
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// termCoverage is the fraction of significant query words present in
// the content.
func termCoverage(question, content string) float64 {
	contentLower := strings.ToLower(content)
	words := strings.Fields(strings.ToLower(question))

	significant := 0
	found := 0
	for _, word := range words {
		word = strings.Trim(word, ".,?!:;()")
		if len(word) <= 2 {
			continue
		}
		significant++
		if strings.Contains(contentLower, word) {
			found++
		}
	}

	if significant == 0 {
		return 0
	}
	return float64(found) / float64(significant)
}
