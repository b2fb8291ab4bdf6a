package websearch

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

var (
	multiWhitespace = regexp.MustCompile(`[ \t]+`)
	multiNewline    = regexp.MustCompile(`\n\s*\n+`)
)

// Extractor fetches a page and pulls out its main textual content,
// stripping navigation and boilerplate. One collector per call keeps
// concurrent extractions independent.
type Extractor struct {
	charLimit  int
	minContent int
	timeout    time.Duration
	logger     *logrus.Logger
}

func NewExtractor(charLimit, minContent int, logger *logrus.Logger) *Extractor {
	return &Extractor{
		charLimit:  charLimit,
		minContent: minContent,
		timeout:    15 * time.Second,
		logger:     logger,
	}
}

// Extract returns the cleaned main text of the page, capped at the
// configured per-page limit.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	collector := colly.NewCollector(
		colly.UserAgent("MathTutor-Bot/1.0"),
	)
	collector.SetRequestTimeout(e.timeout)

	var content string
	var fetchErr error

	collector.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
		default:
		}
	})

	collector.OnHTML("body", func(el *colly.HTMLElement) {
		el.DOM.Find("script, style, nav, footer, header, aside, form, iframe, noscript").Remove()
		el.DOM.Find(".navbox, .sidebar, .toc, .advertisement, .breadcrumb, .cookie-banner").Remove()

		text := strings.TrimSpace(el.DOM.Text())
		text = multiWhitespace.ReplaceAllString(text, " ")
		text = multiNewline.ReplaceAllString(text, "\n")
		content = strings.TrimSpace(text)
	})

	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(pageURL); err != nil {
		return "", fmt.Errorf("failed to visit page: %w", err)
	}
	if fetchErr != nil {
		return "", fmt.Errorf("failed to fetch page: %w", fetchErr)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if len(content) < e.minContent {
		return "", fmt.Errorf("extracted content too short (%d chars)", len(content))
	}

	if len(content) > e.charLimit {
		e.logger.WithFields(logrus.Fields{
			"url":      pageURL,
			"original": len(content),
			"limit":    e.charLimit,
		}).Debug("Truncating extracted page content")
		content = content[:e.charLimit]
	}

	return content, nil
}
