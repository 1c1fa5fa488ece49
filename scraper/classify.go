package scraper

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/aluiziolira/go-scrape-asin/config"
	"github.com/aluiziolira/go-scrape-asin/models"
)

// Classifier judges raw responses. Markers are matched case-insensitively
// against the body; they are heuristics and come from configuration.
type Classifier struct {
	notFound    [][]byte
	blocked     [][]byte
	anchors     [][]byte
	minBodySize int
}

// NewClassifier builds a classifier from the marker lists in cfg.
func NewClassifier(cfg *config.Config) *Classifier {
	return &Classifier{
		notFound:    lowerAll(cfg.NotFoundMarkers),
		blocked:     lowerAll(cfg.BlockMarkers),
		anchors:     lowerAll(cfg.AnchorMarkers),
		minBodySize: cfg.MinBodySize,
	}
}

func lowerAll(markers []string) [][]byte {
	out := make([][]byte, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, []byte(strings.ToLower(m)))
		}
	}
	return out
}

// Classify maps every response to exactly one classification. The checks run
// in a fixed order: a short not-found page must never read as a block, and a
// block page must never reach the extractor.
func (c *Classifier) Classify(resp *RawResponse) models.Classification {
	if resp == nil {
		return models.ClassTransient
	}
	body := bytes.ToLower(resp.Body)

	if resp.StatusCode == http.StatusNotFound || containsAny(body, c.notFound) {
		return models.ClassNotFound
	}
	if resp.StatusCode == http.StatusServiceUnavailable ||
		resp.StatusCode == http.StatusTooManyRequests ||
		containsAny(body, c.blocked) ||
		len(resp.Body) < c.minBodySize {
		return models.ClassSoftBlocked
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !containsAny(body, c.anchors) {
		return models.ClassTransient
	}
	return models.ClassOK
}

func containsAny(body []byte, markers [][]byte) bool {
	for _, m := range markers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return false
}
