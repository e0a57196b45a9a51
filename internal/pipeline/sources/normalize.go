// internal/pipeline/sources/normalize.go
package sources

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

// rawPayload is one source-shaped hit that can convert itself into the
// common RawResult form. One implementation per external payload shape.
type rawPayload interface {
	normalize(src models.SourceConfig, now time.Time) (models.RawResult, error)
}

// NormalizeText lowercases, strips punctuation, and collapses whitespace.
// Content hashing and duplicate title matching both run on this form.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// contentHash derives the duplicate-detection hash from normalized title
// and snippet. Always computable: a RawResult without a hash cannot exist.
func contentHash(title, snippet string) string {
	sum := sha256.Sum256([]byte(NormalizeText(title) + " " + NormalizeText(snippet)))
	return hex.EncodeToString(sum[:])
}

// newRawResult builds the common record. A missing title is a skip, not a
// crash; missing published dates default to discovery time downstream
// (kept zero here so sorting can put unknown dates last).
func newRawResult(title, snippet, link string, published time.Time, src models.SourceConfig, now time.Time) (models.RawResult, error) {
	if strings.TrimSpace(title) == "" {
		return models.RawResult{}, fmt.Errorf("result from %s has no title", src.Name)
	}
	return models.RawResult{
		Title:        strings.TrimSpace(title),
		Snippet:      strings.TrimSpace(snippet),
		URL:          strings.TrimSpace(link),
		SourceName:   src.Name,
		SourceType:   src.Type,
		PublishedAt:  published,
		DiscoveredAt: now,
		ContentHash:  contentHash(title, snippet),
	}, nil
}

// normalizeAll converts a batch of payloads, dropping and counting the
// ones that fail (missing title).
func normalizeAll[P rawPayload](items []P, src models.SourceConfig, now time.Time, log logger.Logger) []models.RawResult {
	out := make([]models.RawResult, 0, len(items))
	skipped := 0
	for _, it := range items {
		res, err := it.normalize(src, now)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, res)
	}
	if skipped > 0 && log != nil {
		log.Warn("skipped unnormalizable results", map[string]interface{}{
			"source":  src.Name,
			"skipped": skipped,
		})
	}
	return out
}

// webSearchItem is the Google-custom-search-shaped hit.
type webSearchItem struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
	Mime    string `json:"mime,omitempty"`
}

func (it webSearchItem) normalize(src models.SourceConfig, now time.Time) (models.RawResult, error) {
	// Web search gives no publication date; zero sorts last.
	return newRawResult(it.Title, it.Snippet, it.Link, time.Time{}, src, now)
}

// newsArticle is the news-API-shaped hit.
type newsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

func (a newsArticle) normalize(src models.SourceConfig, now time.Time) (models.RawResult, error) {
	published := time.Time{}
	if a.PublishedAt != "" {
		if ts, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			published = ts.UTC()
		}
	}
	return newRawResult(a.Title, a.Description, a.URL, published, src, now)
}
