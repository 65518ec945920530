// Package model holds the story record shared by the crawler, scoring,
// deduplication, and storage layers.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// Story is one piece of news as tracked by the system. The JSON field names
// match the on-disk collection format.
type Story struct {
	ID            string    `json:"id"`
	CanonicalURL  string    `json:"canonical_url"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Content       string    `json:"content"`
	PublishedDate time.Time `json:"published_date"`
	FetchedDate   time.Time `json:"fetched_date"`
	SourceDomain  string    `json:"source_domain"`
	SourceName    string    `json:"source_name"`
	Language      string    `json:"language,omitempty"`

	// Scoring fields, absent until the scoring oracle has answered.
	Score            *int     `json:"score,omitempty"`
	RelevanceScore   *int     `json:"relevance_score,omitempty"`
	ImpactScore      *int     `json:"impact_score,omitempty"`
	AdoptionScore    *int     `json:"adoption_score,omitempty"`
	UrgencyScore     *int     `json:"urgency_score,omitempty"`
	CredibilityScore *int     `json:"credibility_score,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	ActionHint       string   `json:"action_hint,omitempty"`

	// Duplicate-cluster linkage. Exactly one member of a cluster is
	// canonical; every other member lists the canonical id (and the rest of
	// the cluster) in SimilarStories.
	IsCanonical    bool     `json:"is_canonical"`
	SimilarStories []string `json:"similar_stories"`
}

// Scored reports whether the scoring oracle has produced a verdict for the
// story.
func (s *Story) Scored() bool {
	return s != nil && s.Score != nil
}

// CompositeScore returns the composite score or zero when unscored.
func (s *Story) CompositeScore() int {
	if s == nil || s.Score == nil {
		return 0
	}
	return *s.Score
}

// Candidate is a raw crawl result before scoring. It carries only what the
// crawl collaborator can extract from a feed or listing page.
type Candidate struct {
	CanonicalURL  string    `json:"canonical_url"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Content       string    `json:"content,omitempty"`
	PublishedDate time.Time `json:"published_date"`
	SourceDomain  string    `json:"source_domain"`
	SourceName    string    `json:"source_name"`
	Language      string    `json:"language,omitempty"`
}

// StoryID derives the stable record id from the canonical URL and publish
// date: YYYYMMDD_domain_hash12. Re-crawling the same article reconciles to
// the same id.
func StoryID(canonicalURL string, published time.Time) string {
	normalized := normalizeURLForID(canonicalURL)
	sum := sha256.Sum256([]byte(normalized))
	domain := domainOf(canonicalURL)
	if domain == "" {
		domain = "unknown"
	}
	return published.UTC().Format("20060102") + "_" + domain + "_" + hex.EncodeToString(sum[:])[:12]
}

func normalizeURLForID(raw string) string {
	trimmed := strings.TrimSpace(strings.ToLower(raw))
	trimmed = strings.TrimSuffix(trimmed, "/")
	if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
		parsed.Fragment = ""
		q := parsed.Query()
		for key := range q {
			if strings.HasPrefix(key, "utm_") {
				q.Del(key)
			}
		}
		parsed.RawQuery = q.Encode()
		return parsed.String()
	}
	return trimmed
}

func domainOf(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}
