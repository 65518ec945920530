// Package scoring adapts crawl candidates to the external scoring oracle, an
// OpenAI-compatible chat completions endpoint that grades each story against
// a fixed marketing rubric.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/HarrisAD/ai-marketing-news/internal/model"
	"github.com/HarrisAD/ai-marketing-news/internal/retry"
	verdictschema "github.com/HarrisAD/ai-marketing-news/schema"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
	requestTimeout     = 45 * time.Second
	maxContentChars    = 6000
	maxErrorBodyBytes  = 1024
)

const systemPrompt = `You are an analyst scoring AI industry news for marketing professionals.
Grade the story on five dimensions, each an integer from 0 to 100:
- relevance_score: how directly this matters to marketers (weight 0.35)
- impact_score: how much it changes marketing practice (weight 0.25)
- adoption_score: how widely usable it is today (weight 0.15)
- urgency_score: how time-sensitive acting on it is (weight 0.15)
- credibility_score: how trustworthy the source and claims are (weight 0.10)
Also return "tags" (3 to 6 short lowercase topics) and "action_hint" (one
sentence telling a marketer what to do with this news).
Respond with a single JSON object and nothing else.`

// Rubric weights applied to the five sub-scores when computing the composite.
const (
	weightRelevance   = 0.35
	weightImpact      = 0.25
	weightAdoption    = 0.15
	weightUrgency     = 0.15
	weightCredibility = 0.10
)

// Result is a successful verdict for one candidate. Composite is computed
// locally from the sub-scores, never taken from the oracle.
type Result struct {
	Composite   int
	Relevance   int
	Impact      int
	Adoption    int
	Urgency     int
	Credibility int
	Tags        []string
	ActionHint  string
}

// ScoreError is returned when a candidate could not be scored after all
// retries. It carries the candidate so the caller can account for the drop.
type ScoreError struct {
	Candidate model.Candidate
	Err       error
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("score %q: %v", e.Candidate.CanonicalURL, e.Err)
}

func (e *ScoreError) Unwrap() error {
	return e.Err
}

// Config holds the oracle connection settings.
type Config struct {
	Endpoint    string
	Model       string
	APIKey      string
	MaxAttempts int
	RetryDelay  time.Duration
}

// Gateway talks to the scoring oracle. Safe for concurrent use.
type Gateway struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Gateway {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Gateway{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger.With().Str("component", "scoring").Logger(),
	}
}

// Score sends one candidate to the oracle and returns its verdict. Transient
// failures (timeouts, rate limits, server errors) are retried with
// exponential backoff; on exhaustion the error is a *ScoreError.
func (g *Gateway) Score(ctx context.Context, candidate model.Candidate) (*Result, error) {
	if g.cfg.APIKey == "" || g.cfg.Endpoint == "" || g.cfg.Model == "" {
		return nil, &ScoreError{Candidate: candidate, Err: errors.New("scoring gateway misconfigured")}
	}

	var result *Result
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: g.cfg.MaxAttempts,
		Delay:       g.cfg.RetryDelay,
		Backoff:     true,
	}, isTransient, func() error {
		verdict, err := g.requestVerdict(ctx, candidate)
		if err != nil {
			g.logger.Warn().Err(err).Str("url", candidate.CanonicalURL).Msg("scoring attempt failed")
			return err
		}
		result = verdict
		return nil
	})
	if err != nil {
		return nil, &ScoreError{Candidate: candidate, Err: err}
	}

	return result, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *Gateway) requestVerdict(ctx context.Context, candidate model.Candidate) (*Result, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: candidatePrompt(candidate)},
		},
		Temperature:    0.2,
		ResponseFormat: &formatSpec{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &httpStatusError{
			status: resp.StatusCode,
			detail: strings.TrimSpace(string(detail)),
		}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("response has no choices")
	}

	raw, err := extractJSONObject(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	verdict, err := verdictschema.ValidateVerdictPayload(json.RawMessage(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid verdict: %w", err)
	}

	return fromVerdict(verdict), nil
}

func candidatePrompt(candidate model.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", candidate.Title)
	fmt.Fprintf(&b, "Source: %s (%s)\n", candidate.SourceName, candidate.SourceDomain)
	if !candidate.PublishedDate.IsZero() {
		fmt.Fprintf(&b, "Published: %s\n", candidate.PublishedDate.UTC().Format("2006-01-02"))
	}
	if candidate.Description != "" {
		fmt.Fprintf(&b, "Summary: %s\n", candidate.Description)
	}
	if candidate.Content != "" {
		fmt.Fprintf(&b, "Content: %s\n", truncate(candidate.Content, maxContentChars))
	}
	return b.String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// extractJSONObject tolerates models that wrap the verdict in markdown fences
// or prose. It returns the outermost brace-balanced object.
func extractJSONObject(content string) (string, error) {
	content = strings.TrimSpace(content)
	if fenced := strings.TrimPrefix(content, "```json"); fenced != content {
		content = strings.TrimSuffix(strings.TrimSpace(fenced), "```")
	} else if fenced := strings.TrimPrefix(content, "```"); fenced != content {
		content = strings.TrimSuffix(strings.TrimSpace(fenced), "```")
	}
	content = strings.TrimSpace(content)

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return "", errors.New("response contains no JSON object")
	}
	return content[start : end+1], nil
}

func fromVerdict(v *verdictschema.Verdict) *Result {
	composite := int(math.Round(
		weightRelevance*float64(v.RelevanceScore) +
			weightImpact*float64(v.ImpactScore) +
			weightAdoption*float64(v.AdoptionScore) +
			weightUrgency*float64(v.UrgencyScore) +
			weightCredibility*float64(v.CredibilityScore)))

	return &Result{
		Composite:   composite,
		Relevance:   v.RelevanceScore,
		Impact:      v.ImpactScore,
		Adoption:    v.AdoptionScore,
		Urgency:     v.UrgencyScore,
		Credibility: v.CredibilityScore,
		Tags:        v.Tags,
		ActionHint:  strings.TrimSpace(v.ActionHint),
	}
}

// Apply copies the verdict onto a story record.
func (r *Result) Apply(s *model.Story) {
	composite := r.Composite
	relevance := r.Relevance
	impact := r.Impact
	adoption := r.Adoption
	urgency := r.Urgency
	credibility := r.Credibility

	s.Score = &composite
	s.RelevanceScore = &relevance
	s.ImpactScore = &impact
	s.AdoptionScore = &adoption
	s.UrgencyScore = &urgency
	s.CredibilityScore = &credibility
	s.Tags = r.Tags
	s.ActionHint = r.ActionHint
}

type httpStatusError struct {
	status int
	detail string
}

func (e *httpStatusError) Error() string {
	if e.detail == "" {
		return fmt.Sprintf("oracle returned HTTP %d", e.status)
	}
	return fmt.Sprintf("oracle returned HTTP %d: %s", e.status, e.detail)
}

// isTransient reports whether an error is worth retrying: network timeouts,
// rate limiting, and server-side failures.
func isTransient(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
