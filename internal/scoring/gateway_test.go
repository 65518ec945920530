package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/HarrisAD/ai-marketing-news/internal/model"
)

func testCandidate() model.Candidate {
	return model.Candidate{
		CanonicalURL:  "https://example.com/news/gpt-launch",
		Title:         "Example Labs ships a new flagship model",
		Description:   "The release focuses on ad copy generation.",
		Content:       "Longer article body goes here.",
		PublishedDate: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		SourceDomain:  "example.com",
		SourceName:    "Example News",
	}
}

func verdictBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(body)
}

const goodVerdict = `{
	"relevance_score": 90,
	"impact_score": 80,
	"adoption_score": 60,
	"urgency_score": 70,
	"credibility_score": 85,
	"tags": ["llm", "launch"],
	"action_hint": "Test the model on existing ad copy templates."
}`

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gateway := New(Config{
		Endpoint:    server.URL,
		Model:       "test-model",
		APIKey:      "test-key",
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}, zerolog.Nop())
	return gateway, server
}

func TestScoreComputesCompositeLocally(t *testing.T) {
	t.Parallel()

	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(verdictBody(goodVerdict)))
	})

	result, err := gateway.Score(context.Background(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// .35*90 + .25*80 + .15*60 + .15*70 + .10*85 = 79.5 -> 80
	if result.Composite != 80 {
		t.Fatalf("composite = %d, want 80", result.Composite)
	}
	if result.Relevance != 90 || result.Credibility != 85 {
		t.Fatalf("sub-scores not carried through: %+v", result)
	}
	if result.ActionHint == "" {
		t.Fatal("action hint missing")
	}
}

func TestScoreStripsMarkdownFences(t *testing.T) {
	t.Parallel()

	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(verdictBody("```json\n" + goodVerdict + "\n```")))
	})

	result, err := gateway.Score(context.Background(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Composite != 80 {
		t.Fatalf("composite = %d, want 80", result.Composite)
	}
}

func TestScoreRetriesRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(verdictBody(goodVerdict)))
	})

	result, err := gateway.Score(context.Background(), testCandidate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Composite != 80 {
		t.Fatalf("composite = %d, want 80", result.Composite)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestScoreExhaustedRetriesReturnsScoreError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	candidate := testCandidate()
	_, err := gateway.Score(context.Background(), candidate)

	var scoreErr *ScoreError
	if !errors.As(err, &scoreErr) {
		t.Fatalf("error = %v, want *ScoreError", err)
	}
	if scoreErr.Candidate.CanonicalURL != candidate.CanonicalURL {
		t.Fatalf("candidate not carried on error: %+v", scoreErr.Candidate)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestScoreDoesNotRetryClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := gateway.Score(context.Background(), testCandidate()); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestScoreRejectsInvalidVerdict(t *testing.T) {
	t.Parallel()

	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(verdictBody(`{"relevance_score": "very high"}`)))
	})

	if _, err := gateway.Score(context.Background(), testCandidate()); err == nil {
		t.Fatal("expected error for malformed verdict")
	}
}

func TestScoreMisconfigured(t *testing.T) {
	t.Parallel()

	gateway := New(Config{}, zerolog.Nop())
	_, err := gateway.Score(context.Background(), testCandidate())

	var scoreErr *ScoreError
	if !errors.As(err, &scoreErr) {
		t.Fatalf("error = %v, want *ScoreError", err)
	}
}

func TestExtractJSONObjectFromProse(t *testing.T) {
	t.Parallel()

	raw, err := extractJSONObject("Here is the verdict: {\"relevance_score\": 1} hope it helps")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != `{"relevance_score": 1}` {
		t.Fatalf("raw = %q", raw)
	}

	if _, err := extractJSONObject("no json here"); err == nil {
		t.Fatal("expected error for missing object")
	}
}
