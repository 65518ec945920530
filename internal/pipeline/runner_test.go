package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/HarrisAD/ai-marketing-news/internal/dedup"
	"github.com/HarrisAD/ai-marketing-news/internal/model"
	"github.com/HarrisAD/ai-marketing-news/internal/scoring"
)

type fakeCrawler struct {
	candidates []model.Candidate
	err        error
	block      chan struct{}
}

func (f *fakeCrawler) Crawl(ctx context.Context, domains []string) ([]model.Candidate, error) {
	if f.block != nil {
		<-f.block
	}
	return f.candidates, f.err
}

type fakeScorer struct {
	failURLs map[string]bool
}

func (f *fakeScorer) Score(ctx context.Context, candidate model.Candidate) (*scoring.Result, error) {
	if f.failURLs[candidate.CanonicalURL] {
		return nil, &scoring.ScoreError{Candidate: candidate, Err: errors.New("oracle unavailable")}
	}
	return &scoring.Result{
		Composite: 75, Relevance: 80, Impact: 70, Adoption: 70, Urgency: 70, Credibility: 80,
		Tags: []string{"llm"}, ActionHint: "Review the launch.",
	}, nil
}

type memoryStorage struct {
	mu      sync.Mutex
	stories map[string]model.Story
	loadErr error
	saveErr error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{stories: make(map[string]model.Story)}
}

func (m *memoryStorage) Upsert(records []model.Story) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	inserted := 0
	for _, record := range records {
		if _, ok := m.stories[record.ID]; !ok {
			inserted++
		}
		m.stories[record.ID] = record
	}
	return inserted, nil
}

func (m *memoryStorage) LoadRecent(window time.Duration) ([]model.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]model.Story, 0, len(m.stories))
	for _, story := range m.stories {
		out = append(out, story)
	}
	return out, nil
}

// Ten unrelated stories; their fingerprints sit far apart so none of them
// cluster under the default threshold.
var batchFixtures = [][2]string{
	{"Search giant rolls out conversational shopping results", "Retailers gain a new surface for product discovery inside chat answers."},
	{"Email platform adds generative subject line testing", "Marketers can trial machine written variants against historical engagement."},
	{"Video network opens automated dubbing to advertisers", "Brands can localize creative into nine languages without studio time."},
	{"Analytics vendor ships privacy safe attribution models", "Modeling fills measurement gaps left by cookie deprecation."},
	{"Social app pilots synthetic influencer disclosures", "New labels flag computer generated brand ambassadors to viewers."},
	{"CRM suite embeds autonomous outreach sequencing", "Sales teams delegate follow up cadence decisions to an agent."},
	{"Design tool introduces on brand image generation", "Teams lock palettes and typography while generating campaign assets."},
	{"Voice assistant partners with grocery delivery chains", "Shoppers reorder pantry staples through spoken prompts."},
	{"Ad exchange tests curiosity based bidding signals", "Attention metrics join price in real time auction decisions."},
	{"Publisher network licenses archives for model training", "Decades of trade coverage become fine tuning material."},
}

func candidateBatch(n int) []model.Candidate {
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	candidates := make([]model.Candidate, 0, n)
	for i := 0; i < n && i < len(batchFixtures); i++ {
		candidates = append(candidates, model.Candidate{
			CanonicalURL:  fmt.Sprintf("https://example.com/story-%d", i),
			Title:         batchFixtures[i][0],
			Description:   batchFixtures[i][1],
			PublishedDate: base.Add(time.Duration(i) * time.Hour),
			SourceDomain:  "example.com",
			SourceName:    "Example News",
		})
	}
	return candidates
}

func newTestRunner(crawler Crawler, scorer Scorer, storage Storage) *Runner {
	return NewRunner(crawler, scorer, storage, Options{}, zerolog.Nop())
}

func TestRunOnceHappyPath(t *testing.T) {
	t.Parallel()

	storage := newMemoryStorage()
	runner := newTestRunner(
		&fakeCrawler{candidates: candidateBatch(3)},
		&fakeScorer{},
		storage,
	)

	result, err := runner.RunOnce(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.StoriesCrawled != 3 || result.StoriesScored != 3 || result.StoriesDropped != 0 {
		t.Fatalf("counts = %+v", result)
	}
	if result.StoriesSaved != 3 {
		t.Fatalf("saved = %d, want 3", result.StoriesSaved)
	}

	for _, story := range storage.stories {
		if !story.Scored() {
			t.Fatalf("stored story missing score: %+v", story)
		}
		if !story.IsCanonical {
			t.Fatalf("distinct stories should all be canonical: %+v", story)
		}
	}

	if got := runner.Status().State; got != StateSucceeded {
		t.Fatalf("state = %q, want %q", got, StateSucceeded)
	}
}

func TestRunOnceDropsFailedCandidates(t *testing.T) {
	t.Parallel()

	candidates := candidateBatch(10)
	failURLs := map[string]bool{
		candidates[1].CanonicalURL: true,
		candidates[4].CanonicalURL: true,
		candidates[8].CanonicalURL: true,
	}

	storage := newMemoryStorage()
	runner := newTestRunner(
		&fakeCrawler{candidates: candidates},
		&fakeScorer{failURLs: failURLs},
		storage,
	)

	result, err := runner.RunOnce(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("partial scoring failure must not fail the run: %+v", result)
	}
	if result.StoriesScored != 7 || result.StoriesDropped != 3 {
		t.Fatalf("scored/dropped = %d/%d, want 7/3", result.StoriesScored, result.StoriesDropped)
	}

	for _, story := range storage.stories {
		if failURLs[story.CanonicalURL] {
			t.Fatalf("dropped candidate reached storage: %s", story.CanonicalURL)
		}
	}
}

func TestRunOnceCrawlFailureIsFatal(t *testing.T) {
	t.Parallel()

	runner := newTestRunner(
		&fakeCrawler{err: errors.New("source registry unreachable")},
		&fakeScorer{},
		newMemoryStorage(),
	)

	result, err := runner.RunOnce(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("crawl failure must fail the run")
	}
	if !strings.Contains(result.Error, "source registry unreachable") {
		t.Fatalf("error = %q, want the crawl error verbatim", result.Error)
	}
	if got := runner.Status().State; got != StateFailed {
		t.Fatalf("state = %q, want %q", got, StateFailed)
	}

	// A failed run leaves the job eligible for the next request.
	if _, err := runner.RunOnce(context.Background(), nil); err != nil {
		t.Fatalf("runner should accept a fresh run after failure: %v", err)
	}
}

func TestRunOnceSaveFailureIsFatal(t *testing.T) {
	t.Parallel()

	storage := newMemoryStorage()
	storage.saveErr = errors.New("disk full")

	runner := newTestRunner(&fakeCrawler{candidates: candidateBatch(2)}, &fakeScorer{}, storage)

	result, err := runner.RunOnce(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || !strings.Contains(result.Error, "disk full") {
		t.Fatalf("result = %+v", result)
	}
}

func TestStartIsSingleFlight(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	runner := newTestRunner(
		&fakeCrawler{candidates: candidateBatch(1), block: block},
		&fakeScorer{},
		newMemoryStorage(),
	)

	if err := runner.Start(context.Background(), nil); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := runner.Start(context.Background(), nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start err = %v, want ErrAlreadyRunning", err)
	}
	if got := runner.Status().State; got != StateRunning {
		t.Fatalf("state = %q, want %q", got, StateRunning)
	}

	close(block)
	deadline := time.After(5 * time.Second)
	for runner.Status().State == StateRunning {
		select {
		case <-deadline:
			t.Fatal("run never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := runner.Status().State; got != StateSucceeded {
		t.Fatalf("state = %q, want %q", got, StateSucceeded)
	}
}

type gatedScorer struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedScorer) Score(ctx context.Context, candidate model.Candidate) (*scoring.Result, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return &scoring.Result{Composite: 60}, nil
}

func TestStatusExposesStageCounters(t *testing.T) {
	t.Parallel()

	scorer := &gatedScorer{entered: make(chan struct{}), release: make(chan struct{})}
	runner := newTestRunner(&fakeCrawler{candidates: candidateBatch(5)}, scorer, newMemoryStorage())

	if err := runner.Start(context.Background(), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-scorer.entered

	status := runner.Status()
	if status.Stage != StageScoring {
		t.Fatalf("stage = %q, want %q", status.Stage, StageScoring)
	}
	if status.StageMeta["total"] != 5 {
		t.Fatalf("stage meta = %+v, want the crawl batch size under total", status.StageMeta)
	}

	close(scorer.release)
	deadline := time.After(5 * time.Second)
	for runner.Status().State == StateRunning {
		select {
		case <-deadline:
			t.Fatal("run never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}

	final := runner.Status()
	if final.LastResult == nil || final.LastResult.StoriesCrawled != 5 || final.LastResult.StoriesSaved != 5 {
		t.Fatalf("last result = %+v", final.LastResult)
	}
}

func TestRunOnceLinksAcrossRuns(t *testing.T) {
	t.Parallel()

	published := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	score := 85
	stored := model.Story{
		ID:            model.StoryID("https://other.example/launch-coverage", published),
		CanonicalURL:  "https://other.example/launch-coverage",
		Title:         "vendor announces flagship assistant for retail marketing teams",
		Description:   "the assistant automates briefing and campaign reporting for retail brands",
		PublishedDate: published,
		FetchedDate:   published,
		SourceDomain:  "other.example",
		SourceName:    "Other",
		Score:         &score,
		IsCanonical:   true,
	}
	storage := newMemoryStorage()
	storage.stories[stored.ID] = stored

	fresh := model.Candidate{
		CanonicalURL:  "https://example.com/launch-coverage",
		Title:         "vendor announces flagship assistant for retail marketing groups",
		Description:   "the assistant automates briefing and campaign reporting for retail brands",
		PublishedDate: published.Add(6 * time.Hour),
		SourceDomain:  "example.com",
		SourceName:    "Example News",
	}

	runner := NewRunner(
		&fakeCrawler{candidates: []model.Candidate{fresh}},
		&fakeScorer{},
		storage,
		Options{Dedup: dedupOptionsForTest()},
		zerolog.Nop(),
	)

	result, err := runner.RunOnce(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}

	canonicals := 0
	linked := 0
	for _, story := range storage.stories {
		if story.IsCanonical {
			canonicals++
		}
		if len(story.SimilarStories) > 0 {
			linked++
		}
	}
	if canonicals != 1 {
		t.Fatalf("canonicals = %d, want exactly one across runs", canonicals)
	}
	if linked != 2 {
		t.Fatalf("linked = %d, want both cluster members to reference each other", linked)
	}
}

func dedupOptionsForTest() dedup.Options {
	return dedup.Options{MaxDistance: 18, DateWindow: 24 * time.Hour}
}

func TestMergeByIDPrefersFresh(t *testing.T) {
	t.Parallel()

	fresh := []model.Story{{ID: "a", Title: "fresh"}}
	stored := []model.Story{{ID: "a", Title: "stale"}, {ID: "b", Title: "kept"}}

	merged := mergeByID(fresh, stored)
	if len(merged) != 2 {
		t.Fatalf("merged = %d, want 2", len(merged))
	}
	byID := map[string]string{}
	for _, story := range merged {
		byID[story.ID] = story.Title
	}
	if byID["a"] != "fresh" || byID["b"] != "kept" {
		t.Fatalf("merged = %v", byID)
	}
}
