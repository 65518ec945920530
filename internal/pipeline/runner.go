package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/HarrisAD/ai-marketing-news/internal/dedup"
	"github.com/HarrisAD/ai-marketing-news/internal/globaltime"
	"github.com/HarrisAD/ai-marketing-news/internal/model"
	"github.com/HarrisAD/ai-marketing-news/internal/scoring"
)

// ErrAlreadyRunning is returned when a refresh is requested while another run
// is in flight.
var ErrAlreadyRunning = errors.New("a refresh is already running")

// Crawler supplies raw candidates for a run.
type Crawler interface {
	Crawl(ctx context.Context, domains []string) ([]model.Candidate, error)
}

// Scorer grades one candidate, retrying internally; the runner only sees
// success or final failure per item.
type Scorer interface {
	Score(ctx context.Context, candidate model.Candidate) (*scoring.Result, error)
}

// Storage is the slice of the record store the runner needs.
type Storage interface {
	Upsert(records []model.Story) (int, error)
	LoadRecent(window time.Duration) ([]model.Story, error)
}

// Options configure a runner.
type Options struct {
	// Lookback bounds how far back stored stories are pulled into duplicate
	// clustering, enabling cross-run linking.
	Lookback time.Duration
	Dedup    dedup.Options
}

// Runner executes refresh jobs. All methods are safe for concurrent use; the
// job itself is single-flight.
type Runner struct {
	crawler Crawler
	scorer  Scorer
	storage Storage
	job     *Job
	opts    Options
	logger  zerolog.Logger
}

func NewRunner(crawler Crawler, scorer Scorer, storage Storage, opts Options, logger zerolog.Logger) *Runner {
	if opts.Lookback <= 0 {
		opts.Lookback = 14 * 24 * time.Hour
	}
	return &Runner{
		crawler: crawler,
		scorer:  scorer,
		storage: storage,
		job:     NewJob(),
		opts:    opts,
		logger:  logger.With().Str("component", "pipeline").Logger(),
	}
}

// Status reports the current job snapshot. Never blocks on a running job.
func (r *Runner) Status() Status {
	return r.job.Status()
}

// Start claims the job and runs the refresh in the background. It returns
// ErrAlreadyRunning if a run is in flight.
func (r *Runner) Start(ctx context.Context, domains []string) error {
	if !r.job.TryStart(globaltime.Now()) {
		return ErrAlreadyRunning
	}
	go func() {
		r.job.Finish(r.execute(ctx, domains))
	}()
	return nil
}

// RunOnce claims the job and runs the refresh synchronously, returning the
// final report.
func (r *Runner) RunOnce(ctx context.Context, domains []string) (Result, error) {
	if !r.job.TryStart(globaltime.Now()) {
		return Result{}, ErrAlreadyRunning
	}
	result := r.execute(ctx, domains)
	r.job.Finish(result)
	return result, nil
}

func (r *Runner) execute(ctx context.Context, domains []string) Result {
	started := globaltime.Now()
	fail := func(err error) Result {
		completed := globaltime.Now()
		r.logger.Error().Err(err).Msg("refresh failed")
		return Result{
			Success:         false,
			Error:           err.Error(),
			DurationSeconds: completed.Sub(started).Seconds(),
			CompletedAt:     completed,
		}
	}

	r.logger.Info().Strs("domains", domains).Msg("refresh started")

	candidates, err := r.crawler.Crawl(ctx, domains)
	if err != nil {
		return fail(err)
	}
	r.job.SetStage(StageCrawled, StageMeta{"items_crawled": len(candidates)})
	r.logger.Info().Int("candidates", len(candidates)).Msg("crawl complete")

	r.job.SetStage(StageScoring, StageMeta{"current": 0, "total": len(candidates)})
	scored, dropped := r.scoreAll(ctx, candidates)
	r.job.SetStage(StageScoringComplete, StageMeta{"scored": len(scored), "dropped": len(dropped)})

	r.job.SetStage(StageDeduplicating, nil)
	recent, err := r.storage.LoadRecent(r.opts.Lookback)
	if err != nil {
		return fail(err)
	}
	clustered := dedup.Cluster(mergeByID(scored, recent), r.opts.Dedup, r.logger)

	r.job.SetStage(StageSaving, StageMeta{"records": len(clustered)})
	saved, err := r.storage.Upsert(clustered)
	if err != nil {
		return fail(err)
	}
	r.job.SetStage(StageSaving, StageMeta{"records": len(clustered), "records_saved": saved})

	completed := globaltime.Now()
	result := Result{
		Success:         true,
		StoriesCrawled:  len(candidates),
		StoriesScored:   len(scored),
		StoriesDropped:  len(dropped),
		StoriesSaved:    saved,
		DurationSeconds: completed.Sub(started).Seconds(),
		CompletedAt:     completed,
	}
	r.logger.Info().
		Int("crawled", result.StoriesCrawled).
		Int("scored", result.StoriesScored).
		Int("dropped", result.StoriesDropped).
		Int("saved", result.StoriesSaved).
		Msg("refresh complete")
	return result
}

// scoreAll feeds every candidate through the scorer. Candidates whose scoring
// fails after retries are dropped from the run but reported.
func (r *Runner) scoreAll(ctx context.Context, candidates []model.Candidate) (scored []model.Story, dropped []model.Candidate) {
	total := len(candidates)
	for i, candidate := range candidates {
		verdict, err := r.scorer.Score(ctx, candidate)
		r.job.SetProgress(i+1, total)
		if err != nil {
			r.logger.Warn().Err(err).Str("url", candidate.CanonicalURL).Msg("dropping unscorable candidate")
			dropped = append(dropped, candidate)
			continue
		}

		story := storyFromCandidate(candidate)
		verdict.Apply(&story)
		scored = append(scored, story)
	}
	return scored, dropped
}

func storyFromCandidate(candidate model.Candidate) model.Story {
	return model.Story{
		ID:            model.StoryID(candidate.CanonicalURL, candidate.PublishedDate),
		CanonicalURL:  candidate.CanonicalURL,
		Title:         candidate.Title,
		Description:   candidate.Description,
		Content:       candidate.Content,
		PublishedDate: candidate.PublishedDate,
		FetchedDate:   globaltime.UTC(),
		SourceDomain:  candidate.SourceDomain,
		SourceName:    candidate.SourceName,
		Language:      candidate.Language,
	}
}

// mergeByID unions freshly scored stories with stored ones. A re-crawled
// story keeps its fresh version.
func mergeByID(fresh, stored []model.Story) []model.Story {
	seen := make(map[string]bool, len(fresh))
	merged := make([]model.Story, 0, len(fresh)+len(stored))
	for _, story := range fresh {
		seen[story.ID] = true
		merged = append(merged, story)
	}
	for _, story := range stored {
		if !seen[story.ID] {
			merged = append(merged, story)
		}
	}
	return merged
}
