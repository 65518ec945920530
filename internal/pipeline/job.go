// Package pipeline drives one refresh end to end: crawl the sources, score
// every candidate, fold the results into duplicate clusters together with
// recently stored stories, and persist the outcome.
package pipeline

import (
	"sync"
	"time"
)

// State is the lifecycle of the refresh job.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Stage is the progress marker within a running job.
type Stage string

const (
	StageStart           Stage = "start"
	StageCrawled         Stage = "crawled"
	StageScoring         Stage = "scoring"
	StageScoringComplete Stage = "scoring_complete"
	StageDeduplicating   Stage = "deduplicating"
	StageSaving          Stage = "saving"
)

// StageMeta carries the counters relevant to the current stage: the crawl
// batch size, the scoring position within it, or the records written.
type StageMeta map[string]int

func (m StageMeta) clone() StageMeta {
	if m == nil {
		return nil
	}
	out := make(StageMeta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Result is the final report of one refresh run.
type Result struct {
	Success         bool      `json:"success"`
	StoriesCrawled  int       `json:"stories_crawled"`
	StoriesScored   int       `json:"stories_scored"`
	StoriesDropped  int       `json:"stories_dropped"`
	StoriesSaved    int       `json:"stories_saved"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           string    `json:"error,omitempty"`
	CompletedAt     time.Time `json:"timestamp"`
}

// Status is a point-in-time snapshot of the job, safe to hand out while the
// job keeps running.
type Status struct {
	State      State      `json:"state"`
	Stage      Stage      `json:"stage,omitempty"`
	StageMeta  StageMeta  `json:"stage_meta,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	LastResult *Result    `json:"last_result,omitempty"`
}

// Job tracks refresh state process-wide. Exactly one run may be active at a
// time; readers never block on the run itself.
type Job struct {
	mu         sync.Mutex
	state      State
	stage      Stage
	meta       StageMeta
	startedAt  time.Time
	lastResult *Result
}

func NewJob() *Job {
	return &Job{state: StateIdle}
}

// TryStart claims the job for a new run. It returns false while another run
// is in flight.
func (j *Job) TryStart(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == StateRunning {
		return false
	}

	j.state = StateRunning
	j.stage = StageStart
	j.meta = nil
	j.startedAt = now
	return true
}

// SetStage advances the stage and replaces its counters; pass nil for stages
// that carry none.
func (j *Job) SetStage(stage Stage, meta StageMeta) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stage = stage
	j.meta = meta.clone()
}

// SetProgress updates the scoring position without touching the stage.
func (j *Job) SetProgress(current, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.meta = StageMeta{"current": current, "total": total}
}

// Finish records the run outcome and moves the job to a terminal state, from
// which the next TryStart succeeds.
func (j *Job) Finish(result Result) {
	j.mu.Lock()
	defer j.mu.Unlock()

	resultCopy := result
	j.lastResult = &resultCopy
	j.stage = ""
	j.meta = nil
	if result.Success {
		j.state = StateSucceeded
	} else {
		j.state = StateFailed
	}
}

func (j *Job) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state == StateRunning
}

// Status returns a deep copy of the current snapshot.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	status := Status{State: j.state, Stage: j.stage}
	if j.state == StateRunning {
		status.StageMeta = j.meta.clone()
		started := j.startedAt
		status.StartedAt = &started
	}
	if j.lastResult != nil {
		result := *j.lastResult
		status.LastResult = &result
	}
	return status
}
