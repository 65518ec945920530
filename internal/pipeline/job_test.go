package pipeline

import (
	"testing"
	"time"
)

func TestJobSingleFlight(t *testing.T) {
	t.Parallel()

	job := NewJob()
	now := time.Now()

	if !job.TryStart(now) {
		t.Fatal("idle job should accept a start")
	}
	if job.TryStart(now) {
		t.Fatal("running job must reject a second start")
	}

	job.Finish(Result{Success: true})
	if !job.TryStart(now) {
		t.Fatal("terminal job should accept a new start")
	}
}

func TestJobFinishStates(t *testing.T) {
	t.Parallel()

	job := NewJob()
	job.TryStart(time.Now())
	job.Finish(Result{Success: true})
	if got := job.Status().State; got != StateSucceeded {
		t.Fatalf("state = %q, want %q", got, StateSucceeded)
	}

	job.TryStart(time.Now())
	job.Finish(Result{Success: false, Error: "crawl exploded"})
	status := job.Status()
	if status.State != StateFailed {
		t.Fatalf("state = %q, want %q", status.State, StateFailed)
	}
	if status.LastResult == nil || status.LastResult.Error != "crawl exploded" {
		t.Fatalf("last result = %+v", status.LastResult)
	}
}

func TestJobStatusIsACopy(t *testing.T) {
	t.Parallel()

	job := NewJob()
	job.TryStart(time.Now())
	job.Finish(Result{Success: true, StoriesSaved: 4})

	status := job.Status()
	status.LastResult.StoriesSaved = 99

	if job.Status().LastResult.StoriesSaved != 4 {
		t.Fatal("mutating a snapshot must not reach the job")
	}
}

func TestJobStageAndProgress(t *testing.T) {
	t.Parallel()

	job := NewJob()
	job.TryStart(time.Now())
	job.SetStage(StageCrawled, StageMeta{"items_crawled": 7})

	status := job.Status()
	if status.Stage != StageCrawled {
		t.Fatalf("stage = %q", status.Stage)
	}
	if status.StageMeta["items_crawled"] != 7 {
		t.Fatalf("stage meta = %+v", status.StageMeta)
	}

	job.SetStage(StageScoring, StageMeta{"current": 0, "total": 10})
	job.SetProgress(3, 10)

	status = job.Status()
	if status.StageMeta["current"] != 3 || status.StageMeta["total"] != 10 {
		t.Fatalf("stage meta = %+v", status.StageMeta)
	}

	job.SetStage(StageDeduplicating, nil)
	if meta := job.Status().StageMeta; len(meta) != 0 {
		t.Fatalf("leaving the scoring stage should reset counters, got %+v", meta)
	}
}

func TestJobStageMetaIsACopy(t *testing.T) {
	t.Parallel()

	job := NewJob()
	job.TryStart(time.Now())
	job.SetStage(StageCrawled, StageMeta{"items_crawled": 5})

	status := job.Status()
	status.StageMeta["items_crawled"] = 99

	if job.Status().StageMeta["items_crawled"] != 5 {
		t.Fatal("mutating a snapshot must not reach the job")
	}
}
