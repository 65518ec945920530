// Package store owns the durable story collection: one newline-delimited
// JSON file per collection, replaced wholesale on every mutation so that
// duplicate-cluster linkage on older records can be rewritten and a crashed
// write never corrupts the previous snapshot.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/HarrisAD/ai-marketing-news/internal/globaltime"
	"github.com/HarrisAD/ai-marketing-news/internal/model"
)

const storiesFileName = "stories.jsonl"

// ErrNotFound is returned when a story id is absent from the collection.
var ErrNotFound = errors.New("story not found")

// Store is the single-writer record store. All mutating operations hold an
// exclusive lock for their full read-modify-rewrite cycle; readers parse the
// last fully-renamed snapshot and never observe a partial file.
type Store struct {
	mu     sync.Mutex
	path   string
	logger zerolog.Logger
}

// Stats summarizes the collection for reporting endpoints.
type Stats struct {
	TotalStories      int            `json:"total_stories"`
	CanonicalStories  int            `json:"canonical_stories"`
	AverageScore      float64        `json:"average_score"`
	ScoreDistribution map[string]int `json:"score_distribution"`
	SourceCounts      map[string]int `json:"source_distribution"`
	FileSizeBytes     int64          `json:"stories_file_size"`
}

func New(dataDir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", dataDir, err)
	}
	return &Store{
		path:   filepath.Join(dataDir, storiesFileName),
		logger: logger,
	}, nil
}

// Upsert inserts or replaces records by id and rewrites the collection
// atomically. Existing records not mentioned are preserved unchanged.
func (s *Store) Upsert(records []model.Story) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readAll()
	if err != nil {
		return 0, err
	}

	index := make(map[string]int, len(existing))
	for i, story := range existing {
		index[story.ID] = i
	}

	inserted := 0
	for _, record := range records {
		if record.ID == "" {
			return 0, fmt.Errorf("refusing to store record with empty id (url=%s)", record.CanonicalURL)
		}
		if i, ok := index[record.ID]; ok {
			existing[i] = record
			continue
		}
		index[record.ID] = len(existing)
		existing = append(existing, record)
		inserted++
	}

	if err := s.rewrite(existing); err != nil {
		return 0, err
	}
	s.logger.Info().
		Int("upserted", len(records)).
		Int("inserted", inserted).
		Int("total", len(existing)).
		Msg("story collection rewritten")
	return inserted, nil
}

// LoadAll returns the full snapshot sorted by score descending then publish
// date descending.
func (s *Store) LoadAll() ([]model.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stories, err := s.readAll()
	if err != nil {
		return nil, err
	}
	sortStories(stories)
	return stories, nil
}

// LoadRecent returns records whose publish date (falling back to fetch date
// when the publish date is missing) is within the window.
func (s *Store) LoadRecent(window time.Duration) ([]model.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stories, err := s.readAll()
	if err != nil {
		return nil, err
	}

	cutoff := globaltime.UTC().Add(-window)
	recent := make([]model.Story, 0, len(stories))
	for _, story := range stories {
		ts := story.PublishedDate
		if ts.IsZero() {
			ts = story.FetchedDate
		}
		if ts.After(cutoff) {
			recent = append(recent, story)
		}
	}
	sortStories(recent)
	return recent, nil
}

// Get returns the record with the given id or ErrNotFound.
func (s *Store) Get(id string) (model.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stories, err := s.readAll()
	if err != nil {
		return model.Story{}, err
	}
	for _, story := range stories {
		if story.ID == id {
			return story, nil
		}
	}
	return model.Story{}, ErrNotFound
}

// Delete removes the given ids through the same atomic rewrite path and
// returns how many records were removed.
func (s *Store) Delete(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stories, err := s.readAll()
	if err != nil {
		return 0, err
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := stories[:0]
	removed := 0
	for _, story := range stories {
		if _, gone := drop[story.ID]; gone {
			removed++
			continue
		}
		kept = append(kept, story)
	}
	if removed == 0 {
		return 0, nil
	}

	if err := s.rewrite(kept); err != nil {
		return 0, err
	}
	s.logger.Info().Int("removed", removed).Int("remaining", len(kept)).Msg("stories deleted")
	return removed, nil
}

// DeleteAll truncates the collection to an empty snapshot.
func (s *Store) DeleteAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stories, err := s.readAll()
	if err != nil {
		return 0, err
	}
	if err := s.rewrite(nil); err != nil {
		return 0, err
	}
	s.logger.Info().Int("removed", len(stories)).Msg("story collection cleared")
	return len(stories), nil
}

// Stats computes collection statistics under the lock.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stories, err := s.readAll()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalStories:      len(stories),
		ScoreDistribution: map[string]int{"90-100": 0, "80-89": 0, "70-79": 0, "60-69": 0, "0-59": 0},
		SourceCounts:      map[string]int{},
	}

	scoreSum := 0
	scoredCount := 0
	for _, story := range stories {
		if story.IsCanonical {
			stats.CanonicalStories++
		}
		stats.SourceCounts[story.SourceDomain]++
		if !story.Scored() {
			continue
		}
		score := story.CompositeScore()
		scoreSum += score
		scoredCount++
		switch {
		case score >= 90:
			stats.ScoreDistribution["90-100"]++
		case score >= 80:
			stats.ScoreDistribution["80-89"]++
		case score >= 70:
			stats.ScoreDistribution["70-79"]++
		case score >= 60:
			stats.ScoreDistribution["60-69"]++
		default:
			stats.ScoreDistribution["0-59"]++
		}
	}
	if scoredCount > 0 {
		stats.AverageScore = float64(scoreSum) / float64(scoredCount)
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.FileSizeBytes = info.Size()
	}
	return stats, nil
}

func (s *Store) readAll() ([]model.Story, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open story collection: %w", err)
	}
	defer f.Close()

	var stories []model.Story
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var story model.Story
		if err := json.Unmarshal(raw, &story); err != nil {
			s.logger.Warn().Err(err).Int("line", line).Msg("skipping unparseable story record")
			continue
		}
		stories = append(stories, story)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan story collection: %w", err)
	}
	return stories, nil
}

// rewrite writes the full record set to a temporary file in the collection's
// directory and renames it over the previous snapshot. Any failure removes
// the temporary file and leaves the original untouched.
func (s *Store) rewrite(stories []model.Story) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, storiesFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp collection file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		_ = os.Remove(tmpPath)
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for i := range stories {
		if err := enc.Encode(&stories[i]); err != nil {
			cleanup()
			return fmt.Errorf("encode story %s: %w", stories[i].ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flush collection file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync collection file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close collection file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace collection file: %w", err)
	}
	return nil
}

func sortStories(stories []model.Story) {
	sort.SliceStable(stories, func(i, j int) bool {
		if stories[i].CompositeScore() != stories[j].CompositeScore() {
			return stories[i].CompositeScore() > stories[j].CompositeScore()
		}
		return stories[i].PublishedDate.After(stories[j].PublishedDate)
	})
}
