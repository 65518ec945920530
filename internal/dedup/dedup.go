// Package dedup groups stories covering the same event into clusters and
// selects one canonical member per cluster.
package dedup

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/HarrisAD/ai-marketing-news/internal/model"
	"github.com/HarrisAD/ai-marketing-news/internal/simhash"
)

const (
	DefaultMaxDistance = 3
	DefaultDateWindow  = 72 * time.Hour
)

// Options bound the candidate-pair graph. Two stories are linked when their
// fingerprints are within MaxDistance bits and their publish dates fall
// within DateWindow of each other. MaxDistance 0 links exact fingerprint
// matches only; a negative value selects the default.
type Options struct {
	MaxDistance int
	DateWindow  time.Duration
}

func (o Options) normalized() Options {
	if o.MaxDistance < 0 {
		o.MaxDistance = DefaultMaxDistance
	}
	if o.DateWindow <= 0 {
		o.DateWindow = DefaultDateWindow
	}
	return o
}

// Cluster partitions the input into duplicate clusters and rewrites
// is_canonical / similar_stories on every member. The input is the union of
// freshly scored stories and previously stored records; linkage on older
// records is recomputed, so callers must persist the full returned set.
//
// Linking is transitive: if A~B and B~C the three form one cluster even when
// A and C alone exceed the distance threshold.
func Cluster(stories []model.Story, opts Options, logger zerolog.Logger) []model.Story {
	opts = opts.normalized()
	if len(stories) <= 1 {
		out := make([]model.Story, len(stories))
		copy(out, stories)
		for i := range out {
			out[i].IsCanonical = true
			out[i].SimilarStories = []string{}
		}
		return out
	}

	fingerprints := make([]uint64, len(stories))
	for i := range stories {
		fingerprints[i] = simhash.Fingerprint(stories[i].Title + " " + stories[i].Description)
	}

	uf := newUnionFind(len(stories))
	for i := 0; i < len(stories); i++ {
		for j := i + 1; j < len(stories); j++ {
			if fingerprints[i] == 0 || fingerprints[j] == 0 {
				continue
			}
			if simhash.Distance(fingerprints[i], fingerprints[j]) > opts.MaxDistance {
				continue
			}
			if !withinWindow(stories[i].PublishedDate, stories[j].PublishedDate, opts.DateWindow) {
				continue
			}
			uf.union(i, j)
		}
	}

	clusters := make(map[int][]int)
	for i := range stories {
		root := uf.find(i)
		clusters[root] = append(clusters[root], i)
	}

	out := make([]model.Story, len(stories))
	copy(out, stories)

	clusterCount := 0
	for _, members := range clusters {
		applyLinkage(out, members)
		if len(members) > 1 {
			clusterCount++
		}
	}
	if clusterCount > 0 {
		logger.Info().
			Int("stories", len(stories)).
			Int("duplicate_clusters", clusterCount).
			Msg("duplicate clustering complete")
	}
	return out
}

// applyLinkage picks the canonical member and rewrites linkage on the whole
// cluster. Preference order: scored beats unscored, then highest composite
// score, then earliest publish date, then smallest id.
func applyLinkage(stories []model.Story, members []int) {
	if len(members) == 1 {
		idx := members[0]
		stories[idx].IsCanonical = true
		stories[idx].SimilarStories = []string{}
		return
	}

	ordered := make([]int, len(members))
	copy(ordered, members)
	sort.Slice(ordered, func(a, b int) bool {
		left, right := &stories[ordered[a]], &stories[ordered[b]]
		if left.Scored() != right.Scored() {
			return left.Scored()
		}
		if left.CompositeScore() != right.CompositeScore() {
			return left.CompositeScore() > right.CompositeScore()
		}
		if !left.PublishedDate.Equal(right.PublishedDate) {
			return left.PublishedDate.Before(right.PublishedDate)
		}
		return left.ID < right.ID
	})

	canonical := ordered[0]
	rest := make([]string, 0, len(ordered)-1)
	for _, idx := range ordered[1:] {
		rest = append(rest, stories[idx].ID)
	}
	sort.Strings(rest)

	stories[canonical].IsCanonical = true
	stories[canonical].SimilarStories = rest

	for _, idx := range ordered[1:] {
		siblings := make([]string, 0, len(ordered)-1)
		siblings = append(siblings, stories[canonical].ID)
		for _, other := range ordered[1:] {
			if other == idx {
				continue
			}
			siblings = append(siblings, stories[other].ID)
		}
		sort.Strings(siblings)
		stories[idx].IsCanonical = false
		stories[idx].SimilarStories = siblings
	}
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: make([]int, n)}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
