package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/HarrisAD/ai-marketing-news/internal/cli"
	"github.com/HarrisAD/ai-marketing-news/internal/globaltime"
	"github.com/HarrisAD/ai-marketing-news/internal/model"
)

func runStories(args []string) int {
	fs := flag.NewFlagSet("stories", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	minScore := fs.Int("min-score", 0, "Only stories scoring at or above this value")
	source := fs.String("source", "", "Only stories from this source domain")
	tag := fs.String("tag", "", "Only stories carrying this tag")
	daysBack := fs.Int("days-back", 0, "Only stories published within the last N days; 0 disables")
	limit := fs.Int("limit", 50, "Maximum number of stories to print")
	all := fs.Bool("all", false, "Include non-canonical cluster members")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stories does not accept positional arguments")
		return 2
	}
	if *minScore < 0 || *minScore > 100 {
		fmt.Fprintln(os.Stderr, "--min-score must be between 0 and 100")
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be positive")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	rt, err := initRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	stories, err := rt.store.LoadAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load stories: %v\n", err)
		return 1
	}

	var cutoff time.Time
	if *daysBack > 0 {
		cutoff = globaltime.UTC().AddDate(0, 0, -*daysBack)
	}

	filtered := make([]model.Story, 0, len(stories))
	for _, story := range stories {
		if !*all && !story.IsCanonical {
			continue
		}
		if *minScore > 0 && (story.Score == nil || *story.Score < *minScore) {
			continue
		}
		if *source != "" && !strings.EqualFold(story.SourceDomain, *source) {
			continue
		}
		if *tag != "" && !hasTag(story.Tags, *tag) {
			continue
		}
		if !cutoff.IsZero() {
			published := story.PublishedDate
			if published.IsZero() {
				published = story.FetchedDate
			}
			if published.Before(cutoff) {
				continue
			}
		}
		filtered = append(filtered, story)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].PublishedDate.After(filtered[j].PublishedDate)
	})
	if len(filtered) > *limit {
		filtered = filtered[:*limit]
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(filtered); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(filtered))
	for _, story := range filtered {
		rows = append(rows, []string{
			story.ID,
			intOrDash(story.Score),
			formatUTCDate(story.PublishedDate),
			story.SourceDomain,
			truncateForTable(story.Title, 70),
		})
	}
	if err := writeTable([]string{"id", "score", "published", "source", "title"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}
