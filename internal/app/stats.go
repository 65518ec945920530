package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/HarrisAD/ai-marketing-news/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
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

	stats, err := rt.store.Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to compute stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("total_stories=%d canonical_stories=%d average_score=%.1f file_size_bytes=%d\n",
		stats.TotalStories, stats.CanonicalStories, stats.AverageScore, stats.FileSizeBytes)

	sourceRows := make([][]string, 0, len(stats.SourceCounts))
	for domain, count := range stats.SourceCounts {
		sourceRows = append(sourceRows, []string{domain, fmt.Sprintf("%d", count)})
	}
	sort.Slice(sourceRows, func(i, j int) bool { return sourceRows[i][0] < sourceRows[j][0] })
	if err := writeTable([]string{"source", "stories"}, sourceRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render source table: %v\n", err)
		return 1
	}

	bucketRows := make([][]string, 0, len(stats.ScoreDistribution))
	for bucket, count := range stats.ScoreDistribution {
		bucketRows = append(bucketRows, []string{bucket, fmt.Sprintf("%d", count)})
	}
	sort.Slice(bucketRows, func(i, j int) bool { return bucketRows[i][0] < bucketRows[j][0] })
	if err := writeTable([]string{"score_bucket", "stories"}, bucketRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render score table: %v\n", err)
		return 1
	}
	return 0
}
