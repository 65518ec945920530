package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/HarrisAD/ai-marketing-news/internal/cli"
	"github.com/HarrisAD/ai-marketing-news/internal/config"
	"github.com/HarrisAD/ai-marketing-news/internal/crawler"
	"github.com/HarrisAD/ai-marketing-news/internal/dedup"
	"github.com/HarrisAD/ai-marketing-news/internal/logging"
	"github.com/HarrisAD/ai-marketing-news/internal/pipeline"
	"github.com/HarrisAD/ai-marketing-news/internal/scoring"
	"github.com/HarrisAD/ai-marketing-news/internal/store"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

// runtime bundles the shared wiring every command needs: config, logger,
// the story store, and the fully assembled pipeline runner.
type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
	store  *store.Store
	runner *pipeline.Runner
}

func initRuntime(envLoader *cli.EnvLoader) (*runtime, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	st, err := store.New(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open story store: %w", err)
	}

	registry, err := crawler.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load source registry: %w", err)
	}

	cr := crawler.New(registry, crawler.Options{
		DaysBack:     cfg.CrawlDaysBack,
		MaxPerSource: cfg.CrawlMaxPerSource,
	}, logger)

	gateway := scoring.New(scoring.Config{
		Endpoint:    cfg.OpenAIEndpoint,
		Model:       cfg.OpenAIModel,
		APIKey:      cfg.OpenAIAPIKey,
		MaxAttempts: cfg.ScoreMaxAttempt,
		RetryDelay:  time.Duration(cfg.ScoreRetryDelay) * time.Second,
	}, logger)

	runner := pipeline.NewRunner(cr, gateway, st, pipeline.Options{
		Lookback: time.Duration(cfg.DedupLookbackDays) * 24 * time.Hour,
		Dedup: dedup.Options{
			MaxDistance: cfg.DedupMaxDistance,
			DateWindow:  time.Duration(cfg.DedupDateWindowHrs) * time.Hour,
		},
	}, logger)

	return &runtime{cfg: cfg, logger: logger, store: st, runner: runner}, nil
}

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func truncateForTable(value string, maxLen int) string {
	trimmed := strings.TrimSpace(value)
	if maxLen <= 0 {
		return trimmed
	}
	if utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}

	runes := []rune(trimmed)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func formatUTCDate(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format("2006-01-02")
}

func intOrDash(value *int) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *value)
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return writer.Flush()
}

func confirmDangerousAction(prompt string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", strings.TrimSpace(prompt))
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
