package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/HarrisAD/ai-marketing-news/internal/cli"
	"github.com/HarrisAD/ai-marketing-news/internal/crawler"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "health does not accept positional arguments")
		return 2
	}

	rt, err := initRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	stories, err := rt.store.LoadAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Story store unreadable: %v\n", err)
		return 1
	}

	registry, err := crawler.LoadRegistry(rt.cfg.SourcesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Source registry unreadable: %v\n", err)
		return 1
	}

	scoringReady := rt.cfg.OpenAIAPIKey != ""
	fmt.Printf("ok stories=%d sources=%d scoring_configured=%t\n",
		len(stories), len(registry.Domains()), scoringReady)
	if !scoringReady {
		fmt.Fprintln(os.Stderr, "Warning: OPENAI_API_KEY is not set, refresh runs will drop every candidate")
	}
	return 0
}
