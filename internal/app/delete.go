package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/HarrisAD/ai-marketing-news/internal/cli"
)

func runDelete(args []string) int {
	if len(args) == 0 {
		printDeleteUsage()
		return 2
	}

	target := strings.ToLower(strings.TrimSpace(args[0]))
	switch target {
	case "story", "all":
	default:
		fmt.Fprintf(os.Stderr, "Unknown delete target: %s\n\n", args[0])
		printDeleteUsage()
		return 2
	}

	fs := flag.NewFlagSet("delete "+target, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	force := fs.Bool("force", false, "Skip confirmation prompt")

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	var storyID string
	switch target {
	case "story":
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "delete story requires exactly one story id")
			printDeleteUsage()
			return 2
		}
		storyID = strings.TrimSpace(fs.Arg(0))
		if storyID == "" {
			fmt.Fprintln(os.Stderr, "story id must not be empty")
			return 2
		}
	case "all":
		if fs.NArg() != 0 {
			fmt.Fprintln(os.Stderr, "delete all does not accept positional arguments")
			return 2
		}
	}

	if !*force {
		prompt := "Proceed with deleting every stored story?"
		if target == "story" {
			prompt = fmt.Sprintf("Proceed with delete story %q?", storyID)
		}
		ok, err := confirmDangerousAction(prompt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read confirmation: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "Cancelled")
			return 1
		}
	}

	rt, err := initRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var removed int
	if target == "story" {
		removed, err = rt.store.Delete([]string{storyID})
	} else {
		removed, err = rt.store.DeleteAll()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		return 1
	}
	if target == "story" && removed == 0 {
		fmt.Fprintf(os.Stderr, "No story found with id %q\n", storyID)
		return 1
	}

	fmt.Printf("stories_removed=%d\n", removed)
	return 0
}

func printDeleteUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  newsd delete story <story_id> [--force] [--env .env]")
	fmt.Fprintln(os.Stderr, "  newsd delete all [--force] [--env .env]")
}
