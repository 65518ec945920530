package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "refresh", "run-once":
		return runRefresh(args[1:])
	case "stories":
		return runStories(args[1:])
	case "stats":
		return runStats(args[1:])
	case "delete":
		return runDelete(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "newsd CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  newsd <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify the story store and source registry are usable")
	fmt.Fprintln(os.Stderr, "  refresh   Run the crawl + score + dedup pipeline once and report the result")
	fmt.Fprintln(os.Stderr, "  run-once  Alias for refresh")
	fmt.Fprintln(os.Stderr, "  stories   List stored stories with optional filters")
	fmt.Fprintln(os.Stderr, "  stats     Print aggregate statistics for the story store")
	fmt.Fprintln(os.Stderr, "  delete    Delete one story by id, or the whole store")
	fmt.Fprintln(os.Stderr, "  serve     Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"newsd <command> -h\" for command-specific flags.")
}
