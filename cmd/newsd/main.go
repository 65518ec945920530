package main

import (
	"os"

	"github.com/HarrisAD/ai-marketing-news/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
