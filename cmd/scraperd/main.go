package main

import (
	"os"

	"github.com/psantana5/scraperd/cmd/scraperd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
