package main

import (
	"os"

	"github.com/openmargin/margind/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
