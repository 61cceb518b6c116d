package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/The-Promised-Neverland/relay/internal/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "❌ "+err.Error())
		os.Exit(1)
	}
}
