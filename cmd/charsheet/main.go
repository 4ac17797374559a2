// Package main provides the charsheet CLI: authoring checks for ruleset
// schemas, sheet resolution, and a SQLite-backed store for published
// rulesets, characters and their XP ledgers.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
