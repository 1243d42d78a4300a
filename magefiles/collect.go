//go:build mage

package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

// planFile is the keyword plan Collect uses when it exists.
const planFile = "plan.yaml"

// collector runs the built binary with args.
func collector(args ...string) error {
	return run(filepath.Join(binDir, binName), args...)
}

// Collect builds the binary and runs one collection over the keyword plan.
func Collect() error {
	mg.Deps(Build)
	args := []string{"collect"}
	if _, err := os.Stat(planFile); err == nil {
		args = append(args, "--plan", planFile)
	}
	return collector(args...)
}

// Pending downloads the documents of stored papers that have none yet.
func Pending() error {
	mg.Deps(Build)
	return collector("download", "--pending")
}

// Summary prints the weekly collection summary.
func Summary() error {
	mg.Deps(Build)
	args := []string{"summary", "--days", "7"}
	if _, err := os.Stat(planFile); err == nil {
		args = append(args, "--plan", planFile)
	}
	return collector(args...)
}

// Export writes every stored paper to exports/papers.yaml.
func Export() error {
	mg.Deps(Build, Init)
	return collector("papers", "export", filepath.Join("exports", "papers.yaml"))
}

// Serve builds the binary and starts the HTTP API.
func Serve() error {
	mg.Deps(Build)
	return collector("serve")
}
