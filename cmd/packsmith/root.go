// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for packsmith.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/packsmith/packsmith/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output.
	verbose bool
	// cfgFile allows specifying a custom config file or directory.
	cfgFile string
	// noLogo suppresses the startup logo.
	noLogo bool

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "packsmith",
		Short: "Build, package, and publish multi-flavor NuGet package sets",
		Long: TitleStyle.Render("packsmith") + SubtitleStyle.Render(" - release pipeline for multi-flavor NuGet package sets") + `

packsmith wraps the dotnet CLI to produce a core package, one package
per runtime identifier carrying that RID's native binary, and a meta
package depending on the rest, then pushes them to a feed in a
deterministic order. A build cache ledger records the inputs of each
pack run so a push can detect staleness and repack at most once.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Place your project under ./src (or point --project at it)
  2. Optionally add a '` + cmdStyle.Render("packsmith.json") + `' with shared settings
  3. Pack and push:

` + SubtitleStyle.Render("Examples:") + `
  packsmith build                      Build the project (Debug)
  packsmith pack --runtimes-version 1.2.3 --runtimes-url https://host/r.{version}.zip
  packsmith push --api-key KEY         Validate the cache and push
  packsmith clean                      Clean build output and caches`,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging with detailed output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file or directory (default is ./packsmith.json)")
	rootCmd.PersistentFlags().BoolVar(&noLogo, "no-logo", false, "suppress the startup logo")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(pushCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// newLogger builds the command logger honoring the verbose flag.
func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "packsmith",
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// printLogo writes the startup banner unless suppressed.
func printLogo(effectiveNoLogo bool) {
	if effectiveNoLogo {
		return
	}
	fmt.Fprintln(os.Stderr, TitleStyle.Render("packsmith")+SubtitleStyle.Render(" "+getVersionString()))
}

// formatErrorForDisplay formats an error for user display. ActionableError
// values render their suggestions; in verbose mode the full error chain
// and the attached guidance document, if any, are shown.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		return err.Error()
	}
	msg := ae.Format(verboseMode)
	if verboseMode && ae.Doc != 0 {
		if doc := issue.Get(ae.Doc); doc != nil {
			if rendered, renderErr := doc.Render("auto"); renderErr == nil {
				msg += "\n" + rendered
			}
		}
	}
	return msg
}
