// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/packsmith/packsmith/internal/config"
	"github.com/packsmith/packsmith/internal/execx"
	"github.com/packsmith/packsmith/internal/issue"
	"github.com/packsmith/packsmith/internal/ledger"
	"github.com/packsmith/packsmith/internal/pushpipe"
	"github.com/packsmith/packsmith/internal/sources"
)

var (
	// flagNugetSource is the feed URL to push to.
	flagNugetSource string
	// flagAPIKey is the feed API key.
	flagAPIKey string
	// flagNoPack skips repacking even when the cache is stale.
	flagNoPack bool
	// flagFailStale exits with an error when the cache is stale.
	flagFailStale bool
)

// pushCmd validates the cache ledger and pushes the package set.
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the packaged set to a NuGet feed",
	Long: `Validate the cache ledger against current inputs and push the
package set to a feed.

A stale cache (missing ledger, changed inputs, missing artifacts, or
sources newer than packages) triggers at most one repack before the
push. ` + cmdStyle.Render("--fail-stale") + ` turns staleness into an error instead;
` + cmdStyle.Render("--no-pack") + ` pushes whatever is present without repacking.

Packages are pushed one at a time: core first, RID packages in ordinal
order, meta last, with each package's symbols sibling immediately
after it.

Examples:
  packsmith push --api-key KEY
  packsmith push --api-key KEY --targets core,linux-x64
  packsmith push --api-key KEY --fail-stale`,
	RunE: runPush,
}

func init() {
	addProjectFlags(pushCmd)
	addDirFlags(pushCmd)
	addRuntimesFlags(pushCmd)
	addTargetFlags(pushCmd)

	pushCmd.Flags().StringVar(&flagNugetSource, "nuget-source", "", "NuGet feed URL (defaults to "+config.DefaultNugetSource+")")
	pushCmd.Flags().StringVar(&flagAPIKey, "api-key", "", "API key for the NuGet feed")
	pushCmd.Flags().BoolVar(&flagNoPack, "no-pack", false, "do not pack even if the cache is stale")
	pushCmd.Flags().BoolVar(&flagFailStale, "fail-stale", false, "exit with an error if the cache is stale instead of packing")

	cobra.CheckErr(pushCmd.MarkFlagRequired("api-key"))
}

func runPush(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return wrapExit(err)
	}

	if flagNoPack && flagFailStale {
		return s.finish(issue.NewErrorContext(issue.KindConfig).
			WithOperation("validate push options").
			WithSuggestion("--no-pack and --fail-stale cannot be used together").
			BuildError())
	}

	pipeline := &pushpipe.Pipeline{
		Runner:  execx.ExecRunner{},
		Sources: &sources.WatchLister{Runner: execx.ExecRunner{}, ProjectFile: s.projectFile},
		Logger:  s.logger,
		Repack: func(ctx context.Context) error {
			return newPackPipeline(s).Run(ctx)
		},
		CacheFile:   filepath.Join(s.cacheDir(), ledger.FileName),
		OutputDir:   s.outputDir(),
		ToolVersion: Version,
		Source:      s.stringSetting("nuget-source", flagNugetSource, config.KeyNugetSource, config.DefaultNugetSource),
		APIKey:      flagAPIKey,
		NoPack:      flagNoPack,
		FailStale:   flagFailStale,
		Targets:     flagTargets,
	}

	// Pointer-typed overrides: only flags the caller actually set take
	// part in the staleness comparison; everything else defaults to the
	// cached value.
	if v := s.optionalString("runtimes-version", flagRuntimesVersion, config.KeyRuntimesVersion); v != "" {
		pipeline.RuntimesVersion = &v
	}
	if v := s.optionalString("runtimes-url", flagRuntimesURL, config.KeyRuntimesURL); v != "" {
		pipeline.RuntimesURL = &v
	}
	if cmd.Flags().Changed("configuration") {
		pipeline.Configuration = &flagConfiguration
	}
	if cmd.Flags().Changed("no-symbols") {
		pipeline.NoSymbols = &flagNoSymbols
	}
	if cmd.Flags().Changed("define") {
		pipeline.Defines = flagDefines
	}
	if cmd.Flags().Changed("property") {
		pipeline.Properties = flagProperties
	}

	return s.finish(pipeline.Run(cmd.Context()))
}
