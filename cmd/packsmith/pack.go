// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/packsmith/packsmith/internal/config"
	"github.com/packsmith/packsmith/internal/execx"
	"github.com/packsmith/packsmith/internal/packer"
	"github.com/packsmith/packsmith/internal/runtimes"
)

// downloadTimeout bounds a single runtimes archive or license download.
const downloadTimeout = 10 * time.Minute

// packCmd packs the full package set and writes the cache ledger.
var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Pack the core, RID, and meta packages",
	Long: `Pack the full package set: the core package from the project file,
one package per runtime identifier carrying its native binary, and a
meta package depending on the rest.

Packing order is fixed: core, then RIDs in discovery order, then meta.
A successful run writes a cache ledger recording the inputs; the push
command validates against it.

Targets select what to pack: ` + cmdStyle.Render("all") + ` (the default), ` + cmdStyle.Render("core") + `,
` + cmdStyle.Render("meta") + `, or individual RIDs such as ` + cmdStyle.Render("linux-x64") + `.

Examples:
  packsmith pack --runtimes-version 1.2.3 --runtimes-url https://host/runtimes.{version}.zip
  packsmith pack --targets core,linux-x64 --strict
  packsmith pack --targets core,meta --no-symbols`,
	RunE: runPack,
}

func init() {
	addProjectFlags(packCmd)
	addDirFlags(packCmd)
	addRuntimesFlags(packCmd)
	addTargetFlags(packCmd)
}

func runPack(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return wrapExit(err)
	}
	return s.finish(newPackPipeline(s).Run(cmd.Context()))
}

// newPackPipeline assembles the pack pipeline from the session's
// flag/config resolution. The push command reuses it for its bounded
// repack.
func newPackPipeline(s *session) *packer.Pipeline {
	configuration := flagConfiguration
	if configuration == "" {
		configuration = config.DefaultPackConfiguration
	}

	cacheDir := s.cacheDir()
	provider := runtimes.NewProvider(cacheDir,
		runtimes.WithHTTPClient(&http.Client{Timeout: downloadTimeout}),
		runtimes.WithLogger(s.logger))

	return &packer.Pipeline{
		Runner:        execx.ExecRunner{},
		Logger:        s.logger,
		Provider:      provider,
		OutputDir:     s.outputDir(),
		CacheDir:      cacheDir,
		TempDir:       s.tempDir(),
		ProjectFile:   s.projectFile,
		Configuration: configuration,
		Targets:       flagTargets,
		Defines:       flagDefines,
		Properties:    flagProperties,
		NoRestore:     flagNoRestore,
		NoLogo:        noLogo,
		NoSymbols:     flagNoSymbols,
		Strict:        flagStrict,
		RuntimesVersion: s.optionalString(
			"runtimes-version", flagRuntimesVersion, config.KeyRuntimesVersion),
		RuntimesOptions: runtimes.Options{
			URLTemplate: s.optionalString(
				"runtimes-url", flagRuntimesURL, config.KeyRuntimesURL),
			LicenseSPDX: s.optionalString(
				"runtimes-license-spdx", flagRuntimesLicenseSPDX, config.KeyRuntimesLicenseSPDX),
			LicenseFileURL: s.optionalString(
				"runtimes-license-file-url", flagRuntimesLicenseFileURL, config.KeyRuntimesLicenseFileURL),
			LicenseSPDXFileURL: s.optionalString(
				"runtimes-license-spdx-file-url", flagRuntimesLicenseSPDXFileURL, config.KeyRuntimesLicenseSPDXFileURL),
			ForceDownload: flagForceRuntimesDownload,
		},
		ToolVersion: Version,
	}
}
