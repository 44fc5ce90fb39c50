// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/packsmith/packsmith/internal/config"
	"github.com/packsmith/packsmith/internal/issue"
)

// Shared command flags. The same variables back the flags on every
// command that registers them; commands never run concurrently.
var (
	flagProject       string
	flagConfiguration string
	flagDefines       []string
	flagNoRestore     bool
	flagProperties    []string

	flagOutputDir string
	flagCacheDir  string
	flagTempDir   string

	flagRuntimesVersion            string
	flagRuntimesURL                string
	flagRuntimesLicenseSPDX        string
	flagRuntimesLicenseFileURL     string
	flagRuntimesLicenseSPDXFileURL string
	flagForceRuntimesDownload      bool

	flagTargets   []string
	flagStrict    bool
	flagNoSymbols bool
)

func addProjectFlags(c *cobra.Command) {
	c.Flags().StringVar(&flagProject, "project", "", "path to a .csproj file or a directory containing one")
	c.Flags().StringVarP(&flagConfiguration, "configuration", "c", "", "build configuration to use (e.g. Debug or Release)")
	c.Flags().StringSliceVar(&flagDefines, "define", nil, "preprocessor symbols to define")
	c.Flags().BoolVar(&flagNoRestore, "no-restore", false, "skip the restore phase when building or packing")
	c.Flags().StringArrayVar(&flagProperties, "property", nil, "additional MSBuild properties in the form name=value")
}

func addDirFlags(c *cobra.Command) {
	c.Flags().StringVar(&flagOutputDir, "output-dir", "", "directory where build or pack outputs will be placed")
	c.Flags().StringVar(&flagCacheDir, "cache-dir", "", "directory to store cached downloads (e.g. runtimes archives)")
	c.Flags().StringVar(&flagTempDir, "temp-dir", "", "temporary working directory used during packing")
}

func addRuntimesFlags(c *cobra.Command) {
	c.Flags().StringVar(&flagRuntimesVersion, "runtimes-version", "", "version of the runtimes archive to download and include in RID packages")
	c.Flags().StringVar(&flagRuntimesURL, "runtimes-url", "", "URL template for the runtimes archive; '{version}' is replaced with the version")
	c.Flags().StringVar(&flagRuntimesLicenseSPDX, "runtimes-license-spdx", "", "SPDX license expression to apply to RID packages (e.g. MIT, Apache-2.0)")
	c.Flags().StringVar(&flagRuntimesLicenseFileURL, "runtimes-license-file-url", "", "URL template to a license file to include in RID packages")
	c.Flags().StringVar(&flagRuntimesLicenseSPDXFileURL, "runtimes-license-spdx-file-url", "", "URL template to a text file containing an SPDX identifier")
	c.Flags().BoolVar(&flagForceRuntimesDownload, "force-runtimes-download", false, "re-download the runtimes archive even if a cached copy exists")
}

func addTargetFlags(c *cobra.Command) {
	c.Flags().StringSliceVar(&flagTargets, "targets", nil, "targets to pack or push: 'all', 'core', 'meta', or RIDs")
	c.Flags().BoolVar(&flagStrict, "strict", false, "fail if a requested RID has no native binary instead of warning")
	c.Flags().BoolVar(&flagNoSymbols, "no-symbols", false, "do not create a symbols package for the core project")
}

// session carries the state every handler needs: the loaded config,
// the logger, and the resolved project file.
type session struct {
	cfg    *config.Config
	logger *log.Logger
	cmd    *cobra.Command

	projectFile string
}

// newSession loads the configuration, prints the logo, and resolves
// the project file.
func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: newLogger(), cmd: cmd}
	if cfg.Path != "" {
		s.logger.Debug("configuration loaded", "path", cfg.Path)
	}

	effectiveNoLogo := noLogo
	if !rootCmd.PersistentFlags().Changed("no-logo") {
		effectiveNoLogo = cfg.Bool(config.KeyNoLogo, false)
	}
	printLogo(effectiveNoLogo)

	s.projectFile, err = resolveProjectFile(cmd, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("project file resolved", "path", s.projectFile)
	return s, nil
}

// stringSetting resolves flag > config > fallback for a string value.
func (s *session) stringSetting(flagName, flagValue, configKey, fallback string) string {
	if s.cmd.Flags().Changed(flagName) {
		return flagValue
	}
	return s.cfg.String(configKey, fallback)
}

// optionalString resolves flag > config for values whose absence is
// meaningful (empty string means "not specified anywhere").
func (s *session) optionalString(flagName, flagValue, configKey string) string {
	return s.stringSetting(flagName, flagValue, configKey, "")
}

func (s *session) outputDir() string {
	return s.stringSetting("output-dir", flagOutputDir, config.KeyOutputDir, config.DefaultOutputDir)
}

func (s *session) cacheDir() string {
	return s.stringSetting("cache-dir", flagCacheDir, config.KeyCacheDir, config.DefaultCacheDir)
}

func (s *session) tempDir() string {
	return s.stringSetting("temp-dir", flagTempDir, config.KeyTempDir, config.DefaultTempDir)
}

// resolveProjectFile maps the project flag or config value to a
// concrete .csproj path. A directory resolves to the first project
// file inside it in name order; with neither flag nor config set, the
// default source directory is scanned.
func resolveProjectFile(cmd *cobra.Command, cfg *config.Config) (string, error) {
	candidate := flagProject
	if !cmd.Flags().Changed("project") {
		candidate = cfg.String(config.KeyProject, "")
	}

	if candidate == "" {
		project, err := firstProjectFile(config.DefaultProjectPath)
		if err != nil || project == "" {
			return "", issue.NewErrorContext(issue.KindConfig).
				WithOperation("resolve project file").
				WithSuggestion("Provide --project or set 'project' in the config").
				WithSuggestion("Or place a .csproj under '" + config.DefaultProjectPath + "'").
				WrapCause(err).
				BuildError()
		}
		return project, nil
	}

	info, err := os.Stat(candidate)
	if err != nil {
		return "", issue.NewErrorContext(issue.KindConfig).
			WithOperation("resolve project file").
			WithResource(candidate).
			WithSuggestion("Check that the path exists").
			WrapCause(err).
			BuildError()
	}
	if !info.IsDir() {
		return candidate, nil
	}

	project, err := firstProjectFile(candidate)
	if err != nil || project == "" {
		return "", issue.NewErrorContext(issue.KindConfig).
			WithOperation("resolve project file").
			WithResource(candidate).
			WithSuggestion("The directory contains no .csproj file").
			WrapCause(err).
			BuildError()
	}
	return project, nil
}

// firstProjectFile returns the first .csproj in dir by name order, or
// an empty string when the directory holds none.
func firstProjectFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csproj"))
	if err != nil || len(matches) == 0 {
		return "", err
	}
	sort.Strings(matches)
	return matches[0], nil
}

// finish prints actionable context for a failed run and wraps the
// error so the process exit code relays any external tool's code.
func (s *session) finish(err error) error {
	if err == nil {
		return nil
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) && (len(ae.Suggestions) > 0 || verbose) {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
	}
	return wrapExit(err)
}
