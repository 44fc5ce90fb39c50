// SPDX-License-Identifier: MPL-2.0

// Package config loads the optional JSON configuration file. Every
// value it holds can also be supplied as a CLI flag; flags win, the
// file fills the gaps, and built-in defaults cover the rest.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/packsmith/packsmith/internal/issue"
)

const (
	// FileName is the configuration file looked up in the current
	// directory when no explicit path is given.
	FileName = "packsmith.json"

	// DefaultProjectPath is scanned for a project file when neither the
	// flag nor the config names one.
	DefaultProjectPath = "./src"

	DefaultOutputDir = "./output"
	DefaultCacheDir  = "./cache"
	DefaultTempDir   = "./temp"

	// DefaultNugetSource is the public nuget.org v3 feed.
	DefaultNugetSource = "https://api.nuget.org/v3/index.json"

	// DefaultBuildConfiguration and DefaultPackConfiguration are the
	// configurations used when none is specified: plain builds default
	// to Debug, release packaging to Release.
	DefaultBuildConfiguration = "Debug"
	DefaultPackConfiguration  = "Release"
)

// Config file keys.
const (
	KeyProject                    = "project"
	KeyNoLogo                     = "noLogo"
	KeyOutputDir                  = "outputDir"
	KeyCacheDir                   = "cacheDir"
	KeyTempDir                    = "tempDir"
	KeyRuntimesVersion            = "runtimesVersion"
	KeyRuntimesURL                = "runtimesUrl"
	KeyRuntimesLicenseSPDX        = "runtimesLicenseSpdx"
	KeyRuntimesLicenseFileURL     = "runtimesLicenseFileUrl"
	KeyRuntimesLicenseSPDXFileURL = "runtimesLicenseSpdxFileUrl"
	KeyNugetSource                = "nugetSource"
)

// Config is the loaded configuration file. The zero-value semantics
// are intentional: a Config loaded from nothing answers every lookup
// with the caller's fallback.
type Config struct {
	// Path is the resolved file the values came from; empty when no
	// file was found.
	Path string

	v *viper.Viper
}

// Load resolves and reads the configuration file. An empty path looks
// for the default file in the current directory and treats its absence
// as an empty configuration. An explicit path must exist: a file is
// read directly, a directory must contain the default file.
func Load(path string) (*Config, error) {
	resolved, required, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{v: viper.New()}
	if resolved == "" {
		return cfg, nil
	}
	if !fileExists(resolved) {
		if !required {
			return cfg, nil
		}
		return nil, issue.NewErrorContext(issue.KindConfig).
			WithOperation("load configuration").
			WithResource(resolved).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Omit --config to run with defaults").
			WrapCause(fmt.Errorf("config file not found")).
			BuildError()
	}

	cfg.v.SetConfigFile(resolved)
	cfg.v.SetConfigType("json")
	if err := cfg.v.ReadInConfig(); err != nil {
		return nil, issue.NewErrorContext(issue.KindConfig).
			WithOperation("load configuration").
			WithResource(resolved).
			WithSuggestion("Check that the file contains valid JSON").
			WrapCause(err).
			BuildError()
	}
	cfg.Path = resolved
	return cfg, nil
}

// resolvePath maps the CLI-supplied path to a concrete candidate file.
// required reports whether that file's absence is an error.
func resolvePath(path string) (resolved string, required bool, err error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", false, issue.Wrap(err, issue.KindConfig, "resolve working directory")
		}
		return filepath.Join(cwd, FileName), false, nil
	}

	info, statErr := os.Stat(path)
	if statErr == nil && info.IsDir() {
		return filepath.Join(path, FileName), true, nil
	}
	return path, true, nil
}

// Has reports whether the file explicitly sets the key.
func (c *Config) Has(key string) bool {
	return c.v.IsSet(key)
}

// String returns the key's value, or fallback when unset.
func (c *Config) String(key, fallback string) string {
	if c.v.IsSet(key) {
		return c.v.GetString(key)
	}
	return fallback
}

// Bool returns the key's value, or fallback when unset.
func (c *Config) Bool(key string, fallback bool) bool {
	if c.v.IsSet(key) {
		return c.v.GetBool(key)
	}
	return fallback
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
