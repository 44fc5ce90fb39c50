// SPDX-License-Identifier: MPL-2.0
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/packsmith/packsmith/internal/issue"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExplicitFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), `{
		"project": "./src/app.csproj",
		"noLogo": true,
		"runtimesVersion": "3.1.4"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Path != path {
		t.Errorf("Path = %q, want %q", cfg.Path, path)
	}
	if got := cfg.String(KeyProject, ""); got != "./src/app.csproj" {
		t.Errorf("String(project) = %q, want ./src/app.csproj", got)
	}
	if !cfg.Bool(KeyNoLogo, false) {
		t.Error("Bool(noLogo) = false, want true")
	}
	if got := cfg.String(KeyRuntimesVersion, ""); got != "3.1.4" {
		t.Errorf("String(runtimesVersion) = %q, want 3.1.4", got)
	}
}

func TestLoadDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `{"outputDir": "./dist"}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.String(KeyOutputDir, DefaultOutputDir); got != "./dist" {
		t.Errorf("String(outputDir) = %q, want ./dist", got)
	}
}

func TestLoadDirectoryWithoutFile(t *testing.T) {
	t.Parallel()

	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("Load() error = nil, want missing config error")
	}
	if got := issue.KindOf(err); got != issue.KindConfig {
		t.Errorf("KindOf(err) = %v, want %v", got, issue.KindConfig)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("Load() error = nil, want missing config error")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), `{"project": `)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestDefaultLookupIsOptional(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("Path = %q, want empty for absent default file", cfg.Path)
	}
	if cfg.Has(KeyProject) {
		t.Error("Has(project) = true on empty config")
	}
	if got := cfg.String(KeyNugetSource, DefaultNugetSource); got != DefaultNugetSource {
		t.Errorf("String(nugetSource) = %q, want default fallback", got)
	}
	if cfg.Bool(KeyNoLogo, false) {
		t.Error("Bool(noLogo) = true on empty config")
	}
}

func TestDefaultLookupFindsFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"cacheDir": "/var/cache/packsmith"}`)
	t.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.String(KeyCacheDir, DefaultCacheDir); got != "/var/cache/packsmith" {
		t.Errorf("String(cacheDir) = %q, want /var/cache/packsmith", got)
	}
}
