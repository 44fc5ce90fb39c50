// SPDX-License-Identifier: MPL-2.0
package packer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/packsmith/packsmith/internal/issue"
	"github.com/packsmith/packsmith/internal/ledger"
)

func newTestPipeline(t *testing.T, runner *fakePackRunner) *Pipeline {
	t.Helper()
	return &Pipeline{
		Runner:        runner,
		Logger:        log.New(io.Discard),
		OutputDir:     runner.outputDir,
		CacheDir:      t.TempDir(),
		TempDir:       filepath.Join(t.TempDir(), "temp"),
		ProjectFile:   "app.csproj",
		Configuration: "Release",
		ToolVersion:   "1.0.0",
	}
}

func TestPipelineRunCoreAndMeta(t *testing.T) {
	t.Parallel()

	runner := &fakePackRunner{t: t, outputDir: t.TempDir(), queue: []pkgSpec{
		{"App.1.0.0.nupkg", "App", "1.0.0"},
		{"App.Meta.1.0.0.nupkg", "App.Meta", "1.0.0"},
	}}
	p := newTestPipeline(t, runner)
	p.Targets = []string{"Core", "META"}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec, err := ledger.Read(filepath.Join(p.CacheDir, ledger.FileName))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if rec.ToolVersion != "1.0.0" {
		t.Errorf("ledger tool version = %q, want 1.0.0", rec.ToolVersion)
	}
	if len(rec.Targets) != 2 {
		t.Fatalf("ledger targets = %v, want core and meta", rec.Targets)
	}
	for _, key := range []string{"core", "meta"} {
		path, ok := rec.Targets[key]
		if !ok {
			t.Errorf("ledger targets missing %q", key)
			continue
		}
		if !filepath.IsAbs(path) {
			t.Errorf("ledger target %q path = %q, want absolute", key, path)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("ledger target %q points at missing artifact: %v", key, err)
		}
	}

	// The meta package packed even though no RID inventory was acquired.
	metaProj, err := os.ReadFile(filepath.Join(p.TempDir, "meta.csproj"))
	if err == nil {
		t.Errorf("temp directory survived the run: %s", metaProj)
	}
}

func TestPipelinePrologueClearsPreviousRun(t *testing.T) {
	t.Parallel()

	runner := &fakePackRunner{t: t, outputDir: t.TempDir(), queue: []pkgSpec{
		{"App.2.0.0.nupkg", "App", "2.0.0"},
	}}
	p := newTestPipeline(t, runner)
	p.Targets = []string{"core"}

	stale := filepath.Join(p.OutputDir, "App.1.0.0.nupkg")
	writeNupkg(t, stale, "App", "1.0.0")
	ledgerPath := filepath.Join(p.CacheDir, ledger.FileName)
	if err := ledger.Write(ledgerPath, ledger.Record{ToolVersion: "0.9.0"}); err != nil {
		t.Fatal(err)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale artifact still present: %v", err)
	}
	rec, err := ledger.Read(ledgerPath)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if rec.ToolVersion != "1.0.0" {
		t.Errorf("ledger tool version = %q, want the fresh run's 1.0.0", rec.ToolVersion)
	}
	if _, ok := rec.Targets["core"]; !ok {
		t.Errorf("ledger targets = %v, want core entry", rec.Targets)
	}
}

func TestPipelineMissingRuntimesVersion(t *testing.T) {
	t.Parallel()

	runner := &fakePackRunner{t: t, outputDir: t.TempDir()}
	p := newTestPipeline(t, runner)
	// Default targets expand to all flavors, which needs the runtimes
	// archive and therefore a version.

	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want config error")
	}
	if got := issue.KindOf(err); got != issue.KindConfig {
		t.Errorf("KindOf(err) = %v, want %v", got, issue.KindConfig)
	}
	if len(runner.calls) != 0 {
		t.Errorf("pack invocations = %d, want 0", len(runner.calls))
	}
}

func TestNeedsRuntimes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		targets []string
		want    bool
	}{
		{name: "empty expands to all", targets: nil, want: true},
		{name: "all token", targets: []string{"core", "all"}, want: true},
		{name: "explicit rid", targets: []string{"core", "linux-x64"}, want: true},
		{name: "core only", targets: []string{"core"}, want: false},
		{name: "core and meta", targets: []string{"core", "meta"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := needsRuntimes(tt.targets); got != tt.want {
				t.Errorf("needsRuntimes(%v) = %v, want %v", tt.targets, got, tt.want)
			}
		})
	}
}

func TestPipelineFingerprint(t *testing.T) {
	t.Parallel()

	p := &Pipeline{
		Configuration:   "Release",
		NoSymbols:       true,
		Defines:         []string{"B", "A"},
		RuntimesVersion: "3.1.4",
	}
	p.RuntimesOptions.URLTemplate = "https://host/{version}.zip"

	got := p.Fingerprint()
	want := ledger.Fingerprint{
		RuntimesVersion: "3.1.4",
		RuntimesURL:     "https://host/{version}.zip",
		Configuration:   "Release",
		NoSymbols:       true,
		Defines:         []string{"A", "B"},
	}
	if !got.Equal(want) {
		t.Errorf("Fingerprint() = %+v, want equal to %+v", got, want)
	}
}
