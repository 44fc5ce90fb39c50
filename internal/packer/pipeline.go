// SPDX-License-Identifier: MPL-2.0

package packer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/packsmith/packsmith/internal/execx"
	"github.com/packsmith/packsmith/internal/flavor"
	"github.com/packsmith/packsmith/internal/issue"
	"github.com/packsmith/packsmith/internal/ledger"
	"github.com/packsmith/packsmith/internal/runtimes"
)

// Pipeline is the full pack run: prologue cleanup, runtimes archive
// acquisition, target resolution, packaging, and the cache ledger
// write. It is also what a stale push re-runs.
type Pipeline struct {
	Runner   execx.Runner
	Logger   *log.Logger
	Provider *runtimes.Provider

	OutputDir     string
	CacheDir      string
	TempDir       string
	ProjectFile   string
	Configuration string

	Targets    []string
	Defines    []string
	Properties []string

	NoRestore bool
	NoLogo    bool
	NoSymbols bool
	Strict    bool

	RuntimesVersion string
	RuntimesOptions runtimes.Options

	ToolVersion string
}

// Run executes the pipeline. Successful runs leave the artifacts and a
// fresh cache ledger in the output and cache directories; failed runs
// leave no ledger, so a later push sees the cache as absent rather than
// trusting partial output.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.prologue(); err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(p.TempDir); err != nil {
			p.Logger.Debug("failed to remove temp directory", "path", p.TempDir, "err", err)
		}
	}()

	targets := flavor.NormalizeAll(p.Targets)

	inv, lic, err := p.acquireInventory(ctx, targets)
	if err != nil {
		return err
	}

	res, err := flavor.Resolve(targets, inv.RIDs(), p.Strict)
	if err != nil {
		return err
	}
	for _, warning := range res.Warnings {
		p.Logger.Warn(warning)
	}

	packer := &Packer{
		Runner:        p.Runner,
		Logger:        p.Logger,
		OutputDir:     p.OutputDir,
		TempDir:       p.TempDir,
		ProjectFile:   p.ProjectFile,
		Configuration: p.Configuration,
		Defines:       p.Defines,
		Properties:    p.Properties,
		NoRestore:     p.NoRestore,
		NoLogo:        p.NoLogo,
		NoSymbols:     p.NoSymbols,
		Strict:        p.Strict,
		License:       lic,
	}
	artifacts, err := packer.Run(ctx, res, inv)
	if err != nil {
		return err
	}

	return p.writeLedger(artifacts)
}

// prologue prepares the working directories and removes every trace of
// the previous run: the cache ledger first, so an interrupted run is
// indistinguishable from no run, then the packaged artifacts.
func (p *Pipeline) prologue() error {
	for _, dir := range []string{p.OutputDir, p.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return issue.WrapResource(err, issue.KindIO, "create directory", dir)
		}
	}
	if err := os.RemoveAll(p.TempDir); err != nil {
		return issue.WrapResource(err, issue.KindIO, "clear temp directory", p.TempDir)
	}
	if err := os.MkdirAll(p.TempDir, 0o755); err != nil {
		return issue.WrapResource(err, issue.KindIO, "create temp directory", p.TempDir)
	}

	if err := ledger.Delete(p.ledgerPath()); err != nil {
		return err
	}

	matches, err := filepath.Glob(filepath.Join(p.OutputDir, "*.nupkg"))
	if err != nil {
		return issue.WrapResource(err, issue.KindIO, "scan output directory", p.OutputDir)
	}
	for _, match := range matches {
		p.Logger.Debug("deleting stale artifact", "path", match)
		if err := os.Remove(match); err != nil {
			return issue.WrapResource(err, issue.KindIO, "delete stale artifact", match)
		}
	}
	return nil
}

// acquireInventory obtains the runtimes archive and discovers the RID
// inventory, but only when the requested targets can produce a RID
// package. Core-and-meta-only runs never touch the network.
func (p *Pipeline) acquireInventory(ctx context.Context, targets []string) (*runtimes.Inventory, runtimes.License, error) {
	if !needsRuntimes(targets) {
		return &runtimes.Inventory{}, runtimes.License{}, nil
	}

	if p.RuntimesVersion == "" {
		return nil, runtimes.License{}, issue.NewErrorContext(issue.KindConfig).
			WithOperation("resolve runtimes version").
			WithSuggestion("Provide --runtimes-version or set 'runtimesVersion' in the config").
			WithDoc(issue.RuntimesConfigId).
			BuildError()
	}
	p.Logger.Info("using runtimes", "version", p.RuntimesVersion)

	archivePath, lic, err := p.Provider.Ensure(ctx, p.RuntimesVersion, p.RuntimesOptions)
	if err != nil {
		return nil, runtimes.License{}, err
	}

	extractDir := filepath.Join(p.TempDir, filepath.Base(archivePath))
	if err := runtimes.Extract(archivePath, extractDir); err != nil {
		return nil, runtimes.License{}, err
	}
	p.Logger.Debug("runtimes archive extracted", "path", extractDir)

	inv, err := runtimes.DiscoverInventory(extractDir)
	if err != nil {
		return nil, runtimes.License{}, issue.WrapResource(err, issue.KindIO, "discover runtime identifiers", extractDir)
	}
	p.Logger.Debug("available RIDs", "rids", inv.RIDs())
	return inv, lic, nil
}

// needsRuntimes reports whether the target set can produce a RID
// package: an all-expansion, or any explicit token besides core/meta.
func needsRuntimes(targets []string) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if t != flavor.TokenCore && t != flavor.TokenMeta {
			return true
		}
	}
	return false
}

func (p *Pipeline) writeLedger(artifacts []flavor.Artifact) error {
	targets := make(map[string]string, len(artifacts))
	for _, art := range artifacts {
		abs, err := filepath.Abs(art.Path)
		if err != nil {
			return issue.WrapResource(err, issue.KindIO, "resolve artifact path", art.Path)
		}
		targets[art.Flavor.String()] = abs
	}

	path := p.ledgerPath()
	p.Logger.Debug("writing cache ledger", "path", path)
	return ledger.Write(path, ledger.Record{
		ToolVersion: p.ToolVersion,
		Inputs:      p.Fingerprint(),
		Targets:     targets,
	})
}

// Fingerprint is the input snapshot this run persists, which a later
// push compares against its own inputs.
func (p *Pipeline) Fingerprint() ledger.Fingerprint {
	return ledger.Fingerprint{
		RuntimesVersion: p.RuntimesVersion,
		RuntimesURL:     p.RuntimesOptions.URLTemplate,
		Configuration:   p.Configuration,
		NoSymbols:       p.NoSymbols,
		Defines:         p.Defines,
		Properties:      p.Properties,
	}
}

func (p *Pipeline) ledgerPath() string {
	return filepath.Join(p.CacheDir, ledger.FileName)
}
