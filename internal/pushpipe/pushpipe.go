// SPDX-License-Identifier: MPL-2.0

// Package pushpipe validates the cache ledger against current inputs
// and pushes the packaged artifacts to a feed. The control flow is a
// small state machine: CheckCache decides between CacheStale and
// CacheOkay, CacheStale may trigger at most one repack before failing,
// and CacheOkay assembles and executes the push list.
package pushpipe

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/packsmith/packsmith/internal/execx"
	"github.com/packsmith/packsmith/internal/flavor"
	"github.com/packsmith/packsmith/internal/issue"
	"github.com/packsmith/packsmith/internal/ledger"
	"github.com/packsmith/packsmith/internal/sources"
)

// State is a node in the push state machine.
type State int

const (
	StateCheckCache State = iota
	StateStale
	StateOkay
)

// maxRepacks bounds repack-on-stale to one attempt per invocation.
const maxRepacks = 1

// SymbolsExt is the extension of a package's sibling symbols package.
const SymbolsExt = ".snupkg"

// Pipeline pushes the packaged artifacts after validating that the
// cache ledger still describes them. Pointer-typed inputs distinguish
// "not specified, use the cached value" from an explicit override; the
// set-valued Defines and Properties use nil the same way.
type Pipeline struct {
	Runner  execx.Runner
	Sources sources.Lister
	Logger  *log.Logger

	// Repack runs the full pack pipeline when the cache is stale. It is
	// a callback so this package does not depend on the pack path.
	Repack func(ctx context.Context) error

	// Stdout and Stderr receive the push tool's output; they default to
	// the process streams.
	Stdout io.Writer
	Stderr io.Writer

	CacheFile   string
	OutputDir   string
	ToolVersion string

	Source string
	APIKey string

	NoPack    bool
	FailStale bool

	RuntimesVersion *string
	RuntimesURL     *string
	Configuration   *string
	NoSymbols       *bool
	Defines         []string
	Properties      []string

	Targets []string
}

// plan is the outcome of a CheckCache pass: the merged target map (nil
// when no ledger could be read) and the effective symbols setting.
type plan struct {
	targets   map[string]string
	noSymbols bool
}

// Run drives the state machine to completion.
func (p *Pipeline) Run(ctx context.Context) error {
	targets := flavor.NormalizeAll(p.Targets)

	var (
		current plan
		repacks int
	)
	state := StateCheckCache
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch state {
		case StateCheckCache:
			pl, stale, err := p.checkCache(ctx, targets)
			if err != nil {
				return err
			}
			current = pl
			if stale {
				state = StateStale
			} else {
				state = StateOkay
			}

		case StateStale:
			switch {
			case p.FailStale:
				return issue.NewErrorContext(issue.KindStale).
					WithOperation("validate cache").
					WithSuggestion("Re-run 'pack', or drop --fail-stale to repack automatically").
					WithDoc(issue.StaleCacheId).
					BuildError()
			case p.NoPack:
				p.Logger.Debug("cache is stale; proceeding without repacking")
				state = StateOkay
			case repacks >= maxRepacks:
				return issue.NewErrorContext(issue.KindStale).
					WithOperation("validate cache").
					WithSuggestion("The cache stayed stale after a repack; check for sources changing mid-run").
					WithDoc(issue.RepackLimitId).
					BuildError()
			default:
				repacks++
				p.Logger.Info("cache is stale, repacking")
				if err := p.Repack(ctx); err != nil {
					return err
				}
				state = StateCheckCache
			}

		case StateOkay:
			return p.push(ctx, current, targets)
		}
	}
}

// checkCache runs the staleness validation. A true stale result is
// recoverable; a non-nil error is fatal (the source enumeration failing
// is a tool error, not staleness).
func (p *Pipeline) checkCache(ctx context.Context, targets []string) (plan, bool, error) {
	pl := plan{noSymbols: p.NoSymbols != nil && *p.NoSymbols}

	rec, err := ledger.Read(p.CacheFile)
	if err != nil {
		p.Logger.Warn("cache ledger missing or corrupt, treating cache as stale", "path", p.CacheFile, "err", err)
		return pl, true, nil
	}

	if p.NoSymbols == nil {
		pl.noSymbols = rec.Inputs.NoSymbols
	}
	merged := ledger.Fingerprint{
		RuntimesVersion: override(p.RuntimesVersion, rec.Inputs.RuntimesVersion),
		RuntimesURL:     override(p.RuntimesURL, rec.Inputs.RuntimesURL),
		Configuration:   override(p.Configuration, rec.Inputs.Configuration),
		NoSymbols:       pl.noSymbols,
		Defines:         overrideSet(p.Defines, rec.Inputs.Defines),
		Properties:      overrideSet(p.Properties, rec.Inputs.Properties),
	}
	pl.targets = mergeTargets(targets, rec.Targets)

	if rec.ToolVersion != p.ToolVersion {
		p.Logger.Debug("ledger written by a different tool version, treating cache as stale",
			"cached", rec.ToolVersion, "current", p.ToolVersion)
		return pl, true, nil
	}
	if !merged.Equal(rec.Inputs) {
		p.Logger.Debug("current inputs differ from cached inputs, treating cache as stale")
		return pl, true, nil
	}

	var corePath string
	for _, key := range sortedKeys(pl.targets) {
		path := pl.targets[key]
		p.Logger.Debug("checking package file", "target", key, "path", path)
		if path == "" || !fileExists(path) {
			p.Logger.Warn("expected package not found", "target", key, "path", path)
			return pl, true, nil
		}
		if key == flavor.TokenCore {
			corePath = path
		}
	}

	if corePath != "" && !pl.noSymbols {
		snupkg := symbolsSibling(corePath)
		if !fileExists(snupkg) {
			p.Logger.Warn("expected symbols package not found", "path", snupkg)
			return pl, true, nil
		}
	}

	newestSource, err := p.Sources.NewestModTime(ctx)
	if err != nil {
		return pl, false, err
	}

	oldestArtifact := oldestModTime(pl.targets, corePath, pl.noSymbols)
	if !oldestArtifact.IsZero() && newestSource.After(oldestArtifact) {
		p.Logger.Debug("sources newer than packages, treating cache as stale",
			"newestSource", newestSource, "oldestPackage", oldestArtifact)
		return pl, true, nil
	}

	return pl, false, nil
}

// mergeTargets maps the requested targets through the cached target
// map. An empty or all-containing request unions the cached targets
// with any concrete extras the caller named; unknown keys map to the
// empty string so the existence check flags them.
func mergeTargets(targets []string, cached map[string]string) map[string]string {
	keys := targets
	if len(targets) == 0 || contains(targets, flavor.TokenAll) {
		keys = nil
		for _, t := range targets {
			if t != flavor.TokenAll {
				keys = append(keys, t)
			}
		}
		for key := range cached {
			if !contains(keys, key) {
				keys = append(keys, key)
			}
		}
	}

	merged := make(map[string]string, len(keys))
	for _, key := range keys {
		if path, ok := cached[key]; ok {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			merged[key] = path
		} else {
			merged[key] = ""
		}
	}
	return merged
}

// push assembles the push list and pushes each package, aborting on the
// first failure.
func (p *Pipeline) push(ctx context.Context, pl plan, targets []string) error {
	list, err := p.pushList(pl, targets)
	if err != nil {
		return err
	}
	p.Logger.Debug("packages to push", "count", len(list), "packages", list)

	pushSymbols := !pl.noSymbols
	pushed := 0
	for _, pkg := range list {
		if err := p.pushOne(ctx, pkg); err != nil {
			return err
		}
		pushed++

		snupkg := symbolsSibling(pkg)
		if pushSymbols && fileExists(snupkg) {
			if err := p.pushOne(ctx, snupkg); err != nil {
				return err
			}
			pushed++
		}
	}

	p.Logger.Info("push complete", "pushed", pushed)
	return nil
}

// pushList orders the merged targets as core, RIDs in ordinal order,
// meta. Without a ledger-backed mapping it falls back to every package
// in the output directory, but only for an all-targets request; bare
// RID names cannot be mapped to files without the ledger.
func (p *Pipeline) pushList(pl plan, targets []string) ([]string, error) {
	if len(pl.targets) > 0 {
		for _, key := range sortedKeys(pl.targets) {
			if pl.targets[key] == "" {
				return nil, issue.NewErrorContext(issue.KindIntegrity).
					WithOperation("assemble push list").
					WithResource(key).
					WithSuggestion("The cache maps this target to an empty path; re-run 'pack'").
					BuildError()
			}
		}

		var list []string
		if path, ok := pl.targets[flavor.TokenCore]; ok {
			list = append(list, path)
		}
		var rids []string
		for key := range pl.targets {
			if key != flavor.TokenCore && key != flavor.TokenMeta {
				rids = append(rids, key)
			}
		}
		sort.Strings(rids)
		for _, rid := range rids {
			list = append(list, pl.targets[rid])
		}
		if path, ok := pl.targets[flavor.TokenMeta]; ok {
			list = append(list, path)
		}
		return list, nil
	}

	pushAll := len(targets) == 0 || contains(targets, flavor.TokenAll)
	if !pushAll {
		return nil, issue.NewErrorContext(issue.KindConfig).
			WithOperation("assemble push list").
			WithSuggestion("Run 'pack' first, or omit --no-pack, so targets can be mapped to package files").
			WithDoc(issue.TargetsWithoutLedgerId).
			BuildError()
	}

	matches, err := filepath.Glob(filepath.Join(p.OutputDir, "*.nupkg"))
	if err != nil {
		return nil, issue.WrapResource(err, issue.KindIO, "scan output directory", p.OutputDir)
	}
	if len(matches) == 0 {
		return nil, issue.NewErrorContext(issue.KindConfig).
			WithOperation("assemble push list").
			WithResource(p.OutputDir).
			WithSuggestion("No packages found; run 'pack' first").
			BuildError()
	}
	sort.Strings(matches)
	return matches, nil
}

func (p *Pipeline) pushOne(ctx context.Context, pkg string) error {
	p.Logger.Info("pushing package", "package", filepath.Base(pkg), "source", p.Source)

	args := []string{"nuget", "push", pkg, "--api-key", p.APIKey, "--source", p.Source, "--skip-duplicate"}
	masked := make([]string, len(args))
	copy(masked, args)
	masked[4] = strings.Repeat("*", len(p.APIKey))
	p.Logger.Debug("running push", "cmd", execx.FormatCommandLine(execx.DotnetTool, masked))

	stdout, stderr := p.Stdout, p.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	code, err := p.Runner.Run(ctx, execx.DotnetTool, args, stdout, stderr)
	if err != nil {
		return issue.Wrap(err, issue.KindTool, "push "+filepath.Base(pkg))
	}
	if code != 0 {
		return issue.Wrap(
			&execx.ExitCodeError{Tool: execx.DotnetTool, Code: code},
			issue.KindTool, "push "+filepath.Base(pkg))
	}
	return nil
}

func override(value *string, cached string) string {
	if value != nil {
		return *value
	}
	return cached
}

func overrideSet(values, cached []string) []string {
	if values != nil {
		return values
	}
	return cached
}

func contains(values []string, needle string) bool {
	for _, v := range values {
		if v == needle {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func symbolsSibling(pkg string) string {
	return strings.TrimSuffix(pkg, filepath.Ext(pkg)) + SymbolsExt
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func oldestModTime(targets map[string]string, corePath string, noSymbols bool) time.Time {
	var oldest time.Time
	consider := func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if mt := info.ModTime(); oldest.IsZero() || mt.Before(oldest) {
			oldest = mt
		}
	}
	for _, path := range targets {
		consider(path)
	}
	if corePath != "" && !noSymbols {
		consider(symbolsSibling(corePath))
	}
	return oldest
}
