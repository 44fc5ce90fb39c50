// SPDX-License-Identifier: MPL-2.0

// Package sources enumerates the project's source files and reports the
// newest modification time among them, which the push pipeline compares
// against the packaged artifacts.
package sources

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/packsmith/packsmith/internal/execx"
	"github.com/packsmith/packsmith/internal/issue"
)

// Lister reports the newest modification time among the source files it
// enumerates. A zero time with a nil error means no files were found.
type Lister interface {
	NewestModTime(ctx context.Context) (time.Time, error)
}

// WatchLister enumerates sources by asking the build tool which files
// it would watch for the project, so the set matches exactly what a
// build consumes, including files pulled in by imports.
type WatchLister struct {
	Runner      execx.Runner
	ProjectFile string
}

// NewestModTime runs the file-watch listing for the project and stats
// every reported path that exists. Lines that are not paths, such as
// restore progress output, are skipped.
func (l *WatchLister) NewestModTime(ctx context.Context) (time.Time, error) {
	var newest time.Time

	code, err := l.Runner.RunLines(ctx, execx.DotnetTool,
		[]string{"watch", "--list", "--project", l.ProjectFile},
		func(line string) {
			line = strings.TrimSpace(line)
			if line == "" {
				return
			}
			info, err := os.Stat(line)
			if err != nil || info.IsDir() {
				return
			}
			if mt := info.ModTime(); mt.After(newest) {
				newest = mt
			}
		})
	if err != nil {
		return time.Time{}, issue.Wrap(err, issue.KindTool, "list project sources")
	}
	if code != 0 {
		return time.Time{}, issue.NewErrorContext(issue.KindTool).
			WithOperation("list project sources").
			WithResource(l.ProjectFile).
			WithSuggestion("Check that the project file restores and builds").
			WrapCause(&execx.ExitCodeError{Tool: execx.DotnetTool, Code: code}).
			BuildError()
	}
	return newest, nil
}

// GlobLister enumerates sources by glob patterns relative to BaseDir,
// for trees where the build tool cannot produce a watch listing.
type GlobLister struct {
	BaseDir  string
	Patterns []string
}

// NewestModTime stats every file matched by any pattern.
func (l *GlobLister) NewestModTime(ctx context.Context) (time.Time, error) {
	var newest time.Time

	root := os.DirFS(l.BaseDir)
	for _, pattern := range l.Patterns {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		matches, err := doublestar.Glob(root, pattern)
		if err != nil {
			return time.Time{}, issue.WrapResource(err, issue.KindConfig, "match source pattern", pattern)
		}
		for _, match := range matches {
			info, err := os.Stat(filepath.Join(l.BaseDir, filepath.FromSlash(match)))
			if err != nil || info.IsDir() {
				continue
			}
			if mt := info.ModTime(); mt.After(newest) {
				newest = mt
			}
		}
	}
	return newest, nil
}
