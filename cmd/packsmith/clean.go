// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/packsmith/packsmith/internal/execx"
	"github.com/packsmith/packsmith/internal/issue"
)

// cleanCmd cleans the build output plus every directory this tool owns.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean build output and the tool's own directories",
	Long: `Clean the project with the dotnet CLI, then remove the output,
cache, and temp directories.

Directory deletion failures are reported but do not stop the remaining
deletions; the command exits non-zero if anything failed.

Examples:
  packsmith clean
  packsmith clean --output-dir ./dist`,
	RunE: runClean,
}

func init() {
	addProjectFlags(cleanCmd)
	addDirFlags(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return wrapExit(err)
	}

	s.logger.Info("cleaning project")
	s.logger.Debug("project file", "path", s.projectFile)

	cleanArgs := execx.DotnetArgs("clean", []string{s.projectFile}, flagConfiguration, flagNoRestore, noLogo, flagProperties)
	s.logger.Debug("running clean", "cmd", execx.FormatCommandLine(execx.DotnetTool, cleanArgs))

	code, err := execx.ExecRunner{}.Run(cmd.Context(), execx.DotnetTool, cleanArgs, os.Stdout, os.Stderr)
	if err != nil {
		return s.finish(issue.Wrap(err, issue.KindTool, "clean project"))
	}

	var firstErr error
	for _, dir := range []string{s.outputDir(), s.cacheDir(), s.tempDir()} {
		if _, statErr := os.Stat(dir); statErr != nil {
			continue
		}
		s.logger.Debug("deleting directory", "path", dir)
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.logger.Error("failed to delete directory", "path", dir, "err", rmErr)
			if firstErr == nil {
				firstErr = issue.WrapResource(rmErr, issue.KindIO, "delete directory", dir)
			}
			continue
		}
		s.logger.Info("deleted directory", "path", dir)
	}

	switch {
	case firstErr != nil:
		return s.finish(firstErr)
	case code != 0:
		return s.finish(issue.Wrap(
			&execx.ExitCodeError{Tool: execx.DotnetTool, Code: code},
			issue.KindTool, "clean project"))
	default:
		return nil
	}
}
