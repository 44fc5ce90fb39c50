// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/packsmith/packsmith/internal/config"
	"github.com/packsmith/packsmith/internal/execx"
	"github.com/packsmith/packsmith/internal/issue"
)

// buildCmd builds the project without packaging anything.
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the project",
	Long: `Build the project with the dotnet CLI.

The configuration defaults to ` + cmdStyle.Render(config.DefaultBuildConfiguration) + ` for plain builds.

Examples:
  packsmith build
  packsmith build -c Release --define TRACE`,
	RunE: runBuild,
}

func init() {
	addProjectFlags(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return wrapExit(err)
	}

	configuration := flagConfiguration
	if configuration == "" {
		configuration = config.DefaultBuildConfiguration
	}
	s.logger.Info("building project", "configuration", configuration)
	s.logger.Debug("project file", "path", s.projectFile)

	extra := []string{s.projectFile}
	if len(flagDefines) > 0 {
		extra = append(extra, "/p:DefineConstants="+strings.Join(flagDefines, ";"))
	}
	buildArgs := execx.DotnetArgs("build", extra, configuration, flagNoRestore, noLogo, flagProperties)
	s.logger.Debug("running build", "cmd", execx.FormatCommandLine(execx.DotnetTool, buildArgs))

	code, err := execx.ExecRunner{}.Run(cmd.Context(), execx.DotnetTool, buildArgs, os.Stdout, os.Stderr)
	if err != nil {
		return s.finish(issue.Wrap(err, issue.KindTool, "build project"))
	}
	if code != 0 {
		return s.finish(issue.Wrap(
			&execx.ExitCodeError{Tool: execx.DotnetTool, Code: code},
			issue.KindTool, "build project"))
	}
	return nil
}
