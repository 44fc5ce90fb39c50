// SPDX-License-Identifier: MPL-2.0

// Package execx runs external pipeline tools, relaying their exit codes
// and multiplexing their output streams. The pipeline only consumes
// exit codes and output lines; all tool-specific knowledge lives in the
// argument builders of the callers.
package execx

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes external tools. It is passed explicitly to every
// component that shells out, so components stay pure with respect to
// their declared inputs and tests can substitute a fake.
type Runner interface {
	// Run executes the tool with the given arguments, streaming stdout
	// and stderr to the given writers (either may be nil to discard).
	// The returned int is the tool's exit code; err is non-nil only when
	// the tool could not be run at all or the context was cancelled.
	Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) (int, error)

	// RunLines executes the tool and invokes onLine for every line the
	// tool writes to stdout. Stderr is discarded.
	RunLines(ctx context.Context, name string, args []string, onLine func(string)) (int, error)
}

// ExitCodeError carries a tool's non-zero exit code up through the
// pipeline so the process can relay it verbatim.
type ExitCodeError struct {
	Tool string
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d", e.Tool, e.Code)
}

// ExecRunner runs tools via os/exec.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return -1, fmt.Errorf("running %s: %w", name, ctx.Err())
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("running %s: %w", name, err)
	}
	return 0, nil
}

// RunLines implements Runner. Lines are delivered in order; a final
// unterminated line is delivered as well.
func (ExecRunner) RunLines(ctx context.Context, name string, args []string, onLine func(string)) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("running %s: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("running %s: %w", name, err)
	}

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return -1, fmt.Errorf("running %s: %w", name, ctx.Err())
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("running %s: %w", name, err)
	}
	if scanErr != nil {
		return -1, fmt.Errorf("reading %s output: %w", name, scanErr)
	}
	return 0, nil
}

// DotnetTool is the external build/pack/push tool the pipeline drives.
const DotnetTool = "dotnet"

// DotnetArgs assembles a dotnet CLI argument list: the subcommand, its
// own arguments, and the shared configuration/restore/logo/property
// flags. Empty strings in args are skipped so callers can build
// conditional argument lists without juggling slices.
func DotnetArgs(command string, args []string, configuration string, noRestore, noLogo bool, properties []string) []string {
	out := []string{command}
	for _, a := range args {
		if a != "" {
			out = append(out, a)
		}
	}
	if configuration != "" {
		out = append(out, "-c", configuration)
	}
	if noRestore {
		out = append(out, "--no-restore")
	}
	if noLogo {
		out = append(out, "--nologo")
	}
	for _, prop := range properties {
		out = append(out, "/p:"+prop)
	}
	return out
}

// FormatCommandLine renders an argument list for verbose logging,
// quoting arguments containing whitespace.
func FormatCommandLine(name string, args []string) string {
	var b strings.Builder
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(' ')
		if a == "" {
			b.WriteString(`""`)
		} else if strings.ContainsAny(a, " \t") {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(a, `"`, `\"`))
			b.WriteByte('"')
		} else {
			b.WriteString(a)
		}
	}
	return b.String()
}
