// SPDX-License-Identifier: MPL-2.0

// Package packer produces the package set for a release: the core
// package from the project file, one native package per runtime
// identifier, and a meta package depending on the rest. RID and meta
// packages are packed from ephemeral project descriptors generated into
// the temp directory.
package packer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/packsmith/packsmith/internal/execx"
	"github.com/packsmith/packsmith/internal/flavor"
	"github.com/packsmith/packsmith/internal/issue"
	"github.com/packsmith/packsmith/internal/nupkg"
	"github.com/packsmith/packsmith/internal/runtimes"
)

// Packer packs the resolved flavor set in a fixed order: core first,
// then RID packages in discovery order, then meta. The ordering is a
// contract; later descriptors reference the identities of earlier
// artifacts.
type Packer struct {
	Runner execx.Runner
	Logger *log.Logger

	// Stdout and Stderr receive the pack tool's output; they default to
	// the process streams.
	Stdout io.Writer
	Stderr io.Writer

	OutputDir     string
	TempDir       string
	ProjectFile   string
	Configuration string

	Defines    []string
	Properties []string

	NoRestore bool
	NoLogo    bool
	NoSymbols bool
	Strict    bool

	License runtimes.License
}

// Run packs every flavor in the resolution and returns the produced
// artifacts in packing order. In strict mode, RIDs without a native
// binary fail the run before anything is packed; otherwise they are
// skipped with a warning.
func (p *Packer) Run(ctx context.Context, res flavor.Resolution, inv *runtimes.Inventory) ([]flavor.Artifact, error) {
	if p.Strict {
		for _, rid := range res.RIDs {
			if _, ok := inv.NativeFile(rid); !ok {
				return nil, missingNativeError(rid)
			}
		}
	}

	var artifacts []flavor.Artifact

	if res.Core {
		p.Logger.Info("packing core package", "project", p.ProjectFile)
		art, err := p.packCore(ctx, artifacts)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, art)
		p.Logger.Debug("core package packed", "path", art.Path, "id", art.ID, "version", art.Version)
	}

	var core *flavor.Artifact
	if res.Core {
		core = &artifacts[0]
	}

	for _, rid := range res.RIDs {
		nativeFile, ok := inv.NativeFile(rid)
		if !ok {
			p.Logger.Warn("missing native binary, skipping RID package", "rid", rid)
			continue
		}
		p.Logger.Info("packing RID package", "rid", rid)
		art, err := p.packRID(ctx, rid, nativeFile, core, artifacts)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, art)
		p.Logger.Debug("RID package packed", "rid", rid, "path", art.Path, "id", art.ID, "version", art.Version)
	}

	if res.Meta {
		p.Logger.Info("packing meta package")
		art, err := p.packMeta(ctx, core, artifacts)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, art)
		p.Logger.Debug("meta package packed", "path", art.Path, "id", art.ID, "version", art.Version)
	}

	return artifacts, nil
}

func (p *Packer) packCore(ctx context.Context, known []flavor.Artifact) (flavor.Artifact, error) {
	extra := []string{p.ProjectFile, "-o", p.OutputDir}
	if len(p.Defines) > 0 {
		extra = append(extra, "/p:DefineConstants="+strings.Join(p.Defines, ";"))
	}
	if !p.NoSymbols {
		extra = append(extra, "-p:IncludeSymbols=true", "-p:SymbolPackageFormat=snupkg")
	}
	return p.pack(ctx, flavor.Core(), extra, known)
}

func (p *Packer) packRID(ctx context.Context, rid, nativeFile string, core *flavor.Artifact, known []flavor.Artifact) (flavor.Artifact, error) {
	descriptor := filepath.Join(p.TempDir, rid+".csproj")
	if err := os.WriteFile(descriptor, []byte(ridDescriptor(rid, nativeFile, core, p.License)), 0o644); err != nil {
		return flavor.Artifact{}, issue.WrapResource(err, issue.KindIO, "write package descriptor", descriptor)
	}
	return p.pack(ctx, flavor.RID(rid), []string{descriptor, "-o", p.OutputDir, "--no-build"}, known)
}

func (p *Packer) packMeta(ctx context.Context, core *flavor.Artifact, known []flavor.Artifact) (flavor.Artifact, error) {
	deps := metaDependencies(core, known)
	if len(deps) == 0 {
		p.Logger.Warn("meta package will have no dependencies")
	}

	descriptor := filepath.Join(p.TempDir, "meta.csproj")
	if err := os.WriteFile(descriptor, []byte(metaDescriptor(deps)), 0o644); err != nil {
		return flavor.Artifact{}, issue.WrapResource(err, issue.KindIO, "write package descriptor", descriptor)
	}
	return p.pack(ctx, flavor.Meta(), []string{descriptor, "-o", p.OutputDir, "--no-build"}, known)
}

// pack runs the pack tool and identifies the artifact it produced by
// diffing the output directory against the already known artifacts.
func (p *Packer) pack(ctx context.Context, f flavor.Flavor, extra []string, known []flavor.Artifact) (flavor.Artifact, error) {
	args := execx.DotnetArgs("pack", extra, p.Configuration, p.NoRestore, p.NoLogo, p.Properties)
	p.Logger.Debug("running pack", "cmd", execx.FormatCommandLine(execx.DotnetTool, args))

	stdout, stderr := p.Stdout, p.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	code, err := p.Runner.Run(ctx, execx.DotnetTool, args, stdout, stderr)
	if err != nil {
		return flavor.Artifact{}, issue.Wrap(err, issue.KindTool, "pack "+f.String())
	}
	if code != 0 {
		return flavor.Artifact{}, issue.Wrap(
			&execx.ExitCodeError{Tool: execx.DotnetTool, Code: code},
			issue.KindTool, "pack "+f.String())
	}

	path, err := p.newArtifactPath(known)
	if err != nil {
		return flavor.Artifact{}, err
	}
	identity, err := nupkg.ReadIdentity(path)
	if err != nil {
		return flavor.Artifact{}, err
	}
	return flavor.Artifact{Flavor: f, Path: path, ID: identity.ID, Version: identity.Version}, nil
}

// newArtifactPath returns the first package in the output directory, in
// name order, that no prior pack step produced.
func (p *Packer) newArtifactPath(known []flavor.Artifact) (string, error) {
	matches, err := filepath.Glob(filepath.Join(p.OutputDir, "*.nupkg"))
	if err != nil {
		return "", issue.WrapResource(err, issue.KindIO, "scan output directory", p.OutputDir)
	}
	sort.Strings(matches)

	seen := make(map[string]bool, len(known))
	for _, art := range known {
		seen[art.Path] = true
	}
	for _, match := range matches {
		if !seen[match] {
			return match, nil
		}
	}
	return "", issue.NewErrorContext(issue.KindIntegrity).
		WithOperation("locate packed artifact").
		WithResource(p.OutputDir).
		WithSuggestion("Check the pack output for errors").
		WithDoc(issue.ArtifactIdentityId).
		BuildError()
}

// metaDependencies selects the packages the meta package depends on:
// the core package when it is the only artifact, otherwise every RID
// artifact.
func metaDependencies(core *flavor.Artifact, artifacts []flavor.Artifact) []flavor.Artifact {
	switch {
	case len(artifacts) == 0:
		return nil
	case len(artifacts) == 1 && core != nil:
		return artifacts
	case core != nil:
		return artifacts[1:]
	default:
		return artifacts
	}
}

func missingNativeError(rid string) error {
	return issue.NewErrorContext(issue.KindTool).
		WithOperation("verify native binaries").
		WithResource(rid).
		WithSuggestion("Check the runtimes archive contains 'runtimes/" + rid + "/" + runtimes.NativeDirName + "'").
		WithSuggestion("Drop --strict to skip RIDs without a native binary").
		WithDoc(issue.MissingNativeBinaryId).
		BuildError()
}

func ridDescriptor(rid, nativeFile string, core *flavor.Artifact, lic runtimes.License) string {
	var b strings.Builder
	b.WriteString("<!-- Generated by packsmith. Do not edit. -->\n")
	b.WriteString("<Project Sdk=\"Microsoft.NET.Sdk\">\n")
	b.WriteString("    <PropertyGroup>\n")
	b.WriteString("        <IsPackable>true</IsPackable>\n")
	b.WriteString("        <IncludeBuildOutput>false</IncludeBuildOutput>\n")
	b.WriteString("        <NoBuild>true</NoBuild>\n")
	b.WriteString("        <!-- use Condition=\"'$(PacksmithFlavor)' == 'rid'\" in your \"Directory.Build.targets\" -->\n")
	b.WriteString("        <PacksmithFlavor>rid</PacksmithFlavor>\n")
	fmt.Fprintf(&b, "        <!-- use Condition=\"'$(PacksmithFlavorRid)' == '%s'\" in your \"Directory.Build.targets\" -->\n", rid)
	fmt.Fprintf(&b, "        <PacksmithFlavorRid>%s</PacksmithFlavorRid>\n", rid)
	switch {
	case lic.SPDX != "":
		fmt.Fprintf(&b, "        <PackageLicenseExpression>%s</PackageLicenseExpression>\n", lic.SPDX)
	case lic.FilePath != "":
		fmt.Fprintf(&b, "        <PackageLicenseFile>%s</PackageLicenseFile>\n", filepath.Base(lic.FilePath))
	}
	b.WriteString("    </PropertyGroup>\n")
	b.WriteString("    <ItemGroup>\n")
	if core != nil {
		fmt.Fprintf(&b, "        %s\n", packageReference(*core))
	}
	fmt.Fprintf(&b, "        <None Include=\"%s\" Pack=\"true\" PackagePath=\"runtimes/%s/native\" />\n",
		slashAbs(nativeFile), rid)
	if lic.FilePath != "" {
		fmt.Fprintf(&b, "        <None Include=\"%s\" Pack=\"true\" PackagePath=\"%s\" />\n",
			slashAbs(lic.FilePath), filepath.Base(lic.FilePath))
	}
	b.WriteString("    </ItemGroup>\n")
	b.WriteString("</Project>\n")
	return b.String()
}

func metaDescriptor(deps []flavor.Artifact) string {
	var b strings.Builder
	b.WriteString("<!-- Generated by packsmith. Do not edit. -->\n")
	b.WriteString("<Project Sdk=\"Microsoft.NET.Sdk\">\n")
	b.WriteString("    <PropertyGroup>\n")
	b.WriteString("        <IsPackable>true</IsPackable>\n")
	b.WriteString("        <IncludeBuildOutput>false</IncludeBuildOutput>\n")
	b.WriteString("        <NoBuild>true</NoBuild>\n")
	b.WriteString("        <!-- use Condition=\"'$(PacksmithFlavor)' == 'meta'\" in your \"Directory.Build.targets\" -->\n")
	b.WriteString("        <PacksmithFlavor>meta</PacksmithFlavor>\n")
	b.WriteString("    </PropertyGroup>\n")
	b.WriteString("    <ItemGroup>\n")
	for _, dep := range deps {
		fmt.Fprintf(&b, "        %s\n", packageReference(dep))
	}
	b.WriteString("    </ItemGroup>\n")
	b.WriteString("</Project>\n")
	return b.String()
}

func packageReference(art flavor.Artifact) string {
	return fmt.Sprintf("<PackageReference Include=%q Version=%q PrivateAssets=\"all\" />", art.ID, art.Version)
}

func slashAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return filepath.ToSlash(abs)
}
