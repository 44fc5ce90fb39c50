// SPDX-License-Identifier: MPL-2.0

// Package nupkg reads package identity from produced .nupkg files.
//
// A .nupkg is a zip archive with exactly one .nuspec manifest; the
// manifest's metadata element carries the package id and version. The
// version is normalized the way the feed normalizes it, so identities
// recorded during packing match what a consumer resolves.
package nupkg

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Identity is a package id plus its normalized version.
type Identity struct {
	ID      string
	Version string
}

type nuspec struct {
	Metadata struct {
		ID      string `xml:"id"`
		Version string `xml:"version"`
	} `xml:"metadata"`
}

// ReadIdentity opens the package file and returns the identity declared
// in its .nuspec manifest. It fails when the archive has no manifest at
// its root or the manifest lacks an id or version.
func ReadIdentity(pkgPath string) (Identity, error) {
	r, err := zip.OpenReader(pkgPath)
	if err != nil {
		return Identity{}, fmt.Errorf("opening package %s: %w", pkgPath, err)
	}
	defer r.Close()

	var manifest *zip.File
	for _, f := range r.File {
		if path.Dir(f.Name) == "." && strings.HasSuffix(strings.ToLower(f.Name), ".nuspec") {
			manifest = f
			break
		}
	}
	if manifest == nil {
		return Identity{}, fmt.Errorf("package %s has no .nuspec manifest", pkgPath)
	}

	rc, err := manifest.Open()
	if err != nil {
		return Identity{}, fmt.Errorf("opening manifest in %s: %w", pkgPath, err)
	}
	defer rc.Close()

	var spec nuspec
	if err := xml.NewDecoder(rc).Decode(&spec); err != nil {
		return Identity{}, fmt.Errorf("decoding manifest in %s: %w", pkgPath, err)
	}

	id := strings.TrimSpace(spec.Metadata.ID)
	version := strings.TrimSpace(spec.Metadata.Version)
	if id == "" || version == "" {
		return Identity{}, fmt.Errorf("package %s manifest is missing id or version", pkgPath)
	}

	return Identity{ID: id, Version: NormalizeVersion(version)}, nil
}

// NormalizeVersion returns the feed-normalized form of a package
// version: leading zeroes removed from numeric segments, exactly three
// segments unless a non-zero fourth is present, build metadata dropped,
// and the pre-release tag preserved verbatim.
//
// Versions that do not parse as dotted numerics are returned unchanged
// (minus build metadata); the feed rejects those later with a clearer
// message than this package could give.
func NormalizeVersion(v string) string {
	v = strings.TrimSpace(v)

	// Build metadata never participates in identity.
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}

	numeric := v
	release := ""
	if i := strings.IndexByte(v, '-'); i >= 0 {
		numeric, release = v[:i], v[i:]
	}

	parts := strings.Split(numeric, ".")
	if len(parts) > 4 {
		return v
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return v
		}
		nums[i] = n
	}
	for len(nums) < 3 {
		nums = append(nums, 0)
	}
	if len(nums) == 4 && nums[3] == 0 {
		nums = nums[:3]
	}

	segs := make([]string, len(nums))
	for i, n := range nums {
		segs[i] = strconv.Itoa(n)
	}
	return strings.Join(segs, ".") + release
}
