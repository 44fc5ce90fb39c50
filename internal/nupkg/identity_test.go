// SPDX-License-Identifier: MPL-2.0

package nupkg

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

// writePackage builds a minimal .nupkg on disk with the given entries.
func writePackage(t *testing.T, name string, entries map[string]string) string {
	t.Helper()

	pkgPath := filepath.Join(t.TempDir(), name)
	f, err := os.Create(pkgPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for entryName, content := range entries {
		ew, err := w.Create(entryName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ew.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return pkgPath
}

const validNuspec = `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">
  <metadata>
    <id>Example.Native</id>
    <version>1.02.3.0</version>
    <authors>example</authors>
  </metadata>
</package>`

func TestReadIdentity(t *testing.T) {
	t.Parallel()

	pkg := writePackage(t, "example.nupkg", map[string]string{
		"Example.Native.nuspec":                   validNuspec,
		"runtimes/linux-x64/native/libexample.so": "\x7fELF",
	})

	ident, err := ReadIdentity(pkg)
	if err != nil {
		t.Fatalf("ReadIdentity: %v", err)
	}
	if ident.ID != "Example.Native" {
		t.Errorf("ID = %q, want %q", ident.ID, "Example.Native")
	}
	if ident.Version != "1.2.3" {
		t.Errorf("Version = %q, want normalized %q", ident.Version, "1.2.3")
	}
}

func TestReadIdentity_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries map[string]string
	}{
		{
			name:    "no manifest",
			entries: map[string]string{"readme.txt": "hello"},
		},
		{
			name: "manifest not at root",
			entries: map[string]string{
				"nested/Example.nuspec": validNuspec,
			},
		},
		{
			name: "missing version",
			entries: map[string]string{
				"Example.nuspec": `<package><metadata><id>Example</id></metadata></package>`,
			},
		},
		{
			name: "malformed xml",
			entries: map[string]string{
				"Example.nuspec": `<package><metadata>`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pkg := writePackage(t, "bad.nupkg", tt.entries)
			if _, err := ReadIdentity(pkg); err == nil {
				t.Error("ReadIdentity succeeded, want error")
			}
		})
	}
}

func TestReadIdentity_NotAZip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "junk.nupkg")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadIdentity(path); err == nil {
		t.Error("ReadIdentity succeeded on non-zip file, want error")
	}
}

func TestNormalizeVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"1.0", "1.0.0"},
		{"1", "1.0.0"},
		{"1.0.0", "1.0.0"},
		{"01.02.03", "1.2.3"},
		{"1.0.0.0", "1.0.0"},
		{"1.0.0.5", "1.0.0.5"},
		{"1.0.0-beta", "1.0.0-beta"},
		{"1.0.0-BETA.1", "1.0.0-BETA.1"},
		{"1.0.0+build.5", "1.0.0"},
		{"1.0.0-rc.1+sha.abc", "1.0.0-rc.1"},
		{"  1.2.3 ", "1.2.3"},
		// Unparseable numerics pass through (minus metadata).
		{"weird", "weird"},
		{"1.x.3", "1.x.3"},
		{"1.2.3.4.5", "1.2.3.4.5"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			if got := NormalizeVersion(tt.in); got != tt.want {
				t.Errorf("NormalizeVersion(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
