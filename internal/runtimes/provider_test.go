// SPDX-License-Identifier: MPL-2.0
package runtimes

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/packsmith/packsmith/internal/issue"
)

// buildArchive produces a zip archive with the given entries, where a
// trailing slash in the name marks a directory.
func buildArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		if name[len(name)-1] == '/' {
			if _, err := w.Create(name); err != nil {
				t.Fatalf("create dir entry %q: %v", name, err)
			}
			continue
		}
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %q: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %q: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

func TestEnsureDownloadsArchive(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{
		"runtimes/linux-x64/native/libthing.so": "elf",
	})

	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		w.Write(archive)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	p := NewProvider(cacheDir, WithHTTPClient(srv.Client()))

	got, lic, err := p.Ensure(context.Background(), "1.2.3", Options{
		URLTemplate: srv.URL + "/archives/{version}.zip",
	})
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if want := filepath.Join(cacheDir, "runtimes.1.2.3"); got != want {
		t.Errorf("Ensure() path = %q, want %q", got, want)
	}
	if lic.SPDX != "" || lic.FilePath != "" {
		t.Errorf("Ensure() license = %+v, want empty", lic)
	}
	if len(requested) != 1 || requested[0] != "/archives/1.2.3.zip" {
		t.Errorf("requested paths = %v, want [/archives/1.2.3.zip]", requested)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if !bytes.Equal(data, archive) {
		t.Error("downloaded archive differs from served content")
	}
}

func TestEnsureReusesCachedArchive(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected download for cached archive")
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	cached := filepath.Join(cacheDir, "runtimes.2.0.0")
	if err := os.WriteFile(cached, []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewProvider(cacheDir, WithHTTPClient(srv.Client()))
	got, _, err := p.Ensure(context.Background(), "2.0.0", Options{
		URLTemplate: srv.URL + "/{version}.zip",
	})
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if got != cached {
		t.Errorf("Ensure() path = %q, want %q", got, cached)
	}
}

func TestEnsureForceRedownloads(t *testing.T) {
	t.Parallel()

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	cached := filepath.Join(cacheDir, "runtimes.2.0.0")
	if err := os.WriteFile(cached, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewProvider(cacheDir, WithHTTPClient(srv.Client()))
	got, _, err := p.Ensure(context.Background(), "2.0.0", Options{
		URLTemplate:   srv.URL + "/{version}.zip",
		ForceDownload: true,
	})
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if hits != 1 {
		t.Errorf("server hits = %d, want 1", hits)
	}
	data, _ := os.ReadFile(got)
	if string(data) != "fresh" {
		t.Errorf("archive content = %q, want %q", data, "fresh")
	}
}

func TestEnsureMissingURLTemplate(t *testing.T) {
	t.Parallel()

	p := NewProvider(t.TempDir())
	_, _, err := p.Ensure(context.Background(), "1.0.0", Options{})
	if err == nil {
		t.Fatal("Ensure() error = nil, want config error")
	}
	if got := issue.KindOf(err); got != issue.KindConfig {
		t.Errorf("KindOf(err) = %v, want %v", got, issue.KindConfig)
	}
}

func TestEnsureInvalidURL(t *testing.T) {
	t.Parallel()

	p := NewProvider(t.TempDir())
	for _, template := range []string{"not-a-url", "ftp://host/{version}", "/relative/{version}"} {
		_, _, err := p.Ensure(context.Background(), "1.0.0", Options{URLTemplate: template})
		if err == nil {
			t.Errorf("Ensure(%q) error = nil, want config error", template)
			continue
		}
		if got := issue.KindOf(err); got != issue.KindConfig {
			t.Errorf("Ensure(%q) kind = %v, want %v", template, got, issue.KindConfig)
		}
	}
}

func TestEnsureDownloadFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	p := NewProvider(cacheDir, WithHTTPClient(srv.Client()))
	_, _, err := p.Ensure(context.Background(), "1.0.0", Options{
		URLTemplate: srv.URL + "/{version}.zip",
	})
	if err == nil {
		t.Fatal("Ensure() error = nil, want network error")
	}
	if got := issue.KindOf(err); got != issue.KindNetwork {
		t.Errorf("KindOf(err) = %v, want %v", got, issue.KindNetwork)
	}
}

func TestEnsureLicenseArtifacts(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{"runtimes/": ""})
	mux := http.NewServeMux()
	mux.HandleFunc("/archive/1.0.0.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	mux.HandleFunc("/license/1.0.0/COPYING.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("license text"))
	})
	mux.HandleFunc("/spdx/1.0.0", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  MIT \n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cacheDir := t.TempDir()
	p := NewProvider(cacheDir, WithHTTPClient(srv.Client()))
	_, lic, err := p.Ensure(context.Background(), "1.0.0", Options{
		URLTemplate:        srv.URL + "/archive/{version}.zip",
		LicenseFileURL:     srv.URL + "/license/{version}/COPYING.txt",
		LicenseSPDXFileURL: srv.URL + "/spdx/{version}",
	})
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if want := filepath.Join(cacheDir, "COPYING.txt"); lic.FilePath != want {
		t.Errorf("license file = %q, want %q", lic.FilePath, want)
	}
	data, err := os.ReadFile(lic.FilePath)
	if err != nil {
		t.Fatalf("read license file: %v", err)
	}
	if string(data) != "license text" {
		t.Errorf("license content = %q, want %q", data, "license text")
	}
	if lic.SPDX != "MIT" {
		t.Errorf("license SPDX = %q, want %q", lic.SPDX, "MIT")
	}
}

func TestEnsureExplicitSPDXSkipsFile(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/archive.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("zip"))
	})
	mux.HandleFunc("/spdx", func(w http.ResponseWriter, r *http.Request) {
		t.Error("SPDX file fetched despite explicit identifier")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewProvider(t.TempDir(), WithHTTPClient(srv.Client()))
	_, lic, err := p.Ensure(context.Background(), "1.0.0", Options{
		URLTemplate:        srv.URL + "/archive.zip",
		LicenseSPDX:        "Apache-2.0",
		LicenseSPDXFileURL: srv.URL + "/spdx",
	})
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if lic.SPDX != "Apache-2.0" {
		t.Errorf("license SPDX = %q, want %q", lic.SPDX, "Apache-2.0")
	}
}

func TestLicenseFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{"https://host/path/LICENSE.md", "LICENSE.md"},
		{"https://host/path/", "path"},
		{"https://host/", "LICENSE"},
		{"https://host", "LICENSE"},
	}
	for _, tt := range tests {
		if got := licenseFileName(tt.url); got != tt.want {
			t.Errorf("licenseFileName(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{
		"runtimes/linux-x64/native/libthing.so": "elf",
		"runtimes/win-x64/native/thing.dll":     "pe",
		"README.md":                             "docs",
	})
	archivePath := filepath.Join(t.TempDir(), "runtimes.1.0.0")
	if err := os.WriteFile(archivePath, archive, 0o644); err != nil {
		t.Fatal(err)
	}

	destDir := t.TempDir()
	if err := Extract(archivePath, destDir); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(destDir, "runtimes", "linux-x64", "native", "libthing.so"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(data) != "elf" {
		t.Errorf("extracted content = %q, want %q", data, "elf")
	}
}

func TestExtractRejectsEscapingEntry(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{
		"../escape.txt": "nope",
	})
	archivePath := filepath.Join(t.TempDir(), "runtimes.bad")
	if err := os.WriteFile(archivePath, archive, 0o644); err != nil {
		t.Fatal(err)
	}

	err := Extract(archivePath, t.TempDir())
	if err == nil {
		t.Fatal("Extract() error = nil, want escape rejection")
	}
	var actionable *issue.ActionableError
	if !errors.As(err, &actionable) {
		t.Errorf("Extract() error = %v, want *issue.ActionableError", err)
	}
}

func TestDiscoverInventory(t *testing.T) {
	t.Parallel()

	extractDir := t.TempDir()
	mustWrite := func(parts ...string) {
		t.Helper()
		p := filepath.Join(append([]string{extractDir}, parts...)...)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("runtimes", "win-x64", "native", "thing.dll")
	mustWrite("runtimes", "win-x64", "native", "aaa.pdb")
	mustWrite("runtimes", "Linux-X64", "native", "libthing.so")
	mustWrite("runtimes", "osx-arm64", "notes.txt")
	mustWrite("runtimes", "stray-file")

	inv, err := DiscoverInventory(extractDir)
	if err != nil {
		t.Fatalf("DiscoverInventory() error = %v", err)
	}

	want := []string{"linux-x64", "osx-arm64", "win-x64"}
	got := inv.RIDs()
	if len(got) != len(want) {
		t.Fatalf("RIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("RIDs() = %v, want %v", got, want)
		}
	}

	if p, ok := inv.NativeFile("win-x64"); !ok || filepath.Base(p) != "aaa.pdb" {
		t.Errorf("NativeFile(win-x64) = %q, %v; want aaa.pdb, true", p, ok)
	}
	if p, ok := inv.NativeFile("LINUX-X64"); !ok || filepath.Base(p) != "libthing.so" {
		t.Errorf("NativeFile(LINUX-X64) = %q, %v; want libthing.so, true", p, ok)
	}
	if _, ok := inv.NativeFile("osx-arm64"); ok {
		t.Error("NativeFile(osx-arm64) ok = true, want false for RID without native payload")
	}
}

func TestDiscoverInventoryMissingRoot(t *testing.T) {
	t.Parallel()

	if _, err := DiscoverInventory(t.TempDir()); err == nil {
		t.Fatal("DiscoverInventory() error = nil, want missing runtimes dir error")
	}
}
