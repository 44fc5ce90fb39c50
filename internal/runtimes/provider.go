// SPDX-License-Identifier: MPL-2.0

// Package runtimes obtains the versioned native-binary archive the RID
// flavors are packaged from: download-or-reuse from the cache
// directory, optional license artifacts, zip extraction, and discovery
// of the runtime identifiers present in the extracted tree.
package runtimes

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/packsmith/packsmith/internal/issue"
)

// VersionPlaceholder is the token in URL templates replaced with the
// runtimes version. A template without the token is used as-is.
const VersionPlaceholder = "{version}"

// maxLicenseSPDXBytes bounds the SPDX identifier file read (it holds a
// single short identifier).
const maxLicenseSPDXBytes = 4 << 10

type (
	// Provider downloads and caches runtimes archives. The HTTP client
	// is injected with a per-invocation lifetime rather than shared
	// ambient state.
	Provider struct {
		client   *http.Client
		cacheDir string
		logger   *log.Logger
	}

	// ProviderOption configures a Provider during construction.
	ProviderOption func(*Provider)

	// Options selects what Ensure obtains besides the archive itself.
	Options struct {
		// URLTemplate is the archive URL, optionally containing
		// VersionPlaceholder. Required when a download is needed.
		URLTemplate string
		// LicenseSPDX is a caller-supplied SPDX license expression for
		// RID packages. When set, it takes precedence over the
		// identifier read from LicenseSPDXFileURL.
		LicenseSPDX string
		// LicenseFileURL optionally points at a license file to bundle
		// into RID packages; may contain VersionPlaceholder.
		LicenseFileURL string
		// LicenseSPDXFileURL optionally points at a text file containing
		// an SPDX identifier; may contain VersionPlaceholder.
		LicenseSPDXFileURL string
		// ForceDownload re-downloads even when a cached archive exists.
		ForceDownload bool
	}

	// License is the license declaration applied to RID packages. When
	// both fields are set, SPDX supplies the license expression and the
	// file is still bundled.
	License struct {
		SPDX     string
		FilePath string
	}
)

// WithHTTPClient sets a custom HTTP client, useful for tests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// WithLogger sets the logger for verbose progress output.
func WithLogger(l *log.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a Provider storing downloads under cacheDir.
func NewProvider(cacheDir string, opts ...ProviderOption) *Provider {
	p := &Provider{
		client:   http.DefaultClient,
		cacheDir: cacheDir,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ArchivePath returns the cache path for the given version's archive.
func (p *Provider) ArchivePath(version string) string {
	return filepath.Join(p.cacheDir, "runtimes."+version)
}

// Ensure makes the archive for the given version available in the
// cache directory, downloading it when absent or when a re-download is
// forced, and obtains the license artifacts configured in opts.
//
// License artifacts are only fetched together with the archive; a run
// that reuses the cached archive reuses the caller-supplied SPDX
// expression alone.
func (p *Provider) Ensure(ctx context.Context, version string, opts Options) (string, License, error) {
	lic := License{SPDX: opts.LicenseSPDX}
	archivePath := p.ArchivePath(version)

	if !opts.ForceDownload {
		if _, err := os.Stat(archivePath); err == nil {
			p.logger.Debug("cached runtimes archive found", "path", archivePath)
			return archivePath, lic, nil
		}
		p.logger.Debug("no cached runtimes archive", "path", archivePath)
	}

	if strings.TrimSpace(opts.URLTemplate) == "" {
		return "", License{}, issue.NewErrorContext(issue.KindConfig).
			WithOperation("resolve runtimes URL").
			WithSuggestion("Provide --runtimes-url or set 'runtimesUrl' in the config").
			WithSuggestion("The template may contain '" + VersionPlaceholder + "' for the version").
			WithDoc(issue.RuntimesConfigId).
			BuildError()
	}

	archiveURL, err := expandURL(opts.URLTemplate, version)
	if err != nil {
		return "", License{}, err
	}

	p.logger.Debug("downloading runtimes archive", "url", archiveURL)
	if err := p.downloadFile(ctx, archiveURL, archivePath); err != nil {
		return "", License{}, err
	}
	p.logger.Debug("runtimes archive saved", "path", archivePath)

	if opts.LicenseFileURL != "" {
		licURL, err := expandURL(opts.LicenseFileURL, version)
		if err != nil {
			return "", License{}, err
		}
		lic.FilePath = filepath.Join(p.cacheDir, licenseFileName(licURL))
		p.logger.Debug("downloading license file", "url", licURL)
		if err := p.downloadFile(ctx, licURL, lic.FilePath); err != nil {
			return "", License{}, err
		}
	}

	if lic.SPDX == "" && opts.LicenseSPDXFileURL != "" {
		spdxURL, err := expandURL(opts.LicenseSPDXFileURL, version)
		if err != nil {
			return "", License{}, err
		}
		p.logger.Debug("downloading license SPDX file", "url", spdxURL)
		spdx, err := p.downloadString(ctx, spdxURL)
		if err != nil {
			return "", License{}, err
		}
		lic.SPDX = strings.TrimSpace(spdx)
		p.logger.Debug("license SPDX identifier read", "spdx", lic.SPDX)
	}

	if lic.FilePath != "" && lic.SPDX != "" {
		p.logger.Debug("both license SPDX identifier and license file set; " +
			"the SPDX identifier becomes the license expression and the file is still bundled")
	}

	return archivePath, lic, nil
}

// expandURL substitutes the version into the template and validates the
// result as an absolute http(s) URL.
func expandURL(template, version string) (string, error) {
	raw := strings.ReplaceAll(template, VersionPlaceholder, version)
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return "", issue.NewErrorContext(issue.KindConfig).
			WithOperation("parse runtimes URL").
			WithResource(raw).
			WithSuggestion("The value must be an absolute http(s) URL").
			WrapCause(err).
			BuildError()
	}
	return raw, nil
}

// licenseFileName derives the cache file name for a license URL,
// falling back to LICENSE when the URL path has no usable base name.
func licenseFileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "LICENSE"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "LICENSE"
	}
	return name
}

func (p *Provider) downloadFile(ctx context.Context, rawURL, dest string) error {
	body, err := p.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return issue.WrapResource(err, issue.KindIO, "create download target", dest)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dest)
		return issue.WrapResource(err, issue.KindNetwork, "download", rawURL)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return issue.WrapResource(err, issue.KindIO, "write download target", dest)
	}
	return nil
}

func (p *Provider) downloadString(ctx context.Context, rawURL string) (string, error) {
	body, err := p.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxLicenseSPDXBytes))
	if err != nil {
		return "", issue.WrapResource(err, issue.KindNetwork, "download", rawURL)
	}
	return string(data), nil
}

func (p *Provider) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, issue.WrapResource(err, issue.KindNetwork, "request", rawURL)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, issue.WrapResource(err, issue.KindNetwork, "download", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, issue.WrapResource(
			fmt.Errorf("unexpected status %d", resp.StatusCode),
			issue.KindNetwork, "download", rawURL)
	}
	return resp.Body, nil
}

// Extract unpacks the zip archive at archivePath into destDir, guarding
// against entries that would escape the destination.
func Extract(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return issue.WrapResource(err, issue.KindIO, "extract runtimes archive", archivePath)
	}
	defer r.Close()

	for _, f := range r.File {
		destPath := filepath.Join(destDir, filepath.FromSlash(f.Name))

		rel, err := filepath.Rel(destDir, destPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			return issue.WrapResource(
				fmt.Errorf("entry %q escapes the extraction directory", f.Name),
				issue.KindIO, "extract runtimes archive", archivePath)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return issue.WrapResource(err, issue.KindIO, "extract runtimes archive", archivePath)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return issue.WrapResource(err, issue.KindIO, "extract runtimes archive", archivePath)
		}
		if err := extractFile(f, destPath); err != nil {
			return issue.WrapResource(err, issue.KindIO, "extract runtimes archive", archivePath)
		}
	}
	return nil
}

func extractFile(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode()
	if mode == 0 {
		mode = 0o644
	}
	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dest, rc); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}
