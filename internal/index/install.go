package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"

	"github.com/gumo-py/gumo-logging/internal/dist"
)

// ReleaseFile is one downloadable artifact of a release.
type ReleaseFile struct {
	Filename    string            `json:"filename"`
	URL         string            `json:"url"`
	PackageType string            `json:"packagetype"`
	Size        int64             `json:"size"`
	Digests     map[string]string `json:"digests"`
}

// ProjectMetadata is the JSON document the index serves per package.
type ProjectMetadata struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"info"`
	Releases map[string][]ReleaseFile `json:"releases"`
}

// Metadata fetches the package's metadata document from the index.
func (c *Client) Metadata(ctx context.Context, name string) (*ProjectMetadata, error) {
	endpoint := strings.TrimSuffix(c.Index.BaseURL, "/") + "/pypi/" + dist.NormalizeName(name) + "/json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "failed to build metadata request")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to fetch metadata from %s", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, eris.Errorf("package %s not found on %s", name, c.Index.BaseURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("metadata request to %s failed: %s", endpoint, resp.Status)
	}

	var metadata ProjectMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, eris.Wrapf(err, "failed to parse metadata from %s", endpoint)
	}

	return &metadata, nil
}

// Install downloads the package's wheel from the index, verifies its
// checksum and unpacks it into siteDir. An empty version installs the
// newest release.
func (c *Client) Install(ctx context.Context, name, version, siteDir string) (string, error) {
	metadata, err := c.Metadata(ctx, name)
	if err != nil {
		return "", err
	}

	if version == "" {
		version, err = latestVersion(metadata)
		if err != nil {
			return "", eris.Wrapf(err, "could not pick a version of %s", name)
		}
	}

	files, ok := metadata.Releases[version]
	if !ok {
		return "", eris.Errorf("version %s of %s not found on %s", version, name, c.Index.BaseURL)
	}

	var wheel *ReleaseFile
	for idx, file := range files {
		if file.PackageType == "bdist_wheel" {
			wheel = &files[idx]
			break
		}
	}
	if wheel == nil {
		return "", eris.Errorf("release %s %s has no wheel", name, version)
	}

	archivePath, err := c.download(ctx, wheel)
	if err != nil {
		return "", err
	}
	defer os.Remove(archivePath)

	if err := os.MkdirAll(siteDir, 0770); err != nil {
		return "", eris.Wrapf(err, "failed to create %s", siteDir)
	}

	if err := dist.Extract(archivePath, siteDir, 0); err != nil {
		return "", eris.Wrapf(err, "failed to unpack %s", wheel.Filename)
	}

	return version, nil
}

// InstallLocal unpacks a locally built wheel into siteDir, the way the
// test task installs the artifact it just built.
func InstallLocal(wheelPath, siteDir string) error {
	if err := os.MkdirAll(siteDir, 0770); err != nil {
		return eris.Wrapf(err, "failed to create %s", siteDir)
	}

	return dist.Extract(wheelPath, siteDir, 0)
}

func (c *Client) download(ctx context.Context, file *ReleaseFile) (string, error) {
	target := file.URL
	if !strings.Contains(target, "://") {
		base, err := url.Parse(c.Index.BaseURL)
		if err != nil {
			return "", eris.Wrapf(err, "invalid index URL %s", c.Index.BaseURL)
		}

		rel, err := url.Parse(target)
		if err != nil {
			return "", eris.Wrapf(err, "invalid artifact URL %s", target)
		}
		target = base.ResolveReference(rel).String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", eris.Wrap(err, "failed to build download request")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "failed to download %s", target)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("download of %s failed: %s", target, resp.Status)
	}

	handle, err := os.CreateTemp("", "gumo-dl-*-"+file.Filename)
	if err != nil {
		return "", eris.Wrap(err, "failed to create download file")
	}

	hash := sha256.New()
	bar := progress(resp.ContentLength, "    download "+file.Filename)
	_, err = io.Copy(io.MultiWriter(handle, hash, bar), resp.Body)
	bar.Finish()
	if cerr := handle.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(handle.Name())
		return "", eris.Wrapf(err, "failed during download of %s", target)
	}

	if expected := file.Digests["sha256"]; expected != "" {
		digest := hex.EncodeToString(hash.Sum(nil))
		if digest != expected {
			os.Remove(handle.Name())
			return "", eris.Errorf("checksum mismatch for %s: got %s, want %s", file.Filename, digest, expected)
		}
	}

	// keep the artifact suffix so the extractor can detect the format
	renamed := handle.Name()
	if !strings.HasSuffix(renamed, filepath.Ext(file.Filename)) {
		renamed = fmt.Sprintf("%s%s", handle.Name(), filepath.Ext(file.Filename))
		if err := os.Rename(handle.Name(), renamed); err != nil {
			os.Remove(handle.Name())
			return "", eris.Wrap(err, "failed to rename download")
		}
	}

	return renamed, nil
}

func latestVersion(metadata *ProjectMetadata) (string, error) {
	var newest *semver.Version
	var raw string

	for candidate := range metadata.Releases {
		version, err := semver.StrictNewVersion(candidate)
		if err != nil {
			continue
		}

		if newest == nil || version.GreaterThan(newest) {
			newest = version
			raw = candidate
		}
	}

	if newest == nil {
		return "", eris.New("no installable releases")
	}

	return raw, nil
}
