// Package tools provisions the pinned helper toolchain the pipeline
// needs: the setup task's equivalent of creating an isolated environment
// and installing the packaging tools into it.
package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/gumo-py/gumo-logging/internal/dist"
)

// Spec pins one downloadable tool.
type Spec struct {
	Condition  string   `yaml:"if,omitempty"`
	Rejections string   `yaml:"ifNot,omitempty"`
	URL        string   `yaml:"url"`
	Dest       string   `yaml:"dest"`
	Sha256     string   `yaml:"sha256"`
	Strip      int      `yaml:"strip,omitempty"`
	MarkExec   []string `yaml:"markExec,omitempty"`
}

// Manifest is the TOOLS.yml document.
type Manifest struct {
	Vars  map[string]string `yaml:"vars"`
	Tools map[string]Spec   `yaml:"tools"`
}

// ManifestName is the file the setup task reads from the project root.
const ManifestName = "TOOLS.yml"

const stampName = ".tools/stamps.json"

// Fetch downloads, verifies and unpacks every tool whose conditions match
// the current platform. Tools whose stamp (URL + checksum) hasn't changed
// and whose destination still exists are skipped.
func Fetch(ctx context.Context, projectRoot string) error {
	manifestPath := filepath.Join(projectRoot, ManifestName)
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return eris.Wrapf(err, "could not open %s", manifestPath)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return eris.Wrapf(err, "failed to parse %s", manifestPath)
	}

	stamps, err := readStamps(projectRoot)
	if err != nil {
		return err
	}

	vars := platformVars(manifest.Vars)

	client := &http.Client{Timeout: 30 * time.Minute}
	for name, spec := range manifest.Tools {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !conditionsMatch(&spec, vars) {
			continue
		}

		destPath := filepath.Join(projectRoot, spec.Dest)
		_, err := os.Stat(destPath)
		destExists := err == nil

		stampToken := spec.URL + "#" + spec.Sha256
		if stamps[name] == stampToken && destExists {
			continue
		}

		if spec.Sha256 == "" {
			return eris.Errorf("tool %s doesn't have a checksum", name)
		}

		if err := fetchOne(ctx, client, projectRoot, name, spec); err != nil {
			return err
		}

		stamps[name] = stampToken
	}

	return writeStamps(projectRoot, stamps)
}

func fetchOne(ctx context.Context, client *http.Client, projectRoot, name string, spec Spec) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return eris.Wrapf(err, "invalid URL for tool %s", name)
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "failed to start download for %s", spec.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download of %s failed: %s", spec.URL, resp.Status)
	}

	archive, err := os.CreateTemp("", "gumo-tool-*"+archiveSuffix(spec.URL))
	if err != nil {
		return eris.Wrap(err, "failed to create download file")
	}
	defer os.Remove(archive.Name())

	hash := sha256.New()
	bar := newBar(resp.ContentLength, "    download "+name)
	_, err = io.Copy(io.MultiWriter(archive, hash, bar), resp.Body)
	bar.Finish()
	if cerr := archive.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return eris.Wrapf(err, "failed during download of %s", spec.URL)
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	if digest != spec.Sha256 {
		return eris.Errorf("checksum mismatch for %s: got %s, want %s", name, digest, spec.Sha256)
	}

	destPath := filepath.Join(projectRoot, spec.Dest)
	if err := os.RemoveAll(destPath); err != nil {
		return eris.Wrapf(err, "failed to remove stale %s", destPath)
	}
	if err := os.MkdirAll(destPath, 0770); err != nil {
		return eris.Wrapf(err, "failed to create %s", destPath)
	}

	if err := dist.Extract(archive.Name(), destPath, spec.Strip); err != nil {
		return eris.Wrapf(err, "failed to unpack tool %s", name)
	}

	// zip archives don't carry permissions, so binaries have to be marked
	// executable explicitly
	if runtime.GOOS != "windows" {
		for _, binPath := range spec.MarkExec {
			binPath = filepath.Join(destPath, binPath)
			info, err := os.Stat(binPath)
			if err != nil {
				return eris.Wrapf(err, "failed to read permissions for %s", binPath)
			}

			if err := os.Chmod(binPath, info.Mode()|0700); err != nil {
				return eris.Wrapf(err, "failed to mark %s as executable", binPath)
			}
		}
	}

	return nil
}

// platformVars merges the manifest vars with the current platform:
// {GOOS}/{GOARCH} URL substitutions plus the truthy markers the if/ifNot
// conditions test against.
func platformVars(manifestVars map[string]string) map[string]string {
	vars := make(map[string]string, len(manifestVars)+5)
	for name, value := range manifestVars {
		vars[name] = value
	}

	vars["goos"] = runtime.GOOS
	vars["goarch"] = runtime.GOARCH
	vars[runtime.GOOS] = "true"
	vars[runtime.GOARCH] = "true"
	if os.Getenv("CI") == "true" {
		vars["ci"] = "true"
	}

	return vars
}

// conditionsMatch evaluates the if/ifNot variable lists and substitutes
// {VAR} placeholders in the URL.
func conditionsMatch(spec *Spec, vars map[string]string) bool {
	for key, value := range vars {
		spec.URL = strings.ReplaceAll(spec.URL, "{"+strings.ToUpper(key)+"}", value)
	}

	for _, condition := range strings.Split(spec.Condition, ",") {
		if condition == "" {
			continue
		}
		if vars[strings.TrimSpace(condition)] == "" {
			return false
		}
	}

	for _, condition := range strings.Split(spec.Rejections, ",") {
		if condition == "" {
			continue
		}
		if vars[strings.TrimSpace(condition)] != "" {
			return false
		}
	}

	return true
}

func archiveSuffix(url string) string {
	for _, suffix := range []string{".tar.gz", ".tgz", ".tar.bz2", ".tar.xz", ".tar.br", ".zip"} {
		if strings.HasSuffix(url, suffix) {
			return suffix
		}
	}
	return filepath.Ext(url)
}

func readStamps(projectRoot string) (map[string]string, error) {
	stamps := map[string]string{}
	stampPath := filepath.Join(projectRoot, stampName)

	content, err := os.ReadFile(stampPath)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return stamps, nil
		}
		return nil, eris.Wrapf(err, "failed to read stamps file %s", stampPath)
	}

	if err := json.Unmarshal(content, &stamps); err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", stampPath)
	}

	return stamps, nil
}

func writeStamps(projectRoot string, stamps map[string]string) error {
	stampPath := filepath.Join(projectRoot, stampName)
	if err := os.MkdirAll(filepath.Dir(stampPath), 0770); err != nil {
		return eris.Wrapf(err, "failed to create %s", filepath.Dir(stampPath))
	}

	content, err := json.Marshal(stamps)
	if err != nil {
		return eris.Wrap(err, "failed to encode stamps")
	}

	return os.WriteFile(stampPath, content, 0660)
}

func newBar(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}
