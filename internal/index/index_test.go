package index

import (
	"archive/zip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/gumo-py/gumo-logging/internal/dist"
)

// fakeIndex is a minimal package index: uploads, the per-package metadata
// document and artifact downloads.
type fakeIndex struct {
	t        *testing.T
	server   *httptest.Server
	uploads  []map[string]string
	wheel    []byte
	metadata ProjectMetadata
}

func newFakeIndex(t *testing.T) *fakeIndex {
	t.Helper()

	fake := &fakeIndex{t: t}

	router := mux.NewRouter()
	router.HandleFunc("/legacy/", fake.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/pypi/{name}/json", fake.handleMetadata).Methods(http.MethodGet)
	router.HandleFunc("/files/{filename}", fake.handleDownload).Methods(http.MethodGet)

	fake.server = httptest.NewServer(router)
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeIndex) client(username, password string) *Client {
	client := NewClient(Index{
		BaseURL:   f.server.URL,
		UploadURL: f.server.URL + "/legacy/",
		Username:  username,
		Password:  password,
	})
	client.HTTP = f.server.Client()
	return client
}

func (f *fakeIndex) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fields := map[string]string{}
	for key := range r.MultipartForm.Value {
		fields[key] = r.FormValue(key)
	}
	if username, password, ok := r.BasicAuth(); ok {
		fields["_user"] = username
		fields["_pass"] = password
	}

	for _, previous := range f.uploads {
		if previous["name"] == fields["name"] &&
			previous["version"] == fields["version"] &&
			previous["filetype"] == fields["filetype"] {
			http.Error(w, "File already exists", http.StatusConflict)
			return
		}
	}

	f.uploads = append(f.uploads, fields)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeIndex) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["name"] != dist.NormalizeName(f.metadata.Info.Name) {
		http.NotFound(w, r)
		return
	}

	if err := json.NewEncoder(w).Encode(f.metadata); err != nil {
		f.t.Errorf("failed to encode metadata: %v", err)
	}
}

func (f *fakeIndex) handleDownload(w http.ResponseWriter, r *http.Request) {
	w.Write(f.wheel)
}

// buildWheel writes a minimal wheel holding the given files.
func buildWheel(t *testing.T, files map[string]string) (string, []byte) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gumo_logging-0.1.0.whl")
	handle, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	archive := zip.NewWriter(handle)
	for name, content := range files {
		writer, err := archive.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := writer.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := archive.Close(); err != nil {
		t.Fatal(err)
	}
	if err := handle.Close(); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return path, content
}

func TestUpload(t *testing.T) {
	t.Setenv("CI", "true")

	fake := newFakeIndex(t)
	client := fake.client("robot", "hunter2")

	wheelPath, _ := buildWheel(t, map[string]string{"logger.py": "code"})
	manifest := &dist.Manifest{Name: "gumo-logging", Version: "0.1.0"}

	if err := client.Upload(context.Background(), manifest, wheelPath); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if len(fake.uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(fake.uploads))
	}

	got := fake.uploads[0]
	if got["name"] != "gumo-logging" || got["version"] != "0.1.0" {
		t.Errorf("wrong upload fields: %v", got)
	}
	if got["filetype"] != "bdist_wheel" {
		t.Errorf("wrong filetype: %q", got["filetype"])
	}
	if got["_user"] != "robot" || got["_pass"] != "hunter2" {
		t.Errorf("credentials weren't sent: %v", got)
	}

	digest, _, err := dist.HashFile(wheelPath)
	if err != nil {
		t.Fatal(err)
	}
	if got["sha256_digest"] != digest {
		t.Errorf("digest mismatch: got %q, want %q", got["sha256_digest"], digest)
	}
}

func TestUploadDuplicateRejected(t *testing.T) {
	t.Setenv("CI", "true")

	fake := newFakeIndex(t)
	client := fake.client("", "")

	wheelPath, _ := buildWheel(t, map[string]string{"logger.py": "code"})
	manifest := &dist.Manifest{Name: "gumo-logging", Version: "0.1.0"}

	if err := client.Upload(context.Background(), manifest, wheelPath); err != nil {
		t.Fatalf("first upload failed: %v", err)
	}

	err := client.Upload(context.Background(), manifest, wheelPath)
	if err == nil {
		t.Fatal("expected the duplicate upload to be rejected")
	}
	if !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "File already exists") {
		t.Errorf("error doesn't surface the server response: %v", err)
	}
}

func TestMetadataNotFound(t *testing.T) {
	fake := newFakeIndex(t)
	fake.metadata.Info.Name = "something-else"

	client := fake.client("", "")
	_, err := client.Metadata(context.Background(), "gumo-logging")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInstallPicksLatestVersion(t *testing.T) {
	t.Setenv("CI", "true")

	_, wheelBytes := buildWheel(t, map[string]string{
		"gumo_logging/logger.py": "code",
	})

	fake := newFakeIndex(t)
	fake.wheel = wheelBytes
	fake.metadata.Info.Name = "gumo-logging"

	digest, _, err := dist.HashFile(writeTemp(t, wheelBytes))
	if err != nil {
		t.Fatal(err)
	}

	wheelFile := ReleaseFile{
		Filename:    "gumo_logging-0.10.0.whl",
		URL:         "/files/gumo_logging-0.10.0.whl",
		PackageType: "bdist_wheel",
		Digests:     map[string]string{"sha256": digest},
	}
	fake.metadata.Releases = map[string][]ReleaseFile{
		"0.9.0":   {wheelFile},
		"0.10.0":  {wheelFile},
		"oddball": {},
	}

	client := fake.client("", "")
	siteDir := t.TempDir()

	// 0.10.0 beats 0.9.0 despite sorting lower lexicographically
	version, err := client.Install(context.Background(), "gumo-logging", "", siteDir)
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if version != "0.10.0" {
		t.Errorf("installed version %s, want 0.10.0", version)
	}

	content, err := os.ReadFile(filepath.Join(siteDir, "gumo_logging", "logger.py"))
	if err != nil {
		t.Fatalf("installed package is missing files: %v", err)
	}
	if string(content) != "code" {
		t.Errorf("installed file content changed: %q", content)
	}
}

func TestInstallChecksumMismatch(t *testing.T) {
	t.Setenv("CI", "true")

	_, wheelBytes := buildWheel(t, map[string]string{"logger.py": "code"})

	fake := newFakeIndex(t)
	fake.wheel = wheelBytes
	fake.metadata.Info.Name = "gumo-logging"
	fake.metadata.Releases = map[string][]ReleaseFile{
		"0.1.0": {{
			Filename:    "gumo_logging-0.1.0.whl",
			URL:         "/files/gumo_logging-0.1.0.whl",
			PackageType: "bdist_wheel",
			Digests:     map[string]string{"sha256": strings.Repeat("0", 64)},
		}},
	}

	client := fake.client("", "")
	_, err := client.Install(context.Background(), "gumo-logging", "", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInstallNoWheel(t *testing.T) {
	fake := newFakeIndex(t)
	fake.metadata.Info.Name = "gumo-logging"
	fake.metadata.Releases = map[string][]ReleaseFile{
		"0.1.0": {{
			Filename:    "gumo_logging-0.1.0.tar.gz",
			URL:         "/files/gumo_logging-0.1.0.tar.gz",
			PackageType: "sdist",
		}},
	}

	client := fake.client("", "")
	_, err := client.Install(context.Background(), "gumo-logging", "", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "no wheel") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInstallLocal(t *testing.T) {
	wheelPath, _ := buildWheel(t, map[string]string{
		"gumo_logging/context.py": "trace",
	})

	siteDir := filepath.Join(t.TempDir(), ".site")
	if err := InstallLocal(wheelPath, siteDir); err != nil {
		t.Fatalf("local install failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(siteDir, "gumo_logging", "context.py")); err != nil {
		t.Errorf("installed package is missing files: %v", err)
	}
}

func writeTemp(t *testing.T, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "blob")
	if err := os.WriteFile(path, content, 0660); err != nil {
		t.Fatal(err)
	}
	return path
}
