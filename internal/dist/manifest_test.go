package dist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"gumo-logging", "gumo_logging"},
		{"Gumo.Logging", "gumo_logging"},
		{"gumo--__..logging", "gumo_logging"},
		{"simple", "simple"},
	}

	for _, tc := range cases {
		if got := NormalizeName(tc.name); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestManifestValidate(t *testing.T) {
	cases := []struct {
		desc     string
		manifest Manifest
		wantErr  string
	}{
		{"valid", Manifest{Name: "gumo-logging", Version: "0.1.0"}, ""},
		{"missing name", Manifest{Version: "0.1.0"}, "name is missing"},
		{"bad name", Manifest{Name: "-broken-", Version: "0.1.0"}, "invalid characters"},
		{"missing version", Manifest{Name: "gumo-logging"}, "version is missing"},
		{"loose version", Manifest{Name: "gumo-logging", Version: "1.0"}, "not a valid semantic version"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.manifest.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("got error %v, want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestArtifactNames(t *testing.T) {
	manifest := &Manifest{Name: "gumo-logging", Version: "0.1.0"}

	if got := manifest.SDistName("gz"); got != "gumo_logging-0.1.0.tar.gz" {
		t.Errorf("wrong sdist name: %q", got)
	}
	if got := manifest.WheelName(); got != "gumo_logging-0.1.0.whl" {
		t.Errorf("wrong wheel name: %q", got)
	}
	if got := manifest.MetadataDirName(); got != "gumo_logging.dist-info" {
		t.Errorf("wrong metadata dir name: %q", got)
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestName)
	content := `
name: gumo-logging
version: 0.1.0
description: test package
include:
  - src
`
	if err := os.WriteFile(path, []byte(content), 0660); err != nil {
		t.Fatal(err)
	}

	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("failed to load manifest: %v", err)
	}

	if manifest.Name != "gumo-logging" || manifest.Version != "0.1.0" {
		t.Errorf("wrong manifest fields: %+v", manifest)
	}
	if len(manifest.Include) != 1 || manifest.Include[0] != "src" {
		t.Errorf("wrong include list: %v", manifest.Include)
	}
}

func TestLoadManifestRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestName)
	if err := os.WriteFile(path, []byte("name: pkg\nversion: not-a-version\n"), 0660); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected an invalid version to be rejected")
	}
}
