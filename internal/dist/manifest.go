// Package dist builds and unpacks distribution artifacts: the source
// archive and the wheel produced by the build task, plus the package
// metadata directory.
package dist

import (
	"os"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ManifestName is the file the build task reads from the project root.
const ManifestName = "package.yml"

// Manifest describes the package being distributed.
type Manifest struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description,omitempty"`
	Author      string   `yaml:"author,omitempty"`
	AuthorEmail string   `yaml:"author_email,omitempty"`
	Homepage    string   `yaml:"homepage,omitempty"`
	License     string   `yaml:"license,omitempty"`
	Include     []string `yaml:"include,omitempty"`
	Exclude     []string `yaml:"exclude,omitempty"`
}

// LoadManifest reads and validates a package manifest.
func LoadManifest(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "could not open %s", path)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	if err := manifest.Validate(); err != nil {
		return nil, eris.Wrapf(err, "invalid manifest %s", path)
	}

	return &manifest, nil
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]*[a-zA-Z0-9])?$`)

// Validate checks the fields the packing and upload steps depend on.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return eris.New("package name is missing")
	}

	if !namePattern.MatchString(m.Name) {
		return eris.Errorf("package name %q contains invalid characters", m.Name)
	}

	if m.Version == "" {
		return eris.New("package version is missing")
	}

	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return eris.Wrapf(err, "package version %q is not a valid semantic version", m.Version)
	}

	return nil
}

var separatorRuns = regexp.MustCompile(`[-_.]+`)

// NormalizeName lowercases the package name and collapses separator runs
// to a single underscore. Artifact and metadata directory names are always
// derived from the normalized form.
func NormalizeName(name string) string {
	return separatorRuns.ReplaceAllString(strings.ToLower(name), "_")
}

// MetadataDirName returns the name of the on-disk metadata directory for
// the package, e.g. "gumo_logging.dist-info".
func (m *Manifest) MetadataDirName() string {
	return NormalizeName(m.Name) + ".dist-info"
}

// SDistName returns the source archive file name.
func (m *Manifest) SDistName(compression string) string {
	return NormalizeName(m.Name) + "-" + m.Version + ".tar." + compression
}

// WheelName returns the binary archive file name.
func (m *Manifest) WheelName() string {
	return NormalizeName(m.Name) + "-" + m.Version + ".whl"
}
