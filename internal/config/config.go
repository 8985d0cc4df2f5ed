// Package config loads the release tool configuration: a .gumorc.toml
// file in the project root with GUMO_* environment overrides on top.
package config

import (
	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
)

// IndexConfig holds the endpoints and credentials for one package index.
type IndexConfig struct {
	URL       string `toml:"url"`
	UploadURL string `toml:"upload_url"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// Config is the full tool configuration.
type Config struct {
	// DistDir receives built artifacts.
	DistDir string `toml:"dist_dir" default:"dist"`
	// SiteDir is where installed packages are unpacked.
	SiteDir string `toml:"site_dir" default:".site"`
	// ReportPath is where the test task writes its JUnit report.
	ReportPath string `toml:"report_path" default:"reports/junit.xml"`
	// Project is the GOOGLE_CLOUD_PROJECT value exported to the test
	// suite by the test task.
	Project string `toml:"project" default:"gumo-logging-test"`

	Production IndexConfig `toml:"production"`
	Staging    IndexConfig `toml:"staging"`
}

// FileName is the config file looked up in the project root.
const FileName = ".gumorc.toml"

func defaults(cfg *Config) {
	if cfg.Production.URL == "" {
		cfg.Production.URL = "https://pypi.org"
	}
	if cfg.Production.UploadURL == "" {
		cfg.Production.UploadURL = "https://upload.pypi.org/legacy/"
	}
	if cfg.Staging.URL == "" {
		cfg.Staging.URL = "https://test.pypi.org"
	}
	if cfg.Staging.UploadURL == "" {
		cfg.Staging.UploadURL = "https://test.pypi.org/legacy/"
	}
}

// Load reads the configuration. files lists candidate config files; the
// first one that exists wins. Environment variables override file values.
func Load(files ...string) (*Config, error) {
	cfg := &Config{}
	loader := aconfig.LoaderFor(cfg, aconfig.Config{
		SkipFlags:          true,
		AllowUnknownFields: true,
		EnvPrefix:          "GUMO",
		Files:              files,
		FailOnFileNotFound: false,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})

	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load configuration")
	}

	defaults(cfg)
	return cfg, nil
}

// IndexFor resolves a repository name from the CLI to its index config.
func (c *Config) IndexFor(repository string) (IndexConfig, error) {
	switch repository {
	case "production":
		return c.Production, nil
	case "staging":
		return c.Staging, nil
	}

	return IndexConfig{}, eris.Errorf("unknown repository %q (expected production or staging)", repository)
}
