// Package index talks to package indices: uploading built artifacts
// (release, test-release) and installing published packages
// (test-install). Failures are reported verbatim; there are no retries.
package index

import (
	"net/http"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Index describes one package index endpoint.
type Index struct {
	// BaseURL serves package metadata and artifact downloads.
	BaseURL string
	// UploadURL accepts artifact uploads.
	UploadURL string
	Username  string
	Password  string
}

// Client performs uploads and installs against a single index.
type Client struct {
	Index Index
	HTTP  *http.Client
}

// NewClient returns a client with a generous timeout; artifact transfers
// can be slow.
func NewClient(index Index) *Client {
	return &Client{
		Index: index,
		HTTP: &http.Client{
			Timeout: 30 * time.Minute,
		},
	}
}

func progress(length int64, desc string) *progressbar.ProgressBar {
	// progress bars garble CI logs
	if os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}
