package index

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/gumo-py/gumo-logging/internal/dist"
)

// Upload pushes one built artifact to the index. A duplicate version is
// whatever the server says it is (typically 400 or 409); the response is
// surfaced as the error, there is no retry and no rollback of earlier
// uploads.
func (c *Client) Upload(ctx context.Context, manifest *dist.Manifest, artifactPath string) error {
	digest, size, err := dist.HashFile(artifactPath)
	if err != nil {
		return err
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	fields := map[string]string{
		"name":          manifest.Name,
		"version":       manifest.Version,
		"sha256_digest": digest,
		"filetype":      artifactType(artifactPath),
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return eris.Wrap(err, "failed to encode upload form")
		}
	}

	part, err := form.CreateFormFile("content", filepath.Base(artifactPath))
	if err != nil {
		return eris.Wrap(err, "failed to encode upload form")
	}

	handle, err := os.Open(artifactPath)
	if err != nil {
		return eris.Wrapf(err, "could not open %s", artifactPath)
	}

	bar := progress(size, "      upload "+filepath.Base(artifactPath))
	_, err = io.Copy(io.MultiWriter(part, bar), handle)
	handle.Close()
	bar.Finish()
	if err != nil {
		return eris.Wrapf(err, "failed to read %s", artifactPath)
	}

	if err := form.Close(); err != nil {
		return eris.Wrap(err, "failed to finalize upload form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Index.UploadURL, body)
	if err != nil {
		return eris.Wrap(err, "failed to build upload request")
	}

	req.Header.Set("Content-Type", form.FormDataContentType())
	if c.Index.Username != "" {
		req.SetBasicAuth(c.Index.Username, c.Index.Password)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return eris.Wrapf(err, "upload to %s failed", c.Index.UploadURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return eris.Errorf("upload of %s rejected by %s: %s: %s",
			filepath.Base(artifactPath), c.Index.UploadURL, resp.Status, strings.TrimSpace(string(detail)))
	}

	return nil
}

func artifactType(path string) string {
	if strings.HasSuffix(path, ".whl") {
		return "bdist_wheel"
	}
	return "sdist"
}
