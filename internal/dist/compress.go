package dist

import (
	"compress/gzip"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// newCompressor picks a compressor based on the target file name, the same
// way the extractor picks a reader by suffix.
func newCompressor(w io.Writer, filename string) (io.WriteCloser, error) {
	switch {
	case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"):
		return gzip.NewWriter(w), nil
	case strings.HasSuffix(filename, ".tar.xz"):
		return xz.NewWriter(w)
	case strings.HasSuffix(filename, ".tar.br"):
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	case strings.HasSuffix(filename, ".tar"):
		return nopWriteCloser{w}, nil
	}

	return nil, eris.Errorf("unsupported archive suffix for %s", filename)
}
