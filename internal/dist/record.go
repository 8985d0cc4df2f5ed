package dist

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// RecordEntry describes one file of a built artifact.
type RecordEntry struct {
	Path   string
	Digest string
	Size   int64
}

func (e RecordEntry) String() string {
	return fmt.Sprintf("%s,sha256=%s,%d", filepath.ToSlash(e.Path), e.Digest, e.Size)
}

// FormatRecord renders RECORD lines sorted by path.
func FormatRecord(entries []RecordEntry) string {
	sorted := make([]RecordEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	builder := strings.Builder{}
	for _, entry := range sorted {
		builder.WriteString(entry.String())
		builder.WriteString("\n")
	}
	return builder.String()
}

// FormatMetadata renders the METADATA entry written into the wheel and the
// metadata directory.
func FormatMetadata(m *Manifest) string {
	builder := strings.Builder{}
	write := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&builder, "%s: %s\n", key, value)
		}
	}

	write("Metadata-Version", "2.1")
	write("Name", m.Name)
	write("Version", m.Version)
	write("Summary", m.Description)
	write("Author", m.Author)
	write("Author-email", m.AuthorEmail)
	write("Home-page", m.Homepage)
	write("License", m.License)
	return builder.String()
}

// HashFile returns the hex sha256 digest and size of the given file.
func HashFile(path string) (string, int64, error) {
	handle, err := os.Open(path)
	if err != nil {
		return "", 0, eris.Wrapf(err, "could not open %s", path)
	}
	defer handle.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, handle)
	if err != nil {
		return "", 0, eris.Wrapf(err, "failed to hash %s", path)
	}

	return hex.EncodeToString(hash.Sum(nil)), size, nil
}
