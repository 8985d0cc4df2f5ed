package dist

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"
)

// Extract unpacks the archive into destDir, stripping the given number of
// leading path elements from every entry. The format is picked by file
// name suffix.
func Extract(archivePath, destDir string, strip int) error {
	if strings.HasSuffix(archivePath, ".zip") || strings.HasSuffix(archivePath, ".whl") {
		return extractZip(archivePath, destDir, strip)
	}

	handle, err := os.Open(archivePath)
	if err != nil {
		return eris.Wrapf(err, "could not open %s", archivePath)
	}
	defer handle.Close()

	var reader io.Reader
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		reader, err = gzip.NewReader(handle)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", archivePath)
		}
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		reader = bzip2.NewReader(handle)
	case strings.HasSuffix(archivePath, ".tar.xz"):
		reader, err = xz.NewReader(handle)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", archivePath)
		}
	case strings.HasSuffix(archivePath, ".tar.br"):
		reader = brotli.NewReader(handle)
	case strings.HasSuffix(archivePath, ".tar"):
		reader = handle
	default:
		return eris.Errorf("archive format of %s is not supported", archivePath)
	}

	return extractTar(reader, destDir, strip)
}

// entryDest strips the leading path elements and resolves the entry inside
// destDir. Entries escaping destDir are rejected.
func entryDest(destDir, name string, strip int) (string, error) {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(name)), "/")
	if len(parts) <= strip {
		return "", nil
	}

	dest := filepath.Join(destDir, filepath.Join(parts[strip:]...))
	if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(filepath.Separator)) {
		return "", eris.Errorf("archive entry %s escapes the destination directory", name)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0770); err != nil {
		return "", eris.Wrapf(err, "failed to create directory for %s", dest)
	}

	return dest, nil
}

func extractZip(archivePath, destDir string, strip int) error {
	archive, err := zip.OpenReader(archivePath)
	if err != nil {
		return eris.Wrapf(err, "could not open %s", archivePath)
	}
	defer archive.Close()

	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		dest, err := entryDest(destDir, item.Name, strip)
		if err != nil {
			return err
		}
		if dest == "" {
			continue
		}

		source, err := item.Open()
		if err != nil {
			return eris.Wrapf(err, "failed to open archive entry %s", item.Name)
		}

		if err := writeEntry(dest, source, item.Mode()); err != nil {
			source.Close()
			return eris.Wrapf(err, "failed to extract %s", item.Name)
		}
		source.Close()
	}

	return nil
}

func extractTar(r io.Reader, destDir string, strip int) error {
	archive := tar.NewReader(r)

	for {
		item, err := archive.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "failed to read archive entry")
		}

		info := item.FileInfo()
		if info.IsDir() {
			continue
		}

		dest, err := entryDest(destDir, item.Name, strip)
		if err != nil {
			return err
		}
		if dest == "" {
			continue
		}

		if item.Typeflag == tar.TypeSymlink {
			if err := os.Symlink(item.Linkname, dest); err != nil {
				return eris.Wrapf(err, "failed to create symlink %s", dest)
			}
			continue
		}

		if err := writeEntry(dest, archive, info.Mode()); err != nil {
			return eris.Wrapf(err, "failed to extract %s", item.Name)
		}
	}
}

func writeEntry(dest string, source io.Reader, mode os.FileMode) error {
	handle, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm()|0600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(handle, source); err != nil {
		handle.Close()
		return err
	}

	return handle.Close()
}
