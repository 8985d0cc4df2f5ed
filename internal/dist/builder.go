package dist

import (
	"archive/tar"
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Builder produces the distribution artifacts for a package.
type Builder struct {
	Manifest *Manifest
	// RootDir is the package source directory (where package.yml lives).
	RootDir string
	// DistDir receives the built artifacts.
	DistDir string
	// Compression selects the sdist compression suffix: gz, xz or br.
	Compression string
}

// Result lists the artifacts a Build produced.
type Result struct {
	SDist       string
	Wheel       string
	MetadataDir string
	Files       []RecordEntry
}

var defaultExcludes = []string{"dist", "build", "reports", ".git", ".tools", ".site"}

// Build writes the source archive, the wheel and the metadata directory.
// Anything left over from an aborted earlier build is overwritten.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	if b.Compression == "" {
		b.Compression = "gz"
	}

	files, err := b.collectFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, eris.Errorf("no files matched the include list of %s", b.Manifest.Name)
	}

	if err := os.MkdirAll(b.DistDir, 0770); err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", b.DistDir)
	}

	entries := make([]RecordEntry, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		digest, size, err := HashFile(filepath.Join(b.RootDir, file))
		if err != nil {
			return nil, err
		}
		entries = append(entries, RecordEntry{Path: file, Digest: digest, Size: size})
	}

	sdistPath := filepath.Join(b.DistDir, b.Manifest.SDistName(b.Compression))
	if err := b.writeSDist(sdistPath, files); err != nil {
		return nil, eris.Wrapf(err, "failed to build source archive %s", sdistPath)
	}

	wheelPath := filepath.Join(b.DistDir, b.Manifest.WheelName())
	if err := b.writeWheel(wheelPath, entries); err != nil {
		return nil, eris.Wrapf(err, "failed to build wheel %s", wheelPath)
	}

	metaDir := filepath.Join(b.RootDir, b.Manifest.MetadataDirName())
	if err := b.writeMetadataDir(metaDir, entries); err != nil {
		return nil, eris.Wrapf(err, "failed to write metadata directory %s", metaDir)
	}

	return &Result{
		SDist:       sdistPath,
		Wheel:       wheelPath,
		MetadataDir: metaDir,
		Files:       entries,
	}, nil
}

// collectFiles walks the include list (the whole root by default) and
// returns the relative paths of every packaged file in sorted order.
func (b *Builder) collectFiles() ([]string, error) {
	include := b.Manifest.Include
	if len(include) == 0 {
		include = []string{"."}
	}

	excluded := make(map[string]bool, len(defaultExcludes)+len(b.Manifest.Exclude)+1)
	for _, item := range defaultExcludes {
		excluded[item] = true
	}
	for _, item := range b.Manifest.Exclude {
		excluded[filepath.ToSlash(item)] = true
	}
	excluded[b.Manifest.MetadataDirName()] = true

	seen := make(map[string]bool)
	files := make([]string, 0)

	for _, item := range include {
		start := filepath.Join(b.RootDir, item)
		err := filepath.Walk(start, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			rel, err := filepath.Rel(b.RootDir, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if info.IsDir() {
				if rel != "." && (excluded[rel] || strings.HasPrefix(filepath.Base(rel), ".")) {
					return filepath.SkipDir
				}
				return nil
			}

			if excluded[rel] || strings.HasPrefix(filepath.Base(rel), ".") {
				return nil
			}

			if !seen[rel] {
				seen[rel] = true
				files = append(files, rel)
			}
			return nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to walk %s", start)
		}
	}

	sort.Strings(files)
	return files, nil
}

// writeSDist writes the files into a compressed tar stream. Every entry is
// prefixed with "<name>-<version>/" so the archive unpacks into its own
// directory.
func (b *Builder) writeSDist(dest string, files []string) error {
	handle, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer handle.Close()

	compressor, err := newCompressor(handle, dest)
	if err != nil {
		return err
	}

	archive := tar.NewWriter(compressor)
	prefix := NormalizeName(b.Manifest.Name) + "-" + b.Manifest.Version

	for _, file := range files {
		source := filepath.Join(b.RootDir, file)
		info, err := os.Stat(source)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = prefix + "/" + file

		if err := archive.WriteHeader(header); err != nil {
			return err
		}

		if err := copyFileTo(archive, source); err != nil {
			return err
		}
	}

	if err := archive.Close(); err != nil {
		return err
	}
	if err := compressor.Close(); err != nil {
		return err
	}
	return handle.Close()
}

// writeWheel writes the zip artifact: all packaged files plus the
// dist-info METADATA and RECORD entries.
func (b *Builder) writeWheel(dest string, entries []RecordEntry) error {
	handle, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer handle.Close()

	archive := zip.NewWriter(handle)
	for _, entry := range entries {
		writer, err := archive.Create(entry.Path)
		if err != nil {
			return err
		}

		if err := copyFileTo(writer, filepath.Join(b.RootDir, entry.Path)); err != nil {
			return err
		}
	}

	infoDir := b.Manifest.MetadataDirName()
	writer, err := archive.Create(infoDir + "/METADATA")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(writer, FormatMetadata(b.Manifest)); err != nil {
		return err
	}

	writer, err = archive.Create(infoDir + "/RECORD")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(writer, FormatRecord(entries)); err != nil {
		return err
	}

	if err := archive.Close(); err != nil {
		return err
	}
	return handle.Close()
}

// writeMetadataDir writes the on-disk dist-info directory, the build
// byproduct the clean task removes.
func (b *Builder) writeMetadataDir(dest string, entries []RecordEntry) error {
	if err := os.MkdirAll(dest, 0770); err != nil {
		return err
	}

	err := os.WriteFile(filepath.Join(dest, "METADATA"), []byte(FormatMetadata(b.Manifest)), 0660)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dest, "RECORD"), []byte(FormatRecord(entries)), 0660)
}

func copyFileTo(w io.Writer, source string) error {
	handle, err := os.Open(source)
	if err != nil {
		return err
	}
	defer handle.Close()

	_, err = io.Copy(w, handle)
	return err
}
