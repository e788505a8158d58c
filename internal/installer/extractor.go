package installer

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/xi2/xz"

	"mac-bootstrap/internal/config"
	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/provision"
)

// errUnsafePath is returned for archive entries that would land outside the destination.
var errUnsafePath = errors.New("archive entry escapes destination")

// archive downloads an archive, unpacks it into a staging directory and copies
// the result into dest. With an include glob, matching files are copied flat
// into dest (a font archive's nested ttf/ folder ends up directly in ~/Library/Fonts).
func (b *builder) archive(entry config.Step) provision.Step {
	return provision.Step{
		Name:        entry.Name,
		SideEffects: []string{entry.Dest},
		Check: func(context.Context) (bool, error) {
			return exists(entry.Creates), nil
		},
		Apply: func(ctx context.Context) error {
			ext := archiveExt(entry.URL)
			if ext == "" {
				return fmt.Errorf("unsupported archive format: %s", entry.URL)
			}
			logger.Info("Downloading %s", entry.URL)
			src, err := download(ctx, b.deps.httpClient(), entry.URL, "archive-*"+ext)
			if err != nil {
				return err
			}
			defer os.Remove(src)

			staging, err := os.MkdirTemp("", "extract-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(staging)

			files, err := ExtractArchive(src, staging)
			if err != nil {
				return fmt.Errorf("extract %s: %w", entry.URL, err)
			}
			installed, err := installExtracted(files, staging, entry.Dest, entry.Include)
			if err != nil {
				return err
			}
			if len(installed) == 0 {
				return fmt.Errorf("no files in %s match %q", entry.URL, entry.Include)
			}
			logger.Info("Installed %d files into %s", len(installed), entry.Dest)

			if !exists(entry.Creates) {
				return fmt.Errorf("archive installed but %s is still missing", entry.Creates)
			}
			return nil
		},
	}
}

func installExtracted(files []string, staging, dest, include string) ([]string, error) {
	var installed []string
	for _, f := range files {
		var target string
		if include != "" {
			ok, err := filepath.Match(include, filepath.Base(f))
			if err != nil {
				return nil, fmt.Errorf("include pattern %q: %w", include, err)
			}
			if !ok {
				continue
			}
			target = filepath.Join(dest, filepath.Base(f))
		} else {
			rel, err := filepath.Rel(staging, f)
			if err != nil {
				return nil, err
			}
			target = filepath.Join(dest, rel)
		}

		if err := copyFile(f, target, 0); err != nil {
			return nil, err
		}
		logger.Debug("Installed %s", target)
		installed = append(installed, target)
	}
	return installed, nil
}

// ExtractArchive unpacks src into dest according to its extension and
// returns the regular files written. Supported formats are .zip, .7z and
// tar with no, gzip, bzip2 or xz compression. Entries whose names would
// resolve outside dest fail the whole extraction with errUnsafePath.
func ExtractArchive(src, dest string) ([]string, error) {
	switch ext := archiveExt(src); ext {
	case ".zip":
		logger.Debug("Compression type is zip")
		return extractZip(src, dest)
	case ".7z":
		logger.Debug("Compression type is 7z")
		return extract7z(src, dest)
	case ".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tar.xz":
		logger.Debug("Compression type is %s", ext)
		return extractTarArchive(src, dest, ext)
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", src)
	}
}

// extractTarArchive handles plain and compressed tarballs. Only directories
// and regular files are written; links and devices are skipped.
func extractTarArchive(src, dest, ext string) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Wrap the file in the decompressor matching its extension
	var reader io.Reader = f
	switch ext {
	case ".tar.gz", ".tgz":
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		reader = gr
	case ".tar.bz2":
		reader = bzip2.NewReader(f)
	case ".tar.xz":
		xzr, err := xz.NewReader(f, 0) // 0 uses the default dictionary size cap
		if err != nil {
			return nil, err
		}
		reader = xzr
	}

	var files []string
	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break // End of archive
		}
		if err != nil {
			return nil, err
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return nil, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return nil, err
			}
			files = append(files, target)
		default:
			logger.Debug("Skipping %s (type %c)", hdr.Name, hdr.Typeflag)
		}
	}
	return files, nil
}

// extractZip writes every zip entry below dest, keeping each file's mode.
func extractZip(src, dest string) ([]string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var files []string
	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if err := extractFile(f.Open, target, f.Mode().Perm()); err != nil {
			return nil, err
		}
		files = append(files, target)
	}
	return files, nil
}

// extract7z does the same for 7z archives using sevenzip's zip-like reader.
func extract7z(src, dest string) ([]string, error) {
	r, err := sevenzip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open 7z archive: %w", err)
	}
	defer r.Close()

	var files []string
	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if err := extractFile(f.Open, target, f.Mode().Perm()); err != nil {
			return nil, err
		}
		files = append(files, target)
	}
	return files, nil
}

// extractFile opens one archive entry and writes it to target.
func extractFile(open func() (io.ReadCloser, error), target string, mode fs.FileMode) error {
	rc, err := open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeEntry(target, rc, mode)
}

// writeEntry copies r into target, creating parent directories as needed.
func writeEntry(target string, r io.Reader, mode fs.FileMode) error {
	if mode == 0 {
		mode = 0o644 // archives created on Windows carry no permission bits
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// safeJoin joins an archive entry name onto dest, rejecting names such as
// "../x" that resolve outside it.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", errUnsafePath, name)
	}
	return target, nil
}
