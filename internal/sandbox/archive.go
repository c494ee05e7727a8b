package sandbox

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// resetDir empties dest, creating it if needed.
func resetDir(dest string) error {
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dest, err)
	}
	if err := os.MkdirAll(dest, dirPerm); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	return nil
}

// extractTar unpacks a tar stream into dest, replacing its contents. Entries
// in excluded directories, links, and paths escaping dest are skipped.
func extractTar(r io.Reader, dest string) (int, error) {
	if err := resetDir(dest); err != nil {
		return 0, err
	}

	tr := tar.NewReader(r)
	files := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("failed to read archive: %w", err)
		}

		rel := strings.TrimPrefix(path.Clean("/"+hdr.Name), "/")
		if rel == "" || Excluded(rel) {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirPerm); err != nil {
				return files, err
			}
		case tar.TypeReg:
			if err := writeFromReader(target, tr); err != nil {
				return files, err
			}
			files++
		default:
			continue
		}
	}
}

func writeFromReader(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm) //#nosec G304 -- target is confined to dest
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil { //nolint:gosec // archive comes from the project's own sandbox
		_ = f.Close()
		return err
	}
	return f.Close()
}

// copyTree copies regular files from src into dest, replacing dest's contents
// and skipping excluded directories.
func copyTree(src, dest string) (int, error) {
	if err := resetDir(dest); err != nil {
		return 0, err
	}

	files := 0
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if Excluded(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		in, err := os.Open(p) //#nosec G304 -- walking the sandbox directory
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()
		if err := writeFromReader(filepath.Join(dest, rel), in); err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		return files, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return files, nil
}
