// Package archive owns the per-gallery output directory: the cbz archive,
// the JSON sidecar and the extracted cover.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"ehcalibre/pkg/models"
)

const (
	DetailSidecar   = "gallery_detail.json"
	MetadataSidecar = "gallery_metadata.json"
)

var (
	ErrArchiveNotFound    = errors.New("archive file not found")
	ErrNotRegularFile     = errors.New("archive path is not a regular file")
	ErrUnsupportedArchive = errors.New("unsupported archive extension")
)

// Paths locates everything written for one gallery.
type Paths struct {
	Dir     string
	Archive string
}

func (p Paths) Sidecar(name string) string {
	return filepath.Join(p.Dir, name)
}

// Layout returns <root>/<gid>_<token>/<gid>_<token>.cbz.
func Layout(root string, id models.GalleryIdentity) Paths {
	dir := filepath.Join(root, id.Key())
	return Paths{Dir: dir, Archive: filepath.Join(dir, id.Key()+".cbz")}
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Write creates the gallery directory and writes data to p.Archive through a
// temp file, so an interrupted write never leaves a file that Exists accepts.
func Write(p Paths, data []byte) error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", p.Dir, err)
	}
	tmp, err := os.CreateTemp(p.Dir, ".archive-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", p.Archive, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p.Archive, err)
	}
	if err := os.Rename(tmp.Name(), p.Archive); err != nil {
		return fmt.Errorf("rename into %s: %w", p.Archive, err)
	}
	return nil
}

// ValidateImport checks an import source: it must exist, be a regular file
// and end in .zip or .cbz.
func ValidateImport(path string) error {
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrArchiveNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".cbz":
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, path)
	}
}

// Copy copies src into p.Archive, creating the gallery directory.
func Copy(src string, p Paths) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", p.Dir, err)
	}
	tmp, err := os.CreateTemp(p.Dir, ".archive-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p.Archive, err)
	}
	if err := os.Rename(tmp.Name(), p.Archive); err != nil {
		return fmt.Errorf("rename into %s: %w", p.Archive, err)
	}
	return nil
}

// WriteSidecar writes v as indented JSON to path.
func WriteSidecar(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write sidecar %s: %w", path, err)
	}
	return nil
}
