package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var coverExts = map[string]bool{"jpg": true, "jpeg": true, "png": true}

// Cover is the image written out of an archive.
type Cover struct {
	Entry string
	Path  string
}

// ExtractCover writes the first jpg/jpeg/png entry, in zip directory order,
// to dir/cover.<ext>. A nil Cover with a nil error means no entry matched.
func ExtractCover(archivePath, dir string) (*Cover, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(f.Name), "."))
		if !coverExts[ext] {
			continue
		}

		out := filepath.Join(dir, "cover."+ext)
		if err := copyEntry(f, out); err != nil {
			return nil, err
		}
		return &Cover{Entry: f.Name, Path: out}, nil
	}
	return nil, nil
}

func copyEntry(f *zip.File, out string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	w, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if _, err := io.Copy(w, rc); err != nil {
		w.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return w.Close()
}
