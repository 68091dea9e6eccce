// Package pdf finds PDF files and turns their pages into images.
package pdf

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spherical/barcode-extractor/internal/domain"
)

// Discover walks root recursively and returns every PDF below it, sorted by
// path. A missing root is created and reported as domain.ErrInputDirCreated;
// a root without PDFs is reported as domain.ErrNoPDFs.
func Discover(root string) ([]domain.Source, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("cannot resolve input directory %s", root), err)
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, domain.IOError(fmt.Sprintf("cannot create input directory %s", abs), err)
		}
		return nil, domain.ErrInputDirCreated
	}
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("cannot access input directory %s", abs), err)
	}
	if !info.IsDir() {
		return nil, domain.ValidationError(fmt.Sprintf("input path is not a directory: %s", abs), nil)
	}

	var sources []domain.Source
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !IsPDFName(d.Name()) {
			return nil
		}
		sources = append(sources, domain.Source{Name: d.Name(), Path: path})
		return nil
	})
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("cannot list input directory %s", abs), err)
	}

	if len(sources) == 0 {
		return nil, domain.ErrNoPDFs
	}

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Path < sources[j].Path
	})
	return sources, nil
}
