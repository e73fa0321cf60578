// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fragment finds the LaTeX section fragments and the bibliography
// in a folder.
package fragment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/texbatch/pkg/types"
)

const (
	texExt = ".tex"
	bibExt = ".bib"
)

var (
	// ErrNotDirectory is returned when the batch folder is missing or not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrNoFragments is returned when the folder holds no .tex files.
	ErrNoFragments = errors.New("nothing to process: no .tex files found")

	// ErrBibExtension is returned for a configured bibliography whose file
	// name does not end in .bib. BibTeX only looks up <name>.bib.
	ErrBibExtension = errors.New("bibliography must have a .bib extension")
)

// ValidateFolder checks that path exists and is a directory.
func ValidateFolder(path string) error {
	if path == "" {
		return fmt.Errorf("folder path is empty: %w", ErrNotDirectory)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("folder %q does not exist: %w", path, ErrNotDirectory)
		}
		return fmt.Errorf("checking folder %q: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q: %w", path, ErrNotDirectory)
	}
	return nil
}

// Discover returns the .tex fragments directly inside folder, ordered by
// file name. Subdirectories are not searched. It returns ErrNoFragments when
// there is nothing to compile.
func Discover(folder string) ([]types.Fragment, error) {
	if err := ValidateFolder(folder); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("reading folder %s: %w", folder, err)
	}

	var frags []types.Fragment
	for _, e := range entries {
		if !e.Type().IsRegular() && !isSymlinkToFile(folder, e) {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != texExt || strings.HasPrefix(name, ".") {
			continue
		}
		frags = append(frags, types.Fragment{
			Path: filepath.Join(folder, name),
			Name: strings.TrimSuffix(name, texExt),
		})
	}
	if len(frags) == 0 {
		return nil, fmt.Errorf("%s: %w", folder, ErrNoFragments)
	}
	// os.ReadDir returns entries sorted by file name.
	return frags, nil
}

func isSymlinkToFile(folder string, e os.DirEntry) bool {
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(folder, e.Name()))
	return err == nil && info.Mode().IsRegular()
}

// Read returns the fragment body.
func Read(f types.Fragment) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("reading fragment %s: %w", filepath.Base(f.Path), err)
	}
	return string(data), nil
}

// LocateBibliography finds the bibliography for a batch. The configured
// name is tried first, as an absolute path or relative to folder. When it
// does not exist and the folder holds exactly one .bib file, that file is
// used. A configured name with another extension is an error. Otherwise LocateBibliography returns nil and no error: compiling
// without a bibliography is a normal mode.
func LocateBibliography(folder, name string) (*types.Bibliography, error) {
	if name != "" {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(folder, name)
		}
		switch filepath.Ext(path) {
		case "":
			path += bibExt
		case bibExt:
		default:
			return nil, fmt.Errorf("%s: %w", path, ErrBibExtension)
		}
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			return newBibliography(path), nil
		case err != nil && !os.IsNotExist(err):
			return nil, fmt.Errorf("checking bibliography %s: %w", path, err)
		}
	}

	matches, err := filepath.Glob(filepath.Join(folder, "*"+bibExt))
	if err != nil {
		return nil, fmt.Errorf("listing bibliographies in %s: %w", folder, err)
	}
	if len(matches) == 1 {
		return newBibliography(matches[0]), nil
	}
	return nil, nil
}

func newBibliography(path string) *types.Bibliography {
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	return &types.Bibliography{
		Path: path,
		Name: strings.TrimSuffix(filepath.Base(path), bibExt),
		Dir:  filepath.Dir(path),
	}
}

// Names returns the file names of frags, for listing.
func Names(frags []types.Fragment) []string {
	names := make([]string, len(frags))
	for i, f := range frags {
		names[i] = filepath.Base(f.Path)
	}
	return names
}
