// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package artifact inspects compiled outputs. A tool can exit zero and still
// leave a truncated or empty file behind; opening the file with a real
// parser catches that before the artifact is reported as produced.
package artifact

import (
	"errors"
	"fmt"
	"os"

	"github.com/fumiama/go-docx"
	pdflib "github.com/ledongthuc/pdf"

	"github.com/pdiddy/texbatch/pkg/types"
)

// ErrEmpty is returned for artifacts with no content.
var ErrEmpty = errors.New("artifact is empty")

// Stat describes path without parsing it.
func Stat(path string, format types.ArtifactFormat) (types.Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size() == 0 {
		return types.Artifact{}, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return types.Artifact{Path: path, Format: format, Size: info.Size()}, nil
}

// Inspect opens the artifact at path and fills in its page or paragraph count.
func Inspect(path string, format types.ArtifactFormat) (types.Artifact, error) {
	a, err := Stat(path, format)
	if err != nil {
		return a, err
	}

	switch format {
	case types.FormatPDF:
		a.Pages, err = pdfPages(path, a.Size)
	case types.FormatDOCX:
		a.Paragraphs, err = docxParagraphs(path, a.Size)
	default:
		err = fmt.Errorf("unsupported artifact format %q", format)
	}
	if err != nil {
		return types.Artifact{}, err
	}
	return a, nil
}

func pdfPages(path string, size int64) (n int, err error) {
	// ledongthuc/pdf panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("parse pdf %s: %v", path, r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	r, err := pdflib.NewReader(f, size)
	if err != nil {
		return 0, fmt.Errorf("parse pdf %s: %w", path, err)
	}
	n = r.NumPage()
	if n == 0 {
		return 0, fmt.Errorf("pdf %s has no pages: %w", path, ErrEmpty)
	}
	return n, nil
}

func docxParagraphs(path string, size int64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open docx: %w", err)
	}
	defer f.Close()

	doc, err := docx.Parse(f, size)
	if err != nil {
		return 0, fmt.Errorf("parse docx %s: %w", path, err)
	}
	n := 0
	for _, item := range doc.Document.Body.Items {
		if _, ok := item.(*docx.Paragraph); ok {
			n++
		}
	}
	return n, nil
}
