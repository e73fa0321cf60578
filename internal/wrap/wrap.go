// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package wrap turns a section fragment into a standalone LaTeX document.
package wrap

import (
	"fmt"
	"strings"

	"github.com/pdiddy/texbatch/pkg/types"
)

// Options controls the document shell. Bibliography is the name passed to
// \bibliography{}; when empty, no bibliography directives are written.
type Options struct {
	DocumentClass string
	Packages      []string
	BibStyle      string
	Bibliography  string
}

// OptionsFor builds Options from the batch configuration. The bibliography
// directives are requested only when a bibliography exists and the fragment
// cites something, so citation-free fragments compile identically with or
// without a .bib file in the folder.
func OptionsFor(cfg types.TemplateConfig, bib *types.Bibliography, cited bool) Options {
	opts := Options{
		DocumentClass: cfg.DocumentClass,
		Packages:      cfg.Packages,
		BibStyle:      cfg.BibStyle,
	}
	if bib != nil && cited {
		opts.Bibliography = bib.Name
	}
	return opts
}

// Document returns the full LaTeX source for body.
func Document(body string, opts Options) string {
	class := opts.DocumentClass
	if class == "" {
		class = types.DefaultDocumentClass
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\\documentclass{%s}\n", class)
	for _, p := range opts.Packages {
		if line := usepackage(p); line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteString("\\begin{document}\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteByte('\n')
	}
	if opts.Bibliography != "" {
		style := opts.BibStyle
		if style == "" {
			style = types.DefaultBibStyle
		}
		b.WriteByte('\n')
		fmt.Fprintf(&b, "\\bibliographystyle{%s}\n", style)
		fmt.Fprintf(&b, "\\bibliography{%s}\n", opts.Bibliography)
	}
	b.WriteString("\\end{document}\n")
	return b.String()
}

// usepackage renders one preamble line. An entry may be a bare name
// ("amsmath"), a braced name ("{amsmath}"), or carry options
// ("[utf8]{inputenc}").
func usepackage(arg string) string {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return ""
	}
	if !strings.Contains(arg, "{") {
		arg = "{" + arg + "}"
	}
	return "\\usepackage" + arg
}
