// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ArtifactFormat selects the output produced for each fragment.
type ArtifactFormat string

const (
	FormatPDF  ArtifactFormat = "pdf"
	FormatDOCX ArtifactFormat = "docx"
)

// Ext returns the file extension for the format, including the dot.
func (f ArtifactFormat) Ext() string {
	return "." + string(f)
}

// Defaults applied by the CLI when neither a flag nor the config file sets a value.
const (
	DefaultBibFile       = "references.bib"
	DefaultBibStyle      = "plain"
	DefaultDocumentClass = "article"
	DefaultEngine        = "pdflatex"
	DefaultBibTeX        = "bibtex"
	DefaultPandoc        = "pandoc"
	DefaultTimeout       = 2 * time.Minute
)

// DefaultPackages is the preamble used when no packages are configured.
// Entries are written verbatim inside \usepackage; options go in brackets.
var DefaultPackages = []string{
	"[utf8]{inputenc}",
	"{amsmath}",
	"{amssymb}",
	"{graphicx}",
	"{url}",
}

// ToolConfig names the external binaries. Each value is either a bare
// command name resolved through PATH or a path to the executable.
type ToolConfig struct {
	// Engine is the LaTeX compiler (e.g. "pdflatex", "xelatex").
	Engine string `json:"engine" yaml:"engine"`

	// BibTeX is the bibliography resolver run between engine passes.
	BibTeX string `json:"bibtex" yaml:"bibtex"`

	// Pandoc is the format converter used for Word output.
	Pandoc string `json:"pandoc" yaml:"pandoc"`
}

// TemplateConfig controls the document shell wrapped around each fragment.
type TemplateConfig struct {
	// DocumentClass is the argument of \documentclass.
	DocumentClass string `json:"document_class" yaml:"document_class"`

	// Packages lists \usepackage arguments such as "[utf8]{inputenc}" or "amsmath".
	Packages []string `json:"packages" yaml:"packages"`

	// BibStyle is the argument of \bibliographystyle.
	BibStyle string `json:"bib_style" yaml:"bib_style"`
}

// CompileConfig holds everything a batch run needs beyond the folder itself.
type CompileConfig struct {
	TemplateConfig `yaml:",inline"`
	Tools          ToolConfig `json:"tools" yaml:"tools"`

	// Format selects PDF or Word output.
	Format ArtifactFormat `json:"format" yaml:"format"`

	// BibFile is the bibliography file name, relative to the folder or absolute.
	BibFile string `json:"bib_file" yaml:"bib_file"`

	// Timeout bounds every single external tool invocation.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// BuildDir is the parent of per-fragment build directories. Empty means
	// the OS temporary directory.
	BuildDir string `json:"build_dir,omitempty" yaml:"build_dir,omitempty"`

	// KeepBuild retains build directories for debugging instead of removing them.
	KeepBuild bool `json:"keep_build" yaml:"keep_build"`

	// Verify opens each artifact with a parser before reporting success.
	Verify bool `json:"verify" yaml:"verify"`
}

// WithDefaults returns a copy of c with every empty field set to its default.
func (c CompileConfig) WithDefaults() CompileConfig {
	if c.Format == "" {
		c.Format = FormatPDF
	}
	if c.BibFile == "" {
		c.BibFile = DefaultBibFile
	}
	if c.BibStyle == "" {
		c.BibStyle = DefaultBibStyle
	}
	if c.DocumentClass == "" {
		c.DocumentClass = DefaultDocumentClass
	}
	if len(c.Packages) == 0 {
		c.Packages = append([]string(nil), DefaultPackages...)
	}
	if c.Tools.Engine == "" {
		c.Tools.Engine = DefaultEngine
	}
	if c.Tools.BibTeX == "" {
		c.Tools.BibTeX = DefaultBibTeX
	}
	if c.Tools.Pandoc == "" {
		c.Tools.Pandoc = DefaultPandoc
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
