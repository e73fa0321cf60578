// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Fragment is a .tex file holding a section body without a preamble.
type Fragment struct {
	// Path is the fragment's location on disk.
	Path string `json:"path" yaml:"path"`

	// Name is the file name without the .tex extension. Artifacts are
	// named after it.
	Name string `json:"name" yaml:"name"`
}

// Bibliography is the single .bib database used by a batch.
type Bibliography struct {
	// Path is the .bib file location.
	Path string `json:"path" yaml:"path"`

	// Name is the file name without .bib, as written in \bibliography{}.
	Name string `json:"name" yaml:"name"`

	// Dir is the directory holding the file, added to BIBINPUTS.
	Dir string `json:"dir" yaml:"dir"`
}

// Artifact is the PDF or Word document produced for one fragment.
type Artifact struct {
	Path   string         `json:"path" yaml:"path"`
	Format ArtifactFormat `json:"format" yaml:"format"`
	Size   int64          `json:"size" yaml:"size"`

	// Pages is set for PDF artifacts when they were inspected.
	Pages int `json:"pages,omitempty" yaml:"pages,omitempty"`

	// Paragraphs is set for Word artifacts when they were inspected.
	Paragraphs int `json:"paragraphs,omitempty" yaml:"paragraphs,omitempty"`
}

// FragmentStatus is the outcome of compiling one fragment.
type FragmentStatus string

const (
	StatusCompiled FragmentStatus = "compiled"
	StatusFailed   FragmentStatus = "failed"
)

// Stage names the pipeline step where a fragment failed.
type Stage string

const (
	StageRead    Stage = "read"
	StageWrap    Stage = "wrap"
	StageLaTeX   Stage = "latex"
	StageBibTeX  Stage = "bibtex"
	StageConvert Stage = "convert"
	StageCollect Stage = "collect"
	StageInspect Stage = "inspect"

	// StageCancelled marks fragments skipped because the batch was interrupted.
	StageCancelled Stage = "cancelled"
)

// FragmentResult records what happened to one fragment in a batch.
type FragmentResult struct {
	Fragment Fragment       `json:"fragment" yaml:"fragment"`
	Status   FragmentStatus `json:"status" yaml:"status"`

	// Artifact is set when Status is StatusCompiled.
	Artifact *Artifact `json:"artifact,omitempty" yaml:"artifact,omitempty"`

	// Stage and Error describe a failure.
	Stage Stage  `json:"stage,omitempty" yaml:"stage,omitempty"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// Diagnostic is the relevant excerpt of the external tool's output.
	Diagnostic string `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`

	// Cited reports whether the fragment contains citation commands.
	Cited bool `json:"cited" yaml:"cited"`

	// BuildDir is set when the build directory was kept.
	BuildDir string `json:"build_dir,omitempty" yaml:"build_dir,omitempty"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// OK reports whether the fragment produced an artifact.
func (r FragmentResult) OK() bool {
	return r.Status == StatusCompiled
}
