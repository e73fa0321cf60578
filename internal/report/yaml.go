// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/texbatch/internal/compile"
	"github.com/pdiddy/texbatch/pkg/types"
)

// Run is the YAML run report.
type Run struct {
	Folder       string                 `yaml:"folder"`
	Format       types.ArtifactFormat   `yaml:"format"`
	Bibliography string                 `yaml:"bibliography,omitempty"`
	StartedAt    time.Time              `yaml:"started_at"`
	FinishedAt   time.Time              `yaml:"finished_at"`
	Compiled     int                    `yaml:"compiled"`
	Failed       int                    `yaml:"failed"`
	Fragments    []types.FragmentResult `yaml:"fragments"`
}

// NewRun builds the report for a finished batch.
func NewRun(folder string, format types.ArtifactFormat, bib *types.Bibliography, started time.Time, res compile.BatchResult) Run {
	run := Run{
		Folder:     folder,
		Format:     format,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
		Compiled:   res.Compiled,
		Failed:     res.Failed,
		Fragments:  res.Results,
	}
	if bib != nil {
		run.Bibliography = bib.Path
	}
	return run
}

// WriteYAML writes run to path, creating parent directories. The file is
// written to a temporary sibling first and renamed into place.
func WriteYAML(path string, run Run) error {
	data, err := yaml.Marshal(&run)
	if err != nil {
		return fmt.Errorf("marshaling run report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing run report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("placing run report: %w", err)
	}
	return nil
}
