// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/texbatch/internal/compile"
	"github.com/pdiddy/texbatch/internal/fragment"
	"github.com/pdiddy/texbatch/internal/journal"
	"github.com/pdiddy/texbatch/internal/report"
	"github.com/pdiddy/texbatch/internal/toolchain"
	"github.com/pdiddy/texbatch/pkg/types"
)

const folderPrompt = "Enter the path to the folder containing .tex files: "

// newRunner is replaced in tests to substitute the external tools.
var newRunner = toolchain.NewRunner

var pdfCmd = &cobra.Command{
	Use:   "pdf [folder]",
	Short: "Compile every .tex fragment in a folder to PDF",
	Long: `Pdf wraps each .tex fragment in the folder in a document preamble and
compiles it with the LaTeX engine, running BibTeX when the fragment cites and
a bibliography is present. <name>.pdf is written next to each fragment and all
intermediate files are removed.

Without a folder argument the folder is read from standard input.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: bindCompileFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompile(cmd, args, types.FormatPDF)
	},
}

var docxCmd = &cobra.Command{
	Use:   "docx [folder]",
	Short: "Convert every .tex fragment in a folder to a Word document",
	Long: `Docx wraps each .tex fragment in the folder in a document preamble and
converts it with pandoc, resolving citations against the folder's
bibliography with citeproc. <name>.docx is written next to each fragment.

Without a folder argument the folder is read from standard input.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: bindCompileFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompile(cmd, args, types.FormatDOCX)
	},
}

func init() {
	addCompileFlags(pdfCmd.Flags())
	addCompileFlags(docxCmd.Flags())

	rootCmd.AddCommand(pdfCmd)
	rootCmd.AddCommand(docxCmd)
}

func runCompile(cmd *cobra.Command, args []string, format types.ArtifactFormat) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	log := logger()

	folder, err := folderArg(args, cmd.InOrStdin(), out)
	if err != nil {
		return err
	}
	if err := fragment.ValidateFolder(folder); err != nil {
		return err
	}
	if folder, err = filepath.Abs(folder); err != nil {
		return fmt.Errorf("resolving folder: %w", err)
	}
	frags, err := fragment.Discover(folder)
	if err != nil {
		return err
	}

	cfg := loadConfig(format)
	printer := report.NewPrinter(out, viper.GetBool("verbose"))
	printer.Found(frags)

	bib, err := fragment.LocateBibliography(folder, cfg.BibFile)
	if err != nil {
		return err
	}
	printer.Bibliography(bib, cfg.BibFile, format)

	backend, err := compile.NewBackend(newRunner(log), cfg, bib != nil)
	if err != nil {
		if errors.Is(err, toolchain.ErrToolNotFound) {
			fmt.Fprintf(cmd.ErrOrStderr(), "ERROR: %v\n\n%s\n", err, toolchain.Troubleshooting)
		}
		return err
	}

	obs := compile.Observers{printer}
	if path := viper.GetString("journal"); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return err
		}
		defer j.Close()
		if _, err := j.BeginRun(ctx, folder, format); err != nil {
			return err
		}
		obs = append(obs, journal.NewRecorder(ctx, j, log))
	}

	started := time.Now()
	res := compile.New(backend, cfg, bib, log).CompileBatch(ctx, frags, obs)
	printer.Summary(res, format)

	if path := viper.GetString("report"); path != "" {
		if err := report.WriteYAML(path, report.NewRun(folder, format, bib, started, res)); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	if res.HasFailures() {
		return fmt.Errorf("%d fragment(s) failed", res.Failed)
	}
	return nil
}

// folderArg returns the folder from args, or prompts for it on in.
func folderArg(args []string, in io.Reader, out io.Writer) (string, error) {
	if len(args) > 0 {
		return cleanFolder(args[0]), nil
	}
	fmt.Fprint(out, folderPrompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading folder path: %w", err)
	}
	return cleanFolder(line), nil
}

// cleanFolder strips whitespace and the quotes a shell or file manager
// leaves around a pasted path.
func cleanFolder(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
