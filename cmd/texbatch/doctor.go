// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/texbatch/internal/toolchain"
	"github.com/pdiddy/texbatch/pkg/types"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report which external tools texbatch can find",
	Long: `Doctor resolves the LaTeX engine, BibTeX, and pandoc the same way a batch
does (configured name or path, then PATH, then common install locations) and
prints the path and version of each. It fails when any tool is missing.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range []string{"engine", "bibtex", "pandoc"} {
			if err := viper.BindPFlag("tools."+name, cmd.Flags().Lookup(name)); err != nil {
				return err
			}
		}
		return nil
	},
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().String("engine", "", "LaTeX engine name or path (default "+types.DefaultEngine+")")
	doctorCmd.Flags().String("bibtex", "", "BibTeX name or path (default "+types.DefaultBibTeX+")")
	doctorCmd.Flags().String("pandoc", "", "pandoc name or path (default "+types.DefaultPandoc+")")

	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := loadConfig(types.FormatPDF)
	runner := newRunner(logger())

	tools := []struct{ role, name string }{
		{"engine", cfg.Tools.Engine},
		{"bibtex", cfg.Tools.BibTeX},
		{"pandoc", cfg.Tools.Pandoc},
	}
	missing := 0
	for _, t := range tools {
		path, err := runner.Resolve(t.name)
		if err != nil {
			fmt.Fprintf(out, "%-7s %-10s not found\n", t.role, t.name)
			missing++
			continue
		}
		v, err := runner.Version(cmd.Context(), path)
		if err != nil {
			v = fmt.Sprintf("(version unavailable: %v)", err)
		}
		fmt.Fprintf(out, "%-7s %-10s %s  %s\n", t.role, t.name, path, v)
	}
	if missing > 0 {
		fmt.Fprintf(out, "\n%s\n", toolchain.Troubleshooting)
		return fmt.Errorf("%d tool(s) not found", missing)
	}
	return nil
}
