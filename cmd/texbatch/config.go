// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/texbatch/pkg/types"
)

// flagKeys maps compile flags to their config keys.
var flagKeys = map[string]string{
	"bib":        "bib_file",
	"bib-style":  "bib_style",
	"class":      "document_class",
	"package":    "packages",
	"engine":     "tools.engine",
	"bibtex":     "tools.bibtex",
	"pandoc":     "tools.pandoc",
	"timeout":    "timeout",
	"build-dir":  "build_dir",
	"keep-build": "keep_build",
	"journal":    "journal",
	"report":     "report",
}

func setDefaults() {
	viper.SetDefault("bib_file", types.DefaultBibFile)
	viper.SetDefault("bib_style", types.DefaultBibStyle)
	viper.SetDefault("document_class", types.DefaultDocumentClass)
	viper.SetDefault("packages", types.DefaultPackages)
	viper.SetDefault("tools.engine", types.DefaultEngine)
	viper.SetDefault("tools.bibtex", types.DefaultBibTeX)
	viper.SetDefault("tools.pandoc", types.DefaultPandoc)
	viper.SetDefault("timeout", types.DefaultTimeout)
	viper.SetDefault("verify", true)
}

// addCompileFlags registers the flags shared by the pdf and docx commands.
// Defaults live in viper so the config file and environment can supply them.
func addCompileFlags(fs *pflag.FlagSet) {
	fs.String("bib", "", "bibliography file, relative to the folder or absolute (default "+types.DefaultBibFile+")")
	fs.String("bib-style", "", "BibTeX style for \\bibliographystyle (default "+types.DefaultBibStyle+")")
	fs.String("class", "", "document class (default "+types.DefaultDocumentClass+")")
	fs.StringSlice("package", nil, `preamble package, e.g. "[utf8]{inputenc}" or "booktabs" (repeatable)`)
	fs.String("engine", "", "LaTeX engine name or path (default "+types.DefaultEngine+")")
	fs.String("bibtex", "", "BibTeX name or path (default "+types.DefaultBibTeX+")")
	fs.String("pandoc", "", "pandoc name or path (default "+types.DefaultPandoc+")")
	fs.Duration("timeout", 0, fmt.Sprintf("limit for each tool run (default %v)", types.DefaultTimeout))
	fs.String("build-dir", "", "parent directory for per-fragment build directories (default: system temp)")
	fs.Bool("keep-build", false, "keep build directories for inspection")
	fs.Bool("no-verify", false, "skip opening artifacts with a parser")
	fs.String("journal", "", "record results in this SQLite journal")
	fs.String("report", "", "write a YAML run report to this file")
}

// bindCompileFlags binds the running command's flags to their config keys.
// Binding happens at run time because pdf and docx share the keys.
func bindCompileFlags(cmd *cobra.Command, _ []string) error {
	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	if noVerify, _ := cmd.Flags().GetBool("no-verify"); noVerify {
		viper.Set("verify", false)
	}
	return nil
}

// loadConfig builds the compile configuration from flags, environment,
// config file, and defaults, in that order of precedence.
func loadConfig(format types.ArtifactFormat) types.CompileConfig {
	cfg := types.CompileConfig{
		TemplateConfig: types.TemplateConfig{
			DocumentClass: viper.GetString("document_class"),
			Packages:      viper.GetStringSlice("packages"),
			BibStyle:      viper.GetString("bib_style"),
		},
		Tools: types.ToolConfig{
			Engine: viper.GetString("tools.engine"),
			BibTeX: viper.GetString("tools.bibtex"),
			Pandoc: viper.GetString("tools.pandoc"),
		},
		Format:    format,
		BibFile:   viper.GetString("bib_file"),
		Timeout:   viper.GetDuration("timeout"),
		BuildDir:  viper.GetString("build_dir"),
		KeepBuild: viper.GetBool("keep_build"),
		Verify:    viper.GetBool("verify"),
	}
	return cfg.WithDefaults()
}
