// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/texbatch/internal/fragment"
	"github.com/pdiddy/texbatch/internal/toolchain"
	"github.com/pdiddy/texbatch/pkg/types"
)

// fakeExec stands in for pdflatex, bibtex and pandoc. A fragment containing
// \fail makes the engine exit 1.
type fakeExec struct {
	missing map[string]bool
	calls   []string
}

func (f *fakeExec) LookPath(file string) (string, error) {
	if f.missing[file] {
		return "", errors.New("not found")
	}
	return "/fake/bin/" + file, nil
}

func (f *fakeExec) IsExecutable(string) bool { return false }

func (f *fakeExec) Run(_ context.Context, inv toolchain.Invocation) ([]byte, int, error) {
	tool := filepath.Base(inv.Path)
	f.calls = append(f.calls, tool)
	if len(inv.Args) == 1 && inv.Args[0] == "--version" {
		return []byte(tool + " 1.0\n"), 0, nil
	}
	switch tool {
	case "pdflatex":
		src := inv.Args[len(inv.Args)-1]
		data, err := texInput(inv, src)
		if err != nil {
			return nil, -1, err
		}
		if !strings.Contains(string(data), `\documentclass`) {
			return []byte("! LaTeX Error: Missing \\begin{document}.\n"), 1, nil
		}
		if strings.Contains(string(data), `\fail`) {
			return []byte(src + ":5: Undefined control sequence.\nl.5 \\fail\n"), 1, nil
		}
		job := strings.TrimSuffix(filepath.Base(src), ".tex")
		os.WriteFile(filepath.Join(inv.Dir, job+".aux"), []byte("\\relax\n"), 0o644)
		os.WriteFile(filepath.Join(inv.Dir, job+".pdf"), []byte("%PDF-1.4 fake "+job), 0o644)
		return []byte("Output written on " + job + ".pdf\n"), 0, nil
	case "bibtex":
		os.WriteFile(filepath.Join(inv.Dir, inv.Args[0]+".bbl"), []byte("\\begin{thebibliography}{1}\n\\end{thebibliography}\n"), 0o644)
		return nil, 0, nil
	case "pandoc":
		out := inv.Args[len(inv.Args)-1]
		for i, a := range inv.Args {
			if a == "-o" {
				out = inv.Args[i+1]
			}
		}
		os.WriteFile(filepath.Join(inv.Dir, out), []byte("PK fake docx"), 0o644)
		return nil, 0, nil
	}
	return nil, -1, errors.New("unexpected tool " + tool)
}

// texInput opens ./-prefixed names in the working directory and searches
// TEXINPUTS for the rest, as the engine does.
func texInput(inv toolchain.Invocation, name string) ([]byte, error) {
	if strings.HasPrefix(name, "./") {
		return os.ReadFile(filepath.Join(inv.Dir, name))
	}
	for _, kv := range inv.Env {
		v, ok := strings.CutPrefix(kv, "TEXINPUTS=")
		if !ok {
			continue
		}
		for _, dir := range filepath.SplitList(v) {
			if dir == "" || dir == "." {
				dir = inv.Dir
			}
			if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
				return data, nil
			}
		}
	}
	return os.ReadFile(filepath.Join(inv.Dir, name))
}

// resetCommands clears viper and every flag value left by a previous run.
func resetCommands(t *testing.T) {
	t.Helper()
	viper.Reset()
	var reset func(c *cobra.Command)
	reset = func(c *cobra.Command) {
		for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				if sv, ok := f.Value.(pflag.SliceValue); ok {
					sv.Replace(nil)
				} else {
					f.Value.Set(f.DefValue)
				}
				f.Changed = false
			})
		}
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(rootCmd)
}

// execute runs the CLI with a fake toolchain and returns stdout and stderr.
func execute(t *testing.T, fake *fakeExec, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetCommands(t)
	orig := newRunner
	newRunner = func(l *slog.Logger) *toolchain.Runner { return toolchain.NewRunnerWith(fake, l) }
	t.Cleanup(func() { newRunner = orig })

	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestCleanFolder(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/work/sections", "/work/sections"},
		{"  /work/sections \n", "/work/sections"},
		{`"/work/my sections"`, "/work/my sections"},
		{`'/work/my sections'`, "/work/my sections"},
		{`" /work/x "`, "/work/x"},
		{`"unbalanced`, `"unbalanced`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanFolder(tt.in), "input %q", tt.in)
	}
}

func TestFolderArgPrompts(t *testing.T) {
	var out bytes.Buffer
	got, err := folderArg(nil, strings.NewReader("\"/work/sections\"\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "/work/sections", got)
	assert.Equal(t, folderPrompt, out.String())

	got, err = folderArg(nil, strings.NewReader("/no/newline"), &out)
	require.NoError(t, err)
	assert.Equal(t, "/no/newline", got)

	_, err = folderArg(nil, strings.NewReader(""), &out)
	assert.Error(t, err)

	got, err = folderArg([]string{"'/from/args'"}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "/from/args", got)
}

func TestPDFCommand(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"intro.tex":   "\\section{Intro}\n",
		"results.tex": "As in \\cite{foo}.\n",
		"refs.bib":    "@misc{foo, title={Foo}}\n",
	})
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	reportPath := filepath.Join(t.TempDir(), "run.yaml")
	fake := &fakeExec{}

	stdout, _, err := execute(t, fake, "", "pdf", dir, "--no-verify", "--journal", journalPath, "--report", reportPath)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Found 2 .tex file(s): intro.tex, results.tex")
	assert.Contains(t, stdout, "Bibliography file found: "+filepath.Join(dir, "refs.bib"))
	assert.Contains(t, stdout, "compiled: intro.pdf")
	assert.Contains(t, stdout, "compiled: results.pdf")
	assert.Contains(t, stdout, "2 file(s) compiled successfully.")
	assert.Equal(t, []string{"pdflatex", "pdflatex", "pdflatex", "bibtex", "pdflatex", "pdflatex"}, fake.calls)

	assert.FileExists(t, filepath.Join(dir, "intro.pdf"))
	assert.FileExists(t, filepath.Join(dir, "results.pdf"))
	assert.FileExists(t, reportPath)

	stdout, _, err = execute(t, fake, "", "history", "--journal", journalPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "intro")
	assert.Contains(t, stdout, "results")
	assert.Contains(t, stdout, "2 entries")
}

func TestPDFCommandPromptsForFolder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"intro.tex": "Hello.\n"})

	stdout, _, err := execute(t, &fakeExec{}, "'"+dir+"'\n", "pdf", "--no-verify")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, folderPrompt))
	assert.Contains(t, stdout, "No bibliography file found (references.bib). Compiling without bibliography.")
	assert.FileExists(t, filepath.Join(dir, "intro.pdf"))
}

func TestPDFCommandFailures(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.tex": "Fine.\n",
		"b.tex": "\\fail\n",
	})

	stdout, _, err := execute(t, &fakeExec{}, "", "pdf", dir, "--no-verify")
	require.EqualError(t, err, "1 fragment(s) failed")
	assert.Contains(t, stdout, "failed:   b.tex [latex]")
	assert.Contains(t, stdout, "b.tex:5: Undefined control sequence.")
	assert.Contains(t, stdout, "Failed: b")
	assert.FileExists(t, filepath.Join(dir, "a.pdf"))
	assert.NoFileExists(t, filepath.Join(dir, "b.pdf"))
}

func TestPDFCommandNothingToProcess(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"refs.bib": "@misc{foo, title={Foo}}\n"})
	fake := &fakeExec{}

	_, _, err := execute(t, fake, "", "pdf", dir)
	assert.ErrorIs(t, err, fragment.ErrNoFragments)
	assert.Empty(t, fake.calls)
	assert.Equal(t, []string{"refs.bib"}, listNames(t, dir))
}

func TestPDFCommandMissingFolder(t *testing.T) {
	_, _, err := execute(t, &fakeExec{}, "", "pdf", filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, fragment.ErrNotDirectory)
}

func TestDocxCommandMissingPandoc(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"intro.tex": "Hello.\n"})
	fake := &fakeExec{missing: map[string]bool{"pandoc": true}}

	_, stderr, err := execute(t, fake, "", "docx", dir)
	assert.ErrorIs(t, err, toolchain.ErrToolNotFound)
	assert.Contains(t, stderr, "Troubleshooting:")
	assert.NoFileExists(t, filepath.Join(dir, "intro.docx"))
}

func TestDocxCommand(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"intro.tex": "Hello.\n"})

	stdout, _, err := execute(t, &fakeExec{}, "", "docx", dir, "--no-verify")
	require.NoError(t, err)
	assert.Contains(t, stdout, "converted: intro.docx")
	assert.Contains(t, stdout, "1 file(s) converted successfully.")
	assert.FileExists(t, filepath.Join(dir, "intro.docx"))
}

func TestDoctor(t *testing.T) {
	stdout, _, err := execute(t, &fakeExec{}, "", "doctor")
	require.NoError(t, err)
	assert.Contains(t, stdout, "/fake/bin/pdflatex  pdflatex 1.0")
	assert.Contains(t, stdout, "/fake/bin/pandoc  pandoc 1.0")

	stdout, _, err = execute(t, &fakeExec{missing: map[string]bool{"bibtex": true}}, "", "doctor")
	assert.EqualError(t, err, "1 tool(s) not found")
	assert.Contains(t, stdout, "not found")
	assert.Contains(t, stdout, "Troubleshooting:")
}

func TestLoadConfig(t *testing.T) {
	resetCommands(t)
	setDefaults()
	viper.SetEnvPrefix("TEXBATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	t.Setenv("TEXBATCH_TOOLS_ENGINE", "xelatex")
	t.Setenv("TEXBATCH_BIB_FILE", "refs")

	cfg := loadConfig(types.FormatDOCX)
	assert.Equal(t, types.FormatDOCX, cfg.Format)
	assert.Equal(t, "xelatex", cfg.Tools.Engine)
	assert.Equal(t, "bibtex", cfg.Tools.BibTeX)
	assert.Equal(t, "refs", cfg.BibFile)
	assert.Equal(t, types.DefaultPackages, cfg.Packages)
	assert.Equal(t, types.DefaultTimeout, cfg.Timeout)
	assert.True(t, cfg.Verify)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, &fakeExec{}, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "texbatch dev\n", stdout)
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
