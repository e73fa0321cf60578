// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package compile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fumiama/go-docx"

	"github.com/pdiddy/texbatch/internal/toolchain"
)

// Markers a test fragment can contain to make the fake tools misbehave.
const (
	markNoOutput   = `\fakenooutput`
	markGarbagePDF = `\fakegarbage`
	markPandocFail = `\fakepandocfail`
)

var (
	fakeCite    = regexp.MustCompile(`\\[A-Za-z]*cite[A-Za-z]*\{([^}]*)\}`)
	fakeBibData = regexp.MustCompile(`\\bibliography\{([^}]*)\}`)
)

// fakeTools simulates pdflatex, bibtex and pandoc by writing the files they
// would produce into the invocation's working directory.
type fakeTools struct {
	mu    sync.Mutex
	calls []toolchain.Invocation
}

func (f *fakeTools) LookPath(file string) (string, error) {
	switch file {
	case "pdflatex", "bibtex", "pandoc":
		return "/usr/bin/" + file, nil
	}
	return "", fmt.Errorf("not found: %s", file)
}

func (f *fakeTools) IsExecutable(string) bool { return false }

func (f *fakeTools) Run(ctx context.Context, inv toolchain.Invocation) ([]byte, int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, -1, err
	}
	switch filepath.Base(inv.Path) {
	case "pdflatex":
		return f.latex(inv)
	case "bibtex":
		return f.bibtex(inv)
	case "pandoc":
		return f.pandoc(inv)
	}
	return nil, -1, fmt.Errorf("unexpected tool %s", inv.Path)
}

// tools returns the base names of the invoked tools, in order.
func (f *fakeTools) tools() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = filepath.Base(c.Path)
	}
	return names
}

func (f *fakeTools) latex(inv toolchain.Invocation) ([]byte, int, error) {
	src := inv.Args[len(inv.Args)-1]
	job := strings.TrimSuffix(filepath.Base(src), ".tex")
	data, err := texLookup(inv, src)
	if err != nil {
		return []byte("! I can't find file `" + src + "'."), 1, nil
	}
	text := string(data)
	write := func(ext, content string) {
		_ = os.WriteFile(filepath.Join(inv.Dir, job+ext), []byte(content), 0o644)
	}

	if !strings.Contains(text, `\documentclass`) {
		write(".log", "This is pdfTeX\n! LaTeX Error: Missing \\begin{document}.\n")
		return []byte("This is pdfTeX, Version 3.141592653\n(" + src + "\n! LaTeX Error: Missing \\begin{document}.\n\nl.1 \\section\nNo pages of output.\n"), 1, nil
	}
	if strings.Count(text, "{") != strings.Count(text, "}") {
		write(".log", "This is pdfTeX\n! Missing } inserted.\n<inserted text>\n                }\nl.9 \\end{document}\n")
		return []byte("This is pdfTeX, Version 3.141592653\n(" + src + "\n" + src + ":9: Missing } inserted.\n<inserted text>\n                }\n! Emergency stop.\nNo pages of output.\n"), 1, nil
	}

	var aux strings.Builder
	for _, m := range fakeCite.FindAllStringSubmatch(text, -1) {
		for _, k := range strings.Split(m[1], ",") {
			fmt.Fprintf(&aux, "\\citation{%s}\n", strings.TrimSpace(k))
		}
	}
	if m := fakeBibData.FindStringSubmatch(text); m != nil {
		fmt.Fprintf(&aux, "\\bibdata{%s}\n", m[1])
	}
	write(".aux", aux.String())
	write(".log", "Output written on "+job+".pdf (1 page).\n")

	if strings.Contains(text, markNoOutput) {
		return []byte("No pages of output.\n"), 0, nil
	}
	if strings.Contains(text, markGarbagePDF) {
		write(".pdf", "this is not a pdf")
		return []byte("Output written on " + job + ".pdf (1 page).\n"), 0, nil
	}

	// \bibliography reads <job>.bbl through the same search path.
	var bbl []byte
	if fakeBibData.MatchString(text) {
		bbl, _ = texLookup(inv, job+".bbl")
	}
	sum := sha256.Sum256(data)
	comment := fmt.Sprintf("source %x bbl %q", sum, string(bbl))
	write(".pdf", string(minimalPDF(1, comment)))
	return []byte("Output written on " + job + ".pdf (1 page).\n"), 0, nil
}

func (f *fakeTools) bibtex(inv toolchain.Invocation) ([]byte, int, error) {
	job := inv.Args[0]
	aux, err := os.ReadFile(filepath.Join(inv.Dir, job+".aux"))
	if err != nil {
		return []byte("I couldn't open file name `" + job + ".aux'"), 3, nil
	}
	var keys []string
	var bibName string
	for _, line := range strings.Split(string(aux), "\n") {
		switch {
		case strings.HasPrefix(line, `\citation{`):
			keys = append(keys, strings.TrimSuffix(strings.TrimPrefix(line, `\citation{`), "}"))
		case strings.HasPrefix(line, `\bibdata{`):
			bibName = strings.TrimSuffix(strings.TrimPrefix(line, `\bibdata{`), "}")
		}
	}

	db := findBib(inv.Env, bibName)
	if db == nil {
		return []byte("I couldn't open database file " + bibName + ".bib"), 2, nil
	}

	var out, bbl bytes.Buffer
	code := 0
	bbl.WriteString("\\begin{thebibliography}{1}\n")
	for _, k := range keys {
		if bytes.Contains(db, []byte("{"+k+",")) {
			fmt.Fprintf(&bbl, "\\bibitem{%s} resolved %s\n", k, k)
			continue
		}
		fmt.Fprintf(&out, "Warning--I didn't find a database entry for \"%s\"\n", k)
		code = 1
	}
	bbl.WriteString("\\end{thebibliography}\n")
	_ = os.WriteFile(filepath.Join(inv.Dir, job+".bbl"), bbl.Bytes(), 0o644)
	_ = os.WriteFile(filepath.Join(inv.Dir, job+".blg"), out.Bytes(), 0o644)
	return out.Bytes(), code, nil
}

func (f *fakeTools) pandoc(inv toolchain.Invocation) ([]byte, int, error) {
	src := inv.Args[0]
	data, err := os.ReadFile(filepath.Join(inv.Dir, src))
	if err != nil {
		return []byte("pandoc: " + src + ": withBinaryFile: does not exist"), 1, nil
	}
	if strings.Contains(string(data), markPandocFail) {
		return []byte("Error at \"source\" (line 5, column 1):\nunexpected end of input"), 64, nil
	}
	var output string
	for i, a := range inv.Args {
		if a == "-o" && i+1 < len(inv.Args) {
			output = inv.Args[i+1]
		}
	}
	doc := docx.New().WithDefaultTheme()
	doc.AddParagraph().AddText("Converted " + src)
	doc.AddParagraph().AddText(fmt.Sprintf("%x", sha256.Sum256(data)))
	out, err := os.Create(filepath.Join(inv.Dir, output))
	if err != nil {
		return nil, -1, err
	}
	defer out.Close()
	if _, err := doc.WriteTo(out); err != nil {
		return nil, -1, err
	}
	return nil, 0, nil
}

// texLookup reads name the way kpathsea finds TeX inputs. Absolute names
// and names starting with ./ or ../ are opened relative to the working
// directory. Other names are searched along TEXINPUTS, where an empty
// element stands for the working directory.
func texLookup(inv toolchain.Invocation, name string) ([]byte, error) {
	if filepath.IsAbs(name) {
		return os.ReadFile(name)
	}
	if strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") {
		return os.ReadFile(filepath.Join(inv.Dir, name))
	}
	dirs := []string{"."}
	for _, kv := range inv.Env {
		if v, ok := strings.CutPrefix(kv, "TEXINPUTS="); ok {
			dirs = filepath.SplitList(v)
		}
	}
	for _, dir := range dirs {
		if dir == "" {
			dir = "."
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(inv.Dir, dir)
		}
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			return data, nil
		}
	}
	return nil, os.ErrNotExist
}

// findBib reads name.bib from the directories listed in BIBINPUTS.
func findBib(env []string, name string) []byte {
	for _, kv := range env {
		v, ok := strings.CutPrefix(kv, "BIBINPUTS=")
		if !ok {
			continue
		}
		for _, dir := range filepath.SplitList(v) {
			if dir == "" {
				continue
			}
			if data, err := os.ReadFile(filepath.Join(dir, name+".bib")); err == nil {
				return data
			}
		}
	}
	return nil
}

// minimalPDF builds a valid PDF with the given number of pages and a
// comment line after the header, computing the cross-reference offsets.
func minimalPDF(pages int, comment string) []byte {
	objs := []string{"<< /Type /Catalog /Pages 2 0 R >>"}
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	fmt.Fprintf(&b, "%% %s\n", strings.ReplaceAll(comment, "\n", " "))
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objs)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}
