// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fragment

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// citePattern matches the citation commands of LaTeX, natbib and biblatex:
// \cite{a}, \citep[p.~3]{a,b}, \nocite{*}, \parencite*{a}, \textcite{a}.
// Group 1 holds the comma separated keys.
var citePattern = regexp.MustCompile(`\\[A-Za-z]*cite[A-Za-z]*\*?(?:\s*\[[^\]]*\]){0,2}\s*\{([^}]*)\}`)

// inputPattern matches \input{file}, \include{file} and \subfile{file}.
var inputPattern = regexp.MustCompile(`\\(?:input|include|subfile)\s*\{([^}]+)\}`)

// maxInputDepth bounds how deep Cites follows nested inputs.
const maxInputDepth = 8

// Cites reports whether body cites anything, directly or through files it
// pulls in with \input, \include or \subfile. Input names resolve against
// folder, the way the engine resolves them through TEXINPUTS. Missing or
// unreadable inputs are ignored; the engine reports them.
func Cites(folder, body string) bool {
	return cites(folder, body, make(map[string]bool), 0)
}

func cites(folder, body string, seen map[string]bool, depth int) bool {
	if HasCitations(body) {
		return true
	}
	if depth >= maxInputDepth {
		return false
	}
	for _, m := range inputPattern.FindAllStringSubmatch(stripComments(body), -1) {
		path := inputPath(folder, strings.TrimSpace(m[1]))
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if cites(folder, string(data), seen, depth+1) {
			return true
		}
	}
	return false
}

// inputPath returns the file an input name refers to, trying name.tex
// before name as TeX does, or "" when neither exists.
func inputPath(folder, name string) string {
	if name == "" {
		return ""
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(folder, name)
	}
	candidates := []string{name}
	if filepath.Ext(name) != ".tex" {
		candidates = []string{name + ".tex", name}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c
		}
	}
	return ""
}

// HasCitations reports whether body contains at least one citation command
// outside of comments.
func HasCitations(body string) bool {
	return citePattern.MatchString(stripComments(body))
}

// CitationKeys returns the distinct citation keys in body, sorted.
func CitationKeys(body string) []string {
	seen := make(map[string]bool)
	for _, m := range citePattern.FindAllStringSubmatch(stripComments(body), -1) {
		for _, k := range strings.Split(m[1], ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				seen[k] = true
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stripComments drops everything from an unescaped % to the end of each line.
func stripComments(body string) string {
	if !strings.Contains(body, "%") {
		return body
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		for j := 0; j < len(line); j++ {
			if line[j] == '\\' {
				j++
				continue
			}
			if line[j] == '%' {
				lines[i] = line[:j]
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}
