// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package compile

import (
	"regexp"
	"strings"
)

const (
	// errorContext is the number of lines kept after each error line.
	errorContext = 2
	// tailLines is the fallback excerpt length when no error line is found.
	tailLines = 20
	// maxErrors caps the number of error blocks in one diagnostic.
	maxErrors = 5
)

// fileLineError matches -file-line-error messages such as
// "./intro.tex:12: Undefined control sequence."
var fileLineError = regexp.MustCompile(`^[^\s:]+\.(?:tex|sty|cls|bbl):\d+: `)

// Diagnostic reduces captured tool output to what a user needs to fix the
// fragment: TeX error lines ("! ..." or "file:line: ...") with a little
// context, or the last non-blank lines when no error line is present.
func Diagnostic(output []byte) string {
	text := strings.ReplaceAll(string(output), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var picked []string
	found := 0
	for i := 0; i < len(lines) && found < maxErrors; i++ {
		if !isErrorLine(lines[i]) {
			continue
		}
		found++
		end := i + 1 + errorContext
		if end > len(lines) {
			end = len(lines)
		}
		for _, l := range lines[i:end] {
			if strings.TrimSpace(l) != "" {
				picked = append(picked, l)
			}
		}
		i = end - 1
	}
	if len(picked) > 0 {
		return strings.Join(picked, "\n")
	}

	var tail []string
	for i := len(lines) - 1; i >= 0 && len(tail) < tailLines; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			tail = append(tail, lines[i])
		}
	}
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	return strings.Join(tail, "\n")
}

func isErrorLine(line string) bool {
	return strings.HasPrefix(line, "! ") || fileLineError.MatchString(line)
}
