// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package toolchain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// ErrToolNotFound is returned when a tool is neither on PATH nor in any of
// the common install locations.
var ErrToolNotFound = errors.New("tool not found")

// commonDirs lists install locations checked after PATH.
func commonDirs() []string {
	dirs := []string{
		"/usr/local/bin",
		"/opt/homebrew/bin",
		"/Library/TeX/texbin",
		"/usr/texbin",
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, "bin"),
			filepath.Join(home, "AppData", "Local", "Pandoc"),
			filepath.Join(home, "AppData", "Local", "Programs", "MiKTeX", "miktex", "bin", "x64"),
		)
	}
	if runtime.GOOS == "windows" {
		dirs = append(dirs,
			`C:\Program Files\Pandoc`,
			`C:\Program Files (x86)\Pandoc`,
			`C:\Program Files\MiKTeX\miktex\bin\x64`,
		)
	}
	return dirs
}

// Resolve returns the executable path for name. A name containing a path
// separator is used as given. A bare name is looked up on PATH and then in
// the common install locations.
func (r *Runner) Resolve(name string) (string, error) {
	return resolve(r.exec, name, commonDirs())
}

func resolve(exec Executor, name string, dirs []string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty tool name: %w", ErrToolNotFound)
	}
	if strings.ContainsAny(name, `/\`) {
		if exec.IsExecutable(name) {
			return name, nil
		}
		return "", fmt.Errorf("%s is not an executable file: %w", name, ErrToolNotFound)
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	candidates := []string{name}
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		candidates = append(candidates, name+".exe")
	}
	for _, dir := range dirs {
		for _, c := range candidates {
			path := filepath.Join(dir, c)
			if exec.IsExecutable(path) {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("%s not found on PATH or in common install locations: %w", name, ErrToolNotFound)
}

// Tools maps a role ("engine", "bibtex", "pandoc") to a resolved path.
type Tools map[string]string

// ResolveAll resolves every named tool. It returns the tools it found and
// an error listing every role that could not be resolved.
func (r *Runner) ResolveAll(names map[string]string) (Tools, error) {
	tools := make(Tools, len(names))
	var missing []string
	for _, role := range sortedKeys(names) {
		path, err := r.Resolve(names[role])
		if err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", role, names[role]))
			continue
		}
		r.logger.Debug("resolved tool", "role", role, "path", path)
		tools[role] = path
	}
	if len(missing) > 0 {
		return tools, fmt.Errorf("missing %s: %w", strings.Join(missing, ", "), ErrToolNotFound)
	}
	return tools, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Troubleshooting is printed when a required tool cannot be found.
const Troubleshooting = `Troubleshooting:
  1. Verify the tool is installed:
     - TeX: TeX Live, MacTeX, or MiKTeX provide pdflatex and bibtex
     - Word output: pandoc (https://pandoc.org/installing.html)
  2. If installed, restart your terminal so PATH changes take effect.
  3. Or point texbatch at the binary: --engine, --bibtex, --pandoc,
     or the tools section of texbatch.yaml.`
