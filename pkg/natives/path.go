package natives

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Path pattern macros. {name} expands to the logical library name,
// {assets} and {proj} to the configured root paths.
const (
	MacroName   = "{name}"
	MacroAssets = "{assets}"
	MacroProj   = "{proj}"
)

// DefaultPathPattern places libraries next to the project root under the
// platform filename convention.
const DefaultPathPattern = "{proj}/lib{name}.so"

// ResolvePath expands pattern into a concrete filesystem path for the
// given library name. It is pure: identical inputs always produce
// identical output. An unrecognized {macro} token yields
// ErrInvalidPattern.
//
// A result containing no path separator (a bare soname such as
// "libc.so.6") is returned untouched so the platform loader's own search
// path applies. Anything else is cleaned and made absolute.
func ResolvePath(pattern, name, assetsPath, projectPath string) (string, error) {
	var b strings.Builder
	rest := pattern
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		rest = rest[open:]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated macro in %q", ErrInvalidPattern, pattern)
		}
		macro := rest[:end+1]
		switch macro {
		case MacroName:
			b.WriteString(name)
		case MacroAssets:
			b.WriteString(assetsPath)
		case MacroProj:
			b.WriteString(projectPath)
		default:
			return "", fmt.Errorf("%w: unrecognized macro %q in %q", ErrInvalidPattern, macro, pattern)
		}
		rest = rest[end+1:]
	}

	path := b.String()
	if !strings.ContainsAny(path, `/\`) {
		return path, nil
	}
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		return abs, nil
	}
	return filepath.Clean(path), nil
}
