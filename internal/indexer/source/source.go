// Package source holds helpers shared by the scanners: command line
// splitting, target key resolution and home expansion.
package source

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return strings.Replace(path, "~", home, 1)
	}
	return path
}

// SplitCommand splits a command line into arguments. Single and double quotes
// group words, a backslash escapes the next character.
func SplitCommand(cmdline string) []string {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, r := range cmdline {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inArg = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args
}

// NormalizePath cleans a path into the canonical stable key form.
func NormalizePath(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

// ResolvePath returns the normalized, symlink-resolved form of an existing path.
func ResolvePath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return NormalizePath(path)
}

// ResolveKey returns the stable key for a program: the resolved executable
// path when it can be found, or "" when it cannot.
func ResolveKey(program string) string {
	program = ExpandHome(strings.TrimSpace(program))
	if program == "" {
		return ""
	}
	if strings.ContainsRune(program, filepath.Separator) || strings.ContainsRune(program, '/') {
		if _, err := os.Stat(program); err != nil {
			return ""
		}
		return ResolvePath(program)
	}
	found, err := exec.LookPath(program)
	if err != nil {
		return ""
	}
	return ResolvePath(found)
}

// CommandKey returns the stable key for a command line: the key of its
// executable followed by the remaining arguments, so that two commands running
// one binary with different arguments stay apart. It returns "" when the
// executable cannot be found.
func CommandKey(args []string) string {
	if len(args) == 0 {
		return ""
	}
	key := ResolveKey(args[0])
	if key == "" || len(args) == 1 {
		return key
	}
	return key + " " + strings.Join(args[1:], " ")
}
