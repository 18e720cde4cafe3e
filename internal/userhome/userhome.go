// Package userhome resolves user-relative paths. Config values may use a
// leading tilde; everything that touches the filesystem goes through
// Expand first.
package userhome

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Expand resolves a leading "~" or "~/" in path to the user's home
// directory. Paths naming another user ("~alice/...") are rejected.
func Expand(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return "", errors.New("cannot expand user-specific home path: " + path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// EnsureDir expands path and creates the directory with mode 0700.
func EnsureDir(path string) (string, error) {
	expanded, err := Expand(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return "", err
	}
	return expanded, nil
}
