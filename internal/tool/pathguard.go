package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolveWithinRoots returns the absolute, symlink-resolved form of path
// if and only if it descends from one of policy's allowed roots. A
// relative path is joined against the first allowed root.
func resolveWithinRoots(policy Policy, path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	if len(policy.AllowedRoots) == 0 {
		return "", fmt.Errorf("no allowed roots configured")
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(policy.AllowedRoots[0], clean)
	}

	canonical, err := canonicalize(target)
	if err != nil {
		return "", err
	}

	for _, root := range policy.AllowedRoots {
		rootCanonical, err := canonicalize(root)
		if err != nil {
			continue
		}
		if isDescendant(rootCanonical, canonical) {
			return canonical, nil
		}
	}
	return "", fmt.Errorf("path escapes allowed roots")
}

// canonicalize resolves symlinks when the path already exists, and
// falls back to Abs+Clean for paths that do not exist yet (e.g. a file
// about to be written).
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return abs, nil
		}
		return "", fmt.Errorf("resolve path: %w", err)
	}
	return resolved, nil
}

func isDescendant(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return true
}
