package channelstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolveRelative joins rel onto the channel root and rejects any path
// that escapes it — every relative path recorded in an index must be a
// descendant of the channel directory (spec §4.7).
func resolveRelative(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("channelstore: path %q must be relative", rel)
	}
	joined := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root)
	relToRoot, err := filepath.Rel(cleanRoot, joined)
	if err != nil {
		return "", fmt.Errorf("channelstore: path %q: %w", rel, err)
	}
	if relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("channelstore: path %q escapes channel directory", rel)
	}
	return joined, nil
}
