package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads the trust store at path, returning an empty store if the
// file does not yet exist.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("trust: read %s: %w", path, err)
	}

	var s Store
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("trust: parse %s: %w", path, err)
	}
	if s.SchemaVersion == 0 {
		s.SchemaVersion = schemaVersion
	}
	if s.Roots == nil {
		s.Roots = make(map[string]Root)
	}
	return &s, nil
}

// Save writes s to path as pretty JSON, atomically via temp+rename.
func Save(path string, s *Store) error {
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("trust: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("trust: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("trust: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
