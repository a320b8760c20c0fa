package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CompactResult reports the outcome of a compaction pass (spec §4.1
// compact_to_lineage).
type CompactResult struct {
	RemovedEntries  int
	RetainedEntries int
	HeadID          uint64
}

// CompactToLineage rewrites the on-disk log so it contains only the
// root-to-head lineage of head, discarding every sibling branch, and
// renumbers the retained entries to dense ids starting at 1 while
// preserving their order (spec §4.1 compact_to_lineage). The rewrite is
// atomic: a temp file is fsynced and renamed over the original.
func (s *Store) CompactToLineage(ctx context.Context, head uint64) (CompactResult, error) {
	var result CompactResult
	err := s.withLock(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		lineage, err := s.lineageLocked(head)
		if err != nil {
			return err
		}

		result.RemovedEntries = len(s.entries) - len(lineage)
		result.RetainedEntries = len(lineage)

		remap := make(map[uint64]uint64, len(lineage))
		for i := range lineage {
			remap[lineage[i].ID] = uint64(i + 1)
		}
		renumbered := make([]Entry, len(lineage))
		for i, e := range lineage {
			e.ID = remap[e.ID]
			if e.ParentID != nil {
				parentID := remap[*e.ParentID]
				e.ParentID = &parentID
			}
			renumbered[i] = e
		}
		result.HeadID = renumbered[len(renumbered)-1].ID

		if err := s.rewriteLocked(renumbered); err != nil {
			return err
		}

		s.entries = make(map[uint64]*Entry, len(renumbered))
		s.children = make(map[uint64][]uint64, len(renumbered))
		s.order = s.order[:0]
		s.hasRoot = false
		s.nextID = 1
		for i := range renumbered {
			e := renumbered[i]
			s.entries[e.ID] = &e
			s.order = append(s.order, e.ID)
			if e.ParentID == nil {
				s.rootID = e.ID
				s.hasRoot = true
			} else {
				s.children[*e.ParentID] = append(s.children[*e.ParentID], e.ID)
			}
			if e.ID >= s.nextID {
				s.nextID = e.ID + 1
			}
		}
		return nil
	})
	return result, err
}

// rewriteLocked atomically replaces the backing file's content with meta
// plus the given entries, in order. Callers must hold s.mu and the file
// lock.
func (s *Store) rewriteLocked(entries []Entry) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("session: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeLine(tmp, metaRecord{RecordType: "meta", SchemaVersion: schemaVersion}); err != nil {
		tmp.Close()
		return err
	}
	for _, e := range entries {
		rec := entryRecord{RecordType: "entry", ID: e.ID, ParentID: e.ParentID, Message: e.Message}
		if err := writeLine(tmp, rec); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// ExportLineageJSONL renders the root-to-head lineage of head as the
// same meta+entry JSONL shape used on disk, suitable for attaching to an
// external system (e.g. a GitHub issue comment) or feeding to Import.
func (s *Store) ExportLineageJSONL(head uint64) ([]byte, error) {
	s.mu.RLock()
	lineage, err := s.lineageLocked(head)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var buf []byte
	appendLine := func(v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf = append(buf, b...)
		buf = append(buf, '\n')
		return nil
	}
	if err := appendLine(metaRecord{RecordType: "meta", SchemaVersion: schemaVersion}); err != nil {
		return nil, err
	}
	for _, e := range lineage {
		rec := entryRecord{RecordType: "entry", ID: e.ID, ParentID: e.ParentID, Message: e.Message}
		if err := appendLine(rec); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
