package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// ImportMode selects how a snapshot's entries are reconciled with an
// existing store (spec §4.1 import semantics).
type ImportMode int

const (
	// ImportMerge remaps every snapshot id to a fresh id past the
	// store's current maximum, rewires parent pointers through the
	// remap table, and attaches former snapshot roots as new, parentless
	// roots in the target. It never compares or deduplicates against
	// the store's existing entries — two independently-grown histories
	// are combined side by side, not unioned by id.
	ImportMerge ImportMode = iota

	// ImportReplace discards the store's current content entirely and
	// replaces it with the snapshot.
	ImportReplace
)

// Import reconciles snapshot (the JSONL produced by ExportLineageJSONL
// or a full session file) into the store according to mode, and returns
// the resulting head id.
func (s *Store) Import(ctx context.Context, snapshot []byte, mode ImportMode) (uint64, error) {
	incoming, err := parseSnapshot(snapshot)
	if err != nil {
		return 0, err
	}
	if len(incoming) == 0 {
		return 0, fmt.Errorf("session: import snapshot has no entries")
	}

	var head uint64
	err = s.withLock(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch mode {
		case ImportReplace:
			if err := validateGraph(incoming); err != nil {
				return err
			}
			if err := s.rewriteLocked(incoming); err != nil {
				return err
			}
			s.resetIndexLocked(incoming)
		case ImportMerge:
			merged, err := s.mergeLocked(incoming)
			if err != nil {
				return err
			}
			if err := s.rewriteLocked(merged); err != nil {
				return err
			}
			s.resetIndexLocked(merged)
		default:
			return fmt.Errorf("session: unknown import mode %d", mode)
		}

		head = s.headLocked()
		return nil
	})
	return head, err
}

func parseSnapshot(raw []byte) ([]Entry, error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var entries []Entry
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var tag struct {
			RecordType string `json:"record_type"`
		}
		if err := json.Unmarshal(b, &tag); err != nil {
			return nil, &ValidationError{Reason: "malformed json: " + err.Error(), Line: line}
		}
		if tag.RecordType != "entry" {
			continue
		}
		var rec entryRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, &ValidationError{Reason: "malformed entry: " + err.Error(), Line: line}
		}
		entries = append(entries, Entry{ID: rec.ID, ParentID: rec.ParentID, Message: rec.Message})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// validateGraph checks the parent-before-child, no-duplicate-id, and
// at-least-one-root invariants against a standalone entry slice (not yet
// indexed). Multiple root entries are permitted here: a merged store is
// a forest of one root per combined history (spec §4.1 merge semantics),
// not a single tree.
func validateGraph(entries []Entry) error {
	seen := make(map[uint64]bool, len(entries))
	rootSeen := false
	for _, e := range entries {
		if seen[e.ID] {
			return &ValidationError{Reason: fmt.Sprintf("duplicate entry id %d", e.ID)}
		}
		seen[e.ID] = true
		if e.ParentID == nil {
			rootSeen = true
			continue
		}
		if !seen[*e.ParentID] {
			return &ValidationError{Reason: fmt.Sprintf("entry %d parent %d not seen before it", e.ID, *e.ParentID)}
		}
		if *e.ParentID >= e.ID {
			return &ValidationError{Reason: fmt.Sprintf("entry %d parent %d is not smaller", e.ID, *e.ParentID)}
		}
	}
	if !rootSeen {
		return &ValidationError{Reason: "snapshot has no root entry"}
	}
	return nil
}

// mergeLocked combines the store's current entries with a snapshot's
// entries by remapping every incoming id to a fresh id past the store's
// current maximum, rewiring each incoming parent pointer through that
// remap table, and attaching former snapshot roots as new, parentless
// roots in the target (spec §4.1 merge semantics). Callers must hold
// s.mu.
func (s *Store) mergeLocked(incoming []Entry) ([]Entry, error) {
	if err := validateGraph(incoming); err != nil {
		return nil, err
	}

	merged := make([]Entry, 0, len(s.entries)+len(incoming))
	for _, id := range s.order {
		merged = append(merged, *s.entries[id])
	}

	remap := make(map[uint64]uint64, len(incoming))
	nextID := s.nextID
	for _, e := range incoming {
		remap[e.ID] = nextID
		nextID++
	}

	for _, e := range incoming {
		remapped := Entry{ID: remap[e.ID], Message: e.Message}
		if e.ParentID != nil {
			parentID := remap[*e.ParentID]
			remapped.ParentID = &parentID
		}
		merged = append(merged, remapped)
	}

	sortEntriesByID(merged)
	if err := validateGraph(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *Store) resetIndexLocked(entries []Entry) {
	s.entries = make(map[uint64]*Entry, len(entries))
	s.children = make(map[uint64][]uint64, len(entries))
	s.order = s.order[:0]
	s.hasRoot = false
	s.nextID = 1
	for i := range entries {
		e := entries[i]
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
}

func sortEntriesByID(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}
