// Package session implements the append-only, branching, crash-safe
// message log described in spec §4.1 (C1 Session Store): lock discipline,
// lineage reconstruction, compaction, and import/replace semantics.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/njfio/tau-agent/pkg/convo"
)

// Options configures lock timing for a Store. Zero values fall back to
// the package defaults.
type Options struct {
	LockWaitMs  int
	LockStaleMs int
}

// Store is a single session's on-disk JSONL log plus its in-memory index.
// A Store is safe for concurrent use by multiple goroutines in this
// process; cross-process exclusivity is provided by the sibling .lock
// file (see lock.go).
type Store struct {
	path string
	opts Options

	mu       sync.RWMutex
	entries  map[uint64]*Entry
	children map[uint64][]uint64
	order    []uint64 // append order, i.e. file order
	rootID   uint64
	hasRoot  bool
	nextID   uint64
}

// Load opens the session file at path, creating an empty one if it does
// not exist, and validates the entry graph. A non-nil error is always a
// *ValidationError for a malformed existing file.
func Load(path string, opts Options) (*Store, error) {
	s := &Store{
		path:     path,
		opts:     opts,
		entries:  make(map[uint64]*Entry),
		children: make(map[uint64][]uint64),
		nextID:   1,
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	sawMeta := false
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var tag struct {
			RecordType string `json:"record_type"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return nil, &ValidationError{Reason: "malformed json: " + err.Error(), Line: line}
		}
		switch tag.RecordType {
		case "meta":
			if sawMeta {
				return nil, &ValidationError{Reason: "duplicate meta record", Line: line}
			}
			var meta metaRecord
			if err := json.Unmarshal(raw, &meta); err != nil {
				return nil, &ValidationError{Reason: "malformed meta: " + err.Error(), Line: line}
			}
			sawMeta = true
		case "entry":
			var rec entryRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, &ValidationError{Reason: "malformed entry: " + err.Error(), Line: line}
			}
			if err := s.ingest(rec); err != nil {
				return nil, &ValidationError{Reason: err.Error(), Line: line}
			}
		default:
			return nil, &ValidationError{Reason: "unknown record_type " + tag.RecordType, Line: line}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("session: read %s: %w", path, err)
	}

	if !sawMeta && len(s.entries) == 0 {
		if err := s.writeMetaIfAbsent(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// ingest validates and indexes one entry record during Load. Duplicate
// ids, unknown parents, and parents with a larger id are all fatal (spec
// §3 SessionEntry invariants); more than one parentless root is accepted.
func (s *Store) ingest(rec entryRecord) error {
	if _, exists := s.entries[rec.ID]; exists {
		return fmt.Errorf("duplicate entry id %d", rec.ID)
	}
	if rec.ParentID == nil {
		// A merged store (spec §4.1 merge semantics) attaches former
		// snapshot roots as additional parentless roots, so a loadable
		// file may contain more than one; s.rootID tracks the most
		// recently seen one for diagnostics only.
		s.hasRoot = true
		s.rootID = rec.ID
	} else {
		parent, ok := s.entries[*rec.ParentID]
		if !ok {
			return fmt.Errorf("entry %d references unknown parent %d", rec.ID, *rec.ParentID)
		}
		if *rec.ParentID >= rec.ID {
			return fmt.Errorf("entry %d parent %d is not smaller", rec.ID, *rec.ParentID)
		}
		_ = parent
		s.children[*rec.ParentID] = append(s.children[*rec.ParentID], rec.ID)
	}

	entry := &Entry{ID: rec.ID, ParentID: rec.ParentID, Message: rec.Message}
	s.entries[rec.ID] = entry
	s.order = append(s.order, rec.ID)
	if rec.ID >= s.nextID {
		s.nextID = rec.ID + 1
	}
	return nil
}

func (s *Store) writeMetaIfAbsent() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("session: init %s: %w", s.path, err)
	}
	defer f.Close()
	return writeLine(f, metaRecord{RecordType: "meta", SchemaVersion: schemaVersion})
}

func writeLine(f *os.File, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}

// withLock acquires the cross-process file lock for the duration of fn.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	lk := newFileLock(s.path)
	if err := lk.Acquire(ctx, s.opts.LockWaitMs, s.opts.LockStaleMs); err != nil {
		return err
	}
	defer lk.Release()
	return fn()
}

// EnsureInitialized appends a single system-role root entry when the
// store is empty and returns its id; otherwise it returns the current
// head (the highest-id branch tip).
func (s *Store) EnsureInitialized(ctx context.Context, systemPrompt string) (uint64, error) {
	s.mu.RLock()
	empty := len(s.entries) == 0
	s.mu.RUnlock()

	if !empty {
		return s.Head()
	}

	var head uint64
	err := s.withLock(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.entries) != 0 {
			head = s.headLocked()
			return nil
		}
		id := s.nextID
		entry := &Entry{ID: id, Message: convo.Text(convo.RoleSystem, systemPrompt)}
		if err := s.appendLocked([]*Entry{entry}); err != nil {
			return err
		}
		head = id
		return nil
	})
	return head, err
}

// Reset atomically discards every existing entry and starts the store
// over with a single fresh system-role root entry, returning its id.
// Unlike deleting the backing file directly, this goes through the same
// locked rewrite path as CompactToLineage and Import, so a concurrent
// reader never observes a half-written file.
func (s *Store) Reset(ctx context.Context, systemPrompt string) (uint64, error) {
	var head uint64
	err := s.withLock(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		root := Entry{ID: 1, Message: convo.Text(convo.RoleSystem, systemPrompt)}
		if err := s.rewriteLocked([]Entry{root}); err != nil {
			return err
		}
		s.resetIndexLocked([]Entry{root})
		head = root.ID
		return nil
	})
	return head, err
}

// Head returns the highest-id branch tip, or ErrEmptyStore if the store
// has no entries.
func (s *Store) Head() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return 0, ErrEmptyStore
	}
	return s.headLocked(), nil
}

func (s *Store) headLocked() uint64 {
	tips := s.branchTipsLocked()
	return tips[len(tips)-1]
}

// AppendMessages atomically appends a chain of messages under parent. If
// parent is nil and the store is empty, a new root chain is started;
// otherwise parent must already exist. Returns the new head id.
func (s *Store) AppendMessages(ctx context.Context, parent *uint64, messages []convo.Message) (uint64, error) {
	if len(messages) == 0 {
		return s.Head()
	}

	var head uint64
	err := s.withLock(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if parent != nil {
			if _, ok := s.entries[*parent]; !ok {
				return ErrNotFound
			}
		} else if len(s.entries) != 0 {
			return fmt.Errorf("session: parent is required when the store is non-empty")
		}

		entries := make([]*Entry, 0, len(messages))
		cur := parent
		for _, msg := range messages {
			id := s.nextID + uint64(len(entries))
			e := &Entry{ID: id, ParentID: cur, Message: msg}
			entries = append(entries, e)
			idCopy := id
			cur = &idCopy
		}
		if err := s.appendLocked(entries); err != nil {
			return err
		}
		head = entries[len(entries)-1].ID
		return nil
	})
	return head, err
}

// appendLocked writes entries to disk (one JSONL line each, fsynced) and
// updates the in-memory index. Callers must hold s.mu and the file lock.
func (s *Store) appendLocked(entries []*Entry) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("session: open %s for append: %w", s.path, err)
	}
	defer f.Close()

	if len(s.entries) == 0 {
		if err := writeLine(f, metaRecord{RecordType: "meta", SchemaVersion: schemaVersion}); err != nil {
			return err
		}
	}

	for _, e := range entries {
		rec := entryRecord{RecordType: "entry", ID: e.ID, ParentID: e.ParentID, Message: e.Message}
		if err := writeLine(f, rec); err != nil {
			return err
		}
		s.entries[e.ID] = e
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
}

// LineageEntries returns the root-to-head sequence of entries for head.
func (s *Store) LineageEntries(head uint64) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lineageLocked(head)
}

func (s *Store) lineageLocked(head uint64) ([]Entry, error) {
	e, ok := s.entries[head]
	if !ok {
		return nil, ErrNotFound
	}
	var chain []Entry
	for {
		chain = append(chain, *e)
		if e.ParentID == nil {
			break
		}
		parent, ok := s.entries[*e.ParentID]
		if !ok {
			return nil, ErrNotFound
		}
		e = parent
	}
	// reverse to root-to-head order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// LineageMessages returns the root-to-head message sequence for head.
func (s *Store) LineageMessages(head uint64) ([]convo.Message, error) {
	entries, err := s.LineageEntries(head)
	if err != nil {
		return nil, err
	}
	msgs := make([]convo.Message, len(entries))
	for i, e := range entries {
		msgs[i] = e.Message
	}
	return msgs, nil
}

// BranchTips returns every entry id with no children, sorted ascending.
func (s *Store) BranchTips() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.branchTipsLocked()
}

func (s *Store) branchTipsLocked() []uint64 {
	tips := make([]uint64, 0, len(s.entries))
	for id := range s.entries {
		if len(s.children[id]) == 0 {
			tips = append(tips, id)
		}
	}
	sort.Slice(tips, func(i, j int) bool { return tips[i] < tips[j] })
	return tips
}

// Entry returns a copy of the entry with the given id.
func (s *Store) Entry(id uint64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of entries currently indexed. Tests use this to
// assert that a cancelled or timed-out prompt left the on-disk log
// unchanged (spec §8 testable property).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }
