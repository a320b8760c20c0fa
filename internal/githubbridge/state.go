package githubbridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StateStore persists the bridge's durable, restart-surviving state for
// one repository: the FIFO-capped processed-event-key set and the
// repository-wide last-scan cursor (spec §4.8 "Replay discipline").
//
// Grounded on internal/session.Store's atomic temp-file-rename write
// idiom (store.go), adapted here for a single JSON document rather than
// an append-only JSONL log, since the bridge's state is a small set of
// cursors/caps rewritten wholesale on every cycle rather than a growing
// history.
type StateStore struct {
	path string
	mu   sync.Mutex

	ProcessedEventKeys []string `json:"processed_event_keys"`
	ProcessedEventCap  int      `json:"processed_event_cap"`
	LastIssueScanAtMs  int64    `json:"last_issue_scan_at_ms"`

	processedSet map[string]struct{}
}

// LoadStateStore opens (or creates) the state file at path.
func LoadStateStore(path string, processedEventCap int) (*StateStore, error) {
	s := &StateStore{path: path, ProcessedEventCap: processedEventCap, processedSet: map[string]struct{}{}}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, s.save()
	}
	if err != nil {
		return nil, fmt.Errorf("githubbridge: read state %s: %w", path, err)
	}
	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("githubbridge: parse state %s: %w", path, err)
	}
	if s.ProcessedEventCap <= 0 {
		s.ProcessedEventCap = processedEventCap
	}
	s.processedSet = make(map[string]struct{}, len(s.ProcessedEventKeys))
	for _, k := range s.ProcessedEventKeys {
		s.processedSet[k] = struct{}{}
	}
	return s, nil
}

// IsProcessed reports whether key has already been recorded.
func (s *StateStore) IsProcessed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processedSet[key]
	return ok
}

// MarkProcessed records key, capping the set FIFO at ProcessedEventCap
// (spec §4.8 "the processed set is then capped FIFO to
// processed_event_cap").
func (s *StateStore) MarkProcessed(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processedSet[key]; ok {
		return nil
	}
	s.processedSet[key] = struct{}{}
	s.ProcessedEventKeys = append(s.ProcessedEventKeys, key)
	if s.ProcessedEventCap > 0 && len(s.ProcessedEventKeys) > s.ProcessedEventCap {
		overflow := len(s.ProcessedEventKeys) - s.ProcessedEventCap
		dropped := s.ProcessedEventKeys[:overflow]
		s.ProcessedEventKeys = append([]string(nil), s.ProcessedEventKeys[overflow:]...)
		for _, d := range dropped {
			delete(s.processedSet, d)
		}
	}
	return s.save()
}

// RebuildFromFooterScan replaces the processed set with every event key
// discovered in the bot's own comments — the restart-time reconciliation
// spec §4.8's replay discipline describes. The result is then capped
// FIFO in discovery order.
func (s *StateStore) RebuildFromFooterScan(keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProcessedEventKeys = nil
	s.processedSet = map[string]struct{}{}
	for _, k := range keys {
		if _, ok := s.processedSet[k]; ok {
			continue
		}
		s.processedSet[k] = struct{}{}
		s.ProcessedEventKeys = append(s.ProcessedEventKeys, k)
	}
	if s.ProcessedEventCap > 0 && len(s.ProcessedEventKeys) > s.ProcessedEventCap {
		overflow := len(s.ProcessedEventKeys) - s.ProcessedEventCap
		kept := append([]string(nil), s.ProcessedEventKeys[overflow:]...)
		s.ProcessedEventKeys = kept
		s.processedSet = make(map[string]struct{}, len(kept))
		for _, k := range kept {
			s.processedSet[k] = struct{}{}
		}
	}
	return s.save()
}

// SetLastIssueScanAtMs updates the "since" cursor used for the next
// poll cycle's issue fetch.
func (s *StateStore) SetLastIssueScanAtMs(ms int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastIssueScanAtMs = ms
	return s.save()
}

func (s *StateStore) save() error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "state-*.tmp")
	if err != nil {
		return fmt.Errorf("githubbridge: create temp state: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}
