package session

import "github.com/njfio/tau-agent/pkg/convo"

// schemaVersion is the current SessionFile meta schema version.
const schemaVersion = 1

// metaRecord is the first line of every session file.
type metaRecord struct {
	RecordType    string `json:"record_type"`
	SchemaVersion int    `json:"schema_version"`
}

// entryRecord is the on-disk shape of one SessionEntry line.
type entryRecord struct {
	RecordType string        `json:"record_type"`
	ID         uint64        `json:"id"`
	ParentID   *uint64       `json:"parent_id"`
	Message    convo.Message `json:"message"`
}

// Entry is one node in the branching session graph (spec §3 SessionEntry).
type Entry struct {
	ID       uint64
	ParentID *uint64
	Message  convo.Message
}

// HasParent reports whether this entry has a parent (is not the root).
func (e Entry) HasParent() bool { return e.ParentID != nil }
