// Package channelstore implements the per-channel log/artifact/attachment
// directory described in spec §4.7 (C7 Channel Store): an append-only
// log, a retention-bounded artifact index, a tolerant attachment
// manifest, and a context snapshot synced from the canonical message
// list.
package channelstore

import "github.com/njfio/tau-agent/pkg/convo"

// Direction tags which way a log entry travelled.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// LogEntry is one append_log_entry record.
type LogEntry struct {
	TimestampUnixMs int64     `json:"timestamp_unix_ms"`
	Direction       Direction `json:"direction"`
	EventKey        string    `json:"event_key,omitempty"`
	Source          string    `json:"source"`
	Payload         string    `json:"payload"`
}

// Visibility controls whether an artifact is shown to the end user or
// kept internal (e.g. raw tool output retained for debugging).
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityInternal Visibility = "internal"
)

// ArtifactRecord is one write_text_artifact index entry.
type ArtifactRecord struct {
	ID             string     `json:"id"`
	RunID          string     `json:"run_id"`
	Type           string     `json:"type"`
	Visibility     Visibility `json:"visibility"`
	RelativePath   string     `json:"relative_path"`
	CreatedUnixMs  int64      `json:"created_unix_ms"`
	RetentionDays  *int       `json:"retention_days,omitempty"`
	ExpiresUnixMs  *int64     `json:"expires_unix_ms,omitempty"`
}

// AttachmentRecord is one append_attachment_record manifest entry.
type AttachmentRecord struct {
	ID               string `json:"id"`
	RunID            string `json:"run_id"`
	URL              string `json:"url"`
	RelativePath     string `json:"relative_path"`
	ContentHash      string `json:"content_hash"`
	PolicyReasonCode string `json:"policy_reason_code"`
	CreatedUnixMs    int64  `json:"created_unix_ms"`
	RetentionDays    *int   `json:"retention_days,omitempty"`
	ExpiresUnixMs    *int64 `json:"expires_unix_ms,omitempty"`
}

// InspectReport is the read-only summary returned by inspect().
type InspectReport struct {
	ActiveArtifacts    int
	ExpiredArtifacts   int
	InvalidArtifacts   int
	ActiveAttachments  int
	ExpiredAttachments int
	InvalidAttachments int
}

// PurgeReport is returned by purge_expired_artifacts.
type PurgeReport struct {
	ArtifactsRemoved      int
	InvalidIndexLinesDropped int
}

// contextSnapshot is the on-disk shape of context.jsonl: one line per
// message, no envelope.
type contextSnapshot = convo.Message
