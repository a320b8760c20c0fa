package channelstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/njfio/tau-agent/pkg/convo"
)

const (
	logFileName          = "log.jsonl"
	contextFileName      = "context.jsonl"
	artifactsDirName     = "artifacts"
	artifactIndexName    = "index.jsonl"
	attachmentsDirName   = "attachments"
	attachmentManifestName = "manifest.jsonl"
)

// Channel is one transport/channel_id directory under
// <state_dir>/channel-store/channels/.
type Channel struct {
	dir string
	mu  sync.Mutex
}

// Open returns the Channel rooted at
// <baseDir>/channels/<transport>/<channelID>, creating the directory
// tree if it does not already exist.
func Open(baseDir, transport, channelID string) (*Channel, error) {
	dir := filepath.Join(baseDir, "channels", transport, channelID)
	for _, sub := range []string{"", artifactsDirName, attachmentsDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("channelstore: create %s: %w", filepath.Join(dir, sub), err)
		}
	}
	return &Channel{dir: dir}, nil
}

// Dir returns the channel's root directory.
func (c *Channel) Dir() string { return c.dir }

// AppendLogEntry appends one JSONL record to log.jsonl.
func (c *Channel) AppendLogEntry(entry LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return appendJSONLine(filepath.Join(c.dir, logFileName), entry)
}

func appendJSONLine(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("channelstore: open %s: %w", path, err)
	}
	defer f.Close()
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

// WriteTextArtifact writes body to a new file under artifacts/, appends
// its index record, and returns the record. retentionDays == nil means
// the artifact never expires.
func (c *Channel) WriteTextArtifact(runID, artifactType string, visibility Visibility, retentionDays *int, ext, body string, nowUnixMs int64) (ArtifactRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := newArtifactID(nowUnixMs)
	relPath := filepath.Join(artifactsDirName, id+normalizeExt(ext))
	absPath, err := resolveRelative(c.dir, relPath)
	if err != nil {
		return ArtifactRecord{}, err
	}
	if err := os.WriteFile(absPath, []byte(body), 0o644); err != nil {
		return ArtifactRecord{}, fmt.Errorf("channelstore: write artifact: %w", err)
	}

	rec := ArtifactRecord{
		ID:            id,
		RunID:         runID,
		Type:          artifactType,
		Visibility:    visibility,
		RelativePath:  relPath,
		CreatedUnixMs: nowUnixMs,
		RetentionDays: retentionDays,
		ExpiresUnixMs: expiryFor(nowUnixMs, retentionDays),
	}
	if err := appendJSONLine(filepath.Join(c.dir, artifactsDirName, artifactIndexName), rec); err != nil {
		return ArtifactRecord{}, err
	}
	return rec, nil
}

// AppendAttachmentRecord appends one record to the attachment manifest.
func (c *Channel) AppendAttachmentRecord(rec AttachmentRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := resolveRelative(c.dir, rec.RelativePath); err != nil {
		return err
	}
	return appendJSONLine(filepath.Join(c.dir, attachmentsDirName, attachmentManifestName), rec)
}

// LoadAttachmentRecordsTolerant parses the attachment manifest,
// dropping and counting any malformed or path-escaping lines rather
// than failing the whole load (spec §4.7).
func (c *Channel) LoadAttachmentRecordsTolerant() (records []AttachmentRecord, invalidLines int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadAttachmentsLocked()
}

func (c *Channel) loadAttachmentsLocked() ([]AttachmentRecord, int, error) {
	path := filepath.Join(c.dir, attachmentsDirName, attachmentManifestName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("channelstore: open %s: %w", path, err)
	}
	defer f.Close()

	var records []AttachmentRecord
	invalid := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec AttachmentRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			invalid++
			continue
		}
		if _, err := resolveRelative(c.dir, rec.RelativePath); err != nil {
			invalid++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, invalid, err
	}
	return records, invalid, nil
}

// loadArtifactsLocked parses the artifact index with the same tolerant
// semantics as attachments.
func (c *Channel) loadArtifactsLocked() ([]ArtifactRecord, int, error) {
	path := filepath.Join(c.dir, artifactsDirName, artifactIndexName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("channelstore: open %s: %w", path, err)
	}
	defer f.Close()

	var records []ArtifactRecord
	invalid := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec ArtifactRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			invalid++
			continue
		}
		if _, err := resolveRelative(c.dir, rec.RelativePath); err != nil {
			invalid++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, invalid, err
	}
	return records, invalid, nil
}

// ListArtifacts returns every indexed artifact record, tolerating and
// skipping malformed index lines the same way Inspect does.
func (c *Channel) ListArtifacts() ([]ArtifactRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, _, err := c.loadArtifactsLocked()
	return records, err
}

// ReadArtifact returns the indexed record and file content for the
// artifact with the given id.
func (c *Channel) ReadArtifact(id string) (ArtifactRecord, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, _, err := c.loadArtifactsLocked()
	if err != nil {
		return ArtifactRecord{}, nil, err
	}
	for _, r := range records {
		if r.ID != id {
			continue
		}
		absPath, err := resolveRelative(c.dir, r.RelativePath)
		if err != nil {
			return ArtifactRecord{}, nil, err
		}
		body, err := os.ReadFile(absPath)
		if err != nil {
			return ArtifactRecord{}, nil, err
		}
		return r, body, nil
	}
	return ArtifactRecord{}, nil, fmt.Errorf("channelstore: artifact %s not found", id)
}

// Inspect reports active/expired/invalid counts for artifacts and
// attachments without mutating anything.
func (c *Channel) Inspect(nowUnixMs int64) (InspectReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	artifacts, invalidArtifacts, err := c.loadArtifactsLocked()
	if err != nil {
		return InspectReport{}, err
	}
	attachments, invalidAttachments, err := c.loadAttachmentsLocked()
	if err != nil {
		return InspectReport{}, err
	}

	report := InspectReport{InvalidArtifacts: invalidArtifacts, InvalidAttachments: invalidAttachments}
	for _, a := range artifacts {
		if isExpired(a.ExpiresUnixMs, nowUnixMs) {
			report.ExpiredArtifacts++
		} else {
			report.ActiveArtifacts++
		}
	}
	for _, a := range attachments {
		if isExpired(a.ExpiresUnixMs, nowUnixMs) {
			report.ExpiredAttachments++
		} else {
			report.ActiveAttachments++
		}
	}
	return report, nil
}

// PurgeExpiredArtifacts removes artifact files whose expiry has passed
// and rewrites the index without them or any invalid lines. Attachments
// with expires_unix_ms == nil are never purged, so only the artifact
// index is rewritten here, matching spec §4.7.
func (c *Channel) PurgeExpiredArtifacts(nowUnixMs int64) (PurgeReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, invalid, err := c.loadArtifactsLocked()
	if err != nil {
		return PurgeReport{}, err
	}

	var kept []ArtifactRecord
	removed := 0
	for _, r := range records {
		if isExpired(r.ExpiresUnixMs, nowUnixMs) {
			absPath, err := resolveRelative(c.dir, r.RelativePath)
			if err == nil {
				_ = os.Remove(absPath)
			}
			removed++
			continue
		}
		kept = append(kept, r)
	}

	indexPath := filepath.Join(c.dir, artifactsDirName, artifactIndexName)
	if err := rewriteJSONL(indexPath, kept); err != nil {
		return PurgeReport{}, err
	}

	return PurgeReport{ArtifactsRemoved: removed, InvalidIndexLinesDropped: invalid}, nil
}

func rewriteJSONL[T any](path string, records []T) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "index-*.tmp")
	if err != nil {
		return fmt.Errorf("channelstore: create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			tmp.Close()
			return err
		}
		b = append(b, '\n')
		if _, err := tmp.Write(b); err != nil {
			tmp.Close()
			return err
		}
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

// SyncContextFromMessages rewrites context.jsonl atomically from the
// current canonical message list.
func (c *Channel) SyncContextFromMessages(messages []convo.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rewriteJSONL(filepath.Join(c.dir, contextFileName), messages)
}

func isExpired(expiresUnixMs *int64, nowUnixMs int64) bool {
	return expiresUnixMs != nil && *expiresUnixMs <= nowUnixMs
}

func expiryFor(nowUnixMs int64, retentionDays *int) *int64 {
	if retentionDays == nil {
		return nil
	}
	expires := nowUnixMs + int64(*retentionDays)*24*60*60*1000
	return &expires
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	if ext[0] == '.' {
		return ext
	}
	return "." + ext
}
