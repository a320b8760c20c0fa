package channelstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/njfio/tau-agent/pkg/convo"
)

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	ch, err := Open(t.TempDir(), "github", "owner-repo-42")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ch
}

func intPtr(v int) *int { return &v }

func TestAppendLogEntryWritesJSONL(t *testing.T) {
	ch := newTestChannel(t)
	if err := ch.AppendLogEntry(LogEntry{TimestampUnixMs: 1, Direction: DirectionInbound, Source: "issue", Payload: "hello"}); err != nil {
		t.Fatalf("AppendLogEntry: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(ch.Dir(), logFileName))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("expected non-empty log file")
	}
}

func TestWriteTextArtifactNeverExpiresWithoutRetention(t *testing.T) {
	ch := newTestChannel(t)
	rec, err := ch.WriteTextArtifact("run-1", "reply", VisibilityPublic, nil, "md", "hello world", 1000)
	if err != nil {
		t.Fatalf("WriteTextArtifact: %v", err)
	}
	if rec.ExpiresUnixMs != nil {
		t.Fatalf("ExpiresUnixMs = %v, want nil", rec.ExpiresUnixMs)
	}

	body, err := os.ReadFile(filepath.Join(ch.Dir(), rec.RelativePath))
	if err != nil {
		t.Fatalf("ReadFile artifact: %v", err)
	}
	if string(body) != "hello world" {
		t.Fatalf("body = %q, want %q", body, "hello world")
	}
}

func TestWriteTextArtifactComputesExpiryFromRetention(t *testing.T) {
	ch := newTestChannel(t)
	rec, err := ch.WriteTextArtifact("run-1", "reply", VisibilityPublic, intPtr(1), "md", "hi", 0)
	if err != nil {
		t.Fatalf("WriteTextArtifact: %v", err)
	}
	want := int64(24 * 60 * 60 * 1000)
	if rec.ExpiresUnixMs == nil || *rec.ExpiresUnixMs != want {
		t.Fatalf("ExpiresUnixMs = %v, want %d", rec.ExpiresUnixMs, want)
	}
}

func TestPurgeExpiredArtifactsRemovesOnlyExpired(t *testing.T) {
	ch := newTestChannel(t)
	expired, err := ch.WriteTextArtifact("run-1", "reply", VisibilityPublic, intPtr(1), "md", "old", 0)
	if err != nil {
		t.Fatalf("WriteTextArtifact expired: %v", err)
	}
	fresh, err := ch.WriteTextArtifact("run-2", "reply", VisibilityPublic, intPtr(30), "md", "new", 0)
	if err != nil {
		t.Fatalf("WriteTextArtifact fresh: %v", err)
	}

	report, err := ch.PurgeExpiredArtifacts(25 * 60 * 60 * 1000) // 25h later: expired's 24h window passed
	if err != nil {
		t.Fatalf("PurgeExpiredArtifacts: %v", err)
	}
	if report.ArtifactsRemoved != 1 {
		t.Fatalf("ArtifactsRemoved = %d, want 1", report.ArtifactsRemoved)
	}

	if _, err := os.Stat(filepath.Join(ch.Dir(), expired.RelativePath)); !os.IsNotExist(err) {
		t.Fatal("expected expired artifact file to be removed")
	}
	if _, err := os.Stat(filepath.Join(ch.Dir(), fresh.RelativePath)); err != nil {
		t.Fatalf("expected fresh artifact file to remain: %v", err)
	}

	inspect, err := ch.Inspect(25 * 60 * 60 * 1000)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if inspect.ActiveArtifacts != 1 || inspect.ExpiredArtifacts != 0 {
		t.Fatalf("inspect = %+v, want 1 active, 0 expired after purge", inspect)
	}
}

func TestLoadAttachmentRecordsTolerantDropsMalformedLines(t *testing.T) {
	ch := newTestChannel(t)
	manifestPath := filepath.Join(ch.Dir(), attachmentsDirName, attachmentManifestName)
	good := `{"id":"a1","run_id":"run-1","url":"https://example.com/f.png","relative_path":"attachments/a1.png","content_hash":"deadbeef","policy_reason_code":"ok","created_unix_ms":1}`
	bad := `not json at all`
	escaping := `{"id":"a2","relative_path":"../../etc/passwd"}`
	content := good + "\n" + bad + "\n" + escaping + "\n"
	if err := os.WriteFile(manifestPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	records, invalid, err := ch.LoadAttachmentRecordsTolerant()
	if err != nil {
		t.Fatalf("LoadAttachmentRecordsTolerant: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if invalid != 2 {
		t.Fatalf("invalid = %d, want 2", invalid)
	}
}

func TestAttachmentWithNilExpiryNeverPurged(t *testing.T) {
	ch := newTestChannel(t)
	if err := ch.AppendAttachmentRecord(AttachmentRecord{
		ID: "a1", RunID: "run-1", RelativePath: "attachments/a1.png", CreatedUnixMs: 0,
	}); err != nil {
		t.Fatalf("AppendAttachmentRecord: %v", err)
	}

	inspect, err := ch.Inspect(1_000_000_000_000)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if inspect.ActiveAttachments != 1 || inspect.ExpiredAttachments != 0 {
		t.Fatalf("inspect = %+v, want attachment to remain active forever", inspect)
	}
}

func TestSyncContextFromMessagesRewritesFile(t *testing.T) {
	ch := newTestChannel(t)
	msgs := []convo.Message{convo.Text(convo.RoleUser, "hi"), convo.Text(convo.RoleAssistant, "hello")}
	if err := ch.SyncContextFromMessages(msgs); err != nil {
		t.Fatalf("SyncContextFromMessages: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(ch.Dir(), contextFileName))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("expected non-empty context file")
	}

	// Re-sync with fewer messages must fully replace, not append.
	if err := ch.SyncContextFromMessages(msgs[:1]); err != nil {
		t.Fatalf("SyncContextFromMessages (2nd): %v", err)
	}
	b2, err := os.ReadFile(filepath.Join(ch.Dir(), contextFileName))
	if err != nil {
		t.Fatalf("ReadFile (2nd): %v", err)
	}
	if len(b2) >= len(b) {
		t.Fatalf("expected shrunk context file, got %d bytes vs original %d", len(b2), len(b))
	}
}

func TestAppendAttachmentRecordRejectsEscapingPath(t *testing.T) {
	ch := newTestChannel(t)
	err := ch.AppendAttachmentRecord(AttachmentRecord{ID: "a1", RelativePath: "../outside.png"})
	if err == nil {
		t.Fatal("expected error for path escaping channel directory")
	}
}
