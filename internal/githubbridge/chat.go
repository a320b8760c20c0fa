package githubbridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/njfio/tau-agent/internal/session"
	"github.com/njfio/tau-agent/pkg/convo"
)

// handleChatCommand executes every `/tau chat ...` sub-command directly
// against the issue's session store, mirroring handleStop/handleStatus:
// these are control-plane operations on session state, never routed
// through the LLM (spec §4.8 step 4d, session store ops spec §4.1).
func (s *Scheduler) handleChatCommand(ctx context.Context, ev GithubBridgeEvent, cmd TauIssueCommand) error {
	store, err := openIssueSession(s.cfg.StateDir, s.cfg.Repo, ev.IssueNumber)
	if err != nil {
		return err
	}
	systemPrompt := s.cfg.RenderOptions.System
	command := string(cmd.Kind)

	var message string
	switch cmd.Kind {
	case CommandChatStart:
		head, err := store.EnsureInitialized(ctx, systemPrompt)
		if err != nil {
			return s.postChatError(ctx, ev, command, err)
		}
		message = fmt.Sprintf("Chat session ready at entry #%d.", head)

	case CommandChatResume:
		head, err := store.Head()
		if err != nil {
			return s.postChatError(ctx, ev, command, err)
		}
		lineage, err := store.LineageMessages(head)
		if err != nil {
			return s.postChatError(ctx, ev, command, err)
		}
		message = fmt.Sprintf("Resumed chat session at entry #%d (%d messages in lineage).", head, len(lineage))

	case CommandChatReset:
		head, err := store.Reset(ctx, systemPrompt)
		if err != nil {
			return s.postChatError(ctx, ev, command, err)
		}
		message = fmt.Sprintf("Chat session reset. New root entry #%d.", head)

	case CommandChatExport:
		head, err := store.Head()
		if err != nil {
			return s.postChatError(ctx, ev, command, err)
		}
		snapshot, err := store.ExportLineageJSONL(head)
		if err != nil {
			return s.postChatError(ctx, ev, command, err)
		}
		message = fmt.Sprintf("Chat export for entry #%d:\n\n```jsonl\n%s\n```", head, strings.TrimRight(string(snapshot), "\n"))

	case CommandChatStatus:
		head, err := store.Head()
		if err != nil {
			return s.postChatError(ctx, ev, command, err)
		}
		tips := store.BranchTips()
		message = fmt.Sprintf("Chat session: head entry #%d, %d total entries, %d open branch tip(s).", head, store.Len(), len(tips))

	case CommandChatShow:
		head, err := store.Head()
		if err != nil {
			return s.postChatError(ctx, ev, command, err)
		}
		messages, err := store.LineageMessages(head)
		if err != nil {
			return s.postChatError(ctx, ev, command, err)
		}
		limit := cmd.Limit
		if limit <= 0 || limit > len(messages) {
			limit = len(messages)
		}
		tail := messages[len(messages)-limit:]
		var b strings.Builder
		fmt.Fprintf(&b, "Last %d message(s) of chat session (head entry #%d):\n", len(tail), head)
		for _, m := range tail {
			fmt.Fprintf(&b, "- **%s**: %s\n", m.Role, truncateForError(m.TextContent(), 400))
		}
		message = strings.TrimRight(b.String(), "\n")

	case CommandChatSearch:
		head, err := store.Head()
		if err != nil {
			return s.postChatError(ctx, ev, command, err)
		}
		entries, err := store.LineageEntries(head)
		if err != nil {
			return s.postChatError(ctx, ev, command, err)
		}
		matches := searchLineage(entries, cmd.Query, cmd.Role, cmd.Limit)
		if len(matches) == 0 {
			message = fmt.Sprintf("No matches for %q.", cmd.Query)
			break
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d match(es) for %q:\n", len(matches), cmd.Query)
		for _, m := range matches {
			fmt.Fprintf(&b, "- #%d [%s] %s\n", m.entryID, m.role, m.snippet)
		}
		message = strings.TrimRight(b.String(), "\n")

	default:
		return fmt.Errorf("githubbridge: handleChatCommand called with non-chat kind %q", cmd.Kind)
	}

	if err := s.postCommandChunks(ctx, ev.IssueNumber, ev.Key, command, "ok", message); err != nil {
		return err
	}
	return s.state.MarkProcessed(ev.Key)
}

func (s *Scheduler) postChatError(ctx context.Context, ev GithubBridgeEvent, command string, err error) error {
	if postErr := s.postCommandChunks(ctx, ev.IssueNumber, ev.Key, command, "failed", fmt.Sprintf("Error: %s", err)); postErr != nil {
		return postErr
	}
	return s.state.MarkProcessed(ev.Key)
}

type chatSearchMatch struct {
	entryID uint64
	role    convo.Role
	snippet string
}

// searchLineage scans entries for a case-insensitive substring match of
// query, optionally filtered by role, up to limit hits. Adapted from
// the teacher's interactive /session-search command, generalized to the
// bridge's role-as-raw-string command shape.
func searchLineage(entries []session.Entry, query, role string, limit int) []chatSearchMatch {
	if limit <= 0 {
		limit = chatSearchMaxLimit
	}
	needle := strings.ToLower(query)
	var matches []chatSearchMatch
	for _, e := range entries {
		if role != "" && string(e.Message.Role) != strings.ToLower(role) {
			continue
		}
		text := e.Message.TextContent()
		idx := strings.Index(strings.ToLower(text), needle)
		if idx == -1 {
			continue
		}
		matches = append(matches, chatSearchMatch{
			entryID: e.ID,
			role:    e.Message.Role,
			snippet: searchSnippet(text, idx, len(query)),
		})
		if len(matches) >= limit {
			break
		}
	}
	return matches
}

// searchSnippet returns a short window of text around a match, with
// leading/trailing ellipsis markers when truncated.
func searchSnippet(text string, matchIdx, matchLen int) string {
	const window = 40
	start := matchIdx - window
	prefix := ""
	if start <= 0 {
		start = 0
	} else {
		prefix = "…"
	}
	end := matchIdx + matchLen + window
	suffix := ""
	if end >= len(text) {
		end = len(text)
	} else {
		suffix = "…"
	}
	return prefix + strings.TrimSpace(text[start:end]) + suffix
}

// handleArtifactsCommand executes `/tau artifacts [purge|run <id>]`
// directly against the issue's channel artifact index.
func (s *Scheduler) handleArtifactsCommand(ctx context.Context, ev GithubBridgeEvent, cmd TauIssueCommand) error {
	ch, err := openIssueChannel(s.cfg.StateDir, s.cfg.Repo, ev.IssueNumber)
	if err != nil {
		return err
	}

	if cmd.ArtifactsPurge {
		report, err := ch.PurgeExpiredArtifacts(time.Now().UnixMilli())
		if err != nil {
			return s.postChatError(ctx, ev, "artifacts", err)
		}
		message := fmt.Sprintf("Purged %d expired artifact(s), dropped %d invalid index line(s).", report.ArtifactsRemoved, report.InvalidIndexLinesDropped)
		if err := s.postCommandChunks(ctx, ev.IssueNumber, ev.Key, "artifacts", "ok", message); err != nil {
			return err
		}
		return s.state.MarkProcessed(ev.Key)
	}

	records, err := ch.ListArtifacts()
	if err != nil {
		return s.postChatError(ctx, ev, "artifacts", err)
	}
	if cmd.RunID != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.RunID == cmd.RunID {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	if len(records) == 0 {
		if err := s.postCommandChunks(ctx, ev.IssueNumber, ev.Key, "artifacts", "ok", "No artifacts recorded."); err != nil {
			return err
		}
		return s.state.MarkProcessed(ev.Key)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d artifact(s):\n", len(records))
	for _, r := range records {
		fmt.Fprintf(&b, "- `%s` type `%s` run `%s` visibility `%s` path `%s`\n", r.ID, r.Type, r.RunID, r.Visibility, r.RelativePath)
	}
	if err := s.postCommandChunks(ctx, ev.IssueNumber, ev.Key, "artifacts", "ok", strings.TrimRight(b.String(), "\n")); err != nil {
		return err
	}
	return s.state.MarkProcessed(ev.Key)
}

// handleArtifactShowCommand executes `/tau artifact-show <id>` directly,
// reading the artifact's indexed content from the channel store.
func (s *Scheduler) handleArtifactShowCommand(ctx context.Context, ev GithubBridgeEvent, cmd TauIssueCommand) error {
	ch, err := openIssueChannel(s.cfg.StateDir, s.cfg.Repo, ev.IssueNumber)
	if err != nil {
		return err
	}
	record, body, err := ch.ReadArtifact(cmd.ArtifactID)
	if err != nil {
		return s.postChatError(ctx, ev, "artifact_show", err)
	}
	message := fmt.Sprintf("Artifact `%s` (type `%s`, run `%s`):\n\n```\n%s\n```", record.ID, record.Type, record.RunID, string(body))
	if err := s.postCommandChunks(ctx, ev.IssueNumber, ev.Key, "artifact_show", "ok", message); err != nil {
		return err
	}
	return s.state.MarkProcessed(ev.Key)
}

// handleCanvasCommand accepts and routes `/tau canvas ...` as an opaque
// payload: canvas rendering is out of scope, so the arguments are
// acknowledged directly rather than interpreted or sent to the LLM.
func (s *Scheduler) handleCanvasCommand(ctx context.Context, ev GithubBridgeEvent, cmd TauIssueCommand) error {
	message := fmt.Sprintf("Canvas command accepted: `%s`. Canvas rendering is not available in this bridge; the payload has been recorded as an opaque command.", cmd.CanvasArgs)
	if err := s.postCommandChunks(ctx, ev.IssueNumber, ev.Key, "canvas", "ok", message); err != nil {
		return err
	}
	return s.state.MarkProcessed(ev.Key)
}

// postCommandChunks renders content with the same event-key-marker
// footer as RenderCommandComment, chunking it across follow-up comments
// when it exceeds GitHubCommentMaxChars (spec §4.8 step 7's chunking
// invariant, generalized to the direct-command reply path).
func (s *Scheduler) postCommandChunks(ctx context.Context, issueNumber int64, eventKey, command, status, content string) error {
	footer := fmt.Sprintf("%s%s%s\n_Tau command `%s` | status `%s`_", EventKeyMarkerPrefix, eventKey, eventKeyMarkerSuffix, command, status)
	chunks := RenderCommentChunks(content, footer, GitHubCommentMaxChars)
	for _, chunk := range chunks {
		if _, err := s.postComment(ctx, issueNumber, chunk); err != nil {
			return err
		}
	}
	return nil
}
