package githubbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/njfio/tau-agent/internal/channelstore"
	"github.com/njfio/tau-agent/internal/engine"
	"github.com/njfio/tau-agent/internal/runner"
	"github.com/njfio/tau-agent/internal/tool"
	"github.com/njfio/tau-agent/pkg/convo"
)

// runTask executes one run (spec §4.8 step 6): attachment downloads,
// session/channel wiring, the prompt run, and the final comment post.
func (s *Scheduler) runTask(ctx context.Context, ev GithubBridgeEvent, prompt, runID string, workingCommentID int64, startedUnixMs int64) RunResult {
	result := RunResult{
		IssueNumber:   ev.IssueNumber,
		EventKey:      ev.Key,
		RunID:         runID,
		StartedUnixMs: startedUnixMs,
	}

	ch, err := openIssueChannel(s.cfg.StateDir, s.cfg.Repo, ev.IssueNumber)
	if err != nil {
		return s.finishFailed(ctx, ev, result, workingCommentID, err)
	}
	downloaded := s.downloadAttachments(ctx, ev.Body, ch, runID)

	store, err := openIssueSession(s.cfg.StateDir, s.cfg.Repo, ev.IssueNumber)
	if err != nil {
		return s.finishFailed(ctx, ev, result, workingCommentID, err)
	}

	policy := s.cfg.ToolPolicy
	policy.RBACPrincipal = ev.AuthorLogin
	registry := tool.NewRegistry()
	_ = registry.Register(tool.NewBashTool())
	_ = registry.Register(tool.NewReadTool())
	_ = registry.Register(tool.NewWriteTool())

	engineCfg := engine.DefaultConfig()
	engineCfg.MaxTurns = s.cfg.MaxTurns

	r := newIssueRunner(store, s.llmClient, engineCfg, s.sink)
	renderOpts := runner.RenderOptions{
		Model:    s.cfg.RenderOptions.Model,
		System:   s.cfg.RenderOptions.System,
		Registry: registry,
		Policy:   policy,
	}

	renderedPrompt := renderIssuePrompt(s.cfg.Repo, ev, prompt, downloaded)
	status, outcome, err := r.RunPromptWithCancellation(ctx, renderedPrompt, s.cfg.TurnTimeoutMs, ctx.Done(), renderOpts)
	result.CompletedUnixMs = time.Now().UnixMilli()
	result.DurationMs = result.CompletedUnixMs - result.StartedUnixMs
	result.Model = renderOpts.Model
	result.InputTokens, result.OutputTokens = tokenTotals(outcome)

	if err != nil {
		return s.finishFailed(ctx, ev, result, workingCommentID, err)
	}

	result.Status = string(status)
	reply := lastAssistantReply(outcome)

	artifactBody := reply
	artifact, artErr := ch.WriteTextArtifact(runID, "github-issue-reply", channelstore.VisibilityPublic, intPtrDays(s.cfg.ArtifactRetentionDays), "md", artifactBody, result.CompletedUnixMs)
	artifactRelPath, artifactSHA256, artifactBytes := "", "", 0
	if artErr == nil {
		artifactRelPath = artifact.RelativePath
		artifactSHA256 = ContentHash([]byte(artifactBody))
		artifactBytes = len(artifactBody)
	}

	content, footer := RenderRunCommentParts(reply, ev.Key, runID, result.Status, result.Model, result.InputTokens, result.OutputTokens, artifactRelPath, artifactSHA256, artifactBytes, len(downloaded))
	chunks := RenderCommentChunks(content, footer, GitHubCommentMaxChars)

	outcomeRec := s.postChunks(ctx, ev.IssueNumber, workingCommentID, chunks)
	result.PostedCommentID = outcomeRec.postedCommentID
	result.EditAttempted = outcomeRec.editAttempted
	result.EditSuccess = outcomeRec.editSuccess
	result.AppendCount = outcomeRec.appendCount

	_ = ch.AppendLogEntry(channelstore.LogEntry{
		TimestampUnixMs: result.CompletedUnixMs,
		Direction:       channelstore.DirectionOutbound,
		EventKey:        ev.Key,
		Source:          "github",
		Payload:         reply,
	})

	return result
}

func tokenTotals(outcome engine.Outcome) (int, int) {
	// The engine reports per-request usage via its event stream, not on
	// Outcome directly; a bridge with telemetry wired records totals
	// from the sink instead. Absent that wiring, token totals are 0.
	return 0, 0
}

func lastAssistantReply(outcome engine.Outcome) string {
	for i := len(outcome.NewMessages) - 1; i >= 0; i-- {
		if outcome.NewMessages[i].Role == convo.RoleAssistant {
			return outcome.NewMessages[i].TextContent()
		}
	}
	return ""
}

func intPtrDays(days int) *int {
	if days <= 0 {
		return nil
	}
	d := days
	return &d
}

func renderIssuePrompt(repo RepoRef, ev GithubBridgeEvent, prompt string, downloaded []downloadedAttachment) string {
	out := fmt.Sprintf("Repository: %s\nIssue: #%d\nAuthor: %s\n\n%s", repo, ev.IssueNumber, ev.AuthorLogin, prompt)
	if len(downloaded) > 0 {
		out += fmt.Sprintf("\n\nAttachments (%d downloaded):", len(downloaded))
		for _, d := range downloaded {
			out += fmt.Sprintf("\n- %s (%s, %d bytes)", d.filename, d.url, len(d.body))
		}
	}
	return out
}

func (s *Scheduler) finishFailed(ctx context.Context, ev GithubBridgeEvent, result RunResult, workingCommentID int64, err error) RunResult {
	result.Status = "failed"
	result.Err = err.Error()
	result.CompletedUnixMs = time.Now().UnixMilli()
	result.DurationMs = result.CompletedUnixMs - result.StartedUnixMs

	body := renderRunErrorComment(ev, result.RunID, err)
	outcomeRec := s.postChunks(ctx, ev.IssueNumber, workingCommentID, []string{body})
	result.PostedCommentID = outcomeRec.postedCommentID
	result.EditAttempted = outcomeRec.editAttempted
	result.EditSuccess = outcomeRec.editSuccess
	result.AppendCount = outcomeRec.appendCount
	return result
}

func renderRunErrorComment(ev GithubBridgeEvent, runID string, err error) string {
	return fmt.Sprintf(
		"Tau run `%s` failed for event `%s`.\n\nError: `%s`\n\n---\n%s%s%s\n_Tau run `%s` | status `failed` | model `unavailable` | tokens in/out/total `0/0/0` | cost `unavailable`_",
		runID, ev.Key, truncateForError(err.Error(), 600),
		EventKeyMarkerPrefix, ev.Key, eventKeyMarkerSuffix, runID,
	)
}

func truncateForError(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

// commentUpdateOutcome mirrors the teacher's CommentUpdateOutcome
// (spec §4.8 step 7's {edit_attempted, edit_success, append_count,
// posted_comment_id} result record).
type commentUpdateOutcome struct {
	postedCommentID int64
	editAttempted   bool
	editSuccess     bool
	appendCount     int
}

// postChunks implements the PATCH-then-POST posting flow (spec §4.8
// step 7): attempt to edit the working comment with chunk 1; on
// failure, post a new comment instead, explicitly noting the failure;
// then POST every remaining chunk as a follow-up comment.
func (s *Scheduler) postChunks(ctx context.Context, issueNumber, workingCommentID int64, chunks []string) commentUpdateOutcome {
	out := commentUpdateOutcome{postedCommentID: workingCommentID}
	if len(chunks) == 0 {
		return out
	}

	out.editAttempted = true
	err := WithRetry(ctx, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelayMs, s.cfg.maxRetryDelay(), func(int) error {
		return s.client.UpdateIssueComment(ctx, s.cfg.Repo, workingCommentID, chunks[0])
	})
	if err == nil {
		out.editSuccess = true
	} else {
		failureBody := chunks[0] + "\n\n_warning: failed to update placeholder comment_"
		id, postErr := s.postComment(ctx, issueNumber, failureBody)
		if postErr == nil {
			out.postedCommentID = id
		}
	}

	for _, chunk := range chunks[1:] {
		if _, err := s.postComment(ctx, issueNumber, chunk); err == nil {
			out.appendCount++
		}
	}
	return out
}

type downloadedAttachment struct {
	url      string
	filename string
	body     []byte
	hash     string
}

// downloadAttachments applies the two-stage policy to every candidate
// URL in body, recording accepted downloads as channel attachments
// (spec §4.8 step 6a).
func (s *Scheduler) downloadAttachments(ctx context.Context, body string, ch *channelstore.Channel, runID string) []downloadedAttachment {
	var out []downloadedAttachment
	for i, url := range ExtractAttachmentURLs(body) {
		if ok, _ := EvaluateAttachmentURLPolicy(s.cfg.Attachments, url); !ok {
			continue
		}
		content, contentType, err := s.client.FetchURL(ctx, url)
		if err != nil {
			continue
		}
		if ok, _ := EvaluateAttachmentContentTypePolicy(s.cfg.Attachments, contentType, len(content)); !ok {
			continue
		}
		filename := AttachmentFilenameFromURL(url, content)
		relPath := fmt.Sprintf("attachments/%d-%s", i, filename)
		_ = ch.AppendAttachmentRecord(channelstore.AttachmentRecord{
			ID:               fmt.Sprintf("%s-att-%d", runID, i),
			RunID:            runID,
			URL:              url,
			RelativePath:     relPath,
			ContentHash:      ContentHash(content),
			PolicyReasonCode: "ok",
			CreatedUnixMs:    time.Now().UnixMilli(),
		})
		out = append(out, downloadedAttachment{url: url, filename: filename, body: content, hash: ContentHash(content)})
	}
	return out
}
