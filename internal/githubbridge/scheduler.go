package githubbridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/njfio/tau-agent/internal/channelstore"
	"github.com/njfio/tau-agent/internal/engine"
	"github.com/njfio/tau-agent/internal/runner"
	"github.com/njfio/tau-agent/internal/session"
	"github.com/njfio/tau-agent/pkg/llm"
)

// PairingDecision/RBACDecision mirror the two gates every event passes
// through before it is allowed to run (spec §4.8 step 4b/4c).
type PairingDecision struct {
	Allowed bool
	Reason  string
}

type RBACDecision struct {
	Allowed bool
	Reason  string
}

// PairingPolicy evaluates whether the originating channel (here, the
// repository) may run the bridge at all.
type PairingPolicy func(repo RepoRef) PairingDecision

// RBACPolicy evaluates whether principal may perform actionID (e.g.
// "command:/tau-run", "command:/tau-status").
type RBACPolicy func(principal, actionID string) RBACDecision

// activeRun tracks one in-flight run task for at-most-one-per-issue
// admission (spec §4.8 "at most one in-flight run per issue").
type activeRun struct {
	runID         string
	eventKey      string
	startedUnixMs int64
	cancel        context.CancelFunc
	done          chan RunResult
}

// Scheduler is a single-threaded poller for one repository. Multiple
// issues run concurrently as independent goroutines; PollOnce itself is
// never called concurrently with another PollOnce on the same
// Scheduler (the spec's "single-threaded poller per repository").
type Scheduler struct {
	cfg       Config
	client    GitHubClient
	llmClient llm.Client
	sink      engine.Sink
	pairing   PairingPolicy
	rbac      RBACPolicy
	botLogin  string

	state *StateStore

	mu         sync.Mutex
	activeRuns map[int64]*activeRun
	latestRuns map[int64]IssueLatestRun
	health     TransportHealthSnapshot
}

// NewScheduler constructs a Scheduler. botLogin is resolved lazily via
// client.ResolveBotLogin on the first PollOnce if cfg.BotLogin is empty.
func NewScheduler(cfg Config, client GitHubClient, llmClient llm.Client, sink engine.Sink, pairing PairingPolicy, rbac RBACPolicy) (*Scheduler, error) {
	if cfg.PollCron != "" && !gronx.IsValid(cfg.PollCron) {
		return nil, fmt.Errorf("githubbridge: invalid poll cron expression %q", cfg.PollCron)
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("githubbridge: create state dir %s: %w", cfg.StateDir, err)
	}
	statePath := filepath.Join(cfg.StateDir, "state.json")
	state, err := LoadStateStore(statePath, cfg.ProcessedEventCap)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:        cfg,
		client:     client,
		llmClient:  llmClient,
		sink:       sink,
		pairing:    pairing,
		rbac:       rbac,
		botLogin:   cfg.BotLogin,
		state:      state,
		activeRuns: make(map[int64]*activeRun),
		latestRuns: make(map[int64]IssueLatestRun),
	}, nil
}

// Health returns the last-recorded transport health snapshot (backs
// `/tau health`, spec §4.8 "Transport health").
func (s *Scheduler) Health() TransportHealthSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// LatestRun returns the last-known run summary for issueNumber, if any.
func (s *Scheduler) LatestRun(issueNumber int64) (IssueLatestRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.latestRuns[issueNumber]
	return r, ok
}

// PollOnce runs exactly one poll cycle (spec §4.8 "Cycle" steps 1-5):
// drain finished runs, fetch issues updated since the last scan, collect
// and dispatch new events, enqueueing at most one run per issue.
func (s *Scheduler) PollOnce(ctx context.Context) (PollCycleReport, error) {
	start := time.Now()
	report := PollCycleReport{}

	s.drainFinishedRuns(&report)

	if s.botLogin == "" {
		login, err := s.client.ResolveBotLogin(ctx)
		if err != nil {
			s.recordCycleFailure(start, err)
			return report, err
		}
		s.botLogin = login
	}

	since := time.UnixMilli(s.state.LastIssueScanAtMs)
	issues, err := s.client.ListIssuesUpdatedSince(ctx, s.cfg.Repo, since)
	if err != nil {
		s.recordCycleFailure(start, err)
		return report, err
	}

	var newestUpdate time.Time
	for _, issue := range issues {
		if issue.IsPR {
			continue
		}
		if issue.UpdatedAt.After(newestUpdate) {
			newestUpdate = issue.UpdatedAt
		}
		if err := s.processIssue(ctx, issue, &report); err != nil {
			report.FailedEvents++
		}
	}
	if !newestUpdate.IsZero() {
		_ = s.state.SetLastIssueScanAtMs(newestUpdate.UnixMilli())
	}

	report.CycleDurationMs = time.Since(start).Milliseconds()
	s.recordCycleSuccess(report)
	return report, nil
}

// Run drives PollOnce forever at the configured cadence until ctx is
// cancelled. Cadence is PollCron when set (cron-expression-driven,
// e.g. to poll sparsely outside business hours) or the fixed
// PollInterval otherwise.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if _, err := s.PollOnce(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		wait, err := s.nextPollDelay()
		if err != nil {
			return err
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) nextPollDelay() (time.Duration, error) {
	if s.cfg.PollCron == "" {
		if s.cfg.PollInterval <= 0 {
			return 30 * time.Second, nil
		}
		return s.cfg.PollInterval, nil
	}
	next, err := gronx.NextTickAfter(s.cfg.PollCron, time.Now(), false)
	if err != nil {
		return 0, fmt.Errorf("githubbridge: compute next poll tick for %q: %w", s.cfg.PollCron, err)
	}
	if d := time.Until(next); d > 0 {
		return d, nil
	}
	return 0, nil
}

func (s *Scheduler) processIssue(ctx context.Context, issue Issue, report *PollCycleReport) error {
	comments, err := s.client.ListIssueComments(ctx, s.cfg.Repo, issue.Number)
	if err != nil {
		return err
	}

	processedFromBot := map[string]struct{}{}
	for _, c := range comments {
		if c.AuthorLogin != s.botLogin {
			continue
		}
		for _, key := range ExtractFooterEventKeys(c.Body) {
			processedFromBot[key] = struct{}{}
		}
	}

	events := s.collectIssueEvents(issue, comments)
	report.DiscoveredEvents += len(events)

	sort.Slice(events, func(i, j int) bool {
		if events[i].OccurredAtUTC.Equal(events[j].OccurredAtUTC) {
			return events[i].Key < events[j].Key
		}
		return events[i].OccurredAtUTC.Before(events[j].OccurredAtUTC)
	})

	for _, ev := range events {
		if _, ok := processedFromBot[ev.Key]; ok {
			report.SkippedDuplicateEvents++
			continue
		}
		if s.state.IsProcessed(ev.Key) {
			report.SkippedDuplicateEvents++
			continue
		}
		if err := s.dispatchEvent(ctx, ev); err != nil {
			report.FailedEvents++
			continue
		}
		report.ProcessedEvents++
	}
	return nil
}

// collectIssueEvents builds the candidate event list for one issue
// (spec §4.8 step 4): the issue body when configured, plus every
// comment not authored by the bot (created always; edited only when
// IncludeEditedComments is set).
func (s *Scheduler) collectIssueEvents(issue Issue, comments []Comment) []GithubBridgeEvent {
	var events []GithubBridgeEvent
	if s.cfg.IncludeIssueBody && strings.TrimSpace(issue.Body) != "" {
		events = append(events, GithubBridgeEvent{
			Key:           fmt.Sprintf("issue:%d", issue.Number),
			IssueNumber:   issue.Number,
			AuthorLogin:   issue.AuthorLogin,
			Body:          issue.Body,
			OccurredAtUTC: issue.UpdatedAt,
		})
	}
	for _, c := range comments {
		if c.AuthorLogin == s.botLogin {
			continue
		}
		edited := c.UpdatedAt.After(c.CreatedAt)
		if edited && !s.cfg.IncludeEditedComments {
			continue
		}
		events = append(events, GithubBridgeEvent{
			Key:           fmt.Sprintf("comment:%d", c.ID),
			IssueNumber:   issue.Number,
			CommentID:     c.ID,
			AuthorLogin:   c.AuthorLogin,
			Body:          c.Body,
			OccurredAtUTC: c.CreatedAt,
		})
	}
	return events
}

// dispatchEvent evaluates the pairing/RBAC gates, parses the body, and
// either enqueues a run or posts a terminal (rejected/usage) comment
// directly (spec §4.8 steps 4b-4d, 5). An event denied by pairing or
// RBAC is only marked processed; no comment is posted for it.
func (s *Scheduler) dispatchEvent(ctx context.Context, ev GithubBridgeEvent) error {
	if s.pairing != nil {
		if d := s.pairing(s.cfg.Repo); !d.Allowed {
			return s.state.MarkProcessed(ev.Key)
		}
	}

	action := ParseEventAction(ev.Body)
	actionID := actionIDFor(action)
	if s.rbac != nil {
		if d := s.rbac(ev.AuthorLogin, actionID); !d.Allowed {
			return s.state.MarkProcessed(ev.Key)
		}
	}

	if action.Kind == ActionCommand {
		switch action.Command.Kind {
		case CommandInvalid:
			if _, err := s.postComment(ctx, ev.IssueNumber, RenderCommandComment(ev.Key, actionID, "invalid", action.Command.Message)); err != nil {
				return err
			}
			return s.state.MarkProcessed(ev.Key)

		case CommandStop:
			return s.handleStop(ctx, ev)
		case CommandStatus:
			return s.handleStatus(ctx, ev)
		case CommandHealth:
			return s.handleHealthCommand(ctx, ev)
		case CommandHelp:
			if _, err := s.postComment(ctx, ev.IssueNumber, RenderCommandComment(ev.Key, "help", "ok", tauCommandUsage())); err != nil {
				return err
			}
			return s.state.MarkProcessed(ev.Key)

		case CommandChatStart, CommandChatResume, CommandChatReset, CommandChatExport, CommandChatStatus, CommandChatShow, CommandChatSearch:
			return s.handleChatCommand(ctx, ev, action.Command)
		case CommandArtifacts:
			return s.handleArtifactsCommand(ctx, ev, action.Command)
		case CommandArtifactShow:
			return s.handleArtifactShowCommand(ctx, ev, action.Command)
		case CommandCanvas:
			return s.handleCanvasCommand(ctx, ev, action.Command)
		}
	}

	return s.enqueueRun(ctx, ev, action)
}

// handleStop cancels this issue's in-flight run, if any (spec §4.8
// "at most one in-flight run per issue" implies /tau stop targets that
// run's cancellation channel).
func (s *Scheduler) handleStop(ctx context.Context, ev GithubBridgeEvent) error {
	s.mu.Lock()
	ar, ok := s.activeRuns[ev.IssueNumber]
	s.mu.Unlock()

	status, message := "no_active_run", "No Tau run is currently active for this issue."
	if ok {
		ar.cancel()
		status, message = "cancelling", fmt.Sprintf("Cancelling Tau run `%s`.", ar.runID)
	}
	if _, err := s.postComment(ctx, ev.IssueNumber, RenderCommandComment(ev.Key, "stop", status, message)); err != nil {
		return err
	}
	return s.state.MarkProcessed(ev.Key)
}

func (s *Scheduler) handleStatus(ctx context.Context, ev GithubBridgeEvent) error {
	s.mu.Lock()
	ar, running := s.activeRuns[ev.IssueNumber]
	latest, hasLatest := s.latestRuns[ev.IssueNumber]
	s.mu.Unlock()

	var message string
	switch {
	case running:
		message = fmt.Sprintf("Tau run `%s` is in progress.", ar.runID)
	case hasLatest:
		message = fmt.Sprintf("Last Tau run `%s` finished with status `%s` in %dms.", latest.RunID, latest.Status, latest.DurationMs)
	default:
		message = "No Tau run has executed for this issue yet."
	}
	if _, err := s.postComment(ctx, ev.IssueNumber, RenderCommandComment(ev.Key, "status", "ok", message)); err != nil {
		return err
	}
	return s.state.MarkProcessed(ev.Key)
}

func (s *Scheduler) handleHealthCommand(ctx context.Context, ev GithubBridgeEvent) error {
	h := s.Health()
	message := fmt.Sprintf(
		"Transport health: `%s` (failure streak `%d`, last cycle `%dms`, active runs `%d`).",
		h.Classify(), h.FailureStreak, h.CycleDurationMs, h.ActiveRuns,
	)
	if _, err := s.postComment(ctx, ev.IssueNumber, RenderCommandComment(ev.Key, "health", "ok", message)); err != nil {
		return err
	}
	return s.state.MarkProcessed(ev.Key)
}

func actionIDFor(action EventAction) string {
	if action.Kind == ActionRunPrompt {
		return "command:/tau-run"
	}
	switch action.Command.Kind {
	case CommandRun:
		return "command:/tau-run"
	case CommandStop:
		return "command:/tau-stop"
	case CommandStatus:
		return "command:/tau-status"
	case CommandHealth:
		return "command:/tau-health"
	case CommandCompact:
		return "command:/tau-compact"
	default:
		return "command:/tau-" + string(action.Command.Kind)
	}
}

// enqueueRun admits ev into the active-runs map (rejecting a second
// concurrent run for the same issue, spec §4.8 step 5a) and spawns the
// run task.
func (s *Scheduler) enqueueRun(ctx context.Context, ev GithubBridgeEvent, action EventAction) error {
	s.mu.Lock()
	if _, ok := s.activeRuns[ev.IssueNumber]; ok {
		s.mu.Unlock()
		if _, err := s.postComment(ctx, ev.IssueNumber, RenderCommandComment(ev.Key, "run", "rejected", "A Tau run is already in progress for this issue; try again once it finishes.")); err != nil {
			return err
		}
		return s.state.MarkProcessed(ev.Key)
	}
	s.mu.Unlock()

	prompt := action.Prompt
	if action.Kind == ActionCommand {
		prompt = promptForCommand(s.cfg.Repo, ev, action.Command)
	}

	nowMs := time.Now().UnixMilli()
	runID := NewRunID(ev.IssueNumber, nowMs, ev.Key)

	workingID, err := s.postComment(ctx, ev.IssueNumber, RenderCommandComment(ev.Key, "run", "started", fmt.Sprintf("Tau run `%s` started.", runID)))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan RunResult, 1)
	ar := &activeRun{runID: runID, eventKey: ev.Key, startedUnixMs: nowMs, cancel: cancel, done: done}

	s.mu.Lock()
	s.activeRuns[ev.IssueNumber] = ar
	s.mu.Unlock()

	go func() {
		result := s.runTask(runCtx, ev, prompt, runID, workingID, nowMs)
		done <- result
	}()

	return s.state.MarkProcessed(ev.Key)
}

func promptForCommand(repo RepoRef, ev GithubBridgeEvent, cmd TauIssueCommand) string {
	switch cmd.Kind {
	case CommandSummarize:
		if cmd.Focus != "" {
			return fmt.Sprintf("Summarize this issue thread for %s, focusing on: %s", repo, cmd.Focus)
		}
		return fmt.Sprintf("Summarize this issue thread for %s.", repo)
	case CommandCompact:
		return "Compact the current session context, preserving the essential decisions and open items."
	default:
		if cmd.Prompt != "" {
			return cmd.Prompt
		}
		return string(cmd.Kind)
	}
}

// drainFinishedRuns joins every completed run task, records its outcome
// in latestRuns, and removes it from the active runs (spec §4.8 step 1).
// It posts no comment.
func (s *Scheduler) drainFinishedRuns(report *PollCycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for issue, ar := range s.activeRuns {
		select {
		case result := <-ar.done:
			s.latestRuns[issue] = IssueLatestRun{
				RunID: result.RunID, EventKey: result.EventKey, Status: result.Status,
				StartedUnixMs: result.StartedUnixMs, CompletedUnixMs: result.CompletedUnixMs,
				DurationMs: result.DurationMs,
			}
			delete(s.activeRuns, issue)
		default:
		}
	}
}

func (s *Scheduler) recordCycleFailure(start time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = TransportHealthSnapshot{
		UpdatedUnixMs:   time.Now().UnixMilli(),
		CycleDurationMs: time.Since(start).Milliseconds(),
		QueueDepth:      len(s.activeRuns),
		ActiveRuns:      len(s.activeRuns),
		FailureStreak:   s.health.FailureStreak + 1,
		LastCycleError:  err.Error(),
	}
}

func (s *Scheduler) recordCycleSuccess(report PollCycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = TransportHealthSnapshot{
		UpdatedUnixMs:      time.Now().UnixMilli(),
		CycleDurationMs:    report.CycleDurationMs,
		QueueDepth:         len(s.activeRuns),
		ActiveRuns:         len(s.activeRuns),
		FailureStreak:      0,
		LastCycleSucceeded: true,
	}
}

// postComment posts a new comment and returns its id.
func (s *Scheduler) postComment(ctx context.Context, issueNumber int64, body string) (int64, error) {
	var id int64
	err := WithRetry(ctx, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelayMs, s.cfg.maxRetryDelay(), func(int) error {
		var err error
		id, err = s.client.CreateIssueComment(ctx, s.cfg.Repo, issueNumber, body)
		return err
	})
	return id, err
}

// sanitizeForPath mirrors the teacher's sanitize_for_path: a filesystem-
// safe token for a repository directory name.
var sanitizePattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeForPath(raw string) string {
	return sanitizePattern.ReplaceAllString(raw, "_")
}

// sessionPathForIssue derives the per-issue session file path under the
// repository's state directory.
func sessionPathForIssue(stateDir string, repo RepoRef, issueNumber int64) string {
	repoDir := sanitizeForPath(fmt.Sprintf("%s__%s", repo.Owner, repo.Name))
	return filepath.Join(stateDir, repoDir, "issues", fmt.Sprintf("%d.session.jsonl", issueNumber))
}

func openIssueSession(stateDir string, repo RepoRef, issueNumber int64) (*session.Store, error) {
	path := sessionPathForIssue(stateDir, repo, issueNumber)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("githubbridge: create session dir for issue %d: %w", issueNumber, err)
	}
	return session.Load(path, session.Options{})
}

func newIssueRunner(store *session.Store, client llm.Client, engineCfg engine.Config, sink engine.Sink) *runner.Runner {
	return runner.New(store, client, engineCfg, sink)
}

func openIssueChannel(stateDir string, repo RepoRef, issueNumber int64) (*channelstore.Channel, error) {
	return channelstore.Open(stateDir, "github", fmt.Sprintf("%s-%d", sanitizeForPath(repo.String()), issueNumber))
}
