// Package githubbridge implements the GitHub Issues Bridge Scheduler
// described in spec §4.8 (C8): a single-threaded poller per repository
// that turns issue/comment activity into agent runs, with at most one
// in-flight run per issue, footer-marker replay discipline, and a
// chunked comment-posting pipeline bounded by GitHubCommentMaxChars.
package githubbridge

import "time"

// GitHubCommentMaxChars is the hard character ceiling a rendered
// comment body must respect before it is split into follow-up chunks.
const GitHubCommentMaxChars = 65_000

// EventKeyMarkerPrefix/LegacyEventKeyMarkerPrefix bracket the event key
// recorded in the footer of every bot-authored comment. The legacy
// prefix is still recognized when scanning for already-processed
// events so a bridge upgraded mid-flight does not re-run events a
// prior version already answered.
//
// eventKeyTag/legacyEventKeyTag are the same markers without the HTML
// comment delimiters, matched against html.Tokenizer's comment text
// (which excludes "<!--"/"-->").
const (
	EventKeyMarkerPrefix       = "<!-- " + eventKeyTag
	LegacyEventKeyMarkerPrefix = "<!-- " + legacyEventKeyTag
	eventKeyMarkerSuffix       = " -->"

	eventKeyTag       = "tau-event-key:"
	legacyEventKeyTag = "rsbot-event-key:"
)

const (
	chatShowDefaultLimit = 10
	chatShowMaxLimit     = 50
	chatSearchMaxLimit   = 50
)

// RepoRef identifies one GitHub repository the bridge polls.
type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) String() string { return r.Owner + "/" + r.Name }

// GithubBridgeEvent is one actionable unit discovered during a poll
// cycle: an issue body (if configured) or a comment, not yet answered.
type GithubBridgeEvent struct {
	Key           string // stable identity: "issue:<n>" or "comment:<id>"
	IssueNumber   int64
	CommentID     int64 // zero when Key addresses the issue body itself
	AuthorLogin   string
	Body          string
	OccurredAtUTC time.Time
}

// TauIssueCommand is a parsed `/tau ...` sub-command (spec §4.8 step
// 4d). Exactly one of its fields is meaningful per Kind.
type TauIssueCommand struct {
	Kind CommandKind

	// Run
	Prompt string

	// ChatShow
	Limit int

	// ChatSearch
	Query string
	Role  string

	// Artifacts
	ArtifactsPurge bool
	RunID          string

	// ArtifactShow
	ArtifactID string

	// Canvas
	CanvasArgs string

	// Summarize
	Focus string

	// Invalid
	Message string
}

// CommandKind enumerates the /tau sub-commands.
type CommandKind string

const (
	CommandRun          CommandKind = "run"
	CommandStop         CommandKind = "stop"
	CommandStatus       CommandKind = "status"
	CommandHealth       CommandKind = "health"
	CommandCompact      CommandKind = "compact"
	CommandHelp         CommandKind = "help"
	CommandChatStart    CommandKind = "chat_start"
	CommandChatResume   CommandKind = "chat_resume"
	CommandChatReset    CommandKind = "chat_reset"
	CommandChatExport   CommandKind = "chat_export"
	CommandChatStatus   CommandKind = "chat_status"
	CommandChatShow     CommandKind = "chat_show"
	CommandChatSearch   CommandKind = "chat_search"
	CommandArtifacts    CommandKind = "artifacts"
	CommandArtifactShow CommandKind = "artifact_show"
	CommandCanvas       CommandKind = "canvas"
	CommandSummarize    CommandKind = "summarize"
	CommandInvalid      CommandKind = "invalid"
)

// EventActionKind distinguishes a bare prompt from a parsed /tau command.
type EventActionKind string

const (
	ActionRunPrompt EventActionKind = "run_prompt"
	ActionCommand   EventActionKind = "command"
)

// EventAction is the result of parsing an event's body (spec §4.8 step 4d).
type EventAction struct {
	Kind    EventActionKind
	Prompt  string // ActionRunPrompt
	Command TauIssueCommand // ActionCommand
}

// RunResult is the outcome record produced by one run task (spec §4.8
// step 6/step 7's {edit_attempted, edit_success, append_count,
// posted_comment_id} contract plus run accounting).
type RunResult struct {
	IssueNumber     int64
	EventKey        string
	RunID           string
	StartedUnixMs   int64
	CompletedUnixMs int64
	DurationMs      int64
	Status          string
	PostedCommentID int64
	EditAttempted   bool
	EditSuccess     bool
	AppendCount     int
	Model           string
	InputTokens     int
	OutputTokens    int
	Err             string
}

// IssueLatestRun is the last-known-run summary the scheduler keeps per
// issue for `/tau status`.
type IssueLatestRun struct {
	RunID           string
	EventKey        string
	Status          string
	StartedUnixMs   int64
	CompletedUnixMs int64
	DurationMs      int64
}

// PollCycleReport summarizes one poll cycle's outcome (spec §4.8 cycle
// step enumeration).
type PollCycleReport struct {
	DiscoveredEvents       int
	ProcessedEvents        int
	SkippedDuplicateEvents int
	FailedEvents           int
	CycleDurationMs        int64
}

// TransportHealthSnapshot is written once per poll cycle and backs
// `/tau health` (spec §4.8 "Transport health").
type TransportHealthSnapshot struct {
	UpdatedUnixMs      int64
	CycleDurationMs    int64
	QueueDepth         int
	ActiveRuns         int
	FailureStreak      int
	LastCycleError     string
	LastCycleSucceeded bool
}

// HealthStatus classifies a TransportHealthSnapshot.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthFailing  HealthStatus = "failing"
)

// Classify derives a HealthStatus from the failure streak the way
// `/tau health` reports it (spec §4.8): three or more consecutive
// failed cycles is failing, one or two is degraded, zero is healthy.
func (s TransportHealthSnapshot) Classify() HealthStatus {
	switch {
	case s.FailureStreak >= 3:
		return HealthFailing
	case s.FailureStreak > 0:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}
