package githubbridge

import (
	"time"

	"github.com/njfio/tau-agent/internal/runner"
	"github.com/njfio/tau-agent/internal/tool"
)

// Config configures one repository's bridge runtime (spec §4.8),
// generalized from GithubIssuesBridgeRuntimeConfig.
type Config struct {
	Repo  RepoRef
	Token string

	RenderOptions runner.RenderOptions
	ToolPolicy    tool.Policy
	MaxTurns      int
	TurnTimeoutMs int

	StateDir string
	BotLogin string // resolved via GitHubClient.ResolveBotLogin when empty

	// PollInterval is the fixed wait between poll cycles. PollCron, when
	// set, takes priority and drives poll cadence from a cron expression
	// instead (e.g. "*/2 * * * *" to poll every 2 minutes, or a sparser
	// schedule for low-traffic repositories outside business hours).
	PollInterval time.Duration
	PollCron     string

	IncludeIssueBody      bool
	IncludeEditedComments bool
	ProcessedEventCap     int

	RetryMaxAttempts int
	RetryBaseDelayMs int64
	RequestTimeoutMs int

	ArtifactRetentionDays int

	Attachments AttachmentPolicy
}

// DefaultConfig fills every bound with the bridge's baseline values,
// following the sanitize-on-construct idiom engine.DefaultConfig uses.
func DefaultConfig(repo RepoRef, token string) Config {
	return Config{
		Repo:  repo,
		Token: token,

		MaxTurns:      25,
		TurnTimeoutMs: 10 * 60 * 1000,

		PollInterval: 30 * time.Second,

		IncludeIssueBody:      true,
		IncludeEditedComments: false,
		ProcessedEventCap:     2_000,

		RetryMaxAttempts: 4,
		RetryBaseDelayMs: 500,
		RequestTimeoutMs: 30_000,

		ArtifactRetentionDays: 30,
	}
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c Config) maxRetryDelay() time.Duration {
	return 60 * time.Second
}
