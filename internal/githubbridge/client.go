package githubbridge

import (
	"context"
	"time"
)

// Issue is the subset of a GitHub issue the poller needs.
type Issue struct {
	Number      int64
	Title       string
	Body        string
	AuthorLogin string
	UpdatedAt   time.Time
	IsPR        bool
}

// Comment is the subset of a GitHub issue comment the poller needs.
type Comment struct {
	ID          int64
	Body        string
	AuthorLogin string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GitHubClient is the capability boundary the scheduler consumes — the
// concrete HTTP binding to the GitHub REST API is out of scope for this
// module (same pattern as pkg/llm.Client for provider SDKs): a real
// deployment backs this with an http.Client-driven implementation that
// applies the shared retry pipeline in transport.go.
type GitHubClient interface {
	// ResolveBotLogin returns the authenticated user's login, used to
	// recognize the bridge's own comments when scanning for footer
	// markers.
	ResolveBotLogin(ctx context.Context) (string, error)

	// ListIssuesUpdatedSince returns non-PR issues updated at or after
	// since, ascending by UpdatedAt, GitHub "since" pagination semantics
	// (sort=updated, direction=asc, 100 per page) applied internally.
	ListIssuesUpdatedSince(ctx context.Context, repo RepoRef, since time.Time) ([]Issue, error)

	// ListIssueComments returns every comment on issueNumber, oldest first.
	ListIssueComments(ctx context.Context, repo RepoRef, issueNumber int64) ([]Comment, error)

	// CreateIssueComment posts a new comment and returns its id.
	CreateIssueComment(ctx context.Context, repo RepoRef, issueNumber int64, body string) (int64, error)

	// UpdateIssueComment edits an existing comment's body.
	UpdateIssueComment(ctx context.Context, repo RepoRef, commentID int64, body string) error

	// FetchURL downloads an attachment URL's bytes plus its response
	// Content-Type, for the two-stage attachment policy (spec §4.8 step 6a).
	FetchURL(ctx context.Context, url string) (body []byte, contentType string, err error)
}
