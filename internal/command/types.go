// Package command implements the slash command router described in
// spec §4.9 (C9): parse "/<name> <args>", dispatch to a registered
// handler, and fall back to an edit-distance suggestion when the name
// doesn't match anything registered. Handlers never panic; failures
// come back as plain strings in Result.Text.
package command

import (
	"context"

	"github.com/njfio/tau-agent/internal/session"
	"github.com/njfio/tau-agent/internal/trust"
)

// Action tells the caller what to do after a command runs.
type Action int

const (
	// Continue means keep reading input as normal.
	Continue Action = iota
	// Exit means the caller should end the interactive session.
	Exit
)

// Result is the outcome of dispatching one command line.
type Result struct {
	Text   string
	Action Action
}

// Context carries the state a handler needs. It is built fresh by the
// caller for each dispatch; handlers must not retain it.
type Context struct {
	// Session is the active session store, or nil if none is attached.
	Session *session.Store
	// ActiveHead is the current lineage head entry id.
	ActiveHead uint64

	// Trust is the trust root store used by /skills-verify, or nil.
	Trust *trust.Store

	// SkillsDir is the root directory skills are discovered under.
	SkillsDir string

	// IsAdmin gates AdminOnly commands.
	IsAdmin bool
}

// Handler executes one command invocation and returns its result. An
// error is reported to the caller as Result.Text, not propagated as a
// panic or a broken session state.
type Handler func(ctx context.Context, rc *Context, args string) (Result, error)

// Command is one entry in a Router's dispatch table.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	AdminOnly   bool
	Handler     Handler
}
