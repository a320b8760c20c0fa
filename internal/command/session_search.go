package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/njfio/tau-agent/pkg/convo"
)

const sessionSearchMaxLimit = 100
const sessionSearchDefaultLimit = 20

var validSearchRoles = map[string]convo.Role{
	"user":      convo.RoleUser,
	"assistant": convo.RoleAssistant,
	"system":    convo.RoleSystem,
	"tool":      convo.RoleTool,
}

type sessionSearchArgs struct {
	query string
	role  convo.Role // zero value means unfiltered
	limit int
}

// parseSessionSearchArgs parses "<query> [--role <r>] [--limit <n>]".
// The query may contain spaces; it is every positional token joined
// back with single spaces.
func parseSessionSearchArgs(args string) (sessionSearchArgs, error) {
	positional, flags, err := splitArgsAndFlags(args)
	if err != nil {
		return sessionSearchArgs{}, fmt.Errorf("/session-search: %w", err)
	}

	query := strings.TrimSpace(strings.Join(positional, " "))
	if query == "" {
		return sessionSearchArgs{}, fmt.Errorf("/session-search: query must not be empty")
	}

	parsed := sessionSearchArgs{query: query, limit: sessionSearchDefaultLimit}

	if roleStr, ok := flags["role"]; ok {
		role, ok := validSearchRoles[strings.ToLower(roleStr)]
		if !ok {
			return sessionSearchArgs{}, fmt.Errorf("/session-search: --role must be one of user, assistant, system, tool, got %q", roleStr)
		}
		parsed.role = role
	}

	if limitStr, ok := flags["limit"]; ok {
		n, err := parsePositiveInt(limitStr, "limit", sessionSearchMaxLimit)
		if err != nil {
			return sessionSearchArgs{}, fmt.Errorf("/session-search: %w", err)
		}
		parsed.limit = n
	}

	return parsed, nil
}

// sessionSearchMatch is one hit against the active lineage.
type sessionSearchMatch struct {
	EntryID uint64
	Role    convo.Role
	Snippet string
}

func sessionSearchHandler(_ context.Context, rc *Context, args string) (Result, error) {
	if rc.Session == nil {
		return Result{}, fmt.Errorf("/session-search: no session attached")
	}
	parsed, err := parseSessionSearchArgs(args)
	if err != nil {
		return Result{}, err
	}

	entries, err := rc.Session.LineageEntries(rc.ActiveHead)
	if err != nil {
		return Result{}, fmt.Errorf("/session-search: %w", err)
	}

	needle := strings.ToLower(parsed.query)
	var matches []sessionSearchMatch
	for _, e := range entries {
		if parsed.role != "" && e.Message.Role != parsed.role {
			continue
		}
		text := e.Message.TextContent()
		idx := strings.Index(strings.ToLower(text), needle)
		if idx == -1 {
			continue
		}
		matches = append(matches, sessionSearchMatch{
			EntryID: e.ID,
			Role:    e.Message.Role,
			Snippet: snippet(text, idx, len(parsed.query)),
		})
		if len(matches) >= parsed.limit {
			break
		}
	}

	if len(matches) == 0 {
		return Result{Text: fmt.Sprintf("No matches for %q.", parsed.query), Action: Continue}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d match(es) for %q:\n", len(matches), parsed.query)
	for _, m := range matches {
		fmt.Fprintf(&b, "  #%d [%s] %s\n", m.EntryID, m.Role, m.Snippet)
	}
	return Result{Text: strings.TrimRight(b.String(), "\n"), Action: Continue}, nil
}

// snippet returns a short window of text around a match, with leading
// and trailing ellipsis markers when the window is truncated.
func snippet(text string, matchIdx, matchLen int) string {
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
