package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Router holds the dispatch table and routes "/<name> <args>" lines to
// their handler.
type Router struct {
	commands map[string]*Command // by name and alias, lowercased
	order    []*Command          // registration order, for Help
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{commands: make(map[string]*Command)}
}

// Register adds a command, indexing it by name and every alias.
// Registering a name or alias that already exists overwrites the prior
// binding, so callers can override a built-in by re-registering it.
func (r *Router) Register(cmd Command) {
	c := cmd
	r.order = append(r.order, &c)
	r.commands[strings.ToLower(c.Name)] = &c
	for _, alias := range c.Aliases {
		r.commands[strings.ToLower(alias)] = &c
	}
}

// Names returns every distinct command name, not including aliases,
// sorted alphabetically.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.order))
	seen := make(map[string]bool, len(r.order))
	for _, c := range r.order {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// Parse splits a line into a command name and its argument text. ok is
// false if line is not a command (doesn't start with "/", or is just
// "/").
func Parse(line string) (name, args string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	body := strings.TrimPrefix(line, "/")
	if body == "" {
		return "", "", false
	}
	parts := strings.SplitN(body, " ", 2)
	name = strings.ToLower(parts[0])
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return name, args, true
}

// Dispatch parses line and runs the matching handler. Unknown commands
// and admin-gated commands the caller can't run both come back as a
// Result with Action=Continue and an explanatory Text, never as an
// error — only a malformed line (not starting with "/") is an error.
func (r *Router) Dispatch(ctx context.Context, rc *Context, line string) (Result, error) {
	name, args, ok := Parse(line)
	if !ok {
		return Result{}, fmt.Errorf("command: %q is not a command", line)
	}

	cmd, found := r.commands[name]
	if !found {
		text := fmt.Sprintf("Unknown command /%s.", name)
		if suggestion := r.suggest(name); suggestion != "" {
			text += fmt.Sprintf(" Did you mean /%s?", suggestion)
		}
		return Result{Text: text, Action: Continue}, nil
	}

	if cmd.AdminOnly && !rc.IsAdmin {
		return Result{Text: fmt.Sprintf("/%s requires admin privileges", cmd.Name), Action: Continue}, nil
	}

	res, err := cmd.Handler(ctx, rc, args)
	if err != nil {
		return Result{Text: err.Error(), Action: Continue}, nil
	}
	return res, nil
}

// suggest returns the closest registered command name to name by edit
// distance, or "" if nothing is close enough to be useful.
func (r *Router) suggest(name string) string {
	best := ""
	bestDist := -1
	for _, n := range r.Names() {
		d := levenshtein(name, n)
		// A suggestion further than roughly a third of the typed name's
		// length is more likely to be noise than a typo.
		threshold := len(name)/3 + 1
		if d > threshold {
			continue
		}
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = n
		}
	}
	return best
}

// levenshtein computes the classic edit distance between a and b. No
// third-party fuzzy-matching library is used anywhere in this
// codebase's dependency stack, so this is hand-rolled rather than
// imported.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			deletion := prev[j] + 1
			insertion := curr[j-1] + 1
			substitution := prev[j-1] + cost
			curr[j] = min3(deletion, insertion, substitution)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
