package command

import (
	"context"
	"fmt"
	"strings"
)

// NewDefaultRouter returns a Router with every built-in command
// registered.
func NewDefaultRouter() *Router {
	r := NewRouter()

	r.Register(Command{
		Name:        "help",
		Description: "list available commands",
		Handler:     helpHandlerFor(r),
	})
	r.Register(Command{
		Name:        "exit",
		Aliases:     []string{"quit"},
		Description: "end the session",
		Handler: func(context.Context, *Context, string) (Result, error) {
			return Result{Text: "goodbye", Action: Exit}, nil
		},
	})
	r.Register(Command{
		Name:        "session-search",
		Usage:       "/session-search <query> [--role <user|assistant|system|tool>] [--limit <n>]",
		Description: "search the active lineage for text",
		Handler:     sessionSearchHandler,
	})
	r.Register(Command{
		Name:        "session-diff",
		Usage:       "/session-diff [<left> <right>]",
		Description: "diff two lineage heads, default active head vs latest leaf",
		Handler:     sessionDiffHandler,
	})
	r.Register(Command{
		Name:        "skills-prune",
		Usage:       "/skills-prune [path] [--dry-run|--apply]",
		Description: "reconcile the skills lockfile against what's installed",
		Handler:     skillsPruneHandler,
	})
	r.Register(Command{
		Name:        "skills-verify",
		Usage:       "/skills-verify [lockfile] [trust_roots] [--json]",
		Description: "verify installed skills' hashes and signer trust",
		Handler:     skillsVerifyHandler,
	})

	return r
}

// helpHandlerFor closes over r so /help can list every command
// registered after it, including ones Register adds later.
func helpHandlerFor(r *Router) Handler {
	return func(context.Context, *Context, string) (Result, error) {
		var b strings.Builder
		b.WriteString("Available commands:\n")
		for _, name := range r.Names() {
			cmd := r.commands[name]
			usage := cmd.Usage
			if usage == "" {
				usage = "/" + cmd.Name
			}
			fmt.Fprintf(&b, "  %-50s %s\n", usage, cmd.Description)
		}
		return Result{Text: strings.TrimRight(b.String(), "\n"), Action: Continue}, nil
	}
}
