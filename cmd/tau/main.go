// Package main provides the CLI entry point for the tau agent runtime:
// a session-backed coding assistant core with a slash command surface,
// a signed-skill trust store, and an append-only audit trail.
//
// Basic usage:
//
//	tau session init --session sess.jsonl
//	tau command --session sess.jsonl --skills ./skills "/help"
//	tau audit summarize audit.jsonl
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/njfio/tau-agent/internal/audit"
	"github.com/njfio/tau-agent/internal/command"
	"github.com/njfio/tau-agent/internal/session"
	"github.com/njfio/tau-agent/internal/trust"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	sessionPath string
	skillsDir   string
	trustPath   string
	isAdmin     bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tau",
		Short:        "tau agent runtime CLI",
		SilenceUsage: true,
		Version:      fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	}

	root.PersistentFlags().StringVar(&sessionPath, "session", "session.jsonl", "path to the session log")
	root.PersistentFlags().StringVar(&skillsDir, "skills", "./skills", "path to the skills directory")
	root.PersistentFlags().StringVar(&trustPath, "trust-roots", "", "path to the trust root store (optional)")
	root.PersistentFlags().BoolVar(&isAdmin, "admin", false, "run admin-only commands")

	root.AddCommand(newSessionCmd(), newCommandCmd(), newAuditCmd())
	return root
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "manage the session log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "create the session log's root entry if absent",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.Load(sessionPath, session.Options{})
			if err != nil {
				return fmt.Errorf("load session: %w", err)
			}
			head, err := store.EnsureInitialized(cmd.Context(), "you are a coding agent")
			if err != nil {
				return fmt.Errorf("initialize session: %w", err)
			}
			fmt.Printf("session %s ready at head #%d\n", sessionPath, head)
			return nil
		},
	})
	return cmd
}

func newCommandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "command <line>",
		Short: "dispatch a single slash command against the session/skills state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), args[0])
		},
	}
}

func runCommand(ctx context.Context, line string) error {
	store, err := session.Load(sessionPath, session.Options{})
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	head, err := store.EnsureInitialized(ctx, "you are a coding agent")
	if err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}

	var trustStore *trust.Store
	if trustPath != "" {
		trustStore, err = trust.Load(trustPath)
		if err != nil {
			return fmt.Errorf("load trust roots: %w", err)
		}
	}

	rc := &command.Context{
		Session:    store,
		ActiveHead: head,
		Trust:      trustStore,
		SkillsDir:  skillsDir,
		IsAdmin:    isAdmin,
	}

	router := command.NewDefaultRouter()
	res, err := router.Dispatch(ctx, rc, line)
	if err != nil {
		return err
	}
	fmt.Println(res.Text)
	if res.Action == command.Exit {
		os.Exit(0)
	}
	return nil
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "inspect tool-audit and prompt-telemetry logs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "summarize <path>",
		Short: "print per-tool and per-provider aggregates for an audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := audit.SummarizeAuditFile(args[0])
			if err != nil {
				return err
			}
			fmt.Println("tools:")
			for _, t := range summary.Tools {
				fmt.Printf("  %-20s count=%-6d errors=%-6d p50ms=%-6d p95ms=%-6d\n", t.ToolName, t.Count, t.ErrorCount, t.P50DurationMs, t.P95DurationMs)
			}
			fmt.Println("providers:")
			for _, p := range summary.Providers {
				fmt.Printf("  %-20s count=%-6d errors=%-6d p50ms=%-6d p95ms=%-6d\n", p.Provider, p.Count, p.ErrorCount, p.P50DurationMs, p.P95DurationMs)
			}
			return nil
		},
	})
	return cmd
}
