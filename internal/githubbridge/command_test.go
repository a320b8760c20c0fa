package githubbridge

import "testing"

func TestParseEventActionBarePromptWhenNoSlashTau(t *testing.T) {
	action := ParseEventAction("  please fix the flaky test  ")
	if action.Kind != ActionRunPrompt {
		t.Fatalf("expected ActionRunPrompt, got %v", action.Kind)
	}
	if action.Prompt != "please fix the flaky test" {
		t.Fatalf("expected trimmed prompt, got %q", action.Prompt)
	}
}

func TestParseEventActionRunCommand(t *testing.T) {
	action := ParseEventAction("/tau run fix the CI pipeline")
	if action.Kind != ActionCommand || action.Command.Kind != CommandRun {
		t.Fatalf("expected CommandRun, got %+v", action)
	}
	if action.Command.Prompt != "fix the CI pipeline" {
		t.Fatalf("unexpected prompt: %q", action.Command.Prompt)
	}
}

func TestParseEventActionRunWithoutPromptIsInvalid(t *testing.T) {
	action := ParseEventAction("/tau run")
	if action.Command.Kind != CommandInvalid {
		t.Fatalf("expected CommandInvalid, got %v", action.Command.Kind)
	}
}

func TestParseEventActionEverySimpleSubcommand(t *testing.T) {
	cases := map[string]CommandKind{
		"/tau stop":     CommandStop,
		"/tau status":   CommandStatus,
		"/tau health":   CommandHealth,
		"/tau compact":  CommandCompact,
		"/tau help":     CommandHelp,
		"/tau summarize": CommandSummarize,
	}
	for body, want := range cases {
		action := ParseEventAction(body)
		if action.Command.Kind != want {
			t.Errorf("%q: expected %v, got %v", body, want, action.Command.Kind)
		}
	}
}

func TestParseEventActionSimpleSubcommandRejectsTrailingArgs(t *testing.T) {
	action := ParseEventAction("/tau stop now")
	if action.Command.Kind != CommandInvalid {
		t.Fatalf("expected CommandInvalid for trailing args, got %v", action.Command.Kind)
	}
}

func TestParseEventActionSummarizeWithFocus(t *testing.T) {
	action := ParseEventAction("/tau summarize the root cause")
	if action.Command.Kind != CommandSummarize || action.Command.Focus != "the root cause" {
		t.Fatalf("unexpected summarize parse: %+v", action.Command)
	}
}

func TestParseEventActionChatSubcommands(t *testing.T) {
	cases := map[string]CommandKind{
		"/tau chat start":  CommandChatStart,
		"/tau chat resume": CommandChatResume,
		"/tau chat reset":  CommandChatReset,
		"/tau chat export": CommandChatExport,
		"/tau chat status": CommandChatStatus,
	}
	for body, want := range cases {
		action := ParseEventAction(body)
		if action.Command.Kind != want {
			t.Errorf("%q: expected %v, got %v", body, want, action.Command.Kind)
		}
	}
}

func TestParseEventActionChatShowDefaultAndExplicitLimit(t *testing.T) {
	action := ParseEventAction("/tau chat show")
	if action.Command.Kind != CommandChatShow || action.Command.Limit != chatShowDefaultLimit {
		t.Fatalf("expected default limit %d, got %+v", chatShowDefaultLimit, action.Command)
	}

	action = ParseEventAction("/tau chat show 5")
	if action.Command.Kind != CommandChatShow || action.Command.Limit != 5 {
		t.Fatalf("expected limit 5, got %+v", action.Command)
	}

	action = ParseEventAction("/tau chat show 999")
	if action.Command.Limit != chatShowMaxLimit {
		t.Fatalf("expected limit clamped to %d, got %d", chatShowMaxLimit, action.Command.Limit)
	}

	action = ParseEventAction("/tau chat show notanumber")
	if action.Command.Kind != CommandInvalid {
		t.Fatalf("expected invalid for non-numeric limit, got %+v", action.Command)
	}
}

func TestParseEventActionChatSearch(t *testing.T) {
	action := ParseEventAction("/tau chat search database timeout --role user --limit 5")
	if action.Command.Kind != CommandChatSearch {
		t.Fatalf("expected CommandChatSearch, got %+v", action.Command)
	}
	if action.Command.Query != "database timeout" {
		t.Fatalf("unexpected query: %q", action.Command.Query)
	}
	if action.Command.Role != "user" {
		t.Fatalf("unexpected role: %q", action.Command.Role)
	}
	if action.Command.Limit != 5 {
		t.Fatalf("unexpected limit: %d", action.Command.Limit)
	}
}

func TestParseEventActionChatSearchRequiresQuery(t *testing.T) {
	action := ParseEventAction("/tau chat search --role user")
	if action.Command.Kind != CommandInvalid {
		t.Fatalf("expected invalid when query text missing, got %+v", action.Command)
	}
}

func TestParseEventActionChatSearchRejectsLimitOverMax(t *testing.T) {
	action := ParseEventAction("/tau chat search timeout --limit 999")
	if action.Command.Kind != CommandInvalid {
		t.Fatalf("expected invalid when limit exceeds max, got %+v", action.Command)
	}
}

func TestParseEventActionChatUnknownSubcommand(t *testing.T) {
	action := ParseEventAction("/tau chat frobnicate")
	if action.Command.Kind != CommandInvalid {
		t.Fatalf("expected invalid for unknown chat subcommand, got %+v", action.Command)
	}
}

func TestParseEventActionArtifactsVariants(t *testing.T) {
	action := ParseEventAction("/tau artifacts")
	if action.Command.Kind != CommandArtifacts || action.Command.ArtifactsPurge {
		t.Fatalf("expected bare artifacts listing, got %+v", action.Command)
	}

	action = ParseEventAction("/tau artifacts purge")
	if action.Command.Kind != CommandArtifacts || !action.Command.ArtifactsPurge {
		t.Fatalf("expected purge, got %+v", action.Command)
	}

	action = ParseEventAction("/tau artifacts run gh-1-2-aaaa0000")
	if action.Command.Kind != CommandArtifacts || action.Command.RunID != "gh-1-2-aaaa0000" {
		t.Fatalf("expected run id lookup, got %+v", action.Command)
	}

	action = ParseEventAction("/tau artifacts show artifact-123")
	if action.Command.Kind != CommandArtifactShow || action.Command.ArtifactID != "artifact-123" {
		t.Fatalf("expected artifact show, got %+v", action.Command)
	}

	action = ParseEventAction("/tau artifacts bogus")
	if action.Command.Kind != CommandInvalid {
		t.Fatalf("expected invalid for malformed artifacts args, got %+v", action.Command)
	}
}

func TestParseEventActionCanvas(t *testing.T) {
	action := ParseEventAction("/tau canvas create title=\"Plan\"")
	if action.Command.Kind != CommandCanvas || action.Command.CanvasArgs != `create title="Plan"` {
		t.Fatalf("unexpected canvas parse: %+v", action.Command)
	}

	action = ParseEventAction("/tau canvas")
	if action.Command.Kind != CommandInvalid {
		t.Fatalf("expected invalid for bare canvas, got %+v", action.Command)
	}
}

func TestParseEventActionUnknownCommand(t *testing.T) {
	action := ParseEventAction("/tau frobnicate")
	if action.Command.Kind != CommandInvalid {
		t.Fatalf("expected invalid for unknown top-level command, got %+v", action.Command)
	}
	if action.Command.Message == "" {
		t.Fatalf("expected a usage message on the invalid command")
	}
}

func TestParseEventActionBareSlashTauIsInvalid(t *testing.T) {
	action := ParseEventAction("/tau")
	if action.Command.Kind != CommandInvalid {
		t.Fatalf("expected invalid for bare /tau, got %+v", action.Command)
	}
}

func TestParseEventActionSlashTauNotAtStartIsPrompt(t *testing.T) {
	action := ParseEventAction("please run /tau run something")
	if action.Kind != ActionRunPrompt {
		t.Fatalf("expected /tau mid-sentence to be a bare prompt, got %v", action.Kind)
	}
}
