package githubbridge

import (
	"strconv"
	"strings"
)

// ParseEventAction parses an event's raw body into an EventAction: a
// leading "/tau" token dispatches to a sub-command, anything else is a
// bare RunPrompt (spec §4.8 step 4d).
func ParseEventAction(body string) EventAction {
	if cmd, ok := parseTauIssueCommand(body); ok {
		return EventAction{Kind: ActionCommand, Command: cmd}
	}
	return EventAction{Kind: ActionRunPrompt, Prompt: strings.TrimSpace(body)}
}

func parseTauIssueCommand(body string) (TauIssueCommand, bool) {
	trimmed := strings.TrimSpace(body)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 || fields[0] != "/tau" {
		return TauIssueCommand{}, false
	}

	args := strings.TrimSpace(trimmed[len("/tau"):])
	if args == "" {
		return invalid(tauCommandUsage()), true
	}

	parts := strings.SplitN(args, " ", 2)
	command := parts[0]
	remainder := ""
	if len(parts) == 2 {
		remainder = strings.TrimSpace(parts[1])
	}

	switch command {
	case "run":
		if remainder == "" {
			return invalid("Usage: /tau run <prompt>"), true
		}
		return TauIssueCommand{Kind: CommandRun, Prompt: remainder}, true

	case "stop":
		return commandOrUsage(remainder, CommandStop, "Usage: /tau stop"), true
	case "status":
		return commandOrUsage(remainder, CommandStatus, "Usage: /tau status"), true
	case "health":
		return commandOrUsage(remainder, CommandHealth, "Usage: /tau health"), true
	case "compact":
		return commandOrUsage(remainder, CommandCompact, "Usage: /tau compact"), true
	case "help":
		return commandOrUsage(remainder, CommandHelp, "Usage: /tau help"), true

	case "chat":
		return parseChatCommand(remainder), true

	case "artifacts":
		return parseArtifactsCommand(remainder), true

	case "canvas":
		if remainder == "" {
			return invalid("Usage: /tau canvas <create|update|show|export|import> ..."), true
		}
		return TauIssueCommand{Kind: CommandCanvas, CanvasArgs: remainder}, true

	case "summarize":
		cmd := TauIssueCommand{Kind: CommandSummarize}
		if remainder != "" {
			cmd.Focus = remainder
		}
		return cmd, true

	default:
		return invalid("Unknown command `" + command + "`.\n\n" + tauCommandUsage()), true
	}
}

func commandOrUsage(remainder string, kind CommandKind, usage string) TauIssueCommand {
	if remainder != "" {
		return invalid(usage)
	}
	return TauIssueCommand{Kind: kind}
}

func parseChatCommand(remainder string) TauIssueCommand {
	const usage = "Usage: /tau chat <start|resume|reset|export|status|show [limit]|search <query> [--role r] [--limit n]>"
	if remainder == "" {
		return invalid(usage)
	}
	parts := strings.SplitN(remainder, " ", 2)
	sub := parts[0]
	subRemainder := ""
	if len(parts) == 2 {
		subRemainder = strings.TrimSpace(parts[1])
	}

	switch sub {
	case "start":
		return commandOrUsage(subRemainder, CommandChatStart, usage)
	case "resume":
		return commandOrUsage(subRemainder, CommandChatResume, usage)
	case "reset":
		return commandOrUsage(subRemainder, CommandChatReset, usage)
	case "export":
		return commandOrUsage(subRemainder, CommandChatExport, usage)
	case "status":
		return commandOrUsage(subRemainder, CommandChatStatus, usage)
	case "show":
		if subRemainder == "" {
			return TauIssueCommand{Kind: CommandChatShow, Limit: chatShowDefaultLimit}
		}
		fields := strings.Fields(subRemainder)
		if len(fields) != 1 {
			return invalid("Usage: /tau chat show [limit]")
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || n <= 0 {
			return invalid("Usage: /tau chat show [limit]")
		}
		if n > chatShowMaxLimit {
			n = chatShowMaxLimit
		}
		return TauIssueCommand{Kind: CommandChatShow, Limit: n}
	case "search":
		const searchUsage = "Usage: /tau chat search <query> [--role <role>] [--limit <n>]"
		if subRemainder == "" {
			return invalid(searchUsage)
		}
		query, role, limit, ok := parseSessionSearchArgs(subRemainder)
		if !ok || limit > chatSearchMaxLimit {
			return invalid(searchUsage)
		}
		return TauIssueCommand{Kind: CommandChatSearch, Query: query, Role: role, Limit: limit}
	default:
		return invalid(usage)
	}
}

// parseSessionSearchArgs splits "<query text> [--role r] [--limit n]"
// into its parts. Returns ok=false on a malformed --limit value.
func parseSessionSearchArgs(s string) (query, role string, limit int, ok bool) {
	limit = chatSearchMaxLimit
	tokens := strings.Fields(s)
	var queryParts []string
	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case "--role":
			if i+1 >= len(tokens) {
				return "", "", 0, false
			}
			i++
			role = tokens[i]
		case "--limit":
			if i+1 >= len(tokens) {
				return "", "", 0, false
			}
			i++
			n, err := strconv.Atoi(tokens[i])
			if err != nil || n <= 0 {
				return "", "", 0, false
			}
			limit = n
		default:
			queryParts = append(queryParts, tokens[i])
		}
	}
	query = strings.Join(queryParts, " ")
	if query == "" {
		return "", "", 0, false
	}
	return query, role, limit, true
}

func parseArtifactsCommand(remainder string) TauIssueCommand {
	const usage = "Usage: /tau artifacts [purge|run <run_id>|show <artifact_id>]"
	if remainder == "" {
		return TauIssueCommand{Kind: CommandArtifacts}
	}
	if remainder == "purge" {
		return TauIssueCommand{Kind: CommandArtifacts, ArtifactsPurge: true}
	}
	fields := strings.Fields(remainder)
	switch {
	case len(fields) == 2 && fields[0] == "run":
		return TauIssueCommand{Kind: CommandArtifacts, RunID: fields[1]}
	case len(fields) == 2 && fields[0] == "show":
		return TauIssueCommand{Kind: CommandArtifactShow, ArtifactID: fields[1]}
	default:
		return invalid(usage)
	}
}

func invalid(message string) TauIssueCommand {
	return TauIssueCommand{Kind: CommandInvalid, Message: message}
}

func tauCommandUsage() string {
	return strings.Join([]string{
		"Supported `/tau` commands:",
		"- `/tau run <prompt>`",
		"- `/tau stop`",
		"- `/tau status`",
		"- `/tau health`",
		"- `/tau compact`",
		"- `/tau help`",
		"- `/tau chat <start|resume|reset|export|status|show [limit]|search <query>>`",
		"- `/tau artifacts [purge|run <run_id>|show <artifact_id>]`",
		"- `/tau canvas <create|update|show|export|import> ...`",
		"- `/tau summarize [focus]`",
	}, "\n")
}
