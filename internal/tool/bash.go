package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// bashArgs is the bash tool's argument shape.
type bashArgs struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
}

var bashSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "command": {"type": "string", "minLength": 1},
    "cwd": {"type": "string"}
  },
  "required": ["command"],
  "additionalProperties": false
}`)

// NewBashTool returns the built-in bash tool, grounded on spec §4.4's
// enumerated policy fields.
func NewBashTool() Spec {
	return Spec{
		Name:        "bash",
		Description: "Execute a shell command within the configured workspace roots.",
		Schema:      bashSchema,
		Invoke:      invokeBash,
	}
}

func invokeBash(ctx context.Context, raw json.RawMessage, policy Policy) (Result, error) {
	var args bashArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult("arguments are not valid JSON"), nil
	}

	if len(args.Command) > policy.MaxCommandLength {
		return errorResult("command is too long"), nil
	}
	if !policy.AllowCommandNewlines && strings.ContainsAny(args.Command, "\n\r") {
		return errorResult("command must not contain newlines"), nil
	}
	if policy.BashProfile == BashProfileStrict {
		if ok, err := commandAllowed(args.Command, policy.AllowedCommands); err != nil {
			return errorResult("allowed_commands pattern error: " + err.Error()), nil
		} else if !ok {
			return errorResult("command is not on the allowed list"), nil
		}
	}
	if policy.BashRateLimit != nil && !policy.BashRateLimit.Allow() {
		return errorResult("command rate limit exceeded"), nil
	}

	cwd := policy.AllowedRoots[0]
	if args.Cwd != "" {
		resolved, err := resolveWithinRoots(policy, args.Cwd)
		if err != nil {
			return errorResult("cwd " + err.Error()), nil
		}
		cwd = resolved
	}

	shell := "sh"
	command := args.Command
	if policy.OSSandboxMode != SandboxOff && policy.SandboxCommandTemplate != "" {
		command = expandSandboxTemplate(policy.SandboxCommandTemplate, cwd, shell, args.Command)
	}

	if policy.BashDryRun {
		payload := fmt.Sprintf("dry run: would execute %q in %s", command, cwd)
		if policy.ToolPolicyTrace {
			payload += fmt.Sprintf(" [profile=%s preset=%s sandbox=%s]", policy.BashProfile, policy.PolicyPreset, policy.OSSandboxMode)
		}
		return okResult(payload), nil
	}

	timeout := time.Duration(policy.BashTimeoutMs) * time.Millisecond
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	finalCommand := args.Command
	if policy.OSSandboxMode != SandboxOff && policy.SandboxCommandTemplate != "" {
		finalCommand = command
	}
	cmd := exec.CommandContext(runCtx, shell, "-c", finalCommand)
	cmd.Dir = cwd

	out := newLimitedBuffer(policy.MaxCommandOutputBytes)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if runCtx.Err() != nil {
		return errorResult(fmt.Sprintf("timed out after %dms", policy.BashTimeoutMs)), nil
	}

	payload := out.String()
	if err != nil {
		payload = fmt.Sprintf("%s\nexit error: %s", payload, err.Error())
	}
	if policy.ToolPolicyTrace {
		payload = fmt.Sprintf("[profile=%s preset=%s sandbox=%s] %s", policy.BashProfile, policy.PolicyPreset, policy.OSSandboxMode, payload)
	}
	return okResult(payload), nil
}

func commandAllowed(command string, patterns []string) (bool, error) {
	if len(patterns) == 0 {
		return false, nil
	}
	head := strings.TrimSpace(command)
	if idx := strings.IndexAny(head, " \t"); idx >= 0 {
		head = head[:idx]
	}
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, head)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
		if matched, err = doublestar.Match(pattern, command); err == nil && matched {
			return true, nil
		}
	}
	return false, nil
}

func expandSandboxTemplate(template, cwd, shell, command string) string {
	r := strings.NewReplacer(
		"{cwd}", cwd,
		"{shell}", shell,
		"{command}", command,
	)
	return r.Replace(template)
}

// limitedBuffer caps how many bytes it retains, silently dropping the
// remainder rather than growing without bound (spec §4.4
// max_command_output_bytes).
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func newLimitedBuffer(limit int) *limitedBuffer {
	if limit <= 0 {
		limit = 256_000
	}
	return &limitedBuffer{limit: limit}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
