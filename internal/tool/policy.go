package tool

import "golang.org/x/time/rate"

// BashProfile governs how aggressively the bash tool restricts commands.
type BashProfile string

const (
	BashProfileStrict     BashProfile = "strict"
	BashProfileBalanced   BashProfile = "balanced"
	BashProfilePermissive BashProfile = "permissive"
)

// Preset tightens every ceiling in Policy and forces sandboxing when set
// to PresetHardened.
type Preset string

const (
	PresetBalanced Preset = "balanced"
	PresetHardened Preset = "hardened"
)

// OSSandboxMode selects whether commands run inside an OS-level sandbox
// wrapper.
type OSSandboxMode string

const (
	SandboxOff   OSSandboxMode = "off"
	SandboxAuto  OSSandboxMode = "auto"
	SandboxForce OSSandboxMode = "force"
)

// Policy is the full set of bounds every tool invocation is checked
// against (spec §4.4). Every default is finite, but a zero
// MaxFileReadBytes, MaxFileWriteBytes or BashTimeoutMs turns that check
// off.
type Policy struct {
	AllowedRoots []string

	BashTimeoutMs         int
	MaxCommandLength       int
	AllowCommandNewlines   bool
	MaxCommandOutputBytes  int

	MaxFileReadBytes  int
	MaxFileWriteBytes int

	BashProfile     BashProfile
	AllowedCommands []string // glob patterns, enforced when BashProfile == strict

	PolicyPreset Preset

	OSSandboxMode       OSSandboxMode
	SandboxCommandTemplate string // may reference {cwd}, {shell}, {command}

	EnforceRegularFiles bool

	BashDryRun     bool
	ToolPolicyTrace bool

	RBACPrincipal  string
	RBACPolicyPath string

	// BashRateLimit, when set, throttles how often the bash tool may
	// execute a command for this policy's owner. Nil means unthrottled.
	BashRateLimit *rate.Limiter
}

// NewBashRateLimit builds a token-bucket limiter allowing perMinute
// commands per minute with a burst of up to perMinute.
func NewBashRateLimit(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
}

// DefaultPolicy returns the balanced-preset defaults every agent starts
// from absent explicit configuration.
func DefaultPolicy(workspaceRoot string) Policy {
	return Policy{
		AllowedRoots: []string{workspaceRoot},

		BashTimeoutMs:         120_000,
		MaxCommandLength:      8_192,
		AllowCommandNewlines:  true,
		MaxCommandOutputBytes: 256_000,

		MaxFileReadBytes:  5_000_000,
		MaxFileWriteBytes: 5_000_000,

		BashProfile: BashProfileBalanced,

		PolicyPreset: PresetBalanced,

		OSSandboxMode:          SandboxAuto,
		SandboxCommandTemplate: "cd {cwd} && {shell} -c {command}",

		EnforceRegularFiles: true,
	}
}

// Hardened applies the hardened preset's tightened ceilings and forces
// sandboxing, per spec §4.4.
func Hardened(workspaceRoot string) Policy {
	p := DefaultPolicy(workspaceRoot)
	p.PolicyPreset = PresetHardened
	p.BashProfile = BashProfileStrict
	p.BashTimeoutMs = 30_000
	p.MaxCommandLength = 2_048
	p.AllowCommandNewlines = false
	p.MaxCommandOutputBytes = 64_000
	p.MaxFileReadBytes = 1_000_000
	p.MaxFileWriteBytes = 1_000_000
	p.OSSandboxMode = SandboxForce
	return p
}
