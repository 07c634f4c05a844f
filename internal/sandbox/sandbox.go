// Package sandbox applies the Docker-based execution policy the config
// layer describes (config.SandboxConfig) to the argv the agent runtime
// worker subprocess is started with. The Gateway itself never executes
// tool calls — that's the worker process's job — so this package's only
// responsibility is wrapping the worker's own argv in a `docker run` when
// sandboxing is requested, not sandboxing individual tool invocations.
package sandbox

import "fmt"

// Mode controls which worker invocations get sandboxed.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeNonMain Mode = "non-main"
	ModeAll     Mode = "all"
)

// Access controls the sandbox container's view of the agent workspace.
type Access string

const (
	AccessNone Access = "none"
	AccessRO   Access = "ro"
	AccessRW   Access = "rw"
)

// Scope controls container reuse across runs.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeAgent   Scope = "agent"
	ScopeShared  Scope = "shared"
)

// Config is the resolved (defaults-applied) sandbox policy.
type Config struct {
	Mode            Mode
	Image           string
	WorkspaceAccess Access
	Scope           Scope
	MemoryMB        int
	CPUs            float64
	TimeoutSec      int
	NetworkEnabled  bool
	ReadOnlyRoot    bool
	SetupCommand    string
	Env             map[string]string

	User           string
	TmpfsSizeMB    int
	MaxOutputBytes int

	IdleHours        int
	MaxAgeDays       int
	PruneIntervalMin int
}

// DefaultConfig matches the TS SandboxPruneSettings / sandbox defaults.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeOff,
		Image:           "goclaw-sandbox:bookworm-slim",
		WorkspaceAccess: AccessRW,
		Scope:           ScopeSession,
		MemoryMB:        512,
		CPUs:            1.0,
		TimeoutSec:      300,
		ReadOnlyRoot:    true,
		MaxOutputBytes:  1 << 20,
		IdleHours:       24,
		MaxAgeDays:      7,
		PruneIntervalMin: 5,
	}
}

// WrapCommand prefixes argv with `docker run` using cfg's resource limits
// when sandboxing is enabled. argv[0] is the worker's own command line; it
// runs unmodified when cfg.Mode is ModeOff.
func WrapCommand(cfg Config, workspaceDir string, argv []string) []string {
	if cfg.Mode == ModeOff || cfg.Mode == "" {
		return argv
	}

	docker := []string{
		"docker", "run", "--rm", "-i",
		"--memory", fmt.Sprintf("%dm", cfg.MemoryMB),
		"--cpus", fmt.Sprintf("%.2f", cfg.CPUs),
	}
	if !cfg.NetworkEnabled {
		docker = append(docker, "--network", "none")
	}
	if cfg.ReadOnlyRoot {
		docker = append(docker, "--read-only")
	}
	if cfg.TmpfsSizeMB > 0 {
		docker = append(docker, "--tmpfs", fmt.Sprintf("/tmp:size=%dm", cfg.TmpfsSizeMB))
	}
	if cfg.User != "" {
		docker = append(docker, "--user", cfg.User)
	}
	if workspaceDir != "" && cfg.WorkspaceAccess != AccessNone {
		mode := "rw"
		if cfg.WorkspaceAccess == AccessRO {
			mode = "ro"
		}
		docker = append(docker, "-v", fmt.Sprintf("%s:/workspace:%s", workspaceDir, mode))
	}
	for k, v := range cfg.Env {
		docker = append(docker, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	docker = append(docker, cfg.Image)
	return append(docker, argv...)
}
