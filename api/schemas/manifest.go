package schemas

import "fmt"

// NetworkMode selects the network posture of a sandboxed execution unit.
type NetworkMode string

const (
	// NetworkBridge attaches the unit to an isolated bridge with no direct
	// host access. This is the default posture.
	NetworkBridge NetworkMode = "bridge"
	// NetworkNone denies all network access.
	NetworkNone NetworkMode = "none"
)

// SandboxSpec declares the resource constraints a dynamic tool runs under.
type SandboxSpec struct {
	// Memory is a human-readable cap such as "256m".
	Memory   string      `json:"memory" yaml:"memory"`
	Network  NetworkMode `json:"network" yaml:"network"`
	Writable bool        `json:"writable" yaml:"writable"`
}

// OutputSpec declares how a tool's output may be used downstream.
type OutputSpec struct {
	// Ephemeral marks output that must never be queued for reflection or
	// persisted beyond the requesting cycle.
	Ephemeral bool `json:"ephemeral" yaml:"ephemeral"`
}

// ToolManifest is the single source of truth for a dynamic tool's identity,
// resource posture and privacy posture. Both the sandbox substrate and the
// novelty gate read it.
type ToolManifest struct {
	Name       string      `json:"name" yaml:"name"`
	Image      string      `json:"image" yaml:"image"`
	SourceHash string      `json:"source_hash" yaml:"source_hash"`
	Output     OutputSpec  `json:"output" yaml:"output"`
	Sandbox    SandboxSpec `json:"sandbox" yaml:"sandbox"`
}

// Validate checks the fields the substrate cannot proceed without.
func (m *ToolManifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("tool manifest: name is required")
	}
	if m.Image == "" {
		return fmt.Errorf("tool manifest %q: image reference is required", m.Name)
	}
	switch m.Sandbox.Network {
	case "", NetworkBridge, NetworkNone:
	default:
		return fmt.Errorf("tool manifest %q: unknown network mode %q", m.Name, m.Sandbox.Network)
	}
	return nil
}

// EffectiveNetwork resolves the manifest's network mode, defaulting to the
// isolated bridge when unset.
func (m *ToolManifest) EffectiveNetwork() NetworkMode {
	if m.Sandbox.Network == "" {
		return NetworkBridge
	}
	return m.Sandbox.Network
}
