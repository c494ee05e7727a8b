package domain

import (
	"time"

	"github.com/mrz1836/forge/internal/constants"
)

// SandboxRecord describes a provisioned sandbox. It is owned by the sandbox manager.
type SandboxRecord struct {
	Name string `json:"name"`

	// Volume is the persistent storage identity mounted at the workdir.
	Volume string `json:"volume"`

	// PortMap maps container ports to host ports.
	PortMap map[int]int `json:"port_map"`

	Status constants.SandboxStatus `json:"status"`
	Stack  string                  `json:"stack"`
	Image  string                  `json:"image,omitempty"`
}

// HostPort returns the host port mapped to containerPort, or 0.
func (r SandboxRecord) HostPort(containerPort int) int {
	if r.PortMap == nil {
		return 0
	}
	return r.PortMap[containerPort]
}

// ExecResult is the outcome of a command run inside a sandbox.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`

	// Detached is true when the command was launched in the background.
	Detached bool `json:"detached,omitempty"`

	// Lint holds output of the post-write lint check, if one ran.
	Lint string `json:"lint,omitempty"`

	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Succeeded reports a zero exit code.
func (r ExecResult) Succeeded() bool {
	return r.ExitCode == 0
}
