package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Model.Provider = "x" }, "model.provider"},
		{"zero timeout", func(c *Config) { c.Model.Timeout = 0 }, "model.timeout"},
		{"zero retries", func(c *Config) { c.Model.MaxRetries = 0 }, "model.max_retries"},
		{"unknown runtime", func(c *Config) { c.Sandbox.Runtime = "lxc" }, "sandbox.runtime"},
		{"relative workdir", func(c *Config) { c.Sandbox.Workdir = "app" }, "sandbox.workdir"},
		{"no workers", func(c *Config) { c.Sandbox.ProvisionWorkers = 0 }, "sandbox.provision_workers"},
		{"zero planner attempts", func(c *Config) { c.Workflow.PlannerAttempts = 0 }, "workflow.planner_attempts"},
		{"threshold above window", func(c *Config) { c.Workflow.LoopThreshold = 6 }, "must not exceed"},
		{"zero shortlist", func(c *Config) { c.Memory.ShortlistCap = 0 }, "memory.shortlist_cap"},
		{"unknown backend", func(c *Config) { c.Checkpoint.Backend = "sqlite" }, "checkpoint.backend"},
		{"empty listen", func(c *Config) { c.Terminal.Listen = "" }, "terminal.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	require.ErrorIs(t, Validate(nil), errors.ErrInvalidConfig)
}
