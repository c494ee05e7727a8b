package config

import (
	"os"
	"path/filepath"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/errors"
)

// Home returns the forge data directory: $FORGE_HOME when set, else ~/.forge.
func Home() (string, error) {
	if home := os.Getenv("FORGE_HOME"); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(userHome, constants.ForgeHome), nil
}

// GlobalConfigPath returns the global configuration file path.
func GlobalConfigPath() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, constants.GlobalConfigName), nil
}

// ProjectConfigPath returns the project configuration file path relative to the working directory.
func ProjectConfigPath() string {
	return filepath.FromSlash(constants.ProjectConfigName)
}

// CheckpointDir resolves the checkpoint store directory.
func (c *Config) CheckpointDir(home string) string {
	if c.Checkpoint.Dir != "" {
		return c.Checkpoint.Dir
	}
	return filepath.Join(home, constants.CheckpointsDir)
}

// SandboxRoot resolves the local sandbox root.
func (c *Config) SandboxRoot(home string) string {
	if c.Sandbox.Root != "" {
		return c.Sandbox.Root
	}
	return filepath.Join(home, constants.SandboxesDir)
}
