package config

import (
	"os"
	"path/filepath"
)

// KernelHome returns the root directory for kernel-owned data (checkpoints,
// config, .env). Uses $SELFWARE_HOME if set, otherwise $XDG_DATA_HOME/
// selfware, falling back to ~/.local/share/selfware per spec.md §6's
// "$XDG_DATA_HOME/<app>/ or platform equivalent".
func KernelHome() string {
	if v := os.Getenv("SELFWARE_HOME"); v != "" {
		return v
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "selfware")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".selfware")
	}
	return filepath.Join(home, ".local", "share", "selfware")
}

// CheckpointsDir returns the directory the checkpoint store persists into.
func CheckpointsDir() string {
	return filepath.Join(KernelHome(), "checkpoints")
}

// ConfigPath returns the path to the kernel's config file.
func ConfigPath() string {
	return filepath.Join(KernelHome(), "config.jsonc")
}

// DotenvPath returns the path to the kernel's .env file.
func DotenvPath() string {
	return filepath.Join(KernelHome(), ".env")
}
