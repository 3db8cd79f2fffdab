package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKernelHome_Default(t *testing.T) {
	t.Setenv("SELFWARE_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := KernelHome()
	want := filepath.Join(home, ".local", "share", "selfware")
	if got != want {
		t.Errorf("KernelHome() = %q, want %q", got, want)
	}
}

func TestKernelHome_XDGDataHome(t *testing.T) {
	t.Setenv("SELFWARE_HOME", "")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	got := KernelHome()
	want := "/tmp/xdg-data/selfware"
	if got != want {
		t.Errorf("KernelHome() = %q, want %q", got, want)
	}
}

func TestKernelHome_EnvOverride(t *testing.T) {
	t.Setenv("SELFWARE_HOME", "/tmp/custom-selfware")

	got := KernelHome()
	want := "/tmp/custom-selfware"
	if got != want {
		t.Errorf("KernelHome() = %q, want %q", got, want)
	}
}

func TestCheckpointsDir(t *testing.T) {
	t.Setenv("SELFWARE_HOME", "/tmp/test-selfware")

	got := CheckpointsDir()
	want := "/tmp/test-selfware/checkpoints"
	if got != want {
		t.Errorf("CheckpointsDir() = %q, want %q", got, want)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("SELFWARE_HOME", "/tmp/test-selfware")

	got := ConfigPath()
	want := "/tmp/test-selfware/config.jsonc"
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestDotenvPath(t *testing.T) {
	t.Setenv("SELFWARE_HOME", "/tmp/test-selfware")

	got := DotenvPath()
	want := "/tmp/test-selfware/.env"
	if got != want {
		t.Errorf("DotenvPath() = %q, want %q", got, want)
	}
}
