package fsutil

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists checks if the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// EnsureDir expands path and creates it (and parents) if missing.
// It returns the expanded path.
func EnsureDir(path string) (string, error) {
	p, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	if p == "" {
		return "", fmt.Errorf("empty directory path")
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", p, err)
	}
	return p, nil
}

// acceleratorProbes are device nodes whose presence indicates a usable GPU.
var acceleratorProbes = []string{"/dev/nvidiactl", "/dev/nvidia0", "/dev/dxg"}

// AcceleratorAvailable reports whether a hardware accelerator looks usable
// from this process: an NVIDIA device node or nvidia-smi on PATH.
func AcceleratorAvailable() bool {
	return acceleratorAvailable(acceleratorProbes, "nvidia-smi")
}

func acceleratorAvailable(nodes []string, tool string) bool {
	for _, n := range nodes {
		if PathExists(n) {
			return true
		}
	}
	if tool == "" {
		return false
	}
	_, err := exec.LookPath(tool)
	return err == nil
}
