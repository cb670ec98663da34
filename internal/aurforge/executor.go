package aurforge

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// commandFunc runs one external tool invocation. Components hold it as a
// field so tests can substitute a fake without an external toolchain.
type commandFunc func(ctx context.Context, dir string, logger io.Writer, name string, args ...string) error

// runCommand is the production commandFunc: execute the tool in dir, teeing
// output to the logger (or discarding it when nil and not verbose).
func runCommand(ctx context.Context, dir string, logger io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	switch {
	case logger != nil && Verbose:
		cmd.Stdout = io.MultiWriter(os.Stdout, logger)
		cmd.Stderr = io.MultiWriter(os.Stderr, logger)
	case logger != nil:
		cmd.Stdout = logger
		cmd.Stderr = logger
	case Verbose:
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	default:
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w", name, args, err)
	}
	return nil
}

// openBuildLog creates the per-package build log under LogsDir.
// The caller owns the returned file.
func openBuildLog(pkgName string) (*os.File, error) {
	if err := os.MkdirAll(LogsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", LogsDir, err)
	}
	path := filepath.Join(LogsDir, pkgName+".log")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create build log %s: %w", path, err)
	}
	return f, nil
}
