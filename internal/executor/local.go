package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/rs/zerolog"
)

// Local runs commands on this host.
type Local struct {
	dir    string
	logger zerolog.Logger
}

// NewLocal returns an executor running commands in the current directory.
func NewLocal(logger zerolog.Logger) *Local {
	return &Local{logger: logger.With().Str("executor", "local").Logger()}
}

// WithDir returns a copy that runs commands in dir.
func (e *Local) WithDir(dir string) *Local {
	c := *e
	c.dir = dir
	return &c
}

func (e *Local) Name() string {
	return "local-shell"
}

func (e *Local) Execute(
	ctx context.Context,
	stdout, stderr io.Writer,
	command string, args ...string,
) (int, error) {
	cmdStr := CommandString(command, args)
	e.logger.Debug().Str("cmd", cmdStr).Str("dir", e.dir).Msg("executing command locally")

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = e.dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode := exitErr.ExitCode()
			e.logger.Warn().Str("cmd", cmdStr).Int("exit_code", exitCode).Msg("command failed")
			return exitCode, fmt.Errorf("command exited with code %d: %w", exitCode, err)
		}

		e.logger.Error().Err(err).Str("cmd", cmdStr).Msg("command execution error")
		return -1, fmt.Errorf("command execution failed: %w", err)
	}

	e.logger.Debug().Str("cmd", cmdStr).Msg("command succeeded")
	return 0, nil
}
