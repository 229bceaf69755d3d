package main

import (
	"context"
	"errors"

	"spinepipe/internal/services"
	"spinepipe/internal/toolbox"
)

const exitInterrupted = 130

// exitCode maps a command error to the process exit status: 130 for a user
// interrupt, the tool's own status for a failed tool, 1 otherwise.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, services.ErrInterrupted), errors.Is(err, context.Canceled):
		return exitInterrupted
	}
	if code, ok := toolbox.ExitCode(err); ok {
		return code
	}
	return 1
}
