package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"spinepipe/internal/services"
	"spinepipe/internal/toolbox"
)

func TestExitCode(t *testing.T) {
	toolErr := services.Wrap(services.ErrExternalTool, "sct_deepseg", "run", "", &toolbox.ExitError{Tool: "sct_deepseg", Code: 3})
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"tool exit", toolErr, 3},
		{"wrapped tool exit", fmt.Errorf("subject sub-01: %w", toolErr), 3},
		{"interrupted", services.Wrap(services.ErrInterrupted, "sc_seg", "run", "interrupted", context.Canceled), exitInterrupted},
		{"canceled", context.Canceled, exitInterrupted},
		{"validation", services.Wrap(services.ErrValidation, "run", "", "subject argument required", nil), 1},
		{"plain", errors.New("boom"), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.err); got != tc.want {
				t.Fatalf("exitCode = %d, want %d", got, tc.want)
			}
		})
	}
}
