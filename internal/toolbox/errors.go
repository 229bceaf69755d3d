package toolbox

import (
	"errors"
	"fmt"
)

// ExitError reports a tool that ran and exited non-zero.
type ExitError struct {
	Tool string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Tool, e.Code)
}

// ExitCode extracts the tool exit status from err. ok is false when err does
// not stem from a tool exit.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return exitErr.Code, true
	}
	return 0, false
}
