package cli

import (
	"fmt"

	"github.com/watsonhub/ibmcloudkit/tool"
)

// Process exit codes. Anything non-zero is a failure; config and auth get
// distinct codes so wrapper scripts can tell a bad setup from a bad key.
const (
	exitSuccess = 0
	exitFailure = 1
	exitConfig  = 2
	exitAuth    = 3
)

// ExitError is an error that carries a specific process exit code.
// Cobra's RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError creates a new ExitError with the given code and formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// exitCodeFor maps an error's taxonomy kind onto an exit code.
func exitCodeFor(err error) int {
	switch tool.KindOf(err) {
	case tool.KindConfig:
		return exitConfig
	case tool.KindAuth:
		return exitAuth
	default:
		return exitFailure
	}
}
