//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Runner executes an external command given as an argument vector.
type Runner interface {
	// Run executes argv and returns its combined output.
	// A non-zero exit status or a launch failure is an error.
	Run(ctx context.Context, argv []string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. No shell is ever involved.
type ExecRunner struct{}

var (
	// errEmptyCommand is returned when there is nothing to run.
	errEmptyCommand = errors.New("empty command")
)

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errEmptyCommand
	}

	//nolint:gosec // argv comes from operator configuration plus separate file arguments.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("run %s: %w", argv[0], err)
	}

	return output, nil
}

// ParseCommand splits a configured command line into an argument vector.
// Quotes and escapes are honored; variables and backticks are not expanded.
// An empty line yields an empty vector.
func ParseCommand(line string) ([]string, error) {
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}

	argv, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", line, err)
	}

	return argv, nil
}

// WithArgs returns a copy of base with args appended, leaving base untouched.
func WithArgs(base []string, args ...string) []string {
	argv := make([]string, 0, len(base)+len(args))
	argv = append(argv, base...)

	return append(argv, args...)
}
