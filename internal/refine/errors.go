package refine

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Sentinel errors you can compare with errors.Is.
var (
	// ErrToolNotFound is returned when the refinement binary cannot be located.
	ErrToolNotFound = errors.New("refine: tool not found")

	// ErrLowCoverage rejects a candidate that stops too early.
	ErrLowCoverage = errors.New("refine: insufficient coverage")

	// ErrCancelled rejects results arriving after the utterance was stopped.
	ErrCancelled = errors.New("refine: utterance cancelled")

	// ErrAlreadyReplaced rejects a second candidate for the same utterance.
	ErrAlreadyReplaced = errors.New("refine: timeline already replaced")

	// ErrEmptyResult rejects a candidate without cues.
	ErrEmptyResult = errors.New("refine: empty result")
)

// TimeoutError is returned when the tool runs past its deadline.
type TimeoutError struct {
	After  time.Duration
	Stderr string
}

func (e *TimeoutError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("refine: tool timed out after %s; stderr: %s", e.After, e.Stderr)
	}
	return fmt.Sprintf("refine: tool timed out after %s", e.After)
}

func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// ExitError is returned when the tool exits with a non-zero status.
type ExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("refine: tool exited with code %d; stderr: %s", e.ExitCode, e.Stderr)
}

// ParseError is returned when the tool output is not a valid cue record.
type ParseError struct {
	Output string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("refine: parse tool output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// isNotFound reports whether err indicates the executable was not found.
func isNotFound(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return errors.Is(execErr.Err, exec.ErrNotFound)
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr.Err, syscall.ENOENT)
	}
	return false
}

// tail keeps at most n bytes from the end of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
