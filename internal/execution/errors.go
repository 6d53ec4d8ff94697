package execution

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput indicates the request was rejected before anything ran.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedLanguage indicates the language key is unknown.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrEngineUnavailable indicates the language is declared but cannot run on this host.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrCompilation indicates the compiler exited with a non-zero status.
	ErrCompilation = errors.New("compilation failed")
	// ErrTimeout indicates the wall-clock budget was exceeded.
	ErrTimeout = errors.New("execution timed out")
	// ErrQueueFull indicates the execution pool refused the request.
	ErrQueueFull = errors.New("execution queue is full")
	// ErrProgramClosed indicates Run was called after Close.
	ErrProgramClosed = errors.New("program already closed")
)

// InvalidInputError describes why a request was rejected.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// UnavailableError carries install guidance for a language that cannot run here.
type UnavailableError struct {
	Language    string
	InstallHint string
	Cause       error
}

func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("language %s is not available on this host: %v", e.Language, e.Cause)
	}
	return fmt.Sprintf("language %s is not available on this host", e.Language)
}

func (e *UnavailableError) Unwrap() error { return ErrEngineUnavailable }

// CompileError is returned when the compile step fails.
type CompileError struct {
	Stderr   string
	ExitCode int
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compilation failed with exit code %d", e.ExitCode)
}

func (e *CompileError) Unwrap() error { return ErrCompilation }

// TimeoutError is returned when a compile or run step exceeds its budget.
type TimeoutError struct {
	Stage string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Stage, e.Limit)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }
