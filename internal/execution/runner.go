package execution

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/gema-judge/internal/language"
)

// Runner executes one rendered command against a scratch directory. It is the
// isolation boundary of the engine.
type Runner interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// WorkDir maps a host scratch directory onto the path the command sees.
	WorkDir(hostDir string) string
	// Run executes the command and reports a timeout as RunOutput.TimedOut.
	Run(ctx context.Context, cmd Command) (RunOutput, error)
	// Probe reports whether the profile can run on this backend.
	Probe(ctx context.Context, profile language.Profile) error
}

// Command is a fully rendered invocation.
type Command struct {
	Profile   language.Profile
	Args      []string
	Env       []string
	HostDir   string
	Stdin     string
	HasStdin  bool
	Timeout   time.Duration
	OutputCap int
}

// RunOutput is the raw outcome of a runner invocation.
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

const truncationMarker = "\n[output truncated]"

// cappedBuffer keeps at most limit bytes and silently discards the rest so
// the child never blocks or sees EPIPE on a full pipe.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	if limit <= 0 {
		limit = 1 << 20
	}
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.limit - len(b.buf)
	if remaining <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.truncated {
		return string(b.buf) + truncationMarker
	}
	return string(b.buf)
}
