package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/language"
)

const (
	probeTimeout = 5 * time.Second
	killGrace    = 2 * time.Second
)

// ProcessRunner runs commands as local child processes placed in their own
// process group so a timeout can kill every descendant.
type ProcessRunner struct {
	logger  zerolog.Logger
	baseEnv []string
}

// NewProcessRunner constructs a runner backed by os/exec.
func NewProcessRunner(logger zerolog.Logger) *ProcessRunner {
	return &ProcessRunner{
		logger:  logger.With().Str("component", "process_runner").Logger(),
		baseEnv: minimalEnv(),
	}
}

// Name implements Runner.
func (r *ProcessRunner) Name() string { return "process" }

// WorkDir implements Runner; processes see the host path directly.
func (r *ProcessRunner) WorkDir(hostDir string) string { return hostDir }

// Run implements Runner.
func (r *ProcessRunner) Run(ctx context.Context, command Command) (RunOutput, error) {
	if len(command.Args) == 0 {
		return RunOutput{}, fmt.Errorf("process runner: empty command")
	}

	cmd := exec.Command(command.Args[0], command.Args[1:]...)
	cmd.Dir = command.HostDir
	cmd.Env = append(append([]string{}, r.baseEnv...), "HOME="+command.HostDir, "TMPDIR="+command.HostDir)
	cmd.Env = append(cmd.Env, command.Env...)
	if command.HasStdin {
		cmd.Stdin = strings.NewReader(command.Stdin)
	}

	stdout := newCappedBuffer(command.OutputCap)
	stderr := newCappedBuffer(command.OutputCap)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = killGrace
	configureProcessGroup(cmd)

	runCtx := ctx
	if command.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RunOutput{}, fmt.Errorf("start %s: %w", command.Args[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		killProcessGroup(cmd)
		waitErr = <-done
		timedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
		if !timedOut {
			return RunOutput{}, runCtx.Err()
		}
	}

	out := RunOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		TimedOut: timedOut,
		ExitCode: exitCode(cmd.ProcessState, waitErr),
	}

	if waitErr != nil && !timedOut {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
			return out, fmt.Errorf("wait %s: %w", command.Args[0], waitErr)
		}
	}

	return out, nil
}

// Probe implements Runner by running each of the profile's version commands.
func (r *ProcessRunner) Probe(ctx context.Context, profile language.Profile) error {
	checks, err := profile.VersionArgs()
	if err != nil {
		return err
	}

	for _, args := range checks {
		if _, err := exec.LookPath(args[0]); err != nil {
			return err
		}
	}

	dir, err := os.MkdirTemp("", "probe-")
	if err != nil {
		return fmt.Errorf("create probe dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn().Err(err).Str("dir", dir).Msg("failed to remove probe dir")
		}
	}()

	for _, args := range checks {
		out, err := r.Run(ctx, Command{Profile: profile, Args: args, HostDir: dir, Timeout: probeTimeout, OutputCap: 4096})
		if err != nil {
			return err
		}
		if out.TimedOut {
			return fmt.Errorf("%s did not answer within %s", args[0], probeTimeout)
		}
		if out.ExitCode != 0 {
			return fmt.Errorf("%s exited with code %d", args[0], out.ExitCode)
		}
	}
	return nil
}

func exitCode(state *os.ProcessState, err error) int {
	if state != nil {
		if code := state.ExitCode(); code >= 0 {
			return code
		}
		return -1
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func minimalEnv() []string {
	env := []string{"LANG=C.UTF-8", "LC_ALL=C.UTF-8"}
	if path := os.Getenv("PATH"); path != "" {
		env = append(env, "PATH="+path)
	} else {
		env = append(env, "PATH=/usr/local/bin:/usr/bin:/bin")
	}
	return env
}
