package execution

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/gema-judge/internal/language"
	"github.com/noah-isme/gema-judge/pkg/docker"
)

// ContainerRunner executes commands inside one throwaway container per
// invocation, with the scratch directory bind-mounted as the working dir.
type ContainerRunner struct {
	executor   docker.Executor
	workingDir string
}

// NewContainerRunner wraps a docker executor.
func NewContainerRunner(executor docker.Executor, workingDir string) *ContainerRunner {
	if workingDir == "" {
		workingDir = "/workspace"
	}
	return &ContainerRunner{executor: executor, workingDir: workingDir}
}

// Name implements Runner.
func (r *ContainerRunner) Name() string { return "docker" }

// WorkDir implements Runner.
func (r *ContainerRunner) WorkDir(string) string { return r.workingDir }

// Run implements Runner.
func (r *ContainerRunner) Run(ctx context.Context, command Command) (RunOutput, error) {
	if command.Profile.Image == "" {
		return RunOutput{}, fmt.Errorf("language %s has no container image", command.Profile.Name)
	}

	stdout := newCappedBuffer(command.OutputCap)
	stderr := newCappedBuffer(command.OutputCap)

	result, err := r.executor.Run(ctx, docker.ExecutionRequest{
		Image:     command.Profile.Image,
		Cmd:       command.Args,
		Env:       append([]string{"HOME=" + r.workingDir, "TMPDIR=" + r.workingDir}, command.Env...),
		Timeout:   command.Timeout,
		Workspace: command.HostDir,
		Stdin:     command.Stdin,
		HasStdin:  command.HasStdin,
		Stdout:    stdout,
		Stderr:    stderr,
	})
	if err != nil {
		return RunOutput{}, err
	}

	return RunOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: result.ExitCode,
		Duration: result.Duration,
		TimedOut: result.TimedOut,
	}, nil
}

// Probe implements Runner. A profile is available when its image is present
// locally.
func (r *ContainerRunner) Probe(ctx context.Context, profile language.Profile) error {
	image := strings.TrimSpace(profile.Image)
	if image == "" {
		return fmt.Errorf("language %s has no container image", profile.Name)
	}
	return r.executor.ImagePresent(ctx, image)
}
