package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	execDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "container",
		Name:      "execution_duration_seconds",
		Help:      "Duration of container executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"image"})

	execTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "container",
		Name:      "execution_timeouts_total",
		Help:      "Number of container executions that hit the timeout",
	}, []string{"image"})

	execFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "container",
		Name:      "execution_failures_total",
		Help:      "Number of container executions that resulted in an error",
	}, []string{"image"})
)

// Executor runs a command inside a throwaway container.
type Executor interface {
	Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
	ImagePresent(ctx context.Context, image string) error
}

// ExecutionRequest describes one container invocation. When Stdout or Stderr
// are nil the output is buffered in full and returned in the result.
type ExecutionRequest struct {
	Image         string
	Cmd           []string
	Env           []string
	Timeout       time.Duration
	Workspace     string
	WorkingDir    string
	Stdin         string
	HasStdin      bool
	Stdout        io.Writer
	Stderr        io.Writer
	MemoryLimitMB int64
	CPUShares     int64
	PidsLimit     int64
	ReadOnlyFS    bool
}

// ExecutionResult summarises the outcome of a container execution.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Config groups executor configuration values.
type Config struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	PidsLimit     int64
	WorkingDir    string
	Logger        zerolog.Logger
}

// DockerExecutor implements code execution using Docker containers.
type DockerExecutor struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor constructs a Docker backed executor.
func NewDockerExecutor(cfg Config) (*DockerExecutor, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-judge/pkg/docker"),
		logger: cfg.Logger.With().Str("component", "docker_executor").Logger(),
	}, nil
}

// WorkingDir is the mount point of the workspace inside every container.
func (e *DockerExecutor) WorkingDir() string {
	return e.cfg.WorkingDir
}

// ImagePresent reports whether the image exists locally. Images are never
// pulled on demand.
func (e *DockerExecutor) ImagePresent(ctx context.Context, image string) error {
	if _, _, err := e.client.ImageInspectWithRaw(ctx, image); err != nil {
		return fmt.Errorf("inspect image %s: %w", image, err)
	}
	return nil
}

// Run executes the provided command inside a sandboxed Docker container with
// networking disabled.
func (e *DockerExecutor) Run(parent context.Context, req ExecutionRequest) (ExecutionResult, error) {
	image := req.Image
	if image == "" {
		return ExecutionResult{}, errors.New("image is required")
	}

	ctx, span := e.tracer.Start(parent, "docker.executor.run", trace.WithAttributes(
		attribute.String("docker.image", image),
	))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	hostCfg := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: req.ReadOnlyFS,
		Resources: container.Resources{
			Memory:    firstPositive(req.MemoryLimitMB, e.cfg.MemoryLimitMB) * 1024 * 1024,
			CPUShares: firstPositive(req.CPUShares, e.cfg.CPUShares),
		},
	}
	if pids := firstPositive(req.PidsLimit, e.cfg.PidsLimit); pids > 0 {
		hostCfg.Resources.PidsLimit = &pids
	}

	if req.Workspace != "" {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: req.Workspace,
			Target: e.cfg.WorkingDir,
		})
	}

	config := &container.Config{
		Image:           image,
		Cmd:             req.Cmd,
		Env:             req.Env,
		WorkingDir:      req.WorkingDir,
		AttachStdout:    true,
		AttachStderr:    true,
		AttachStdin:     req.HasStdin,
		OpenStdin:       req.HasStdin,
		StdinOnce:       req.HasStdin,
		NetworkDisabled: true,
	}
	if config.WorkingDir == "" {
		config.WorkingDir = e.cfg.WorkingDir
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout, stderr := req.Stdout, req.Stderr
	if stdout == nil {
		stdout = &stdoutBuf
	}
	if stderr == nil {
		stderr = &stderrBuf
	}

	result := ExecutionResult{}

	resp, err := e.client.ContainerCreate(ctx, config, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return result, e.fail(span, image, fmt.Errorf("container create: %w", err))
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	attach, err := e.client.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  req.HasStdin,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return result, e.fail(span, image, fmt.Errorf("container attach: %w", err))
	}
	defer attach.Close()

	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, attach.Reader)
		copyDone <- err
	}()

	start := time.Now()
	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return result, e.fail(span, image, fmt.Errorf("container start: %w", err))
	}

	if req.HasStdin {
		if _, err := io.Copy(attach.Conn, strings.NewReader(req.Stdin)); err != nil {
			e.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to write container stdin")
		}
		if err := attach.CloseWrite(); err != nil {
			e.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to close container stdin")
		}
	}

	statusCh, errCh := e.client.ContainerWait(runCtx, containerID, container.WaitConditionNotRunning)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-runCtx.Done():
		waitErr = runCtx.Err()
	}

	result.Duration = time.Since(start)
	execDuration.WithLabelValues(image).Observe(result.Duration.Seconds())

	if waitErr != nil {
		if !errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return result, e.fail(span, image, fmt.Errorf("container wait: %w", waitErr))
		}

		result.TimedOut = true
		execTimeouts.WithLabelValues(image).Inc()
		span.SetStatus(codes.Error, "execution timed out")

		killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
		}
		attach.Close()
	}

	stalled, copyErr := awaitCopy(copyDone, attach.Close, 2*time.Second)
	if stalled {
		e.logger.Warn().Str("container_id", containerID).Msg("container output stream did not close")
	}
	if copyErr != nil && !result.TimedOut && !stalled {
		e.logger.Warn().Err(copyErr).Str("container_id", containerID).Msg("failed to demultiplex container output")
	}

	if req.Stdout == nil {
		result.Stdout = stdoutBuf.String()
	}
	if req.Stderr == nil {
		result.Stderr = stderrBuf.String()
	}

	return result, nil
}

// awaitCopy waits for the output demultiplexer to finish. If it has not
// finished within grace, closeStream is called to unblock its read and the
// wait continues, so the output writers are never touched after return.
func awaitCopy(copyDone <-chan error, closeStream func(), grace time.Duration) (stalled bool, err error) {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err = <-copyDone:
		return false, err
	case <-timer.C:
	}

	closeStream()
	return true, <-copyDone
}

func (e *DockerExecutor) fail(span trace.Span, image string, err error) error {
	execFailures.WithLabelValues(image).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Close shuts down the executor's underlying client.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

func firstPositive(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
