// Package execution compiles and runs untrusted source text under a
// wall-clock budget and reports what the program printed.
package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-judge/internal/language"
)

const (
	defaultRunTimeout     = 5 * time.Second
	defaultCompileTimeout = 15 * time.Second
)

// Request is a single execution request.
type Request struct {
	Language string
	Code     string
	Stdin    string
	BaseName string
}

// Result is what a program produced. A non-zero exit code is data, not an error.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// LanguageStatus reports whether a profile can run on this host.
type LanguageStatus struct {
	Profile   language.Profile
	Available bool
	Reason    string
}

// Config wires the engine.
type Config struct {
	Registry       *language.Registry
	Runner         Runner
	Pool           *Pool
	WorkspaceRoot  string
	DefaultTimeout time.Duration
	CompileTimeout time.Duration
	OutputCap      int
	Logger         zerolog.Logger
}

// Engine is safe for concurrent use.
type Engine struct {
	registry       *language.Registry
	runner         Runner
	pool           *Pool
	workspaceRoot  string
	defaultTimeout time.Duration
	compileTimeout time.Duration
	outputCap      int
	logger         zerolog.Logger
	tracer         trace.Tracer

	mu     sync.Mutex
	probes map[string]*probe
}

type probe struct {
	once sync.Once
	err  error
}

// NewEngine constructs an engine. Registry and Runner are required.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("execution engine requires a language registry")
	}
	if cfg.Runner == nil {
		return nil, errors.New("execution engine requires a runner")
	}
	if cfg.Pool == nil {
		cfg.Pool = NewPool(0, 0, 0)
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultRunTimeout
	}
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = defaultCompileTimeout
	}
	if cfg.WorkspaceRoot != "" {
		if err := os.MkdirAll(cfg.WorkspaceRoot, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace root: %w", err)
		}
	}

	return &Engine{
		registry:       cfg.Registry,
		runner:         cfg.Runner,
		pool:           cfg.Pool,
		workspaceRoot:  cfg.WorkspaceRoot,
		defaultTimeout: cfg.DefaultTimeout,
		compileTimeout: cfg.CompileTimeout,
		outputCap:      cfg.OutputCap,
		logger:         cfg.Logger.With().Str("component", "execution_engine").Str("runner", cfg.Runner.Name()).Logger(),
		tracer:         otel.Tracer("github.com/noah-isme/gema-judge/internal/execution"),
		probes:         make(map[string]*probe),
	}, nil
}

// Execute compiles (when needed), runs once and cleans up.
func (e *Engine) Execute(ctx context.Context, req Request) (Result, error) {
	program, err := e.Prepare(ctx, req)
	if err != nil {
		return Result{}, err
	}
	defer program.Close()

	return program.Run(ctx, req.Stdin, 0)
}

// Prepare validates the request, materialises the source in a fresh scratch
// directory and compiles it. The caller must Close the returned program.
func (e *Engine) Prepare(ctx context.Context, req Request) (*Program, error) {
	profile, ok := e.registry.Lookup(req.Language)
	if !ok {
		executionsTotal.WithLabelValues("unknown", "unsupported").Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, req.Language)
	}

	if err := ValidateSource(req.Code); err != nil {
		executionsTotal.WithLabelValues(profile.Name, "invalid").Inc()
		return nil, err
	}

	if err := e.ensureAvailable(ctx, profile); err != nil {
		executionsTotal.WithLabelValues(profile.Name, "unavailable").Inc()
		return nil, err
	}

	dir, err := os.MkdirTemp(e.workspaceRoot, "exec-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	program := &Program{
		engine:  e,
		profile: profile,
		hostDir: dir,
		name:    profile.BaseNameOrDefault(req.BaseName),
	}

	hostWS := language.Workspace{Dir: dir, BaseName: program.name}
	if err := os.WriteFile(profile.SourcePath(hostWS), []byte(req.Code), 0o644); err != nil {
		program.Close()
		return nil, fmt.Errorf("write source: %w", err)
	}

	if profile.RequiresCompilation() {
		if err := program.compile(ctx); err != nil {
			program.Close()
			return nil, err
		}
	}

	return program, nil
}

// Languages probes every profile (once per process) and reports availability.
func (e *Engine) Languages(ctx context.Context) []LanguageStatus {
	profiles := e.registry.Profiles()
	statuses := make([]LanguageStatus, 0, len(profiles))
	for _, profile := range profiles {
		status := LanguageStatus{Profile: profile, Available: true}
		if err := e.ensureAvailable(ctx, profile); err != nil {
			status.Available = false
			status.Reason = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Resolve looks up a profile by name or alias without probing it.
func (e *Engine) Resolve(name string) (language.Profile, bool) {
	return e.registry.Lookup(name)
}

// Pool exposes the admission pool for health reporting.
func (e *Engine) Pool() *Pool {
	return e.pool
}

func (e *Engine) ensureAvailable(ctx context.Context, profile language.Profile) error {
	e.mu.Lock()
	p, ok := e.probes[profile.Name]
	if !ok {
		p = &probe{}
		e.probes[profile.Name] = p
	}
	e.mu.Unlock()

	p.once.Do(func() {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*probeTimeout)
		defer cancel()
		if err := e.runner.Probe(probeCtx, profile); err != nil {
			e.logger.Warn().Err(err).Str("language", profile.Name).Msg("language runtime unavailable")
			p.err = &UnavailableError{Language: profile.Name, InstallHint: profile.InstallHint, Cause: err}
		}
	})

	return p.err
}

func (e *Engine) runTimeout(profile language.Profile, override time.Duration) time.Duration {
	switch {
	case override > 0:
		return override
	case profile.Timeout > 0:
		return profile.Timeout
	default:
		return e.defaultTimeout
	}
}

func (e *Engine) compileBudget(profile language.Profile) time.Duration {
	if profile.CompileTimeout > 0 {
		return profile.CompileTimeout
	}
	return e.compileTimeout
}

// Program is a compiled (or materialised) source that can be run many times.
// Runs of one program must not overlap.
type Program struct {
	engine  *Engine
	profile language.Profile
	hostDir string
	name    string

	closeOnce sync.Once
	closed    atomic.Bool
}

// Language returns the resolved profile name.
func (p *Program) Language() string {
	return p.profile.Name
}

func (p *Program) workspace() language.Workspace {
	return language.Workspace{Dir: p.engine.runner.WorkDir(p.hostDir), BaseName: p.name}
}

func (p *Program) compile(ctx context.Context) error {
	e := p.engine
	ctx, span := e.tracer.Start(ctx, "execution.compile", trace.WithAttributes(
		attribute.String("execution.language", p.profile.Name),
	))
	defer span.End()

	ws := p.workspace()
	args, err := p.profile.CompileArgs(ws)
	if err != nil {
		return fmt.Errorf("render compile command: %w", err)
	}

	budget := e.compileBudget(p.profile)
	out, err := p.invoke(ctx, "compile", args, "", budget)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out.ExitCode != 0 {
		executionsTotal.WithLabelValues(p.profile.Name, "compile_error").Inc()
		span.SetStatus(codes.Error, "compilation failed")
		stderr := out.Stderr
		if stderr == "" {
			stderr = out.Stdout
		}
		return &CompileError{Stderr: stderr, ExitCode: out.ExitCode}
	}

	return nil
}

// Run executes the program once. Empty stdin leaves the child's stdin
// unattached. A zero timeout selects the profile default.
func (p *Program) Run(ctx context.Context, stdin string, timeout time.Duration) (Result, error) {
	if p.closed.Load() {
		return Result{}, ErrProgramClosed
	}

	e := p.engine
	ctx, span := e.tracer.Start(ctx, "execution.run", trace.WithAttributes(
		attribute.String("execution.language", p.profile.Name),
	))
	defer span.End()

	args, err := p.profile.RunArgs(p.workspace())
	if err != nil {
		return Result{}, fmt.Errorf("render run command: %w", err)
	}

	out, err := p.invoke(ctx, "run", args, stdin, e.runTimeout(p.profile, timeout))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	outcome := "ok"
	if out.ExitCode != 0 {
		outcome = "runtime_error"
	}
	executionsTotal.WithLabelValues(p.profile.Name, outcome).Inc()
	span.SetAttributes(attribute.Int("execution.exit_code", out.ExitCode))

	return Result{
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: out.ExitCode,
		Duration: out.Duration,
	}, nil
}

func (p *Program) invoke(ctx context.Context, stage string, args []string, stdin string, budget time.Duration) (RunOutput, error) {
	e := p.engine

	release, err := e.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrQueueFull) {
			executionsTotal.WithLabelValues(p.profile.Name, "queue_full").Inc()
		}
		return RunOutput{}, err
	}
	defer release()

	out, err := e.runner.Run(ctx, Command{
		Profile:   p.profile,
		Args:      args,
		Env:       p.profile.EnvVars(p.workspace()),
		HostDir:   p.hostDir,
		Stdin:     stdin,
		HasStdin:  stdin != "",
		Timeout:   budget,
		OutputCap: e.outputCap,
	})
	if err != nil {
		executionsTotal.WithLabelValues(p.profile.Name, "infra_error").Inc()
		return RunOutput{}, fmt.Errorf("%s %s: %w", stage, p.profile.Name, err)
	}

	stageDuration.WithLabelValues(p.profile.Name, stage).Observe(out.Duration.Seconds())

	if out.TimedOut {
		executionsTotal.WithLabelValues(p.profile.Name, "timeout").Inc()
		return RunOutput{}, &TimeoutError{Stage: stage, Limit: budget}
	}

	return out, nil
}

// Close removes the scratch directory. Cleanup failures are logged only.
func (p *Program) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if err := os.RemoveAll(p.hostDir); err != nil {
			p.engine.logger.Error().Err(err).Str("dir", p.hostDir).Msg("failed to remove scratch dir")
		}
	})
}
