package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/noah-isme/gema-judge/internal/execution"
	"github.com/noah-isme/gema-judge/internal/language"
	"github.com/noah-isme/gema-judge/internal/logging"
	"github.com/noah-isme/gema-judge/pkg/docker"
)

// newEngine builds the engine for the selected backend. The returned close
// func releases the backend and must be called once the engine is done.
func newEngine(cmd *cli.Command, registry *language.Registry) (*execution.Engine, func(), error) {
	logger := logging.New(logging.Options{Level: cmd.String("log-level"), Stdout: os.Stderr, Service: "judgectl"})

	runner, closeFn, err := newRunner(cmd.String("backend"), cmd.String("docker-host"), logger)
	if err != nil {
		return nil, nil, err
	}

	engine, err := execution.NewEngine(execution.Config{
		Registry:       registry,
		Runner:         runner,
		Pool:           execution.NewPool(1, 0, 0),
		DefaultTimeout: cmd.Duration("timeout"),
		Logger:         logger,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return engine, closeFn, nil
}

func newRunner(backend, dockerHost string, logger zerolog.Logger) (execution.Runner, func(), error) {
	switch strings.ToLower(backend) {
	case "process", "":
		return execution.NewProcessRunner(logger), func() {}, nil
	case "docker":
		executor, err := docker.NewDockerExecutor(docker.Config{
			Host:   dockerHost,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := executor.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close docker client")
			}
		}
		return execution.NewContainerRunner(executor, executor.WorkingDir()), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func languagesAction(ctx context.Context, cmd *cli.Command) error {
	engine, closeEngine, err := newEngine(cmd, language.Default())
	if err != nil {
		return err
	}
	defer closeEngine()
	return renderLanguages(cmd.Root().Writer, engine.Languages(ctx))
}

func renderLanguages(w io.Writer, statuses []execution.LanguageStatus) error {
	if w == nil {
		w = os.Stdout
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LANGUAGE\tNAME\tCOMPILED\tSTATUS")
	for _, status := range statuses {
		state := color.GreenString("available")
		if !status.Available {
			state = color.RedString("missing")
			if status.Profile.InstallHint != "" {
				state += " (" + status.Profile.InstallHint + ")"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n",
			status.Profile.Name,
			status.Profile.DisplayName,
			status.Profile.RequiresCompilation(),
			state,
		)
	}
	return tw.Flush()
}

func execAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return cli.Exit("a source file is required", 2)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	registry := language.Default()
	lang := cmd.String("language")
	if lang == "" {
		profile, ok := registry.ByExtension(filepath.Ext(path))
		if !ok {
			return cli.Exit(fmt.Sprintf("cannot detect language of %s, pass --language", path), 2)
		}
		lang = profile.Name
	}

	stdin := cmd.String("input")
	if inputFile := cmd.String("input-file"); inputFile != "" {
		raw, err := os.ReadFile(inputFile)
		if err != nil {
			return err
		}
		stdin = string(raw)
	}

	engine, closeEngine, err := newEngine(cmd, registry)
	if err != nil {
		return err
	}
	defer closeEngine()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	result, err := engine.Execute(ctx, execution.Request{
		Language: lang,
		Code:     string(source),
		Stdin:    stdin,
		BaseName: base,
	})
	if err != nil {
		return describeFailure(err)
	}

	fmt.Fprint(os.Stdout, result.Stdout)
	if result.Stderr != "" {
		fmt.Fprint(os.Stderr, color.New(color.FgYellow).Sprint(result.Stderr))
	}
	fmt.Fprintln(os.Stderr, color.New(color.Faint).Sprintf("exit %d in %s", result.ExitCode, result.Duration))
	if result.ExitCode != 0 {
		return cli.Exit("", result.ExitCode)
	}
	return nil
}

func describeFailure(err error) error {
	var (
		compileErr  *execution.CompileError
		unavailable *execution.UnavailableError
	)
	switch {
	case errors.As(err, &compileErr):
		return cli.Exit(color.RedString("compilation failed:\n%s", compileErr.Stderr), 1)
	case errors.As(err, &unavailable):
		return cli.Exit(color.RedString("%s is not installed: %s", unavailable.Language, unavailable.InstallHint), 1)
	default:
		return err
	}
}
