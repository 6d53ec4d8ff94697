package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "judgectl",
		Usage: "Inspect and exercise the code execution engine locally",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Usage:   "execution backend (process or docker)",
				Value:   "process",
				Sources: cli.EnvVars("GEMA_EXECUTION_BACKEND"),
			},
			&cli.StringFlag{
				Name:    "docker-host",
				Usage:   "docker daemon address",
				Sources: cli.EnvVars("GEMA_DOCKER_HOST"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "run timeout for languages without their own limit",
				Value: 5 * time.Second,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level",
				Value:   "warn",
				Sources: cli.EnvVars("GEMA_LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "languages",
				Usage:  "List languages and whether their toolchains are installed",
				Action: languagesAction,
			},
			{
				Name:      "exec",
				Usage:     "Compile and run a source file",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "language",
						Aliases: []string{"l"},
						Usage:   "language key, detected from the file extension when empty",
					},
					&cli.StringFlag{
						Name:  "input",
						Usage: "text passed to the program on stdin",
					},
					&cli.StringFlag{
						Name:  "input-file",
						Usage: "file whose contents are passed on stdin",
					},
				},
				Action: execAction,
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
