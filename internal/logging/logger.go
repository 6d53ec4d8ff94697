package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls how the root logger is built.
type Options struct {
	Level   string
	File    string
	Service string
	Stdout  io.Writer
}

// New builds the root zerolog logger. When a file is configured the output is
// duplicated into a size-rotated log file.
func New(opts Options) zerolog.Logger {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	writers := []io.Writer{stdout}
	if strings.TrimSpace(opts.File) != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 10,
			MaxAge:     28,
			Compress:   true,
			LocalTime:  true,
		})
	}

	var out io.Writer = writers[0]
	if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	ctx := zerolog.New(out).Level(ParseLevel(opts.Level)).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	return ctx.Logger()
}

// ParseLevel converts a textual level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}
