// Package language holds the static table describing how each supported
// language is compiled and run.
package language

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
)

// Placeholders understood by command templates.
const (
	PlaceholderSource   = "{source}"
	PlaceholderArtifact = "{artifact}"
	PlaceholderDir      = "{dir}"
	PlaceholderName     = "{name}"
)

// ErrEmptyCommand indicates a template rendered to no arguments.
var ErrEmptyCommand = errors.New("command template is empty")

// Profile describes how to compile and run one language.
type Profile struct {
	Name            string
	DisplayName     string
	Extension       string
	DefaultBaseName string
	FixedBaseName   bool
	CompileCommand  string
	RunCommand      string
	VersionCommands []string
	Env             []string
	Timeout         time.Duration
	CompileTimeout  time.Duration
	Image           string
	InstallHint     string
}

// Workspace locates the files of a single execution.
type Workspace struct {
	Dir      string
	BaseName string
}

// SourcePath returns the path of the materialised source file.
func (p Profile) SourcePath(ws Workspace) string {
	return filepath.Join(ws.Dir, ws.BaseName+p.Extension)
}

// ArtifactPath returns the path compiled binaries are written to.
func (p Profile) ArtifactPath(ws Workspace) string {
	return filepath.Join(ws.Dir, ws.BaseName)
}

// RequiresCompilation reports whether a compile step precedes execution.
func (p Profile) RequiresCompilation() bool {
	return strings.TrimSpace(p.CompileCommand) != ""
}

// CompileArgs renders the compile command for the workspace.
func (p Profile) CompileArgs(ws Workspace) ([]string, error) {
	if !p.RequiresCompilation() {
		return nil, nil
	}
	return p.render(p.CompileCommand, ws)
}

// RunArgs renders the run command for the workspace.
func (p Profile) RunArgs(ws Workspace) ([]string, error) {
	return p.render(p.RunCommand, ws)
}

// EnvVars renders the extra environment for the workspace.
func (p Profile) EnvVars(ws Workspace) []string {
	if len(p.Env) == 0 {
		return nil
	}
	replacer := p.replacer(ws)
	out := make([]string, 0, len(p.Env))
	for _, kv := range p.Env {
		out = append(out, replacer.Replace(kv))
	}
	return out
}

// VersionArgs returns the commands that must all succeed for the toolchain
// to count as installed.
func (p Profile) VersionArgs() ([][]string, error) {
	if len(p.VersionCommands) == 0 {
		return nil, ErrEmptyCommand
	}
	checks := make([][]string, 0, len(p.VersionCommands))
	for _, command := range p.VersionCommands {
		args, err := shlex.Split(command)
		if err != nil {
			return nil, fmt.Errorf("parse version command for %s: %w", p.Name, err)
		}
		if len(args) == 0 {
			return nil, ErrEmptyCommand
		}
		checks = append(checks, args)
	}
	return checks, nil
}

// BaseNameOrDefault picks the file base name used for a request.
func (p Profile) BaseNameOrDefault(requested string) string {
	if p.FixedBaseName && p.DefaultBaseName != "" {
		return p.DefaultBaseName
	}

	name := sanitizeBaseName(requested)
	if name != "" {
		return name
	}
	if p.DefaultBaseName != "" {
		return p.DefaultBaseName
	}
	return "main"
}

func (p Profile) render(template string, ws Workspace) ([]string, error) {
	tokens, err := shlex.Split(template)
	if err != nil {
		return nil, fmt.Errorf("parse command for %s: %w", p.Name, err)
	}
	if len(tokens) == 0 {
		return nil, ErrEmptyCommand
	}

	replacer := p.replacer(ws)
	args := make([]string, 0, len(tokens))
	for _, token := range tokens {
		args = append(args, replacer.Replace(token))
	}
	return args, nil
}

func (p Profile) replacer(ws Workspace) *strings.Replacer {
	return strings.NewReplacer(
		PlaceholderSource, p.SourcePath(ws),
		PlaceholderArtifact, p.ArtifactPath(ws),
		PlaceholderDir, ws.Dir,
		PlaceholderName, ws.BaseName,
	)
}

func sanitizeBaseName(name string) string {
	name = strings.TrimSpace(filepath.Base(name))
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}

	out := b.String()
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}
