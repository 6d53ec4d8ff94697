package execution

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/internal/language"
)

type fakeRunner struct {
	mu       sync.Mutex
	calls    []Command
	probeErr error
	probes   int
	handle   func(cmd Command) (RunOutput, error)
}

func (f *fakeRunner) Name() string                  { return "fake" }
func (f *fakeRunner) WorkDir(hostDir string) string { return hostDir }

func (f *fakeRunner) Run(_ context.Context, cmd Command) (RunOutput, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if _, err := os.Stat(cmd.HostDir); err != nil {
		return RunOutput{}, err
	}
	if f.handle != nil {
		return f.handle(cmd)
	}
	return RunOutput{Stdout: "ok\n"}, nil
}

func (f *fakeRunner) Probe(context.Context, language.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.probeErr
}

func testRegistry() *language.Registry {
	return language.NewRegistry(
		language.Profile{
			Name:            "script",
			Extension:       ".sh",
			DefaultBaseName: "main",
			RunCommand:      "sh {source}",
			VersionCommands: []string{"sh -c true"},
			Timeout:         time.Second,
			InstallHint:     "install a POSIX shell",
		},
		language.Profile{
			Name:            "compiled",
			Extension:       ".src",
			DefaultBaseName: "main",
			CompileCommand:  "cc -o {artifact} {source}",
			RunCommand:      "{artifact}",
			VersionCommands: []string{"cc --version"},
		},
	)
}

func newTestEngine(t *testing.T, runner Runner) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	engine, err := NewEngine(Config{
		Registry:      testRegistry(),
		Runner:        runner,
		Pool:          NewPool(2, 2, time.Second),
		WorkspaceRoot: root,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	return engine, root
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestExecuteReturnsOutputAndCleansUp(t *testing.T) {
	runner := &fakeRunner{}
	engine, root := newTestEngine(t, runner)

	result, err := engine.Execute(context.Background(), Request{Language: "script", Code: "echo ok", Stdin: "data"})
	require.NoError(t, err)
	require.Equal(t, "ok\n", result.Stdout)
	require.Equal(t, 0, result.ExitCode)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	require.Equal(t, []string{"sh", filepath.Join(call.HostDir, "main.sh")}, call.Args)
	require.True(t, call.HasStdin)
	require.Equal(t, "data", call.Stdin)
	require.Equal(t, time.Second, call.Timeout)

	requireEmptyDir(t, root)
}

func TestExecuteUsesUniqueScratchDirectories(t *testing.T) {
	runner := &fakeRunner{}
	engine, root := newTestEngine(t, runner)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Execute(context.Background(), Request{Language: "script", Code: "echo ok"})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, call := range runner.calls {
		require.False(t, seen[call.HostDir])
		seen[call.HostDir] = true
	}
	requireEmptyDir(t, root)
}

func TestExecuteRejectsUnknownLanguage(t *testing.T) {
	runner := &fakeRunner{}
	engine, _ := newTestEngine(t, runner)

	_, err := engine.Execute(context.Background(), Request{Language: "cobol", Code: "DISPLAY 'hi'"})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
	require.Empty(t, runner.calls)
}

func TestExecuteRejectsDeniedSourceWithoutSpawning(t *testing.T) {
	runner := &fakeRunner{}
	engine, root := newTestEngine(t, runner)

	_, err := engine.Execute(context.Background(), Request{Language: "script", Code: "import subprocess"})
	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Empty(t, runner.calls)
	requireEmptyDir(t, root)
}

func TestExecuteReportsUnavailableLanguageOnce(t *testing.T) {
	runner := &fakeRunner{probeErr: errors.New("sh: not found")}
	engine, _ := newTestEngine(t, runner)

	for i := 0; i < 3; i++ {
		_, err := engine.Execute(context.Background(), Request{Language: "script", Code: "echo ok"})
		var unavailable *UnavailableError
		require.ErrorAs(t, err, &unavailable)
		require.Equal(t, "install a POSIX shell", unavailable.InstallHint)
		require.ErrorIs(t, err, ErrEngineUnavailable)
	}
	require.Equal(t, 1, runner.probes)
	require.Empty(t, runner.calls)
}

func TestExecuteCompileErrorSkipsRun(t *testing.T) {
	runner := &fakeRunner{handle: func(cmd Command) (RunOutput, error) {
		return RunOutput{Stderr: "main.src:1: syntax error", ExitCode: 1}, nil
	}}
	engine, root := newTestEngine(t, runner)

	_, err := engine.Execute(context.Background(), Request{Language: "compiled", Code: "int main( {"})
	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	require.Contains(t, compileErr.Stderr, "syntax error")
	require.Equal(t, 1, compileErr.ExitCode)
	require.Len(t, runner.calls, 1)
	require.Equal(t, "cc", runner.calls[0].Args[0])
	requireEmptyDir(t, root)
}

func TestExecuteTimeoutIsDistinguished(t *testing.T) {
	runner := &fakeRunner{handle: func(cmd Command) (RunOutput, error) {
		return RunOutput{Stdout: "partial", TimedOut: true}, nil
	}}
	engine, root := newTestEngine(t, runner)

	result, err := engine.Execute(context.Background(), Request{Language: "script", Code: "while true; do :; done"})
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, "run", timeout.Stage)
	require.Empty(t, result.Stdout)
	requireEmptyDir(t, root)
}

func TestExecuteRuntimeErrorIsData(t *testing.T) {
	runner := &fakeRunner{handle: func(cmd Command) (RunOutput, error) {
		return RunOutput{Stderr: "boom", ExitCode: 3}, nil
	}}
	engine, _ := newTestEngine(t, runner)

	result, err := engine.Execute(context.Background(), Request{Language: "script", Code: "exit 3"})
	require.NoError(t, err)
	require.Equal(t, 3, result.ExitCode)
	require.Equal(t, "boom", result.Stderr)
}

func TestPreparedProgramRunsManyTimes(t *testing.T) {
	runner := &fakeRunner{handle: func(cmd Command) (RunOutput, error) {
		return RunOutput{Stdout: cmd.Stdin}, nil
	}}
	engine, root := newTestEngine(t, runner)

	program, err := engine.Prepare(context.Background(), Request{Language: "compiled", Code: "int main() {}"})
	require.NoError(t, err)

	for _, input := range []string{"1", "2"} {
		result, err := program.Run(context.Background(), input, 250*time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, input, result.Stdout)
	}

	program.Close()
	_, err = program.Run(context.Background(), "3", 0)
	require.ErrorIs(t, err, ErrProgramClosed)

	require.Len(t, runner.calls, 3)
	require.Equal(t, 250*time.Millisecond, runner.calls[1].Timeout)
	requireEmptyDir(t, root)
}

func TestPreparedProgramCloseDuringRuns(t *testing.T) {
	runner := &fakeRunner{handle: func(cmd Command) (RunOutput, error) {
		return RunOutput{Stdout: cmd.Stdin}, nil
	}}
	engine, root := newTestEngine(t, runner)

	program, err := engine.Prepare(context.Background(), Request{Language: "script", Code: "cat"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		for {
			// a run that passed the closed check may still find the dir gone
			if _, err := program.Run(context.Background(), "x", 0); errors.Is(err, ErrProgramClosed) {
				done <- err
				return
			}
		}
	}()

	time.Sleep(10 * time.Millisecond)
	program.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrProgramClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("runs did not stop after close")
	}
	requireEmptyDir(t, root)
}

func TestLanguagesReportsAvailability(t *testing.T) {
	runner := &fakeRunner{}
	engine, _ := newTestEngine(t, runner)

	statuses := engine.Languages(context.Background())
	require.Len(t, statuses, 2)
	for _, status := range statuses {
		require.True(t, status.Available)
	}
}
