package command

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode"

	"github.com/mattjoyce/sqs-dispatch/internal/protocol"
)

// DefaultShell interprets joined command strings.
const DefaultShell = "/bin/sh"

// Stream identifies which subprocess pipe a line came from.
type Stream string

const (
	StreamOut Stream = "out"
	StreamErr Stream = "err"
)

// Line is one line of subprocess output. Seq starts at 1 and increases
// monotonically within a stream.
type Line struct {
	Stream Stream
	Text   string
	Seq    int
}

// LineSink receives output lines. Run calls it from its own goroutine only,
// one line at a time, so implementations need no locking.
type LineSink func(stream Stream, text string)

// Result describes a finished subprocess.
type Result struct {
	ExitCode int
	// Signal is set when the process was terminated by a signal.
	Signal   string
	OutLines int
	ErrLines int
	Duration time.Duration
}

// Runner executes commands through a shell and multiplexes their output.
type Runner struct {
	// Shell is invoked as `<Shell> -c <script>`. Defaults to DefaultShell.
	Shell string
	// Env is the base environment. Nil means the worker's own environment.
	Env    []string
	Logger *slog.Logger
}

// New creates a Runner using shell (DefaultShell when empty).
func New(shell string, logger *slog.Logger) *Runner {
	if shell == "" {
		shell = DefaultShell
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Shell: shell, Logger: logger}
}

// Run executes cmd with overlay merged over the base environment and blocks
// until the process exits. Lines from stdout and stderr are read concurrently
// and delivered to sink in the order they were observed; order within one
// stream is exact, order across streams is best effort.
//
// No timeout is applied: a subprocess that never closes its pipes blocks Run.
func (r *Runner) Run(cmd protocol.Command, overlay map[string]string, sink LineSink) (*Result, error) {
	shell := r.Shell
	if shell == "" {
		shell = DefaultShell
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	script := cmd.Script()
	proc := exec.Command(shell, "-c", script)
	proc.Env = r.environ(overlay)

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Shell: shell, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := proc.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Shell: shell, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	logger.Info("executing command", "command", script)
	start := time.Now()
	if err := proc.Start(); err != nil {
		return nil, &SpawnError{Shell: shell, Err: err}
	}

	lines := make(chan Line, 64)
	var (
		wg       sync.WaitGroup
		readErrs [2]error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		readErrs[0] = readLines(StreamOut, stdout, lines)
	}()
	go func() {
		defer wg.Done()
		readErrs[1] = readLines(StreamErr, stderr, lines)
	}()
	go func() {
		wg.Wait()
		close(lines)
	}()

	res := &Result{}
	for line := range lines {
		if line.Stream == StreamOut {
			res.OutLines++
		} else {
			res.ErrLines++
		}
		if sink != nil {
			sink(line.Stream, line.Text)
		}
	}
	for _, rerr := range readErrs {
		if rerr != nil {
			logger.Warn("output read failed", "error", rerr)
		}
	}

	// Both pipes have reached EOF; only now is it safe to reap the process.
	waitErr := proc.Wait()
	res.Duration = time.Since(start)

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("wait for process: %w", waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			res.Signal = status.Signal().String()
		}
		logger.Debug("command failed", "exit_code", res.ExitCode, "signal", res.Signal, "duration", res.Duration)
		return res, &NonZeroExitError{Code: res.ExitCode, Signal: res.Signal}
	}

	logger.Debug("command finished", "duration", res.Duration, "out_lines", res.OutLines, "err_lines", res.ErrLines)
	return res, nil
}

func (r *Runner) environ(overlay map[string]string) []string {
	base := r.Env
	if base == nil {
		base = os.Environ()
	}
	env := make([]string, 0, len(base)+len(overlay))
	env = append(env, base...)

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	// exec.Cmd keeps the last value of a duplicated key, so overlay wins.
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}

// readLines pushes each non-blank line of r onto out until EOF. Trailing
// whitespace and invalid UTF-8 are dropped.
func readLines(stream Stream, r io.Reader, out chan<- Line) error {
	br := bufio.NewReader(r)
	seq := 0
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			text := strings.TrimRightFunc(strings.ToValidUTF8(raw, ""), unicode.IsSpace)
			if text != "" {
				seq++
				out <- Line{Stream: stream, Text: text, Seq: seq}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", stream, err)
		}
	}
}
