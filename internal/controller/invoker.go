package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Action is the single positional argument passed to the controller.
type Action string

const (
	ActionOn     Action = "on"
	ActionOff    Action = "off"
	ActionStatus Action = "status"
)

// Valid reports whether a is one of the supported actions.
func (a Action) Valid() bool {
	switch a {
	case ActionOn, ActionOff, ActionStatus:
		return true
	}
	return false
}

const (
	// defaultTimeout bounds an invocation when Config.Timeout is zero.
	defaultTimeout = 15 * time.Second

	// maxOutputSize caps captured stdout/stderr per stream (1 MB).
	maxOutputSize = 1 << 20

	// waitDelay is how long Wait keeps reading pipes after the process is killed.
	waitDelay = 2 * time.Second
)

// Config holds the controller invocation settings.
type Config struct {
	// Binary is the path to the executable.
	Binary string

	// Args are placed before the action.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	WorkDir string

	// Timeout bounds a single invocation.
	Timeout time.Duration
}

// Result is the captured outcome of one invocation. It is not retained.
type Result struct {
	ExitSucceeded bool
	Stdout        string
	Stderr        string
	Duration      time.Duration
}

// Logger defines the logging interface for the invoker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Invoker launches the external controller, one process per call.
// It does not queue or serialise calls; see plug.Gateway for that.
type Invoker struct {
	config Config
	logger Logger

	mu    sync.RWMutex
	stats Stats
}

// Stats summarises invocations since start.
type Stats struct {
	Binary        string        `json:"binary"`
	Invocations   uint64        `json:"invocations"`
	Failures      uint64        `json:"failures"`
	InFlight      int           `json:"in_flight"`
	LastAction    Action        `json:"last_action,omitempty"`
	LastInvokedAt time.Time     `json:"last_invoked_at,omitempty"`
	LastDuration  time.Duration `json:"last_duration_ns,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
}

// NewInvoker creates an invoker with the given configuration.
func NewInvoker(cfg Config) *Invoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Invoker{
		config: cfg,
		logger: noopLogger{},
		stats:  Stats{Binary: cfg.Binary},
	}
}

// SetLogger sets the logger for the invoker.
func (i *Invoker) SetLogger(logger Logger) {
	i.logger = logger
}

// Invoke runs the controller with action as its last argument and waits for it to exit.
//
// Returns:
//   - Result: captured output (populated even on failure where available)
//   - error: *InvocationError on launch failure, non-zero exit, or timeout
func (i *Invoker) Invoke(ctx context.Context, action Action) (Result, error) {
	if !action.Valid() {
		return Result{}, &InvocationError{Action: action, ExitCode: -1, Err: fmt.Errorf("%w: %q", ErrInvalidAction, action)}
	}

	// Caller cancellation does not reach the child; only the timeout does.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.config.Timeout)
	defer cancel()

	args := make([]string, 0, len(i.config.Args)+1)
	args = append(args, i.config.Args...)
	args = append(args, string(action))

	cmd := exec.CommandContext(runCtx, i.config.Binary, args...) //nolint:gosec // Binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative PID signals the whole group so interpreter children die too.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	if i.config.Env != nil {
		cmd.Env = append(os.Environ(), i.config.Env...)
	}
	if i.config.WorkDir != "" {
		cmd.Dir = i.config.WorkDir
	}

	var stdout, stderr cappedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	i.begin(action)
	i.logger.Debug("invoking controller",
		"binary", i.config.Binary,
		"action", action,
	)

	start := time.Now()
	runErr := cmd.Run()

	res := Result{
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}

	if res.Stderr != "" {
		i.logger.Warn("controller wrote to stderr",
			"action", action,
			"stderr", res.Stderr,
		)
	}

	if runErr != nil {
		err := classify(runCtx, action, runErr, res.Stderr)
		i.finish(res.Duration, err)
		i.logger.Error("controller invocation failed",
			"action", action,
			"duration_ms", res.Duration.Milliseconds(),
			"error", err,
		)
		return res, err
	}

	res.ExitSucceeded = true
	i.finish(res.Duration, nil)
	i.logger.Info("controller invocation succeeded",
		"action", action,
		"duration_ms", res.Duration.Milliseconds(),
		"stdout_bytes", len(res.Stdout),
	)

	return res, nil
}

// classify converts an exec error into an InvocationError.
func classify(runCtx context.Context, action Action, runErr error, stderr string) error {
	invErr := &InvocationError{Action: action, ExitCode: -1, Stderr: stderr}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		invErr.Err = fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded)
		return invErr
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		invErr.ExitCode = exitErr.ExitCode()
		invErr.Err = fmt.Errorf("%w: %w", ErrNonZeroExit, runErr)
		return invErr
	}

	// Launch failure: binary missing, not executable, bad work dir.
	invErr.Err = runErr
	return invErr
}

func (i *Invoker) begin(action Action) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stats.Invocations++
	i.stats.InFlight++
	i.stats.LastAction = action
	i.stats.LastInvokedAt = time.Now()
}

func (i *Invoker) finish(d time.Duration, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stats.InFlight--
	i.stats.LastDuration = d
	if err != nil {
		i.stats.Failures++
		i.stats.LastError = err.Error()
	} else {
		i.stats.LastError = ""
	}
}

// Stats returns a snapshot of invocation statistics.
func (i *Invoker) Stats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.stats
}

// Timeout returns the effective per-invocation timeout.
func (i *Invoker) Timeout() time.Duration {
	return i.config.Timeout
}

// cappedBuffer keeps at most maxOutputSize bytes and silently drops the rest,
// so a runaway controller cannot exhaust memory.
type cappedBuffer struct {
	buf strings.Builder
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := maxOutputSize - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
