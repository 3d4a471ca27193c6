// Package worker supervises the external conversion process and speaks its
// newline-delimited JSON protocol over stdio.
package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"pkt.systems/ascart/internal/codec"
	"pkt.systems/ascart/internal/logx"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

// Config controls how the worker process is launched.
type Config struct {
	BinaryPath string
	Args       []string
	// Env holds KEY=VALUE overrides appended to the parent environment.
	Env             []string
	Dir             string
	StopGrace       time.Duration
	MaxLineBytes    int
	ReadBufferBytes int
}

// Supervisor owns at most one live worker process.
type Supervisor struct {
	cfg Config
	log pslog.Logger

	mu       sync.Mutex
	state    schema.ProcessState
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	done     chan struct{}
	stopping bool

	writeMu sync.Mutex

	subMu    sync.Mutex
	handlers []func(schema.Message)
	watchers []func(schema.ProcessState)
}

// New constructs a supervisor. The process is not spawned until Start.
func New(cfg Config, logger pslog.Logger) *Supervisor {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = schema.DefaultStopGrace
	}
	if cfg.ReadBufferBytes <= 0 {
		cfg.ReadBufferBytes = schema.DefaultReadBufferBytes
	}
	return &Supervisor{
		cfg:   cfg,
		log:   logx.Or(logger),
		state: schema.ProcessState{Phase: schema.PhaseNotStarted},
	}
}

// OnMessage registers a handler for decoded messages. Handlers run on the
// output reader goroutine, so a slow handler applies backpressure to the
// worker rather than dropping messages.
func (s *Supervisor) OnMessage(fn func(schema.Message)) {
	if fn == nil {
		return
	}
	s.subMu.Lock()
	s.handlers = append(s.handlers, fn)
	s.subMu.Unlock()
}

// OnStateChange registers a lifecycle watcher.
func (s *Supervisor) OnStateChange(fn func(schema.ProcessState)) {
	if fn == nil {
		return
	}
	s.subMu.Lock()
	s.watchers = append(s.watchers, fn)
	s.subMu.Unlock()
}

// State returns the current lifecycle state.
func (s *Supervisor) State() schema.ProcessState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the current process has exited and its streams are
// drained. It is already closed when no process is live.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return s.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Start spawns the worker. A spawn error moves the supervisor to Failed and
// is returned wrapped in schema.ErrSpawnFailure; it is not retried.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := logx.WithWorker(s.log, s.cfg.BinaryPath, 0)
	s.mu.Lock()
	if s.state.Live() {
		s.mu.Unlock()
		log.Warn("worker start rejected", "reason", "already running")
		return schema.ErrAlreadyRunning
	}
	s.state = schema.ProcessState{Phase: schema.PhaseStarting}
	s.stopping = false
	s.mu.Unlock()
	s.notifyState(schema.ProcessState{Phase: schema.PhaseStarting})

	log.Info("worker start", "args", s.cfg.Args, "dir", s.cfg.Dir, "env_extra", len(s.cfg.Env))

	cmd := exec.Command(s.cfg.BinaryPath, s.cfg.Args...)
	if s.cfg.Dir != "" {
		cmd.Dir = s.cfg.Dir
	}
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	configureProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return s.fail(log, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.fail(log, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.fail(log, err)
	}
	if err := cmd.Start(); err != nil {
		return s.fail(log, err)
	}

	pid := cmd.Process.Pid
	log = logx.WithWorker(s.log, s.cfg.BinaryPath, pid)
	done := make(chan struct{})
	running := schema.ProcessState{Phase: schema.PhaseRunning, PID: pid}
	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.done = done
	s.state = running
	s.mu.Unlock()
	log.Info("worker started")
	s.notifyState(running)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readOutput(log, stdout)
	}()
	go func() {
		defer readers.Done()
		s.readDiagnostics(log, stderr)
	}()
	go s.wait(log, cmd, []io.Closer{stdout, stderr}, &readers, done)
	return nil
}

func (s *Supervisor) fail(log pslog.Logger, err error) error {
	failed := schema.ProcessState{Phase: schema.PhaseFailed, Cause: err.Error()}
	s.mu.Lock()
	s.state = failed
	s.cmd = nil
	s.stdin = nil
	s.mu.Unlock()
	log.Error("worker spawn failed", "err", err)
	s.notifyState(failed)
	return fmt.Errorf("%w: %v", schema.ErrSpawnFailure, err)
}

// wait reaps the process, then lets the readers drain what the worker wrote
// before exiting. Descendants that inherited the pipes can keep them open;
// after the grace period the pipes are closed so the readers return.
func (s *Supervisor) wait(log pslog.Logger, cmd *exec.Cmd, pipes []io.Closer, readers *sync.WaitGroup, done chan struct{}) {
	started := time.Now()
	state := exitState(cmd.Process.Wait())

	s.mu.Lock()
	stopping := s.stopping
	var stdin io.WriteCloser
	if s.cmd == cmd {
		stdin = s.stdin
		s.stdin = nil
	}
	s.mu.Unlock()
	if stdin != nil {
		_ = stdin.Close()
	}

	drained := make(chan struct{})
	go func() {
		readers.Wait()
		close(drained)
	}()
	grace := time.NewTimer(s.cfg.StopGrace)
	select {
	case <-drained:
	case <-grace.C:
		log.Warn("worker streams held open after exit; closing")
		for _, pipe := range pipes {
			_ = pipe.Close()
		}
		<-drained
	}
	grace.Stop()
	for _, pipe := range pipes {
		_ = pipe.Close()
	}

	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd = nil
		s.state = state
	}
	s.mu.Unlock()
	close(done)

	fields := []any{"exit_code", state.ExitCode, "uptime_ms", time.Since(started).Milliseconds(), "requested", stopping}
	if state.Signal != "" {
		fields = append(fields, "signal", state.Signal)
	}
	if state.Cause != "" {
		fields = append(fields, "cause", state.Cause)
	}
	if stopping {
		log.Info("worker exited", fields...)
	} else {
		log.Warn("worker exited unexpectedly", fields...)
	}
	s.notifyState(state)
}

func exitState(ps *os.ProcessState, err error) schema.ProcessState {
	state := schema.ProcessState{Phase: schema.PhaseExited}
	if err != nil || ps == nil {
		state.ExitCode = -1
		if err != nil {
			state.Cause = err.Error()
		}
		return state
	}
	state.ExitCode = ps.ExitCode()
	if status, ok := ps.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		state.Signal = status.Signal().String()
	}
	return state
}

// Send writes one encoded command to the worker's stdin. Outside Running it
// logs a warning and returns schema.ErrNotRunning without side effects.
func (s *Supervisor) Send(ctx context.Context, cmd schema.Command) error {
	if cmd == nil {
		return schema.ErrUnknownCommand
	}
	data, err := codec.Encode(cmd)
	if err != nil {
		return err
	}
	s.mu.Lock()
	state := s.state
	stdin := s.stdin
	s.mu.Unlock()
	log := logx.WithWorker(s.log, s.cfg.BinaryPath, state.PID)
	if state.Phase != schema.PhaseRunning || stdin == nil {
		log.Warn("worker submit ignored", "command", cmd.CommandName(), "phase", state.Phase)
		return schema.ErrNotRunning
	}

	errCh := make(chan error, 1)
	go func() {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		_, err := stdin.Write(data)
		errCh <- err
	}()
	select {
	case err := <-errCh:
		if err != nil {
			log.Warn("worker write failed", "command", cmd.CommandName(), "err", err)
			return fmt.Errorf("%w: %v", schema.ErrProcessExited, err)
		}
		log.Debug("worker command sent", "command", cmd.CommandName(), "bytes", len(data))
		return nil
	case <-ctx.Done():
		log.Warn("worker write abandoned", "command", cmd.CommandName(), "err", ctx.Err())
		return ctx.Err()
	}
}

// Stop closes stdin, signals the process group and kills it once the grace
// period or ctx expires. It returns after the output streams are released.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	stdin := s.stdin
	done := s.done
	if cmd == nil || cmd.Process == nil || !s.state.Live() {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	log := logx.WithWorker(s.log, s.cfg.BinaryPath, cmd.Process.Pid)
	log.Info("worker stop requested", "grace_ms", s.cfg.StopGrace.Milliseconds())
	if stdin != nil {
		_ = stdin.Close()
	}
	if err := terminateProcess(cmd.Process); err != nil {
		log.Debug("worker terminate signal failed", "err", err)
	}

	grace := time.NewTimer(s.cfg.StopGrace)
	defer grace.Stop()
	var stopErr error
	select {
	case <-done:
		return nil
	case <-grace.C:
		log.Warn("worker stop grace elapsed; killing")
	case <-ctx.Done():
		stopErr = ctx.Err()
		log.Warn("worker stop interrupted; killing", "err", stopErr)
	}
	if err := killProcess(cmd.Process); err != nil {
		log.Warn("worker kill failed", "err", err)
	}
	<-done
	return stopErr
}

func (s *Supervisor) dispatch(log pslog.Logger, msg schema.Message) {
	s.subMu.Lock()
	handlers := append([]func(schema.Message){}, s.handlers...)
	s.subMu.Unlock()
	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("worker message handler panicked", "kind", msg.Kind, "panic", r)
				}
			}()
			fn(msg)
		}()
	}
}

func (s *Supervisor) notifyState(state schema.ProcessState) {
	s.subMu.Lock()
	watchers := append([]func(schema.ProcessState){}, s.watchers...)
	s.subMu.Unlock()
	for _, fn := range watchers {
		fn(state)
	}
}
