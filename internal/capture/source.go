package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"netglobe/internal/logging"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

var (
	// ErrCaptureUnavailable is returned when no capture strategy can run.
	ErrCaptureUnavailable = errors.New("connection capture unavailable")

	errFallback = errors.New("stream capture unusable")
)

const waitDelay = 2 * time.Second

// Mode names the capture strategy in use.
type Mode string

const (
	ModeAuto     Mode = ""
	ModeStream   Mode = "stream"
	ModeSnapshot Mode = "snapshot"
)

// State is the lifecycle of a Source:
// idle → probing → streaming | polling → failed | stopped.
type State string

const (
	StateIdle      State = "idle"
	StateProbing   State = "probing"
	StateStreaming State = "streaming"
	StatePolling   State = "polling"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
)

// Strategy is a capture command line.
type Strategy struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// FieldOutput marks `lsof -F` style output that must be folded
	// before parsing.
	FieldOutput bool `yaml:"field_output"`
}

func (s Strategy) String() string {
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}

// DefaultStream is a continuous lsof feed, one cycle per second.
var DefaultStream = Strategy{
	Command: "lsof",
	Args:    []string{"-nP", "+c", "0", "-iTCP", "-sTCP:ESTABLISHED", "-r", "1"},
}

// DefaultSnapshot is a one-shot lsof listing in field output mode.
var DefaultSnapshot = Strategy{
	Command:     "lsof",
	Args:        []string{"-nP", "+c", "0", "-iTCP", "-sTCP:ESTABLISHED", "-F", "cn"},
	FieldOutput: true,
}

// Batch is a group of raw lines from one capture cycle.
type Batch struct {
	Mode  Mode
	Lines []string
	// Complete is true when Lines hold a full cycle, so connections absent
	// from it can be considered closed.
	Complete bool
	At       time.Time
}

// Observer receives capture signals. Calls come from the capture goroutine
// and must not block for long.
type Observer interface {
	CaptureStarted(mode Mode)
	CaptureBatch(b Batch)
	CaptureFailed(err error)
}

type Config struct {
	Stream           Strategy
	Snapshot         Strategy
	Mode             Mode
	PollInterval     time.Duration
	ProbeTimeout     time.Duration
	MaxStartAttempts int
	RestartBaseDelay time.Duration

	Logger *logrus.Logger
	Clock  clock.Clock
}

// Source runs a capture subprocess and reports raw line batches.
type Source struct {
	cfg Config
	obs Observer

	mu     sync.Mutex
	state  State
	mode   Mode
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, obs Observer) *Source {
	if cfg.Stream.Command == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Snapshot.Command == "" {
		cfg.Snapshot = DefaultSnapshot
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.MaxStartAttempts <= 0 {
		cfg.MaxStartAttempts = 3
	}
	if cfg.RestartBaseDelay <= 0 {
		cfg.RestartBaseDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Source{cfg: cfg, obs: obs, state: StateIdle}
}

// Start begins capture in the background. Calling Start while running is a no-op.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cfg.Logger.Info("capture already running")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateProbing

	go s.run(ctx, s.done)
	return nil
}

// Stop terminates the subprocess and prevents restarts. Safe to call repeatedly.
func (s *Source) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed once the capture goroutine exits. Nil before Start.
func (s *Source) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the strategy currently delivering batches.
func (s *Source) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Source) setState(st State, m Mode) {
	s.mu.Lock()
	s.state = st
	if m != ModeAuto {
		s.mode = m
	}
	s.mu.Unlock()
}

func (s *Source) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var err error
	switch s.cfg.Mode {
	case ModeSnapshot:
		err = s.poll(ctx)
	case ModeStream:
		err = s.stream(ctx, false)
	default:
		err = s.stream(ctx, true)
		if errors.Is(err, errFallback) {
			logging.LogCaptureFallback(s.cfg.Logger, string(ModeStream), string(ModeSnapshot), err.Error())
			err = s.poll(ctx)
		}
	}

	if ctx.Err() != nil {
		s.setState(StateStopped, ModeAuto)
		return
	}
	if err == nil {
		s.setState(StateStopped, ModeAuto)
		return
	}

	s.setState(StateFailed, ModeAuto)
	s.cfg.Logger.WithError(err).Error("capture failed")
	if s.obs != nil {
		s.obs.CaptureFailed(err)
	}
}

// streamResult describes one run of the stream subprocess.
type streamResult struct {
	produced bool
	cycles   int
	silent   bool
	stderr   string
	err      error
}

func (s *Source) stream(ctx context.Context, allowFallback bool) error {
	st := s.cfg.Stream
	if _, err := exec.LookPath(st.Command); err != nil {
		if allowFallback {
			return fmt.Errorf("%w: %s not installed", errFallback, st.Command)
		}
		return fmt.Errorf("%w: %s: %v", ErrCaptureUnavailable, st.Command, err)
	}

	failures := 0
	everProduced := false
	started := false
	for {
		res := s.runStreamOnce(ctx, st, &started)
		if ctx.Err() != nil {
			return nil
		}

		if !everProduced && !res.produced && allowFallback {
			switch {
			case res.silent:
				return fmt.Errorf("%w: no output within %s", errFallback, s.cfg.ProbeTimeout)
			case isPermissionError(res.stderr):
				return fmt.Errorf("%w: %s", errFallback, firstLine(res.stderr))
			default:
				return fmt.Errorf("%w: exited without output (%v)", errFallback, res.err)
			}
		}
		everProduced = everProduced || res.produced

		if res.cycles > 0 {
			failures = 0
		}
		failures++
		if failures >= s.cfg.MaxStartAttempts {
			return fmt.Errorf("%w: stream exited %d times: %v", ErrCaptureUnavailable, failures, describeExit(res))
		}

		delay := backoff(s.cfg.RestartBaseDelay, failures)
		s.cfg.Logger.WithFields(logrus.Fields{
			"attempt": failures,
			"delay":   delay.String(),
			"error":   describeExit(res),
		}).Warn("stream capture exited, restarting")

		if !s.sleep(ctx, delay) {
			return nil
		}
	}
}

func (s *Source) runStreamOnce(ctx context.Context, st Strategy, started *bool) streamResult {
	var res streamResult

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, st.Command, st.Args...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		res.err = err
		return res
	}
	if err := cmd.Start(); err != nil {
		res.err = err
		return res
	}

	lines := make(chan string, 256)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	// Wait closes the stdout pipe, which unblocks the scanner.
	kill := func(r *streamResult) {
		cancel()
		r.err = cmd.Wait()
		for range lines {
		}
		r.stderr = stderr.String()
	}

	probe := s.cfg.Clock.Timer(s.cfg.ProbeTimeout)
	defer probe.Stop()

	var batch []string
	for {
		select {
		case <-ctx.Done():
			kill(&res)
			return res

		case <-probe.C:
			if res.produced {
				continue
			}
			res.silent = true
			kill(&res)
			return res

		case line, ok := <-lines:
			if !ok {
				res.err = cmd.Wait()
				res.stderr = stderr.String()
				return res
			}
			if !res.produced {
				res.produced = true
				probe.Stop()
				s.setState(StateStreaming, ModeStream)
				if !*started {
					*started = true
					if s.obs != nil {
						s.obs.CaptureStarted(ModeStream)
					}
				}
			}
			if !isCycleMarker(strings.TrimSpace(line)) {
				batch = append(batch, line)
				continue
			}
			res.cycles++
			s.emit(ModeStream, st, batch)
			batch = nil
		}
	}
}

func (s *Source) poll(ctx context.Context) error {
	st := s.cfg.Snapshot
	if _, err := exec.LookPath(st.Command); err != nil {
		return fmt.Errorf("%w: snapshot tool %s: %v", ErrCaptureUnavailable, st.Command, err)
	}

	ticker := s.cfg.Clock.Ticker(s.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	started := false
	for {
		lines, err := s.snapshotOnce(ctx, st)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			failures++
			if failures >= s.cfg.MaxStartAttempts {
				return fmt.Errorf("%w: snapshot failed %d times: %v", ErrCaptureUnavailable, failures, err)
			}
			delay := backoff(s.cfg.RestartBaseDelay, failures)
			s.cfg.Logger.WithFields(logrus.Fields{
				"attempt": failures,
				"delay":   delay.String(),
				"error":   err.Error(),
			}).Warn("snapshot capture failed, retrying")
			if !s.sleep(ctx, delay) {
				return nil
			}
			continue
		}

		failures = 0
		if !started {
			started = true
			s.setState(StatePolling, ModeSnapshot)
			if s.obs != nil {
				s.obs.CaptureStarted(ModeSnapshot)
			}
		}
		s.emit(ModeSnapshot, st, lines)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Source) snapshotOnce(ctx context.Context, st Strategy) ([]string, error) {
	cmd := exec.CommandContext(ctx, st.Command, st.Args...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		// lsof exits 1 with no output when nothing matches.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || strings.TrimSpace(stderr.String()) != "" {
			if msg := firstLine(stderr.String()); msg != "" {
				return nil, fmt.Errorf("%v: %s", err, msg)
			}
			return nil, err
		}
	}
	return splitLines(out), nil
}

func (s *Source) emit(mode Mode, st Strategy, lines []string) {
	if st.FieldOutput {
		lines = FoldFieldOutput(lines)
	}
	if s.obs != nil {
		s.obs.CaptureBatch(Batch{Mode: mode, Lines: lines, Complete: true, At: s.cfg.Clock.Now()})
	}
}

func (s *Source) sleep(ctx context.Context, d time.Duration) bool {
	t := s.cfg.Clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff returns base * 2^(attempt-1).
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

func isPermissionError(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "permission denied") ||
		strings.Contains(s, "operation not permitted") ||
		strings.Contains(s, "must be root") ||
		strings.Contains(s, "access denied")
}

func describeExit(res streamResult) string {
	if msg := firstLine(res.stderr); msg != "" {
		return msg
	}
	if res.err != nil {
		return res.err.Error()
	}
	return "exited"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func splitLines(b []byte) []string {
	text := strings.TrimRight(string(b), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
