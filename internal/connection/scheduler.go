package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/contest"
	"github.com/rs/zerolog"
)

const DefaultPollInterval = 7 * time.Second

var ErrNotRunning = errors.New("scheduler is not running")

type Fetcher interface {
	Fetch(ctx context.Context) (*contest.Snapshot, error)
}

// SnapshotHandler consumes a fetched snapshot. It runs on the scheduler
// goroutine, so snapshots are handled strictly one after another.
type SnapshotHandler func(snapshot *contest.Snapshot)

type Observer func(state State)

type Config struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
	Policy       Policy
}

type command int

const (
	cmdReconnect command = iota
	cmdDisconnect
)

// Scheduler owns the single timer that drives polling and retries. All state
// transitions happen on its goroutine.
type Scheduler struct {
	fetcher Fetcher
	handle  SnapshotHandler
	cfg     Config
	logger  zerolog.Logger

	mu        sync.RWMutex
	state     State
	observers []Observer
	running   bool

	cmds   chan command
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(fetcher Fetcher, handle SnapshotHandler, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	return &Scheduler{
		fetcher: fetcher,
		handle:  handle,
		cfg:     cfg,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		state:   State{Phase: PhaseIdle, Since: time.Now()},
		cmds:    make(chan command, 4),
	}
}

// OnTransition registers an observer for every state change. Observers run
// on the scheduler goroutine and must not block.
func (s *Scheduler) OnTransition(fn Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Start begins connecting immediately. It returns once the loop is running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop cancels the pending timer and any in-flight fetch. After Stop returns
// no fetch, handler or observer call is made.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Reconnect restarts a failed or idle connection with a fresh retry budget.
func (s *Scheduler) Reconnect() error {
	return s.send(cmdReconnect)
}

// Disconnect stops polling but keeps the loop alive for a later Reconnect.
func (s *Scheduler) Disconnect() error {
	return s.send(cmdDisconnect)
}

func (s *Scheduler) send(cmd command) error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case s.cmds <- cmd:
	default:
		// a queued command of the same kind is already pending
	}
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	var timerC <-chan time.Time

	schedule := func(d time.Duration) {
		timer.Stop()
		timer.Reset(d)
		timerC = timer.C
	}
	cancelTimer := func() {
		timer.Stop()
		timerC = nil
	}

	defer func() {
		timer.Stop()
		s.mu.Lock()
		s.running = false
		s.state = s.state.Disconnect()
		s.state.Since = time.Now()
		s.mu.Unlock()
		close(s.done)
	}()

	s.transition(s.State().Reconnect())
	schedule(0)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return

		case cmd := <-s.cmds:
			switch cmd {
			case cmdReconnect:
				phase := s.State().Phase
				if phase == PhaseFailed || phase == PhaseIdle || phase == PhaseBackoff {
					s.logger.Info().Str("from", string(phase)).Msg("Manual reconnect")
					s.transition(s.State().Reconnect())
					schedule(0)
				}
			case cmdDisconnect:
				cancelTimer()
				s.transition(s.State().Disconnect())
			}

		case <-timerC:
			timerC = nil
			if s.State().Phase == PhaseBackoff {
				s.transition(s.State().Connect())
			}
			next, ok := s.poll(ctx)
			if ctx.Err() != nil {
				return
			}
			s.transition(next)
			if ok {
				schedule(s.cfg.PollInterval)
			} else if next.Phase == PhaseBackoff {
				schedule(s.cfg.Policy.Delay(next.Attempt))
			}
		}
	}
}

// poll fetches and applies one snapshot and returns the resulting state.
func (s *Scheduler) poll(ctx context.Context) (State, bool) {
	fetchCtx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	current := s.State()
	snapshot, err := s.fetcher.Fetch(fetchCtx)
	if err != nil {
		if ctx.Err() != nil {
			return current, false
		}
		next := current.Fail(err, s.cfg.Policy.MaxAttempts)
		if next.Phase == PhaseBackoff {
			next.RetryIn = s.cfg.Policy.Delay(next.Attempt).String()
		}
		s.logger.Warn().
			Err(err).
			Int("attempt", next.Attempt).
			Str("phase", string(next.Phase)).
			Msg("Snapshot fetch failed")
		return next, false
	}

	s.handle(snapshot)
	return current.Succeed(), true
}

func (s *Scheduler) transition(next State) {
	s.mu.Lock()
	prev := s.state
	if prev.Phase == next.Phase && prev.Attempt == next.Attempt && prev.LastError == next.LastError {
		s.mu.Unlock()
		return
	}
	next.Since = time.Now()
	s.state = next
	observers := s.observers
	s.mu.Unlock()

	s.logger.Debug().
		Str("from", string(prev.Phase)).
		Str("to", string(next.Phase)).
		Int("attempt", next.Attempt).
		Msg("Connection transition")

	for _, fn := range observers {
		fn(next)
	}
}

type FetcherFunc func(ctx context.Context) (*contest.Snapshot, error)

func (f FetcherFunc) Fetch(ctx context.Context) (*contest.Snapshot, error) { return f(ctx) }
