package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/contest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedFetcher struct {
	mu      sync.Mutex
	results []error
	calls   atomic.Int32
}

// Fetch returns the scripted errors in order, then succeeds forever.
func (f *scriptedFetcher) Fetch(ctx context.Context) (*contest.Snapshot, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) > 0 {
		err := f.results[0]
		f.results = f.results[1:]
		if err != nil {
			return nil, err
		}
	}
	return &contest.Snapshot{}, nil
}

func (f *scriptedFetcher) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.results = append(f.results, errors.New("proxy down"))
	}
}

type phaseRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *phaseRecorder) observe(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *phaseRecorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s.Phase)
	}
	return out
}

func fastConfig() Config {
	return Config{
		PollInterval: 5 * time.Millisecond,
		FetchTimeout: time.Second,
		Policy: Policy{
			BaseDelay:   time.Millisecond,
			MaxDelay:    4 * time.Millisecond,
			MaxAttempts: 3,
		},
	}
}

func TestScheduler_PollsWhileConnected(t *testing.T) {
	f := &scriptedFetcher{}
	var handled atomic.Int32
	s := NewScheduler(f, func(*contest.Snapshot) { handled.Add(1) }, fastConfig(), zerolog.Nop())

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return handled.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, PhaseConnected, s.State().Phase)
}

func TestScheduler_BacksOffThenFails(t *testing.T) {
	f := &scriptedFetcher{}
	f.failNext(10)
	rec := &phaseRecorder{}

	s := NewScheduler(f, func(*contest.Snapshot) {}, fastConfig(), zerolog.Nop())
	s.OnTransition(rec.observe)
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return s.State().Phase == PhaseFailed }, time.Second, time.Millisecond)

	// initial fetch plus three retries, then nothing until a manual reconnect
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(4), f.calls.Load())
	assert.Equal(t, 4, s.State().Attempt)
	assert.Equal(t, "proxy down", s.State().LastError)

	assert.Equal(t, []Phase{
		PhaseConnecting,
		PhaseBackoff, PhaseConnecting,
		PhaseBackoff, PhaseConnecting,
		PhaseBackoff, PhaseConnecting,
		PhaseFailed,
	}, rec.phases())
}

func TestScheduler_RecoversWithinBudget(t *testing.T) {
	f := &scriptedFetcher{}
	f.failNext(2)
	var handled atomic.Int32

	s := NewScheduler(f, func(*contest.Snapshot) { handled.Add(1) }, fastConfig(), zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return handled.Load() >= 1 }, time.Second, time.Millisecond)
	assert.Equal(t, PhaseConnected, s.State().Phase)
	assert.Equal(t, 0, s.State().Attempt)
}

func TestScheduler_ManualReconnectAfterFailure(t *testing.T) {
	f := &scriptedFetcher{}
	f.failNext(4)
	var handled atomic.Int32

	s := NewScheduler(f, func(*contest.Snapshot) { handled.Add(1) }, fastConfig(), zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return s.State().Phase == PhaseFailed }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), handled.Load())

	require.NoError(t, s.Reconnect())
	require.Eventually(t, func() bool { return s.State().Phase == PhaseConnected }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, handled.Load(), int32(1))
}

func TestScheduler_StopCancelsTimers(t *testing.T) {
	f := &scriptedFetcher{}
	s := NewScheduler(f, func(*contest.Snapshot) {}, fastConfig(), zerolog.Nop())

	s.Start(context.Background())
	require.Eventually(t, func() bool { return f.calls.Load() >= 2 }, time.Second, time.Millisecond)
	s.Stop()

	calls := f.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, f.calls.Load())
	assert.Equal(t, PhaseIdle, s.State().Phase)
	assert.ErrorIs(t, s.Reconnect(), ErrNotRunning)
}

func TestScheduler_Disconnect(t *testing.T) {
	f := &scriptedFetcher{}
	s := NewScheduler(f, func(*contest.Snapshot) {}, fastConfig(), zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return s.State().Phase == PhaseConnected }, time.Second, time.Millisecond)
	require.NoError(t, s.Disconnect())
	require.Eventually(t, func() bool { return s.State().Phase == PhaseIdle }, time.Second, time.Millisecond)

	calls := f.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, f.calls.Load())
}

func TestScheduler_StopInterruptsFetch(t *testing.T) {
	block := FetcherFunc(func(ctx context.Context) (*contest.Snapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	var handled atomic.Int32
	s := NewScheduler(block, func(*contest.Snapshot) { handled.Add(1) }, Config{
		PollInterval: time.Millisecond,
		Policy:       fastConfig().Policy,
	}, zerolog.Nop())

	s.Start(context.Background())
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not interrupt the in-flight fetch")
	}
	assert.Equal(t, int32(0), handled.Load())
}
