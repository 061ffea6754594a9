// Package dispatch fans delivered events out to print and notification sinks.
// Sink failures are logged and reported; they never affect delivery state.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/events"
	"github.com/rs/zerolog"
)

const (
	defaultQueueSize   = 256
	defaultSendTimeout = 10 * time.Second
)

type Sink interface {
	Name() string
	Send(ctx context.Context, event events.DeliveredEvent) error
}

type Recorder interface {
	IncDispatch(sink, status string)
}

// Notifier surfaces a failure to the people running the contest.
type Notifier func(message string)

type Options struct {
	QueueSize   int
	SendTimeout time.Duration
	Recorder    Recorder
	Notify      Notifier
}

type Dispatcher struct {
	sinks  []Sink
	opts   Options
	queue  chan events.DeliveredEvent
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(sinks []Sink, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	return &Dispatcher{
		sinks:  sinks,
		opts:   opts,
		queue:  make(chan events.DeliveredEvent, opts.QueueSize),
		logger: logger.With().Str("component", "dispatch").Logger(),
	}
}

// Delivered queues the event. It never blocks; a full queue drops the event.
func (d *Dispatcher) Delivered(event events.DeliveredEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn().Str("key", event.Key).Msg("Dispatcher stopped, dropping event")
		return
	}

	select {
	case d.queue <- event:
	default:
		d.logger.Warn().Str("key", event.Key).Msg("Dispatch queue full, dropping event")
		d.record("queue", "dropped")
		d.notify(fmt.Sprintf("Print request for %s / %s dropped", event.Team, event.ProblemLetter))
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.run(ctx)

	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	d.logger.Info().Strs("sinks", names).Msg("Dispatcher started")
}

// Stop drains what is already queued and waits for the worker.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for event := range d.queue {
		d.dispatch(ctx, event)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event events.DeliveredEvent) {
	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		err := sink.Send(sendCtx, event)
		cancel()

		if err != nil {
			d.logger.Error().
				Err(err).
				Str("sink", sink.Name()).
				Str("key", event.Key).
				Msg("Dispatch failed")
			d.record(sink.Name(), "error")
			d.notify(fmt.Sprintf("%s failed for %s / %s: %v", sink.Name(), event.Team, event.ProblemLetter, err))
			continue
		}

		d.logger.Debug().Str("sink", sink.Name()).Str("key", event.Key).Msg("Dispatched")
		d.record(sink.Name(), "ok")
	}
}

func (d *Dispatcher) record(sink, status string) {
	if d.opts.Recorder != nil {
		d.opts.Recorder.IncDispatch(sink, status)
	}
}

func (d *Dispatcher) notify(message string) {
	if d.opts.Notify != nil {
		d.opts.Notify(message)
	}
}
