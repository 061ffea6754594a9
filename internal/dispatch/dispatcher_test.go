package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type captureSink struct {
	name string
	err  error

	mu   sync.Mutex
	sent []events.DeliveredEvent
}

func (c *captureSink) Name() string { return c.name }

func (c *captureSink) Send(ctx context.Context, e events.DeliveredEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, e)
	return c.err
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) IncDispatch(sink, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[sink+"/"+status]++
}

func TestDispatcher_FansOutAndSurvivesFailures(t *testing.T) {
	broken := &captureSink{name: "print", err: errors.New("paper jam")}
	healthy := &captureSink{name: "kafka"}
	rec := &countingRecorder{}

	var mu sync.Mutex
	var notes []string
	d := New([]Sink{broken, healthy}, Options{
		Recorder: rec,
		Notify: func(msg string) {
			mu.Lock()
			notes = append(notes, msg)
			mu.Unlock()
		},
	}, zerolog.Nop())
	d.Start(context.Background())

	d.Delivered(events.DeliveredEvent{Key: "A-X", Team: "Team A", ProblemLetter: "X"})
	d.Delivered(events.DeliveredEvent{Key: "B-Y", Team: "Team B", ProblemLetter: "Y"})
	d.Stop()

	assert.Len(t, broken.sent, 2)
	assert.Len(t, healthy.sent, 2)
	assert.Equal(t, 2, rec.counts["print/error"])
	assert.Equal(t, 2, rec.counts["kafka/ok"])
	if assert.Len(t, notes, 2) {
		assert.Contains(t, notes[0], "paper jam")
		assert.Contains(t, notes[0], "Team A")
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	rec := &countingRecorder{}
	d := New(nil, Options{QueueSize: 1, Recorder: rec}, zerolog.Nop())

	d.Delivered(events.DeliveredEvent{Key: "1"})
	d.Delivered(events.DeliveredEvent{Key: "2"})

	assert.Equal(t, 1, rec.counts["queue/dropped"])
	d.Stop()
}

func TestDispatcher_DeliveredAfterStop(t *testing.T) {
	sink := &captureSink{name: "print"}
	d := New([]Sink{sink}, Options{}, zerolog.Nop())
	d.Start(context.Background())
	d.Stop()

	assert.NotPanics(t, func() { d.Delivered(events.DeliveredEvent{Key: "late"}) })
	assert.Empty(t, sink.sent)
	d.Stop()
}
