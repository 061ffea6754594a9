package redis

import (
	"encoding/json"
	"testing"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubSub_HandleMessageSkipsOwnInstance(t *testing.T) {
	var received []*Envelope
	p := NewPubSub(nil, func(e *Envelope) { received = append(received, e) }, zerolog.Nop())
	defer p.cancel()

	own, _ := json.Marshal(Envelope{SourceInstance: p.InstanceID(), Event: &events.DeliveredEvent{Key: "A-X"}})
	peer, _ := json.Marshal(Envelope{SourceInstance: "peer0001", Event: &events.DeliveredEvent{Key: "B-Y"}})

	p.handleMessage(string(own))
	p.handleMessage(string(peer))
	p.handleMessage("not json")
	p.handleMessage(`{"sourceInstance":"peer0002"}`)

	if assert.Len(t, received, 1) {
		assert.Equal(t, "B-Y", received[0].Event.Key)
	}
}

func TestPubSub_StopWithoutStart(t *testing.T) {
	p := NewPubSub(nil, nil, zerolog.Nop())
	assert.NoError(t, p.Stop())
	assert.Error(t, p.ctx.Err())
}

func TestPubSub_ClearedReachesPeers(t *testing.T) {
	a := NewPubSub(nil, nil, zerolog.Nop())
	defer a.cancel()

	var received []*Envelope
	b := NewPubSub(nil, func(e *Envelope) { received = append(received, e) }, zerolog.Nop())
	defer b.cancel()

	cleared, err := a.encode(Envelope{Kind: KindCleared})
	require.NoError(t, err)
	delivered, err := a.encode(Envelope{Kind: KindDelivered, Event: &events.DeliveredEvent{Key: "A-X"}})
	require.NoError(t, err)
	echo, err := b.encode(Envelope{Kind: KindCleared})
	require.NoError(t, err)

	b.handleMessage(string(delivered))
	b.handleMessage(string(cleared))
	b.handleMessage(string(echo))

	require.Len(t, received, 2)
	assert.False(t, received[0].Cleared())
	assert.Equal(t, "A-X", received[0].Event.Key)
	assert.True(t, received[1].Cleared())
	assert.Equal(t, a.InstanceID(), received[1].SourceInstance)
}
