package events

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deployFinished struct {
	Script   string `json:"script"`
	Duration int64  `json:"duration_ms"`
	Ignored  string `json:"-"`
}

func TestNewEvent_RegistersTopic(t *testing.T) {
	evt := NewEvent[deployFinished]("test.deploy.finished", "a deploy completed")

	assert.Equal(t, "test.deploy.finished", evt.Name())

	topic, ok := DefaultRegistry().Get("test.deploy.finished")
	require.True(t, ok)
	assert.Equal(t, "a deploy completed", topic.Description)
	assert.Equal(t, []string{"script", "duration_ms"}, topic.PayloadFields)
	assert.Equal(t, "deployFinished", topic.TypeName)
}

func TestPublish_TypedPayloadRoundTrip(t *testing.T) {
	evt := NewEvent[deployFinished]("test.deploy.typed", "typed round trip")

	bridge := NewWatermillBridge()
	t.Cleanup(func() { _ = bridge.Close() })

	ctx := context.Background()
	received := make(chan Message, 1)
	require.NoError(t, bridge.Subscribe(ctx, evt.Name(), func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, PublishFrom(ctx, bridge, evt, "ctx-7", deployFinished{Script: "job.js", Duration: 12}))

	select {
	case got := <-received:
		assert.Equal(t, "ctx-7", got.ContextID)
		var payload deployFinished
		require.NoError(t, json.Unmarshal(got.Payload, &payload))
		assert.Equal(t, "job.js", payload.Script)
		assert.Equal(t, int64(12), payload.Duration)
	case <-time.After(2 * time.Second):
		t.Fatal("typed event was not delivered")
	}
}
