package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ticket-booth/events"
)

func TestNewPublisher_DefaultTopic(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "")
	defer p.Close()

	assert.Equal(t, DefaultTopic, p.writer.Topic)

	q := NewPublisher([]string{"localhost:9092"}, "booth")
	defer q.Close()
	assert.Equal(t, "booth", q.writer.Topic)
}

func TestPublish_EncodeError(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "")
	defer p.Close()

	err := p.Publish(context.Background(), events.Event{
		Type:       events.TypeSaleRecorded,
		Key:        "E1",
		OccurredAt: time.Now(),
		Payload:    func() {},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "encode event")
}

func TestMessage_KeyHeaderAndBody(t *testing.T) {
	at := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	msg, err := message(events.Event{
		Type:       events.TypeSaleCorrected,
		Key:        "210679",
		OccurredAt: at,
		Payload:    map[string]any{"event_id": "ev-1", "new_quantity": 5},
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("210679"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, []byte(events.TypeSaleCorrected), msg.Headers[0].Value)

	var body struct {
		Type       string         `json:"type"`
		Key        string         `json:"key"`
		OccurredAt time.Time      `json:"occurred_at"`
		Payload    map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, events.TypeSaleCorrected, body.Type)
	assert.Equal(t, "210679", body.Key)
	assert.True(t, at.Equal(body.OccurredAt))
	assert.Equal(t, "ev-1", body.Payload["event_id"])
	assert.Equal(t, float64(5), body.Payload["new_quantity"])
}

func TestMessage_EncodeError(t *testing.T) {
	_, err := message(events.Event{Type: events.TypeSaleRecorded, Key: "E1", Payload: make(chan int)})
	assert.ErrorContains(t, err, "encode event")
}
