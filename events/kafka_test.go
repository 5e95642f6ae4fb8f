package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaEmitter_RoutesByChannel(t *testing.T) {
	w := &fakeWriter{}
	e := NewKafkaEmitter(w, "notify.v1", "activity.v1", zap.NewNop())

	require.NoError(t, e.Emit(context.Background(), ChannelNotification, Event{EventType: TypeTimeIn, UserID: "u1", OrgID: "o1"}))
	require.NoError(t, e.Emit(context.Background(), ChannelActivity, Event{EventType: TypeTimeOut, UserID: "u1"}))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "notify.v1", w.msgs[0].Topic)
	assert.Equal(t, "activity.v1", w.msgs[1].Topic)
	assert.Equal(t, []byte("u1"), w.msgs[0].Key)
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)

	var got Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, TypeTimeIn, got.EventType)
	assert.False(t, got.OccurredAt.IsZero())
}

func TestKafkaEmitter_Errors(t *testing.T) {
	e := NewKafkaEmitter(&fakeWriter{err: errors.New("broker down")}, "n", "a", zap.NewNop())
	assert.ErrorContains(t, e.Emit(context.Background(), ChannelNotification, Event{}), "broker down")

	e = NewKafkaEmitter(&fakeWriter{}, "n", "", zap.NewNop())
	assert.Error(t, e.Emit(context.Background(), ChannelActivity, Event{}))
	assert.Error(t, e.Emit(context.Background(), "sms", Event{}))
}

func TestLogAndNoopEmitters(t *testing.T) {
	assert.NoError(t, NewLogEmitter(zap.NewNop()).Emit(context.Background(), ChannelActivity, Event{}))
	assert.NoError(t, NewNoop().Emit(context.Background(), ChannelActivity, Event{}))
}
