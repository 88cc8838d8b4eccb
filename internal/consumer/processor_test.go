package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func framed(schemaID int, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	value[0] = 0
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], payload)
	return value
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"habit_id":"abc","user_id":"user-1"}`)
	msg := kafka.Message{
		Topic:     "habit_events",
		Partition: 0,
		Offset:    10,
		Time:      time.Now().UTC(),
		Value:     framed(42, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("habit.created")},
			{Key: "user_id", Value: []byte("user-1")},
			{Key: "schema_subject", Value: []byte("habit_events-value")},
		},
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(zaptest.NewLogger(t)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "habit.created", handler.last.EventType)
	require.Equal(t, "user-1", handler.last.UserID)
	require.Equal(t, "habit_events-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := kafka.Message{
		Topic:  "profile_events",
		Offset: 20,
		Time:   time.Now().UTC(),
		Value:  framed(99, []byte(`{"user_id":"user-2"}`)),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("profile.updated")},
			{Key: "user_id", Value: []byte("user-2")},
		},
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: errors.New("boom")}

	processor := NewProcessor(reader, handler, WithLogger(zaptest.NewLogger(t)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsMalformedMessagesWithoutHandling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{
			{Topic: "habit_events", Value: []byte{0, 1}},
			{
				Topic:   "habit_events",
				Value:   framed(1, []byte(`{}`)),
				Headers: []kafka.Header{{Key: "event_type", Value: []byte("habit.updated")}},
			},
		},
		after: contextCanceled,
	}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 2, reader.commitCalls)
}

func TestChainStopsAtFirstError(t *testing.T) {
	first := &stubHandler{err: errors.New("down")}
	second := &stubHandler{}

	err := Chain(first, second).Handle(context.Background(), Message{EventType: "habit.updated"})
	require.EqualError(t, err, "down")
	require.Equal(t, 1, first.calls)
	require.Zero(t, second.calls)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
