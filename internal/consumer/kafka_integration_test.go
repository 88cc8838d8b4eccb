//go:build integration

package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"

	"github.com/itsnirmal/cheatcodeapp/internal/changefeed"
	"github.com/itsnirmal/cheatcodeapp/internal/outbox"
	platformevents "github.com/itsnirmal/cheatcodeapp/internal/platform/events"
)

func TestKafkaHabitEventReachesSubscriber(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	const topic = "habit_events"

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	}))

	broker := changefeed.NewMemoryBroker()
	sub, err := broker.Subscribe(ctx, "ada")
	require.NoError(t, err)
	defer sub.Close()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "habits-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	// The processor goroutine can outlive the test body, so it logs nowhere.
	logger := zap.NewNop()
	proc := NewProcessor(reader, NewFanoutHandler(broker, logger), WithLogger(logger))

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	producer := outbox.NewKafkaProducer(brokers)
	defer producer.Close()

	occurred := time.Now().UTC().Truncate(time.Millisecond)
	payload, err := json.Marshal(platformevents.HabitChanged{
		HabitID:    "habit-1",
		UserID:     "ada",
		Name:       "read",
		Streak:     1,
		Status:     "in_progress",
		Op:         "updated",
		OccurredAt: occurred,
	})
	require.NoError(t, err)

	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], 7)
	copy(value[5:], payload)

	require.NoError(t, producer.WriteMessages(ctx, topic, kafka.Message{
		Key:   []byte("ada"),
		Value: value,
		Headers: []kafka.Header{
			{Key: outbox.HeaderEventType, Value: []byte(platformevents.HabitUpdated)},
			{Key: outbox.HeaderUserID, Value: []byte("ada")},
			{Key: outbox.HeaderSchemaSubject, Value: []byte(topic + "-value")},
		},
	}))

	select {
	case change := <-sub.C():
		require.Equal(t, "ada", change.UserID)
		require.Equal(t, changefeed.KindHabit, change.Kind)
		require.Equal(t, changefeed.OpUpdated, change.Op)
		require.Equal(t, "habit-1", change.EntityID)
		require.True(t, occurred.Equal(change.OccurredAt))
	case <-time.After(60 * time.Second):
		t.Fatal("change did not reach the subscriber")
	}
}
