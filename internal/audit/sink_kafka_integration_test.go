//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"racepass/pkg/testutil/containers"
)

func TestKafkaSinkPublish(t *testing.T) {
	kc := containers.NewKafkaContainer(t)
	ctx := context.Background()

	const topic = "racepass.audit.test"
	require.NoError(t, kc.CreateTopic(ctx, topic, 1, 1))

	sink, err := NewKafkaSink(KafkaConfig{
		Brokers: []string{kc.Brokers},
		Topic:   topic,
	}, slog.Default())
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, Emit(ctx, sink, Event{
		Action:     ActionRevoked,
		JTI:        "urn:uuid:kafka-one",
		SubjectDID: "did:ebsi:runner-9",
	}))

	consumer, err := kc.NewConsumer(ctx, "audit-test-group", topic)
	require.NoError(t, err)
	defer consumer.Close()

	record := kc.WaitForMessage(ctx, consumer, 30*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == "urn:uuid:kafka-one"
	})
	require.NotNil(t, record, "audit event not delivered")

	var event Event
	require.NoError(t, json.Unmarshal(record.Value, &event))
	assert.Equal(t, ActionRevoked, event.Action)
	assert.Equal(t, "did:ebsi:runner-9", event.SubjectDID)
	assert.False(t, event.Timestamp.IsZero())
}
