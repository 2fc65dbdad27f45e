package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitStampsTimestamp(t *testing.T) {
	sink := NewMemorySink()

	err := Emit(context.Background(), sink, Event{
		Action:     ActionIssued,
		JTI:        "urn:uuid:one",
		SubjectDID: "did:ebsi:runner-1",
	})
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, ActionIssued, events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestEmitNilSink(t *testing.T) {
	assert.NoError(t, Emit(context.Background(), nil, Event{Action: ActionRevoked}))
}

func TestMemorySinkReturnsCopies(t *testing.T) {
	sink := NewMemorySink()
	require.NoError(t, sink.Publish(context.Background(), Event{Action: ActionVerified, JTI: "urn:uuid:a"}))

	events := sink.Events()
	events[0].JTI = "mutated"

	assert.Equal(t, "urn:uuid:a", sink.Events()[0].JTI)
}
