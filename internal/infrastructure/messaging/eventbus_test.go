package messaging

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func enrolled() shared.Event {
	return shared.NewEnrollmentEvent(shared.EventUserEnrolled, "path-1", "user-1")
}

func TestPublish_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var typed, all atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventUserEnrolled, func(shared.Event) error {
		typed.Add(1)
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		all.Add(1)
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventUserUnenrolled, func(shared.Event) error {
		t.Error("unexpected delivery")
		return nil
	}))

	require.NoError(t, bus.Publish(enrolled()))
	assert.Equal(t, int32(1), typed.Load())
	assert.Equal(t, int32(1), all.Load())

	assert.Error(t, bus.Publish(nil))
}

func TestPublish_HandlerFailuresAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var reached atomic.Bool
	require.NoError(t, bus.Subscribe(shared.EventUserEnrolled, func(shared.Event) error {
		panic("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventUserEnrolled, func(shared.Event) error {
		return errors.New("cache down")
	}))
	require.NoError(t, bus.Subscribe(shared.EventUserEnrolled, func(shared.Event) error {
		reached.Store(true)
		return nil
	}))

	assert.NoError(t, bus.Publish(enrolled()))
	assert.True(t, reached.Load())
}

func TestClose_WaitsForAsyncHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var handled atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		handled.Add(1)
		return nil
	}))
	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(enrolled()))
	}
	require.NoError(t, bus.Close())
	assert.LessOrEqual(t, handled.Load(), int32(20))

	assert.ErrorIs(t, bus.Publish(enrolled()), ErrEventBusClosed)
	assert.NoError(t, bus.Close(), "second close is a no-op")
}
