package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/infrastructure/messaging"
)

type recordingCache struct {
	mu   sync.Mutex
	ids  []string
	fail bool
}

func (c *recordingCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("redis: connection refused")
	}
	c.ids = append(c.ids, id)
	return nil
}

func TestOnCoursePathChanged_InvalidatesOnSubscribedEvents(t *testing.T) {
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	cache := &recordingCache{}
	require.NoError(t, NewOnCoursePathChangedHandler(cache, nil).Register(bus))

	require.NoError(t, bus.Publish(shared.NewEnrollmentEvent(shared.EventUserEnrolled, "p1", "u1")))
	require.NoError(t, bus.Publish(shared.NewAggregatesChangedEvent("p2", 3, 1, true)))
	require.NoError(t, bus.Publish(shared.NewCoursePathLifecycleEvent(shared.EventCoursePathArchived, "p3", "author", "Go", 4, "")))
	// progress does not change the cached snapshot
	require.NoError(t, bus.Publish(shared.NewTopicCompletedEvent("p4", "u1", 0, 25)))

	assert.Equal(t, []string{"p1", "p2", "p3"}, cache.ids)
}

func TestOnCoursePathChanged_ReturnsCacheErrors(t *testing.T) {
	cache := &recordingCache{fail: true}
	h := NewOnCoursePathChangedHandler(cache, nil)

	err := h.Handle(shared.NewEnrollmentEvent(shared.EventUserEnrolled, "p1", "u1"))
	assert.Error(t, err)
}
