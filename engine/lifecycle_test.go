package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireIsIdempotentPerKey(t *testing.T) {
	feed := newFakeFeed()
	m := NewLifecycleManager(feed)

	h1, err := m.Acquire("expenses", "u1", func() {})
	require.NoError(t, err)
	h2, err := m.Acquire("expenses", "u1", func() {})
	require.NoError(t, err)

	assert.Same(t, h1, h2, "second acquire must return the existing handle")
	assert.Equal(t, 1, feed.subscriptions())
	assert.Equal(t, 1, m.LiveCount("expenses"))
}

func TestAcquireSeparateKeys(t *testing.T) {
	feed := newFakeFeed()
	m := NewLifecycleManager(feed)

	h1, err := m.Acquire("expenses", "u1", func() {})
	require.NoError(t, err)
	h2, err := m.Acquire("expenses", "u2", func() {})
	require.NoError(t, err)
	h3, err := m.Acquire("goals", "u1", func() {})
	require.NoError(t, err)

	assert.NotEqual(t, h1.ID, h2.ID)
	assert.NotEqual(t, h1.ID, h3.ID)
	assert.Equal(t, 3, feed.subscriptions())
}

func TestReacquireAfterReleaseGetsFreshHandle(t *testing.T) {
	feed := newFakeFeed()
	m := NewLifecycleManager(feed)

	h1, err := m.Acquire("expenses", "u1", func() {})
	require.NoError(t, err)
	m.Release("expenses", "u1")
	require.False(t, m.Active("expenses", "u1"))

	h2, err := m.Acquire("expenses", "u1", func() {})
	require.NoError(t, err)
	assert.NotEqual(t, h1.ID, h2.ID, "a reacquired subscription must not reuse the old id")
}

func TestReleaseWithoutHandleIsNoop(t *testing.T) {
	m := NewLifecycleManager(newFakeFeed())
	m.Release("expenses", "nobody")
	m.Release("expenses", "nobody")
	assert.Equal(t, 0, m.LiveCount("expenses"))
}

func TestReleaseUserSpansEntityTypes(t *testing.T) {
	feed := newFakeFeed()
	m := NewLifecycleManager(feed)

	_, err := m.Acquire("expenses", "u1", func() {})
	require.NoError(t, err)
	_, err = m.Acquire("goals", "u1", func() {})
	require.NoError(t, err)
	_, err = m.Acquire("expenses", "u2", func() {})
	require.NoError(t, err)

	m.ReleaseUser("u1")

	assert.False(t, m.Active("expenses", "u1"))
	assert.False(t, m.Active("goals", "u1"))
	assert.True(t, m.Active("expenses", "u2"))
	assert.Equal(t, 1, feed.subscriptions())
}

func TestAcquireRequiresUserID(t *testing.T) {
	m := NewLifecycleManager(newFakeFeed())
	_, err := m.Acquire("expenses", "", func() {})
	assert.Error(t, err)
}

func TestSubscribeFailureSurfacesTyped(t *testing.T) {
	feed := newFakeFeed()
	feed.failNext = errors.New("feed down")
	m := NewLifecycleManager(feed)

	_, err := m.Acquire("expenses", "u1", func() {})
	var se *SubscriptionEstablishError
	require.ErrorAs(t, err, &se)
	assert.False(t, m.Active("expenses", "u1"), "a failed acquire must not leave a handle behind")
}

func TestConcurrentAcquireOpensOneSubscription(t *testing.T) {
	feed := newFakeFeed()
	m := NewLifecycleManager(feed)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Acquire("expenses", "u1", func() {})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, feed.subscriptions())
	assert.Equal(t, 1, m.LiveCount("expenses"))
}
