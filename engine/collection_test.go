package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	ID    string
	Owner string
	Value float64
}

func (t testItem) EntityID() string { return t.ID }
func (t testItem) OwnerID() string  { return t.Owner }

// fakeFeed is an in-memory ChangeFeed that lets tests fire notifications by
// hand and inspect what is subscribed.
type fakeFeed struct {
	mu         sync.Mutex
	callbacks  map[string]func() // sub id -> callback
	topics     map[string]string // sub id -> entityType|userID
	failNext   error
	subEntered chan struct{} // one-shot: signals the next Subscribe started
	subGate    chan struct{} // one-shot: parks the next Subscribe until closed
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		callbacks: make(map[string]func()),
		topics:    make(map[string]string),
	}
}

// gateSubscribe parks the next Subscribe call: entered fires when it starts,
// closing release lets it finish.
func (f *fakeFeed) gateSubscribe() (entered, release chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subEntered = make(chan struct{}, 1)
	f.subGate = make(chan struct{})
	return f.subEntered, f.subGate
}

func (f *fakeFeed) Subscribe(id, entityType, userID string, onChange func()) error {
	f.mu.Lock()
	entered, gate := f.subEntered, f.subGate
	f.subEntered, f.subGate = nil, nil
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.callbacks[id] = onChange
	f.topics[id] = entityType + "|" + userID
	return nil
}

func (f *fakeFeed) Unsubscribe(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.callbacks, id)
	delete(f.topics, id)
	return nil
}

func (f *fakeFeed) fire(entityType, userID string) {
	f.mu.Lock()
	var fns []func()
	for id, topic := range f.topics {
		if topic == entityType+"|"+userID {
			fns = append(fns, f.callbacks[id])
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeFeed) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.callbacks)
}

// fakeSource is a controllable Source: per-user items, injectable fetch
// errors, an optional gate that blocks fetches until released, and counters.
type fakeSource struct {
	mu        sync.Mutex
	items     map[string][]testItem
	fetchErr  error
	gate      chan struct{}
	fetches   int
	mutations []Mutation[testItem]
}

func newFakeSource() *fakeSource {
	return &fakeSource{items: make(map[string][]testItem)}
}

func (s *fakeSource) set(userID string, items ...testItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[userID] = items
}

func (s *fakeSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

func (s *fakeSource) block() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *fakeSource) Snapshot(ctx context.Context, userID string) ([]testItem, error) {
	s.mu.Lock()
	s.fetches++
	gate := s.gate
	err := s.fetchErr
	items := append([]testItem(nil), s.items[userID]...)
	s.mu.Unlock()

	if gate != nil {
		<-gate
		// re-read state set while blocked
		s.mu.Lock()
		err = s.fetchErr
		items = append([]testItem(nil), s.items[userID]...)
		s.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *fakeSource) Mutate(ctx context.Context, op Mutation[testItem]) (testItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutations = append(s.mutations, op)
	return op.Payload, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met within 2s")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestOpenFetchesAndSubscribes(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()
	source.set("u1", testItem{ID: "a", Owner: "u1", Value: 10})

	c := NewCollection[testItem]("things", source, subs)
	require.NoError(t, c.Open(context.Background(), "u1"))

	waitFor(t, func() bool { return c.Current().State == Open })

	snap := c.Current()
	assert.Equal(t, "u1", snap.UserID)
	assert.False(t, snap.Loading)
	assert.NoError(t, snap.Err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "a", snap.Items[0].ID)
	assert.True(t, subs.Active("things", "u1"))
	assert.Equal(t, 1, feed.subscriptions())
}

func TestOpenRequiresUserID(t *testing.T) {
	c := NewCollection[testItem]("things", newFakeSource(), NewLifecycleManager(newFakeFeed()))
	assert.Error(t, c.Open(context.Background(), ""))
}

func TestOpenIsIdempotentForSameUser(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()

	c := NewCollection[testItem]("things", source, subs)
	require.NoError(t, c.Open(context.Background(), "u1"))
	waitFor(t, func() bool { return c.Current().State == Open })

	require.NoError(t, c.Open(context.Background(), "u1"))
	require.NoError(t, c.Open(context.Background(), "u1"))

	assert.Equal(t, 1, source.fetchCount())
	assert.Equal(t, 1, feed.subscriptions())
}

func TestUserSwitchReleasesOldSubscriptionFirst(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()
	source.set("u1", testItem{ID: "a", Owner: "u1"})
	source.set("u2", testItem{ID: "b", Owner: "u2"})

	c := NewCollection[testItem]("things", source, subs)
	require.NoError(t, c.Open(context.Background(), "u1"))
	waitFor(t, func() bool { return c.Current().State == Open })

	require.NoError(t, c.Open(context.Background(), "u2"))
	waitFor(t, func() bool {
		snap := c.Current()
		return snap.State == Open && snap.UserID == "u2"
	})

	snap := c.Current()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "b", snap.Items[0].ID)
	assert.False(t, subs.Active("things", "u1"))
	assert.True(t, subs.Active("things", "u2"))
	assert.Equal(t, 1, feed.subscriptions())
}

func TestChangeNotificationTriggersRefetch(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()
	source.set("u1", testItem{ID: "a", Owner: "u1", Value: 1})

	c := NewCollection[testItem]("things", source, subs)
	require.NoError(t, c.Open(context.Background(), "u1"))
	waitFor(t, func() bool { return c.Current().State == Open })

	source.set("u1", testItem{ID: "a", Owner: "u1", Value: 1}, testItem{ID: "b", Owner: "u1", Value: 2})
	feed.fire("things", "u1")

	waitFor(t, func() bool { return len(c.Current().Items) == 2 })
}

func TestRefetchCoalescesBursts(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()

	c := NewCollection[testItem]("things", source, subs)
	require.NoError(t, c.Open(context.Background(), "u1"))
	waitFor(t, func() bool { return c.Current().State == Open })
	base := source.fetchCount()

	gate := source.block()
	require.NoError(t, c.Refetch())
	waitFor(t, func() bool { return source.fetchCount() == base+1 })

	// burst while the fetch is in flight
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Refetch())
	}
	close(gate)
	source.mu.Lock()
	source.gate = nil
	source.mu.Unlock()

	// exactly one follow-up fetch, not ten
	waitFor(t, func() bool { return source.fetchCount() == base+2 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, base+2, source.fetchCount())
}

func TestFetchErrorKeepsStaleSnapshot(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()
	source.set("u1", testItem{ID: "a", Owner: "u1"})

	c := NewCollection[testItem]("things", source, subs)
	require.NoError(t, c.Open(context.Background(), "u1"))
	waitFor(t, func() bool { return c.Current().State == Open })

	source.setErr(errors.New("connection reset"))
	feed.fire("things", "u1")
	waitFor(t, func() bool { return c.Current().Err != nil })

	snap := c.Current()
	require.Len(t, snap.Items, 1, "stale items must survive a failed refetch")
	var transient *TransientFetchError
	assert.True(t, errors.As(snap.Err, &transient))

	// recovery clears the error
	source.setErr(nil)
	feed.fire("things", "u1")
	waitFor(t, func() bool { return c.Current().Err == nil })
}

func TestAuthExpiredClosesCollection(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()
	source.set("u1", testItem{ID: "a", Owner: "u1"})

	c := NewCollection[testItem]("things", source, subs)
	require.NoError(t, c.Open(context.Background(), "u1"))
	waitFor(t, func() bool { return c.Current().State == Open })

	source.setErr(&AuthExpiredError{Err: errors.New("jwt expired")})
	feed.fire("things", "u1")

	waitFor(t, func() bool { return c.Current().State == Closed })
	assert.False(t, subs.Active("things", "u1"))
	assert.Empty(t, c.Current().Items)
}

func TestCloseDiscardsInFlightFetch(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()
	source.set("u1", testItem{ID: "a", Owner: "u1"})
	gate := source.block()

	c := NewCollection[testItem]("things", source, subs)
	require.NoError(t, c.Open(context.Background(), "u1"))
	waitFor(t, func() bool { return source.fetchCount() == 1 })

	c.Close()
	close(gate)

	time.Sleep(20 * time.Millisecond)
	snap := c.Current()
	assert.Equal(t, Closed, snap.State)
	assert.Empty(t, snap.Items)
	assert.Equal(t, 0, feed.subscriptions())
}

func TestRefetchOnClosedCollection(t *testing.T) {
	c := NewCollection[testItem]("things", newFakeSource(), NewLifecycleManager(newFakeFeed()))
	assert.ErrorIs(t, c.Refetch(), ErrClosed)
}

func TestMutationsRequireOpenCollection(t *testing.T) {
	source := newFakeSource()
	c := NewCollection[testItem]("things", source, NewLifecycleManager(newFakeFeed()))

	_, err := c.Add(context.Background(), testItem{ID: "a", Owner: "u1"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Update(context.Background(), "a", testItem{ID: "a", Owner: "u1"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Remove(context.Background(), "a"), ErrClosed)
	assert.Empty(t, source.mutations)
}

func TestValidatorRejectsBeforeStore(t *testing.T) {
	source := newFakeSource()
	c := NewCollection("things", source, NewLifecycleManager(newFakeFeed()),
		WithValidator(func(it testItem) error {
			if it.Value < 0 {
				return fmt.Errorf("value must not be negative")
			}
			return nil
		}))
	require.NoError(t, c.Open(context.Background(), "u1"))
	waitFor(t, func() bool { return c.Current().State == Open })

	_, err := c.Add(context.Background(), testItem{ID: "a", Owner: "u1", Value: -1})
	assert.True(t, IsValidation(err))
	assert.Empty(t, source.mutations)
}

func TestMutationsStampOwner(t *testing.T) {
	source := newFakeSource()
	c := NewCollection[testItem]("things", source, NewLifecycleManager(newFakeFeed()))
	require.NoError(t, c.Open(context.Background(), "u1"))
	waitFor(t, func() bool { return c.Current().State == Open })

	_, err := c.Add(context.Background(), testItem{ID: "a", Owner: "u1"})
	require.NoError(t, err)
	_, err = c.Update(context.Background(), "a", testItem{ID: "a", Owner: "u1", Value: 5})
	require.NoError(t, err)
	require.NoError(t, c.Remove(context.Background(), "a"))

	source.mu.Lock()
	defer source.mu.Unlock()
	require.Len(t, source.mutations, 3)
	for _, op := range source.mutations {
		assert.Equal(t, "u1", op.UserID)
	}
	assert.Equal(t, MutationInsert, source.mutations[0].Kind)
	assert.Equal(t, MutationUpdate, source.mutations[1].Kind)
	assert.Equal(t, "a", source.mutations[1].ID)
	assert.Equal(t, MutationDelete, source.mutations[2].Kind)
}

func TestWatchObservesAndCancels(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()

	c := NewCollection[testItem]("things", source, subs)

	var mu sync.Mutex
	var states []State
	cancel := c.Watch(func(snap Snapshot[testItem]) {
		mu.Lock()
		states = append(states, snap.State)
		mu.Unlock()
	})

	require.NoError(t, c.Open(context.Background(), "u1"))
	waitFor(t, func() bool { return c.Current().State == Open })
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 2
	})

	mu.Lock()
	assert.Equal(t, Opening, states[0])
	assert.Equal(t, Open, states[len(states)-1])
	seen := len(states)
	mu.Unlock()

	cancel()
	c.Close()
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, seen, len(states), "cancelled observer must not fire")
	mu.Unlock()
}

func TestCloseWaitsForPendingAcquire(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()
	source.set("u1", testItem{ID: "a", Owner: "u1"})

	entered, release := feed.gateSubscribe()
	c := NewCollection[testItem]("things", source, subs)
	require.NoError(t, c.Open(context.Background(), "u1"))
	<-entered // the open sequence is inside Subscribe, holding the collection lock

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	// Close cannot finish while the acquire is still in progress, so the
	// handle it races with is always torn down, never leaked.
	select {
	case <-done:
		t.Fatal("close finished before the subscription acquire completed")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-done

	assert.Equal(t, Closed, c.Current().State)
	assert.Equal(t, 0, feed.subscriptions())
	assert.False(t, subs.Active("things", "u1"))
}

func TestReopenDuringBlockedFetchKeepsLiveSubscription(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()
	source.set("u1", testItem{ID: "a", Owner: "u1", Value: 1})

	gate := source.block()
	c := NewCollection[testItem]("things", source, subs)
	require.NoError(t, c.Open(context.Background(), "u1"))
	waitFor(t, func() bool { return source.fetchCount() == 1 })

	// close and reopen for the same user while the first fetch is parked
	c.Close()
	require.NoError(t, c.Open(context.Background(), "u1"))
	close(gate)
	source.mu.Lock()
	source.gate = nil
	source.mu.Unlock()

	waitFor(t, func() bool { return c.Current().State == Open })
	time.Sleep(20 * time.Millisecond)

	// whichever order the two parked opens resolve in, exactly one
	// subscription survives and it belongs to the live open
	assert.Equal(t, 1, feed.subscriptions())
	assert.True(t, subs.Active("things", "u1"))

	// and it must still drive refetches
	source.set("u1", testItem{ID: "a", Owner: "u1", Value: 1}, testItem{ID: "b", Owner: "u1", Value: 2})
	feed.fire("things", "u1")
	waitFor(t, func() bool { return len(c.Current().Items) == 2 })
}

func TestUserSwitchDiscardsLateFirstFetch(t *testing.T) {
	feed := newFakeFeed()
	subs := NewLifecycleManager(feed)
	source := newFakeSource()
	source.set("uA", testItem{ID: "a", Owner: "uA"})
	source.set("uB", testItem{ID: "b", Owner: "uB"})

	gate := source.block()
	c := NewCollection[testItem]("things", source, subs)

	var mu sync.Mutex
	crossed := false
	cancel := c.Watch(func(snap Snapshot[testItem]) {
		mu.Lock()
		defer mu.Unlock()
		for _, it := range snap.Items {
			if it.Owner != snap.UserID {
				crossed = true
			}
		}
	})
	defer cancel()

	require.NoError(t, c.Open(context.Background(), "uA"))
	waitFor(t, func() bool { return source.fetchCount() == 1 })

	// switch while uA's first fetch is still parked, then let both resolve
	require.NoError(t, c.Open(context.Background(), "uB"))
	waitFor(t, func() bool { return source.fetchCount() == 2 })
	close(gate)
	source.mu.Lock()
	source.gate = nil
	source.mu.Unlock()

	waitFor(t, func() bool {
		snap := c.Current()
		return snap.State == Open && snap.UserID == "uB"
	})
	time.Sleep(20 * time.Millisecond)

	snap := c.Current()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "b", snap.Items[0].ID)
	assert.False(t, subs.Active("things", "uA"))
	assert.True(t, subs.Active("things", "uB"))
	assert.Equal(t, 1, feed.subscriptions())

	mu.Lock()
	assert.False(t, crossed, "one user's rows must never surface in another user's snapshot")
	mu.Unlock()
}
