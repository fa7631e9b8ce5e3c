package engine

import (
	"context"
	"fmt"
	"sync"

	"budget-sync/utils"
)

// Entity is the minimum shape the sync layer needs from a stored record.
type Entity interface {
	EntityID() string
	OwnerID() string
}

type MutationKind int

const (
	MutationInsert MutationKind = iota
	MutationUpdate
	MutationDelete
)

// Mutation is a write operation delegated to the remote store. ID addresses
// the target for updates and deletes, UserID scopes the operation to its
// owner, and Payload carries the new field values.
type Mutation[T any] struct {
	Kind    MutationKind
	ID      string
	UserID  string
	Payload T
}

// Source is the remote store contract a collection consumes: an
// authoritative per-user snapshot plus a mutate primitive. Change
// notifications arrive separately through the ChangeFeed.
type Source[T any] interface {
	Snapshot(ctx context.Context, userID string) ([]T, error)
	Mutate(ctx context.Context, op Mutation[T]) (T, error)
}

type State int

const (
	Closed State = iota
	Opening
	Open
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// Snapshot is what a collection exposes to its consumers: the current items,
// the owning user and the loading/error state, all captured atomically.
type Snapshot[T any] struct {
	UserID  string
	State   State
	Items   []T
	Loading bool
	Err     error
}

// Collection keeps one entity type continuously in sync for one user at a
// time: it fetches the authoritative snapshot, holds exactly one change
// subscription through the lifecycle manager, and refetches on every remote
// change. Refetches are serialized and coalesced; a generation counter
// discards any async result that resolves after a Close or user switch.
type Collection[T any] struct {
	entityType string
	source     Source[T]
	subs       *LifecycleManager
	validate   func(T) error

	mu         sync.Mutex
	state      State
	userID     string
	items      []T
	loading    bool
	lastErr    error
	generation uint64
	fetching   bool
	pending    bool
	ctx        context.Context
	cancel     context.CancelFunc

	observers map[uint64]func(Snapshot[T])
	nextObs   uint64
}

type Option[T any] func(*Collection[T])

// WithValidator rejects mutation payloads before the store is called.
func WithValidator[T any](fn func(T) error) Option[T] {
	return func(c *Collection[T]) { c.validate = fn }
}

func NewCollection[T any](entityType string, source Source[T], subs *LifecycleManager, opts ...Option[T]) *Collection[T] {
	c := &Collection[T]{
		entityType: entityType,
		source:     source,
		subs:       subs,
		observers:  make(map[uint64]func(Snapshot[T])),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collection[T]) EntityType() string { return c.entityType }

// Open starts syncing for userID. It is idempotent: opening an already
// opening or open collection for the same user is a no-op. Opening for a
// different user closes first, so the old subscription is released before
// the new one is acquired.
func (c *Collection[T]) Open(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("open %s: user id is required", c.entityType)
	}

	c.mu.Lock()
	if c.state != Closed && c.userID == userID {
		c.mu.Unlock()
		return nil
	}
	if c.state != Closed {
		utils.SafeDebug("%s: switching user %s -> %s", c.entityType, utils.MaskID(c.userID), utils.MaskID(userID))
		c.closeLocked()
	}

	c.generation++
	gen := c.generation
	c.userID = userID
	c.state = Opening
	c.loading = true
	c.lastErr = nil
	c.ctx, c.cancel = context.WithCancel(ctx)
	fetchCtx := c.ctx
	c.mu.Unlock()

	c.notify()
	go c.establish(fetchCtx, gen, userID)
	return nil
}

// establish performs the initial snapshot fetch and then acquires the change
// subscription. The collection reaches Open only after both have completed;
// a subscription failure still yields Open, with push freshness lost and the
// error surfaced through LastError.
func (c *Collection[T]) establish(ctx context.Context, gen uint64, userID string) {
	items, err := c.source.Snapshot(ctx, userID)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return // stale response after close or user switch
	}
	if err != nil {
		err = classifyFetchError(err)
		if IsAuthExpired(err) {
			utils.SafeWarn("%s: auth expired during open for user %s", c.entityType, utils.MaskID(userID))
			c.closeLocked()
			c.mu.Unlock()
			c.notify()
			return
		}
		c.lastErr = err
	} else {
		c.items = items
		c.lastErr = nil
	}

	// Acquired under the collection lock: the generation check above and the
	// subscription acquire are atomic with respect to Open and Close, which
	// bump the generation under the same lock. A stale establish therefore
	// returns before this point and can never create or tear down a handle
	// the live generation depends on. The feed must not invoke onChange
	// synchronously from Subscribe.
	_, subErr := c.subs.Acquire(c.entityType, userID, func() { c.changed(gen) })
	if subErr != nil {
		utils.SafeWarn("%s: change feed unavailable for user %s: %v", c.entityType, utils.MaskID(userID), subErr)
		c.lastErr = subErr
	}
	c.state = Open
	c.loading = false
	c.mu.Unlock()
	c.notify()
}

// Close tears the collection down: the subscription is released, the
// snapshot is cleared and any in-flight fetch result will be discarded.
func (c *Collection[T]) Close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
	c.notify()
}

func (c *Collection[T]) closeLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.ctx = nil
	}
	if c.userID != "" {
		c.subs.Release(c.entityType, c.userID)
	}
	c.state = Closed
	c.userID = ""
	c.items = nil
	c.loading = false
	c.lastErr = nil
	c.fetching = false
	c.pending = false
}

// changed handles a change notification for generation gen.
func (c *Collection[T]) changed(gen uint64) {
	c.trigger(gen)
}

// Refetch schedules a snapshot refetch. Concurrent calls coalesce: while a
// fetch is in flight at most one follow-up is scheduled, however many
// triggers arrive in the meantime.
func (c *Collection[T]) Refetch() error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return ErrClosed
	}
	gen := c.generation
	c.mu.Unlock()
	c.trigger(gen)
	return nil
}

func (c *Collection[T]) trigger(gen uint64) {
	c.mu.Lock()
	if c.generation != gen || c.state == Closed {
		c.mu.Unlock()
		return
	}
	if c.fetching {
		c.pending = true
		c.mu.Unlock()
		return
	}
	c.fetching = true
	ctx := c.ctx
	userID := c.userID
	c.mu.Unlock()

	go c.refetchLoop(ctx, gen, userID)
}

// refetchLoop serializes refetches for one generation. It runs one fetch at
// a time and, if notifications arrived while it was in flight, exactly one
// more; burst volume never queues more than a single follow-up.
func (c *Collection[T]) refetchLoop(ctx context.Context, gen uint64, userID string) {
	for {
		items, err := c.source.Snapshot(ctx, userID)

		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return // obsolete generation, result discarded
		}
		if err != nil {
			err = classifyFetchError(err)
			if IsAuthExpired(err) {
				utils.SafeWarn("%s: auth expired, closing collection for user %s", c.entityType, utils.MaskID(userID))
				c.closeLocked()
				c.mu.Unlock()
				c.notify()
				return
			}
			// Keep the stale snapshot; stale-but-present beats empty.
			c.lastErr = err
		} else {
			c.items = items
			c.lastErr = nil
		}
		again := c.pending
		c.pending = false
		if !again {
			c.fetching = false
		}
		c.mu.Unlock()
		c.notify()

		if !again {
			return
		}
	}
}

// Add validates the payload and delegates the insert to the store. Local
// state is not touched: the authoritative refresh arrives through the
// change subscription, so a failed insert can never leave a phantom item.
func (c *Collection[T]) Add(ctx context.Context, item T) (T, error) {
	var zero T
	if c.validate != nil {
		if err := c.validate(item); err != nil {
			return zero, &ValidationError{Err: err}
		}
	}
	userID, err := c.owner()
	if err != nil {
		return zero, err
	}
	return c.source.Mutate(ctx, Mutation[T]{Kind: MutationInsert, UserID: userID, Payload: item})
}

// Update delegates an update mutation; see Add for the non-optimistic rule.
func (c *Collection[T]) Update(ctx context.Context, id string, item T) (T, error) {
	var zero T
	if id == "" {
		return zero, &ValidationError{Err: fmt.Errorf("update %s: id is required", c.entityType)}
	}
	if c.validate != nil {
		if err := c.validate(item); err != nil {
			return zero, &ValidationError{Err: err}
		}
	}
	userID, err := c.owner()
	if err != nil {
		return zero, err
	}
	return c.source.Mutate(ctx, Mutation[T]{Kind: MutationUpdate, ID: id, UserID: userID, Payload: item})
}

// Remove delegates a delete mutation.
func (c *Collection[T]) Remove(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Err: fmt.Errorf("remove %s: id is required", c.entityType)}
	}
	userID, err := c.owner()
	if err != nil {
		return err
	}
	_, err = c.source.Mutate(ctx, Mutation[T]{Kind: MutationDelete, ID: id, UserID: userID})
	return err
}

func (c *Collection[T]) owner() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return "", ErrClosed
	}
	return c.userID, nil
}

// LastError returns the most recent sync error, nil when healthy.
func (c *Collection[T]) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Current returns an atomic snapshot of the collection state.
func (c *Collection[T]) Current() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Collection[T]) snapshotLocked() Snapshot[T] {
	items := make([]T, len(c.items))
	copy(items, c.items)
	return Snapshot[T]{
		UserID:  c.userID,
		State:   c.state,
		Items:   items,
		Loading: c.loading,
		Err:     c.lastErr,
	}
}

// Watch registers an observer invoked after every state change. The
// returned func removes the observer. This is the collection's own
// subscribe/notify surface, independent of any UI framework.
func (c *Collection[T]) Watch(fn func(Snapshot[T])) (cancel func()) {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Collection[T]) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	fns := make([]func(Snapshot[T]), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
