package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"budget-sync/utils"
)

// ChangeFeed is the change-notification collaborator. Subscribe registers a
// callback under a caller-chosen id; the feed invokes the callback whenever
// an entity of that type changes for that user. Subscribe must not invoke
// onChange synchronously before returning; callers may hold locks the
// callback also takes.
type ChangeFeed interface {
	Subscribe(id, entityType, userID string, onChange func()) error
	Unsubscribe(id string) error
}

// Handle identifies one live subscription. The ID is unique per acquisition
// (entity type, user id and a monotonic sequence) so a slow-to-close old
// subscription can never be confused with a newly opened one.
type Handle struct {
	ID         string
	EntityType string
	UserID     string
}

// LifecycleManager enforces "at most one live subscription per
// (entityType, userID)". Acquire is the only creation path and is idempotent
// by key; Release is a safe no-op when no handle exists. Handles for
// different entity types live in separate shards so unrelated acquire and
// release calls do not serialize each other.
type LifecycleManager struct {
	feed ChangeFeed
	seq  atomic.Uint64

	mu     sync.RWMutex
	shards map[string]*handleShard // by entity type
}

type handleShard struct {
	mu      sync.Mutex
	handles map[string]*Handle // by user id
}

func NewLifecycleManager(feed ChangeFeed) *LifecycleManager {
	return &LifecycleManager{
		feed:   feed,
		shards: make(map[string]*handleShard),
	}
}

func (m *LifecycleManager) shard(entityType string) *handleShard {
	m.mu.RLock()
	s, ok := m.shards[entityType]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.shards[entityType]; ok {
		return s
	}
	s = &handleShard{handles: make(map[string]*Handle)}
	m.shards[entityType] = s
	return s
}

// Acquire returns the existing handle for (entityType, userID) unchanged if
// one is live, otherwise opens a new subscription on the feed.
func (m *LifecycleManager) Acquire(entityType, userID string, onChange func()) (*Handle, error) {
	if userID == "" {
		return nil, fmt.Errorf("acquire %s: user id is required", entityType)
	}

	s := m.shard(entityType)
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.handles[userID]; ok {
		utils.SafeDebug("sub %s already live for user %s, reusing", entityType, utils.MaskID(userID))
		return h, nil
	}

	h := &Handle{
		ID:         fmt.Sprintf("%s:%s:%d", entityType, userID, m.seq.Add(1)),
		EntityType: entityType,
		UserID:     userID,
	}

	if err := m.feed.Subscribe(h.ID, entityType, userID, onChange); err != nil {
		return nil, &SubscriptionEstablishError{Err: err}
	}

	s.handles[userID] = h
	utils.SafeDebug("sub %s opened for user %s (%s)", entityType, utils.MaskID(userID), h.ID)
	return h, nil
}

// Release closes and removes the handle for (entityType, userID). Calling it
// when no handle exists is a no-op, not an error.
func (m *LifecycleManager) Release(entityType, userID string) {
	s := m.shard(entityType)
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[userID]
	if !ok {
		return
	}
	delete(s.handles, userID)

	if err := m.feed.Unsubscribe(h.ID); err != nil {
		utils.SafeWarn("unsubscribe %s failed: %v", h.ID, err)
	}
	utils.SafeDebug("sub %s released for user %s", entityType, utils.MaskID(userID))
}

// ReleaseUser releases every handle owned by one user, across all entity
// types. Used on logout before any collection reopens for another user.
func (m *LifecycleManager) ReleaseUser(userID string) {
	m.mu.RLock()
	types := make([]string, 0, len(m.shards))
	for entityType := range m.shards {
		types = append(types, entityType)
	}
	m.mu.RUnlock()

	for _, entityType := range types {
		m.Release(entityType, userID)
	}
}

// Active reports whether a live handle exists for (entityType, userID).
func (m *LifecycleManager) Active(entityType, userID string) bool {
	s := m.shard(entityType)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[userID]
	return ok
}

// LiveCount returns the number of live handles for one entity type.
func (m *LifecycleManager) LiveCount(entityType string) int {
	s := m.shard(entityType)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
