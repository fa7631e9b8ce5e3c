package store

import (
	"context"
	"fmt"
	"sync"

	"budget-sync/engine"
	"budget-sync/realtime"
)

// Memory is an in-memory store implementing engine.Source for any entity.
// It backs the package tests and the zero-dependency demo mode; mutations
// publish to the notifier exactly like the Postgres stores do.
type Memory[T engine.Entity] struct {
	entityType string
	notifier   *realtime.Notifier

	mu    sync.RWMutex
	items []T
}

func NewMemory[T engine.Entity](entityType string, notifier *realtime.Notifier) *Memory[T] {
	return &Memory[T]{entityType: entityType, notifier: notifier}
}

func (m *Memory[T]) Snapshot(ctx context.Context, userID string) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []T
	for _, item := range m.items {
		if item.OwnerID() == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *Memory[T]) Mutate(ctx context.Context, op engine.Mutation[T]) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	m.mu.Lock()
	var out T
	var err error
	switch op.Kind {
	case engine.MutationInsert:
		if op.Payload.EntityID() == "" {
			err = fmt.Errorf("insert %s: entity id is required", m.entityType)
			break
		}
		if m.indexOf(op.Payload.EntityID()) >= 0 {
			err = fmt.Errorf("insert %s: duplicate id %s", m.entityType, op.Payload.EntityID())
			break
		}
		m.items = append(m.items, op.Payload)
		out = op.Payload

	case engine.MutationUpdate:
		i := m.indexOf(op.ID)
		if i < 0 || m.items[i].OwnerID() != op.UserID {
			err = fmt.Errorf("update %s: no entity %s for this user", m.entityType, op.ID)
			break
		}
		m.items[i] = op.Payload
		out = op.Payload

	case engine.MutationDelete:
		i := m.indexOf(op.ID)
		if i < 0 || m.items[i].OwnerID() != op.UserID {
			err = fmt.Errorf("delete %s: no entity %s for this user", m.entityType, op.ID)
			break
		}
		m.items = append(m.items[:i], m.items[i+1:]...)

	default:
		err = fmt.Errorf("unsupported mutation kind %d", op.Kind)
	}
	m.mu.Unlock()

	if err != nil {
		return zero, err
	}
	if m.notifier != nil {
		m.notifier.Publish(m.entityType, op.UserID)
	}
	return out, nil
}

// indexOf must be called with the lock held.
func (m *Memory[T]) indexOf(id string) int {
	for i, item := range m.items {
		if item.EntityID() == id {
			return i
		}
	}
	return -1
}

// Seed inserts items directly, bypassing notifications. Test helper.
func (m *Memory[T]) Seed(items ...T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, items...)
}

// Len reports the number of stored items across all users.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
