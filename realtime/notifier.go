package realtime

import (
	"fmt"
	"sync"

	"budget-sync/utils"
)

// Notifier is the in-process change feed: callbacks are registered per
// (entityType, userID) topic under a caller-chosen subscription id and fired
// whenever a change for that topic is published. It carries no payload;
// a notification only means "refetch your snapshot".
type Notifier struct {
	mu     sync.RWMutex
	topics map[string]map[string]func() // topic -> sub id -> callback
	index  map[string]string            // sub id -> topic
}

func NewNotifier() *Notifier {
	return &Notifier{
		topics: make(map[string]map[string]func()),
		index:  make(map[string]string),
	}
}

func topicKey(entityType, userID string) string {
	return entityType + "|" + userID
}

func (n *Notifier) Subscribe(id, entityType, userID string, onChange func()) error {
	if id == "" || entityType == "" || userID == "" {
		return fmt.Errorf("subscribe: id, entity type and user id are all required")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.index[id]; exists {
		return fmt.Errorf("subscribe: id %s already registered", id)
	}

	topic := topicKey(entityType, userID)
	subs, ok := n.topics[topic]
	if !ok {
		subs = make(map[string]func())
		n.topics[topic] = subs
	}
	subs[id] = onChange
	n.index[id] = topic
	return nil
}

func (n *Notifier) Unsubscribe(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	topic, ok := n.index[id]
	if !ok {
		return fmt.Errorf("unsubscribe: unknown id %s", id)
	}
	delete(n.index, id)

	subs := n.topics[topic]
	delete(subs, id)
	if len(subs) == 0 {
		delete(n.topics, topic)
	}
	return nil
}

// Publish fires every callback registered for (entityType, userID).
// Callbacks run on their own goroutines so a slow consumer cannot block
// publishing or other consumers.
func (n *Notifier) Publish(entityType, userID string) {
	n.mu.RLock()
	subs := n.topics[topicKey(entityType, userID)]
	fns := make([]func(), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	if len(fns) > 0 {
		utils.SafeDebug("change %s for user %s -> %d subscriber(s)", entityType, utils.MaskID(userID), len(fns))
	}
	for _, fn := range fns {
		go fn()
	}
}

// SubscriberCount reports live subscriptions for one topic.
func (n *Notifier) SubscriberCount(entityType, userID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.topics[topicKey(entityType, userID)])
}
