package realtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"budget-sync/utils"
)

// ChangeChannel is the Postgres NOTIFY channel the entity triggers write to.
// Payload format: "<entity type>|<user id>".
const ChangeChannel = "entity_changes"

// PGListener bridges Postgres NOTIFY into the local Notifier, so collections
// running in this process hear about mutations made by any instance sharing
// the database.
type PGListener struct {
	listener *pq.Listener
	notifier *Notifier
	done     chan struct{}
}

func StartPGListener(dsn string, notifier *Notifier) (*PGListener, error) {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			utils.SafeError("pg listener event %d: %v", ev, err)
		}
	})

	if err := listener.Listen(ChangeChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", ChangeChannel, err)
	}

	p := &PGListener{
		listener: listener,
		notifier: notifier,
		done:     make(chan struct{}),
	}
	go p.loop()

	utils.SafeInfo("pg listener attached to channel %s", ChangeChannel)
	return p, nil
}

func (p *PGListener) loop() {
	for {
		select {
		case <-p.done:
			return
		case note := <-p.listener.Notify:
			if note == nil {
				// nil after a reconnect; snapshots may be stale but the next
				// notification will trigger a refetch
				continue
			}
			entityType, userID, ok := strings.Cut(note.Extra, "|")
			if !ok || entityType == "" || userID == "" {
				utils.SafeWarn("pg listener: malformed payload %q", note.Extra)
				continue
			}
			p.notifier.Publish(entityType, userID)
		case <-time.After(90 * time.Second):
			go func() {
				if err := p.listener.Ping(); err != nil {
					utils.SafeError("pg listener ping failed: %v", err)
				}
			}()
		}
	}
}

func (p *PGListener) Close() error {
	close(p.done)
	return p.listener.Close()
}
