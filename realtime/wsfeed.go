package realtime

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"budget-sync/utils"
)

// ChangeSignal is the message the hub broadcasts after every accepted
// mutation and what the websocket feed listens for.
type ChangeSignal struct {
	Type       string `json:"type"`
	EntityType string `json:"entity"`
	UserID     string `json:"user"`
}

// WSFeed connects to the server's websocket hub and republishes incoming
// change signals into a local Notifier. It lets the sync engine run in a
// different process from the store, with the same at-most-one-subscription
// semantics on top.
type WSFeed struct {
	conn     *websocket.Conn
	notifier *Notifier
	done     chan struct{}
}

func ConnectWSFeed(url, accessToken string, notifier *Notifier) (*WSFeed, error) {
	header := http.Header{}
	if accessToken != "" {
		header.Set("Authorization", "Bearer "+accessToken)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("ws feed: access token rejected")
		}
		return nil, fmt.Errorf("ws feed: dial %s: %w", url, err)
	}

	f := &WSFeed{
		conn:     conn,
		notifier: notifier,
		done:     make(chan struct{}),
	}
	go f.readLoop()

	utils.SafeInfo("ws feed connected to %s", url)
	return f, nil
}

func (f *WSFeed) readLoop() {
	defer f.conn.Close()
	for {
		var signal ChangeSignal
		if err := f.conn.ReadJSON(&signal); err != nil {
			select {
			case <-f.done:
			default:
				utils.SafeWarn("ws feed closed: %v", err)
			}
			return
		}
		if signal.Type != "change" || signal.EntityType == "" || signal.UserID == "" {
			continue // dashboard frames and keep-alives are not ours
		}
		f.notifier.Publish(signal.EntityType, signal.UserID)
	}
}

func (f *WSFeed) Close() error {
	close(f.done)
	f.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return f.conn.Close()
}
