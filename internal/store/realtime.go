package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// realtimeMessage is one frame of the hosted store's realtime websocket.
// Document events carry the full document as payload and a list of event
// names ending in .create / .update / .delete.
type realtimeMessage struct {
	Type string `json:"type"`
	Data struct {
		Events   []string        `json:"events"`
		Channels []string        `json:"channels"`
		Payload  json.RawMessage `json:"payload"`
	} `json:"data"`
}

const realtimeRedialDelay = 3 * time.Second

type realtimeConn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (r *realtimeConn) set(c *websocket.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		if c != nil {
			c.Close()
		}
		return false
	}
	r.conn = c
	return true
}

func (r *realtimeConn) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// subscribeRealtime keeps one websocket open for a single collection channel
// and forwards decoded document events to fn. The connection redials on
// failure until the unsubscribe function runs.
func subscribeRealtime(ctx context.Context, cfg RestConfig, collection string, fn func(Event), log *slog.Logger) (Unsubscribe, error) {
	wsURL, err := realtimeURL(cfg, collection)
	if err != nil {
		return nil, NewError(KindNetworkUnavailable, "subscribe", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	first, _, err := websocket.DefaultDialer.DialContext(runCtx, wsURL, nil)
	if err != nil {
		cancel()
		return nil, NewError(KindNetworkUnavailable, "subscribe", err)
	}

	holder := &realtimeConn{}
	holder.set(first)

	go func() {
		conn := first
		for {
			if runCtx.Err() != nil {
				return
			}
			if conn == nil {
				select {
				case <-runCtx.Done():
					return
				case <-time.After(realtimeRedialDelay):
				}
				next, _, dialErr := websocket.DefaultDialer.DialContext(runCtx, wsURL, nil)
				if dialErr != nil {
					log.Warn("realtime redial failed", "collection", collection, "error", dialErr)
					continue
				}
				if !holder.set(next) {
					return
				}
				conn = next
			}

			_, data, readErr := conn.ReadMessage()
			if readErr != nil {
				if runCtx.Err() != nil {
					return
				}
				log.Warn("realtime read failed, redialing", "collection", collection, "error", readErr)
				conn.Close()
				conn = nil
				continue
			}

			var msg realtimeMessage
			if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "event" {
				continue
			}
			ev, ok := decodeRealtimeEvent(collection, msg)
			if !ok {
				continue
			}
			fn(ev)
		}
	}()

	// Closing the socket unblocks the read loop; canceling the context stops
	// any pending redial.
	return func() {
		cancel()
		holder.close()
	}, nil
}

func realtimeURL(cfg RestConfig, collection string) (string, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/realtime"
	q := u.Query()
	q.Set("project", cfg.Project)
	q.Add("channels[]", "databases."+cfg.DatabaseID+".collections."+collection+".documents")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func decodeRealtimeEvent(collection string, msg realtimeMessage) (Event, bool) {
	var kind EventKind
	found := false
	for _, name := range msg.Data.Events {
		switch {
		case strings.HasSuffix(name, ".create"):
			kind, found = EventCreate, true
		case strings.HasSuffix(name, ".delete"):
			kind, found = EventDelete, true
		case strings.HasSuffix(name, ".update"):
			kind, found = EventUpdate, true
		}
		if found {
			break
		}
	}
	if !found {
		return Event{}, false
	}

	var payload restDocument
	if err := json.Unmarshal(msg.Data.Payload, &payload); err != nil {
		return Event{}, false
	}
	return Event{Kind: kind, Collection: collection, Document: restToDocument(payload)}, true
}
