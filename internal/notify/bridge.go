// Package notify carries state change notifications for content items from
// push channels (websocket, redis) to the players that watch them.
package notify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
)

// Event is a content state change
type Event string

// Events a player refreshes on
const (
	EventLive         Event = "live"
	EventShowOver     Event = "showOver"
	EventNotLive      Event = "notLive"
	EventVodAvailable Event = "vodAvailable"
)

// StateEvents lists every event that signals a state change
var StateEvents = []Event{EventLive, EventShowOver, EventNotLive, EventVodAvailable}

const eventPrefix = "mediaItem."

// ErrMalformedMessage is returned for messages that are not notifications
var ErrMalformedMessage = errors.New("malformed notification message")

// Notification is one decoded message
type Notification struct {
	Event     Event
	ContentID string
}

// Handler receives notifications for a topic
type Handler func(Notification)

// Subscription identifies a registered handler
type Subscription struct {
	topic string
	id    uint64
}

// Bridge is the subscription side consumed by players
type Bridge interface {
	On(topic string, h Handler) Subscription
	Off(sub Subscription)
	IsConnected() bool
}

// Topic scopes an event to a content item
func Topic(contentID string, ev Event) string {
	return eventPrefix + string(ev) + ":" + contentID
}

// Hub is the in-process Bridge that feeds publish into
type Hub struct {
	mu        sync.RWMutex
	handlers  map[string]map[uint64]Handler
	nextID    uint64
	connected atomic.Bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{handlers: make(map[string]map[uint64]Handler)}
}

// On registers h for topic
func (h *Hub) On(topic string, handler Handler) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	if h.handlers[topic] == nil {
		h.handlers[topic] = make(map[uint64]Handler)
	}
	h.handlers[topic][h.nextID] = handler
	return Subscription{topic: topic, id: h.nextID}
}

// Off removes a subscription. Unknown subscriptions are ignored.
func (h *Hub) Off(sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	handlers, ok := h.handlers[sub.topic]
	if !ok {
		return
	}
	delete(handlers, sub.id)
	if len(handlers) == 0 {
		delete(h.handlers, sub.topic)
	}
}

// IsConnected reports whether a push channel is currently delivering
func (h *Hub) IsConnected() bool {
	return h.connected.Load()
}

// SetConnected is called by feeds as their connection comes and goes
func (h *Hub) SetConnected(connected bool) {
	h.connected.Store(connected)
}

// Publish delivers n to the handlers of its topic and returns how many ran
func (h *Hub) Publish(n Notification) int {
	topic := Topic(n.ContentID, n.Event)
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.handlers[topic]))
	for _, fn := range h.handlers[topic] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(n)
	}
	return len(handlers)
}

// Subscribers returns the number of handlers registered for topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[topic])
}

type wireMessage struct {
	EventID string `json:"eventId"`
	Payload struct {
		ID json.RawMessage `json:"id"`
	} `json:"payload"`
}

// ParseMessage decodes {"eventId":"mediaItem.live","payload":{"id":42}}
func ParseMessage(data []byte) (Notification, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !strings.HasPrefix(msg.EventID, eventPrefix) {
		return Notification{}, fmt.Errorf("%w: unexpected event %q", ErrMalformedMessage, msg.EventID)
	}
	ev := Event(strings.TrimPrefix(msg.EventID, eventPrefix))

	id, err := parseID(msg.Payload.ID)
	if err != nil {
		return Notification{}, err
	}
	return Notification{Event: ev, ContentID: id}, nil
}

func parseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: missing content id", ErrMalformedMessage)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10), nil
	}
	return "", fmt.Errorf("%w: invalid content id %s", ErrMalformedMessage, string(raw))
}

// dispatch parses a raw message and publishes it, logging malformed input
func dispatch(hub *Hub, data []byte) {
	n, err := ParseMessage(data)
	if err != nil {
		log().Debug().Err(err).Msg("Ignoring notification")
		return
	}
	delivered := hub.Publish(n)
	log().Debug().Str("event", string(n.Event)).Str("content_id", n.ContentID).Int("handlers", delivered).Msg("Notification received")
}
