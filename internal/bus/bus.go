// Package bus is a topic-scoped broadcast channel between the foreground
// and background halves of the agent. A channel never receives its own
// messages, delivery is at most once, and nothing is buffered for peers
// that are not listening.
package bus

import (
	"errors"

	"github.com/marcus/arcsync/internal/models"
)

// LocationTopic is the well-known topic for location traffic.
const LocationTopic = "location_channel"

// inboxSize bounds each channel's pending deliveries.
const inboxSize = 64

// ErrClosed is returned when opening a channel on a closed bus.
var ErrClosed = errors.New("bus closed")

// Message is the unit carried by the bus.
type Message = models.BusMessage

// Handler receives messages on a channel's delivery goroutine.
type Handler func(Message)

// Bus opens channels on named topics.
type Bus interface {
	Open(topic string) (Channel, error)
}

// Channel is one endpoint on a topic.
type Channel interface {
	// Send broadcasts to every other channel on the topic. It never blocks.
	Send(Message)
	// OnMessage registers h and returns a func that unregisters it.
	OnMessage(h Handler) (unsubscribe func())
	Close() error
}
