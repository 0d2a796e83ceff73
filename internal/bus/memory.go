package bus

import (
	"sync"
)

// Memory is an in-process Bus.
type Memory struct {
	mu     sync.Mutex
	topics map[string]map[*memChannel]struct{}
}

// NewMemory returns an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{topics: make(map[string]map[*memChannel]struct{})}
}

// Open joins topic.
func (m *Memory) Open(topic string) (Channel, error) {
	c := &memChannel{Dispatcher: NewDispatcher(), bus: m, topic: topic}

	m.mu.Lock()
	peers := m.topics[topic]
	if peers == nil {
		peers = make(map[*memChannel]struct{})
		m.topics[topic] = peers
	}
	peers[c] = struct{}{}
	m.mu.Unlock()

	return c, nil
}

func (m *Memory) peers(topic string, except *memChannel) []*memChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*memChannel, 0, len(m.topics[topic]))
	for c := range m.topics[topic] {
		if c != except {
			out = append(out, c)
		}
	}
	return out
}

func (m *Memory) leave(c *memChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.topics[c.topic], c)
	if len(m.topics[c.topic]) == 0 {
		delete(m.topics, c.topic)
	}
}

type memChannel struct {
	*Dispatcher
	bus   *Memory
	topic string
	once  sync.Once
}

func (c *memChannel) Send(msg Message) {
	if c.Closed() {
		return
	}
	for _, peer := range c.bus.peers(c.topic, c) {
		peer.Deliver(msg)
	}
}

func (c *memChannel) Close() error {
	c.once.Do(func() {
		c.bus.leave(c)
		c.Dispatcher.Close()
	})
	return nil
}
