package bus

import "sync"

// Dispatcher holds a channel's handlers and runs them on one delivery
// goroutine. Transports embed it to get the shared delivery rules: only
// handlers registered when a message arrives see it, and a full inbox
// drops the message.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	closed   bool

	inbox chan delivery
	done  chan struct{}
	once  sync.Once
}

// delivery pins the handlers registered when the message arrived.
type delivery struct {
	msg      Message
	handlers []Handler
}

// NewDispatcher starts a delivery goroutine; Close stops it.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[int]Handler),
		inbox:    make(chan delivery, inboxSize),
		done:     make(chan struct{}),
	}
	go d.loop()
	return d
}

// OnMessage registers h and returns its unsubscribe func.
func (d *Dispatcher) OnMessage(h Handler) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.handlers[id] = h
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.handlers, id)
		d.mu.Unlock()
	}
}

// Deliver queues msg for the currently registered handlers without blocking.
func (d *Dispatcher) Deliver(msg Message) {
	d.mu.Lock()
	if d.closed || len(d.handlers) == 0 {
		d.mu.Unlock()
		return
	}
	hs := make([]Handler, 0, len(d.handlers))
	for _, h := range d.handlers {
		hs = append(hs, h)
	}
	d.mu.Unlock()

	select {
	case d.inbox <- delivery{msg: msg, handlers: hs}:
	case <-d.done:
	default:
		// Drop if inbox is full
	}
}

// Closed reports whether Close has been called.
func (d *Dispatcher) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close stops delivery. Queued messages are discarded.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
	})
}

func (d *Dispatcher) loop() {
	for {
		select {
		case <-d.done:
			return
		case dl := <-d.inbox:
			for _, h := range dl.handlers {
				h(dl.msg)
			}
		}
	}
}
