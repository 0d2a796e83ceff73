// Package monitor runs the background geofence actor: it asks the
// foreground for a location on every tick, checks the answer against the
// target region, and dispatches a notification on a match.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/arcsync/internal/bus"
	"github.com/marcus/arcsync/internal/geofence"
	"github.com/marcus/arcsync/internal/models"
)

// Defaults.
const (
	DefaultInterval    = 10 * time.Second
	DefaultPollTimeout = 8 * time.Second
)

// State is the actor state.
type State int32

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// Notifier delivers a match notification.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// NotifierFunc adapts a func to Notifier.
type NotifierFunc func(ctx context.Context, message string) error

func (f NotifierFunc) Notify(ctx context.Context, message string) error { return f(ctx, message) }

// EventLog is the durable diagnostic log.
type EventLog interface {
	AppendEvent(ctx context.Context, kind models.EventKind, message string) error
	LastEvent(ctx context.Context) (*models.EventLogEntry, error)
}

// Options configures a Monitor.
type Options struct {
	Interval    time.Duration
	PollTimeout time.Duration
	// Message builds the notification text for a match.
	Message func(s models.LocationSample, distance float64) string
}

// Monitor is the geofence actor. All state changes happen on the Run
// goroutine; State may be read from anywhere.
type Monitor struct {
	channel  bus.Channel
	target   geofence.Target
	notifier Notifier
	events   EventLog
	opts     Options
	log      *slog.Logger

	state   atomic.Int32
	updates chan models.LocationSample

	dispatches sync.WaitGroup
	now        func() time.Time
}

// New creates a Monitor. Run starts it.
func New(channel bus.Channel, target geofence.Target, notifier Notifier, events EventLog, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.Message == nil {
		opts.Message = defaultMessage
	}
	return &Monitor{
		channel:  channel,
		target:   target,
		notifier: notifier,
		events:   events,
		opts:     opts,
		log:      slog.Default().With("component", "monitor"),
		updates:  make(chan models.LocationSample, 8),
		now:      time.Now,
	}
}

func defaultMessage(s models.LocationSample, distance float64) string {
	return fmt.Sprintf("location match at %.6f,%.6f (%.0f m) %s",
		s.Latitude, s.Longitude, distance, time.Now().UTC().Format(time.RFC3339))
}

// State returns the current actor state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Wait blocks until in-flight dispatches finish.
func (m *Monitor) Wait() {
	m.dispatches.Wait()
}

// Run drives the actor until ctx is done. It never returns an error for
// a missed poll.
func (m *Monitor) Run(ctx context.Context) error {
	unsubscribe := m.channel.OnMessage(func(msg bus.Message) {
		if msg.Type != models.MsgLocationUpdate || msg.Location == nil {
			return
		}
		select {
		case m.updates <- *msg.Location:
		default:
			// Drop if the actor is behind
		}
	})
	defer unsubscribe()

	m.recordStart(ctx)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	timeout := time.NewTimer(m.opts.PollTimeout)
	stopTimer(timeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			m.state.Store(int32(Idle))
			return nil

		case <-ticker.C:
			m.record(ctx, models.EventTick, "checking location")
			id := uuid.NewString()
			m.record(ctx, models.EventRequest, "request "+id)
			m.state.Store(int32(Polling))
			m.channel.Send(models.RequestLocation(id))
			stopTimer(timeout)
			timeout.Reset(m.opts.PollTimeout)

		case <-timeout.C:
			if m.State() == Polling {
				m.record(ctx, models.EventTimeout, fmt.Sprintf("no location within %s", m.opts.PollTimeout))
				m.state.Store(int32(Idle))
			}

		case s := <-m.updates:
			if m.State() != Polling {
				m.record(ctx, models.EventIgnored, fmt.Sprintf("unsolicited update %.6f,%.6f", s.Latitude, s.Longitude))
				continue
			}
			stopTimer(timeout)
			m.state.Store(int32(Idle))
			m.record(ctx, models.EventUpdate, fmt.Sprintf("received %.6f,%.6f", s.Latitude, s.Longitude))
			m.evaluate(ctx, s)
		}
	}
}

func (m *Monitor) evaluate(ctx context.Context, s models.LocationSample) {
	ok, distance := m.target.Contains(s)
	if !ok {
		m.log.Debug("outside target", "distance_m", distance)
		return
	}
	m.record(ctx, models.EventMatch, fmt.Sprintf("distance %.1f m within %.0f m", distance, m.target.RadiusMeters))

	msg := m.opts.Message(s, distance)
	// A dispatch already started is never cancelled, even on shutdown.
	dctx := context.WithoutCancel(ctx)
	m.dispatches.Add(1)
	go func() {
		defer m.dispatches.Done()
		if err := m.notifier.Notify(dctx, msg); err != nil {
			m.log.Warn("dispatch notification", "err", err)
			m.record(dctx, models.EventDispatchFailed, err.Error())
			return
		}
		m.record(dctx, models.EventDispatch, msg)
	}()
}

func (m *Monitor) recordStart(ctx context.Context) {
	msg := "monitor started"
	if last, err := m.events.LastEvent(ctx); err == nil && last != nil {
		msg = fmt.Sprintf("monitor started, %s since last event (%s)", m.now().Sub(last.Time).Round(time.Second), last.Kind)
	}
	m.record(ctx, models.EventStart, msg)
}

func (m *Monitor) record(ctx context.Context, kind models.EventKind, msg string) {
	m.log.Debug(msg, "event", kind)
	if err := m.events.AppendEvent(ctx, kind, msg); err != nil {
		m.log.Warn("append event", "kind", kind, "err", err)
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
