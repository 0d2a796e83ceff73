// Package bridge answers background location requests with sensor fixes.
//
// On GET_LOCATION the bridge takes a wake lock, reads one fix, publishes it
// and keeps watching, publishing every further sample until STOP_LOCATION
// or the next request. Sensor errors are retried according to their code.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/arcsync/internal/bus"
	"github.com/marcus/arcsync/internal/models"
	"github.com/marcus/arcsync/internal/sensor"
	"github.com/marcus/arcsync/internal/wakelock"
)

// DefaultRetryDelay is the wait before retrying an unavailable position.
const DefaultRetryDelay = 5 * time.Second

// Options configures a Bridge.
type Options struct {
	RetryDelay time.Duration
	// RequestPermission is called when the sensor denies access.
	RequestPermission func()
}

// Bridge is the foreground location responder.
type Bridge struct {
	channel bus.Channel
	sensor  sensor.Sensor
	locker  wakelock.Locker
	opts    Options
	log     *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	unsubscribe func()
	closed      bool
	gen         uint64 // bumped by every request, stop and close
	cancel      context.CancelFunc
	stopWatch   func()
	retry       *time.Timer
	lock        wakelock.Lock
	wantLock    bool
}

// New creates a Bridge. A nil locker means no wake lock.
func New(channel bus.Channel, s sensor.Sensor, locker wakelock.Locker, opts Options) *Bridge {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if locker == nil {
		locker = wakelock.Nop{}
	}
	return &Bridge{
		channel: channel,
		sensor:  s,
		locker:  locker,
		opts:    opts,
		log:     slog.Default().With("component", "bridge"),
	}
}

// Start subscribes to the channel. Sensor work is bound to ctx.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.unsubscribe != nil {
		return
	}
	b.ctx = ctx
	b.unsubscribe = b.channel.OnMessage(b.handle)
}

func (b *Bridge) handle(msg bus.Message) {
	switch msg.Type {
	case models.MsgRequestLocation:
		b.request(msg.ID)
	case models.MsgStopLocation:
		b.stop()
	}
}

func (b *Bridge) request(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.log.Debug("location requested", "id", id)
	b.acquireLocked()
	b.gen++
	b.resetLocked()
	b.cycleLocked(b.gen, id)
}

func (b *Bridge) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.Debug("location stop requested")
	b.gen++
	b.resetLocked()
	b.wantLock = false
	b.releaseLocked()
}

// cycleLocked starts one read-then-watch cycle for generation g.
func (b *Bridge) cycleLocked(g uint64, id string) {
	ctx, cancel := context.WithCancel(b.ctx)
	b.cancel = cancel
	go b.locate(ctx, g, id)
}

// resetLocked cancels the running cycle and any pending retry.
func (b *Bridge) resetLocked() {
	if b.retry != nil {
		b.retry.Stop()
		b.retry = nil
	}
	if b.stopWatch != nil {
		b.stopWatch()
		b.stopWatch = nil
	}
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

func (b *Bridge) current(g uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed && b.gen == g
}

func (b *Bridge) locate(ctx context.Context, g uint64, id string) {
	s, err := b.sensor.Current(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		b.fail(g, id, err)
		return
	}
	b.publish(models.LocationUpdate(id, s))

	stop := b.sensor.Watch(ctx, func(s models.LocationSample) {
		if b.current(g) {
			b.publish(models.LocationUpdate(id, s))
		}
	}, func(err error) {
		b.fail(g, id, err)
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.gen != g {
		stop()
		return
	}
	b.stopWatch = stop
}

func (b *Bridge) fail(g uint64, id string, err error) {
	b.mu.Lock()
	if b.closed || b.gen != g {
		b.mu.Unlock()
		return
	}
	code := sensor.CodeOf(err)
	b.log.Warn("sensor error", "code", code, "err", err)

	switch code {
	case sensor.PermissionDenied:
		// Nothing watches until the next request, so the lock goes too.
		b.resetLocked()
		b.wantLock = false
		b.releaseLocked()
		b.mu.Unlock()
		if b.opts.RequestPermission != nil {
			b.opts.RequestPermission()
		}
		return
	case sensor.Timeout:
		b.resetLocked()
		b.cycleLocked(g, id)
	default:
		b.resetLocked()
		b.retry = time.AfterFunc(b.opts.RetryDelay, func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.closed || b.gen != g {
				return
			}
			b.retry = nil
			b.cycleLocked(g, id)
		})
	}
	b.mu.Unlock()
}

func (b *Bridge) publish(msg bus.Message) {
	b.channel.Send(msg)
}

// acquireLocked takes the wake lock if none is held. Failure is logged
// and the request proceeds without it.
func (b *Bridge) acquireLocked() {
	b.wantLock = true
	if b.lock != nil {
		if r, ok := b.lock.(interface{ Released() bool }); ok && r.Released() {
			b.lock = nil
		} else {
			return
		}
	}
	l, err := b.locker.Acquire(b.ctx)
	if err != nil {
		b.log.Warn("acquire wake lock", "err", err)
		return
	}
	b.lock = l
}

func (b *Bridge) releaseLocked() {
	if b.lock == nil {
		return
	}
	if err := b.lock.Release(); err != nil {
		b.log.Warn("release wake lock", "err", err)
	}
	b.lock = nil
}

// SetVisible reports foreground visibility. Going hidden drops the wake
// lock; becoming visible takes it again if it was held before.
func (b *Bridge) SetVisible(visible bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.ctx == nil {
		return
	}
	if !visible {
		b.releaseLocked()
		return
	}
	if b.wantLock {
		b.acquireLocked()
	}
}

// HoldsLock reports whether a wake lock is currently held.
func (b *Bridge) HoldsLock() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lock != nil
}

// Close stops watching, cancels retries and releases the wake lock.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.gen++
	b.resetLocked()
	b.wantLock = false
	b.releaseLocked()
	unsubscribe := b.unsubscribe
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
