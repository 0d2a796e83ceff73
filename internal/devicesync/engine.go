// Package devicesync replays device writes that were queued while the
// device was offline.
package devicesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcus/arcsync/internal/apiclient"
	"github.com/marcus/arcsync/internal/connectivity"
	"github.com/marcus/arcsync/internal/models"
	"github.com/marcus/arcsync/internal/tracing"
)

// DefaultInterval is the periodic drain interval.
const DefaultInterval = 30 * time.Second

// User-facing notices emitted on connectivity transitions.
const (
	NoticeRestored = "Connection restored. Syncing pending devices..."
	NoticeLost     = "Connection lost. Changes will be saved offline."
)

// Queue is the durable store the engine drains.
type Queue interface {
	AppendOperation(ctx context.Context, kind models.OperationKind, payload any) (int64, error)
	ListOperations(ctx context.Context) ([]models.PendingOperation, error)
	RemoveOperation(ctx context.Context, id int64) error
}

// DeviceAPI is the remote write endpoint.
type DeviceAPI interface {
	AddDevice(ctx context.Context, d models.DevicePayload) ([]byte, error)
}

// Status reports reachability.
type Status interface {
	Online() bool
	Subscribe() (<-chan connectivity.Transition, func())
}

// Applier performs one queued operation against the remote.
type Applier func(ctx context.Context, op models.PendingOperation) error

// Options configures an Engine.
type Options struct {
	Interval time.Duration
	Tracer   *tracing.Tracer
	// Notice receives user-facing messages. Defaults to logging them.
	Notice func(level slog.Level, msg string)
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Attempted int
	Applied   int
	Failed    int
	Skipped   bool
}

// SubmitResult reports how a submitted write was handled.
type SubmitResult struct {
	Queued   bool
	QueueID  int64
	Response []byte
}

// Engine drains the pending queue whenever connectivity returns and on a
// fixed interval.
type Engine struct {
	queue    Queue
	remote   DeviceAPI
	status   Status
	interval time.Duration
	tracer   *tracing.Tracer
	notice   func(level slog.Level, msg string)
	log      *slog.Logger

	mu       sync.RWMutex
	appliers map[models.OperationKind]Applier

	draining atomic.Bool
}

// New creates an Engine with the device.add applier registered.
func New(queue Queue, remote DeviceAPI, status Status, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.Default()
	}
	e := &Engine{
		queue:    queue,
		remote:   remote,
		status:   status,
		interval: opts.Interval,
		tracer:   opts.Tracer,
		notice:   opts.Notice,
		log:      slog.Default().With("component", "devicesync"),
		appliers: make(map[models.OperationKind]Applier),
	}
	if e.notice == nil {
		e.notice = func(level slog.Level, msg string) {
			e.log.Log(context.Background(), level, msg)
		}
	}
	e.Register(models.KindDeviceAdd, e.applyDeviceAdd)
	return e
}

// Register sets the applier for kind, replacing any existing one.
func (e *Engine) Register(kind models.OperationKind, fn Applier) {
	e.mu.Lock()
	e.appliers[kind] = fn
	e.mu.Unlock()
}

func (e *Engine) applier(kind models.OperationKind) (Applier, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.appliers[kind]
	return fn, ok
}

func (e *Engine) applyDeviceAdd(ctx context.Context, op models.PendingOperation) error {
	d, err := op.DecodeDevice()
	if err != nil {
		return fmt.Errorf("decode device payload: %w", err)
	}
	_, err = e.remote.AddDevice(ctx, d)
	return err
}

// Run drains once at start, then on every WentOnline transition and every
// interval, until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	transitions, unsubscribe := e.status.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.drainAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-transitions:
			if !ok {
				return nil
			}
			switch t {
			case connectivity.WentOnline:
				e.notice(slog.LevelInfo, NoticeRestored)
				e.drainAndLog(ctx)
				// A tick that came due during this pass would drain again at once.
				ticker.Reset(e.interval)
			case connectivity.WentOffline:
				e.notice(slog.LevelWarn, NoticeLost)
			}
		case <-ticker.C:
			e.drainAndLog(ctx)
		}
	}
}

func (e *Engine) drainAndLog(ctx context.Context) {
	res, err := e.Drain(ctx)
	if err != nil {
		e.log.Error("drain", "err", err)
		return
	}
	if !res.Skipped && res.Attempted > 0 {
		e.log.Info("drain complete", "attempted", res.Attempted, "applied", res.Applied, "failed", res.Failed)
	}
}

// Drain applies every queued operation once, in id order. A failed
// operation stays queued and does not stop the pass. Drain returns
// immediately with Skipped set when offline or when another drain is
// already running.
func (e *Engine) Drain(ctx context.Context) (DrainResult, error) {
	if !e.status.Online() {
		return DrainResult{Skipped: true}, nil
	}
	if !e.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}, nil
	}
	defer e.draining.Store(false)

	ops, err := e.queue.ListOperations(ctx)
	if err != nil {
		return DrainResult{}, fmt.Errorf("list pending: %w", err)
	}

	ctx, span := e.tracer.StartDrain(ctx, len(ops))
	var res DrainResult
	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		res.Attempted++
		if err := e.apply(ctx, op); err != nil {
			res.Failed++
			e.log.Warn("sync failed, will retry", "id", op.ID, "kind", op.Kind, "err", err)
			continue
		}
		if err := e.queue.RemoveOperation(ctx, op.ID); err != nil {
			// Applied but still queued; it will be re-applied next pass.
			res.Failed++
			e.log.Warn("remove synced operation", "id", op.ID, "err", err)
			continue
		}
		res.Applied++
	}
	tracing.End(span, nil)
	return res, nil
}

func (e *Engine) apply(ctx context.Context, op models.PendingOperation) (err error) {
	ctx, span := e.tracer.StartApply(ctx, op.ID, string(op.Kind))
	defer func() { tracing.End(span, err) }()

	fn, ok := e.applier(op.Kind)
	if !ok {
		return fmt.Errorf("no applier for kind %q", op.Kind)
	}
	return fn(ctx, op)
}

// Submit sends a device write straight to the remote when online. When
// offline, or when the remote cannot be reached, the write is queued
// instead. Other remote errors are returned unqueued.
func (e *Engine) Submit(ctx context.Context, d models.DevicePayload) (SubmitResult, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("encode device: %w", err)
	}
	if err := models.ValidatePayload(models.KindDeviceAdd, raw); err != nil {
		return SubmitResult{}, err
	}

	if e.status.Online() {
		body, err := e.remote.AddDevice(ctx, d)
		if err == nil {
			return SubmitResult{Response: body}, nil
		}
		if !apiclient.IsTransient(err) {
			return SubmitResult{}, err
		}
		e.log.Warn("remote unreachable, queueing device", "name", d.Name, "err", err)
	}

	id, err := e.queue.AppendOperation(ctx, models.KindDeviceAdd, d)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("queue device: %w", err)
	}
	return SubmitResult{Queued: true, QueueID: id}, nil
}

// ErrSkipped is returned by DrainOnce when the pass did not run.
var ErrSkipped = errors.New("drain skipped")

// DrainOnce runs a single pass and reports a skipped pass as ErrSkipped.
func (e *Engine) DrainOnce(ctx context.Context) (DrainResult, error) {
	res, err := e.Drain(ctx)
	if err == nil && res.Skipped {
		return res, ErrSkipped
	}
	return res, err
}
