package devicesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcus/arcsync/internal/apiclient"
	"github.com/marcus/arcsync/internal/connectivity"
	"github.com/marcus/arcsync/internal/db"
	"github.com/marcus/arcsync/internal/models"
)

type fakeRemote struct {
	mu      sync.Mutex
	fail    map[string]error
	added   []string
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRemote) AddDevice(ctx context.Context, d models.DevicePayload) ([]byte, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[d.Name]; err != nil {
		return nil, err
	}
	f.added = append(f.added, d.Name)
	return []byte(`{"ok":true}`), nil
}

func (f *fakeRemote) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...)
}

func newTestStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func device(name string) models.DevicePayload {
	return models.DevicePayload{Name: name, Address: "10.0.0.9", HttpPort: 80, RtspPort: 554, Type: "ipcam"}
}

func enqueue(t *testing.T, store *db.DB, names ...string) {
	t.Helper()
	for _, n := range names {
		if _, err := store.AppendOperation(context.Background(), models.KindDeviceAdd, device(n)); err != nil {
			t.Fatalf("enqueue %s: %v", n, err)
		}
	}
}

func remaining(t *testing.T, store *db.DB) []string {
	t.Helper()
	ops, err := store.ListOperations(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, op := range ops {
		d, _ := op.DecodeDevice()
		names = append(names, d.Name)
	}
	return names
}

func TestDrain_AppliesInOrderAndRemoves(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a", "b", "c")
	remote := &fakeRemote{}
	e := New(store, remote, connectivity.New(true), Options{})

	res, err := e.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Attempted != 3 || res.Applied != 3 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if got := fmt.Sprint(remote.names()); got != "[a b c]" {
		t.Errorf("applied order = %s", got)
	}
	if left := remaining(t, store); len(left) != 0 {
		t.Errorf("queue not empty: %v", left)
	}
}

func TestDrain_NoHeadOfLineBlocking(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a", "b", "c")
	remote := &fakeRemote{fail: map[string]error{"a": &apiclient.APIError{StatusCode: 500}}}
	e := New(store, remote, connectivity.New(true), Options{})

	res, err := e.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Applied != 2 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
	if got := fmt.Sprint(remote.names()); got != "[b c]" {
		t.Errorf("applied = %s, want [b c]", got)
	}
	if left := fmt.Sprint(remaining(t, store)); left != "[a]" {
		t.Errorf("remaining = %s, want [a]", left)
	}
}

func TestDrain_SkipsWhenOffline(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a")
	remote := &fakeRemote{}
	e := New(store, remote, connectivity.New(false), Options{})

	res, err := e.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if !res.Skipped {
		t.Error("expected skipped drain while offline")
	}
	if len(remote.names()) != 0 {
		t.Error("remote called while offline")
	}
	if _, err := e.DrainOnce(context.Background()); !errors.Is(err, ErrSkipped) {
		t.Errorf("DrainOnce offline: got %v, want ErrSkipped", err)
	}
}

func TestDrain_SingleDrainAtATime(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a")
	remote := &fakeRemote{block: make(chan struct{}), started: make(chan struct{}, 1)}
	e := New(store, remote, connectivity.New(true), Options{})

	done := make(chan DrainResult)
	go func() {
		res, _ := e.Drain(context.Background())
		done <- res
	}()

	select {
	case <-remote.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first drain never reached the remote")
	}

	res, err := e.Drain(context.Background())
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if !res.Skipped {
		t.Errorf("second concurrent drain should be skipped, got %+v", res)
	}

	close(remote.block)
	first := <-done
	if first.Applied != 1 {
		t.Errorf("first drain = %+v", first)
	}
	if n := len(remote.names()); n != 1 {
		t.Errorf("remote applied %d times, want 1", n)
	}
}

func TestDrain_UnknownKindStaysQueued(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a")
	remote := &fakeRemote{}
	e := New(store, remote, connectivity.New(true), Options{})
	e.mu.Lock()
	delete(e.appliers, models.KindDeviceAdd)
	e.mu.Unlock()

	res, _ := e.Drain(context.Background())
	if res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(remaining(t, store)) != 1 {
		t.Error("operation with no applier was removed")
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("online sends directly", func(t *testing.T) {
		store := newTestStore(t)
		remote := &fakeRemote{}
		e := New(store, remote, connectivity.New(true), Options{})
		res, err := e.Submit(ctx, device("a"))
		if err != nil || res.Queued {
			t.Fatalf("Submit = %+v, %v", res, err)
		}
		if len(remaining(t, store)) != 0 {
			t.Error("online submit should not queue")
		}
	})

	t.Run("offline queues", func(t *testing.T) {
		store := newTestStore(t)
		remote := &fakeRemote{}
		e := New(store, remote, connectivity.New(false), Options{})
		res, err := e.Submit(ctx, device("a"))
		if err != nil || !res.Queued || res.QueueID == 0 {
			t.Fatalf("Submit = %+v, %v", res, err)
		}
		if len(remote.names()) != 0 {
			t.Error("offline submit reached remote")
		}
	})

	t.Run("unreachable queues", func(t *testing.T) {
		store := newTestStore(t)
		unreachable := fmt.Errorf("POST: %w", apiclient.ErrUnreachable)
		remote := &fakeRemote{fail: map[string]error{"a": unreachable}}
		e := New(store, remote, connectivity.New(true), Options{})
		res, err := e.Submit(ctx, device("a"))
		if err != nil || !res.Queued {
			t.Fatalf("Submit = %+v, %v", res, err)
		}
	})

	t.Run("application error returned", func(t *testing.T) {
		store := newTestStore(t)
		remote := &fakeRemote{fail: map[string]error{"a": &apiclient.APIError{StatusCode: 409}}}
		e := New(store, remote, connectivity.New(true), Options{})
		if _, err := e.Submit(ctx, device("a")); err == nil {
			t.Fatal("expected error")
		}
		if len(remaining(t, store)) != 0 {
			t.Error("application error should not queue")
		}
	})

	t.Run("invalid payload rejected", func(t *testing.T) {
		store := newTestStore(t)
		e := New(store, &fakeRemote{}, connectivity.New(false), Options{})
		if _, err := e.Submit(ctx, models.DevicePayload{}); err == nil {
			t.Fatal("expected validation error")
		}
	})
}

func TestRun_DrainsOnReconnect(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a", "b")
	remote := &fakeRemote{}
	status := connectivity.New(false)

	var (
		mu      sync.Mutex
		notices []string
	)
	e := New(store, remote, status, Options{
		Interval: time.Hour,
		Notice: func(_ slog.Level, msg string) {
			mu.Lock()
			notices = append(notices, msg)
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- e.Run(ctx) }()

	// Run subscribes before its first drain; give it a moment.
	time.Sleep(50 * time.Millisecond)
	status.Set(true)

	deadline := time.Now().Add(3 * time.Second)
	for len(remote.names()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := fmt.Sprint(remote.names()); got != "[a b]" {
		t.Fatalf("applied after reconnect = %s", got)
	}

	status.Set(false)
	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(notices)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(notices) != 2 || notices[0] != NoticeRestored || notices[1] != NoticeLost {
		t.Errorf("notices = %q", notices)
	}
}

// slowRemote holds the first AddDevice until release is closed; later
// calls fail as unreachable.
type slowRemote struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowRemote) AddDevice(ctx context.Context, d models.DevicePayload) ([]byte, error) {
	if s.calls.Add(1) == 1 {
		<-s.release
	}
	return nil, fmt.Errorf("add %s: %w", d.Name, apiclient.ErrUnreachable)
}

func TestRun_ReconnectDrainRestartsInterval(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a")
	remote := &slowRemote{release: make(chan struct{})}
	status := connectivity.New(false)

	const interval = 300 * time.Millisecond
	e := New(store, remote, status, Options{Interval: interval, Notice: func(slog.Level, string) {}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- e.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(50 * time.Millisecond)
	status.Set(true)

	deadline := time.Now().Add(3 * time.Second)
	for remote.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Hold the reconnect pass past a tick.
	time.Sleep(interval + 100*time.Millisecond)
	close(remote.release)

	time.Sleep(interval / 2)
	if n := remote.calls.Load(); n != 1 {
		t.Fatalf("AddDevice called %d times right after the reconnect pass, want 1", n)
	}
	if got := remaining(t, store); len(got) != 1 {
		t.Errorf("queue = %v, failed op should stay queued", got)
	}
}
