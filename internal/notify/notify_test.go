package notify

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marcus/arcsync/internal/models"
	"github.com/marcus/arcsync/internal/pushdb"
	"github.com/marcus/arcsync/internal/webpush"
)

type fakeSender struct {
	mu    sync.Mutex
	err   error
	sent  []models.PushSubscription
	bodys [][]byte
}

func (f *fakeSender) Send(_ context.Context, sub models.PushSubscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sub)
	f.bodys = append(f.bodys, payload)
	return f.err
}

func newService(t *testing.T, sender *fakeSender) (*Service, pushdb.Store) {
	t.Helper()
	store, err := pushdb.OpenSQLite(filepath.Join(t.TempDir(), "push.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	svc := New(store, sender, Options{})
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc, store
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newService(t, &fakeSender{})
	ctx := context.Background()

	cases := []struct {
		name                   string
		endpoint, p256dh, auth string
	}{
		{"relative endpoint", "/push/1", "k", "a"},
		{"bad scheme", "ftp://push.example/1", "k", "a"},
		{"no host", "https://", "k", "a"},
		{"missing p256dh", "https://push.example/1", "", "a"},
		{"missing auth", "https://push.example/1", "k", " "},
	}
	for _, c := range cases {
		if _, err := svc.Register(ctx, c.endpoint, c.p256dh, c.auth); !errors.Is(err, ErrInvalidSubscription) {
			t.Errorf("%s: err = %v, want ErrInvalidSubscription", c.name, err)
		}
	}

	id1, err := svc.Register(ctx, "https://push.example/1", "k", "a")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	id2, err := svc.Register(ctx, "https://push.example/1", "k", "a")
	if err != nil {
		t.Fatalf("Register duplicate: %v", err)
	}
	if id2 == id1 {
		t.Error("duplicate registration reused id")
	}
}

func TestDispatch_NoSubscription(t *testing.T) {
	sender := &fakeSender{}
	svc, _ := newService(t, sender)
	if _, err := svc.Dispatch(context.Background(), "hi"); !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("err = %v, want ErrNoSubscription", err)
	}
	if len(sender.sent) != 0 {
		t.Error("sent with no subscription")
	}
}

func TestDispatch_SendsToMostRecent(t *testing.T) {
	sender := &fakeSender{}
	svc, _ := newService(t, sender)
	ctx := context.Background()
	svc.Register(ctx, "https://push.example/old", "k", "a")
	newest, _ := svc.Register(ctx, "https://push.example/new", "k2", "a2")

	res, err := svc.Dispatch(ctx, "getting loc")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := DispatchResult{Message: SentMessage, TotalSent: 1, FailedCount: 0}
	if *res != want {
		t.Errorf("result = %+v, want %+v", *res, want)
	}
	if len(sender.sent) != 1 || sender.sent[0].ID != newest {
		t.Fatalf("sent to %+v, want id %d", sender.sent, newest)
	}

	var p models.NotificationPayload
	if err := json.Unmarshal(sender.bodys[0], &p); err != nil {
		t.Fatal(err)
	}
	if p.Title != DefaultTitle || p.Body != "getting loc" || p.Icon != DefaultIcon || p.Badge != DefaultIcon || p.Timestamp != 1700000000000 {
		t.Errorf("payload = %+v", p)
	}
}

func TestDispatch_FailureRemovesSubscription(t *testing.T) {
	sender := &fakeSender{err: &webpush.DeliveryError{StatusCode: 410}}
	svc, store := newService(t, sender)
	ctx := context.Background()
	older, _ := svc.Register(ctx, "https://push.example/old", "k", "a")
	svc.Register(ctx, "https://push.example/new", "k", "a")

	res, err := svc.Dispatch(ctx, "x")
	if err != nil {
		t.Fatalf("send failure surfaced as error: %v", err)
	}
	if res.FailedCount != 1 || res.TotalSent != 1 || res.Message != SentMessage {
		t.Errorf("result = %+v", res)
	}

	latest, _ := store.Latest(ctx)
	if latest == nil || latest.ID != older {
		t.Errorf("latest after failure = %+v, want the older subscription", latest)
	}
}

func TestNotify_ReportsMissingSubscription(t *testing.T) {
	svc, _ := newService(t, &fakeSender{})
	if err := svc.Notify(context.Background(), "x"); !errors.Is(err, ErrNoSubscription) {
		t.Errorf("err = %v", err)
	}
}

func TestSubscriptions(t *testing.T) {
	svc, _ := newService(t, &fakeSender{})
	ctx := context.Background()
	svc.Register(ctx, "https://push.example/a", "k", "a")
	svc.Register(ctx, "https://push.example/b", "k", "a")

	subs, err := svc.Subscriptions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].Endpoint != "https://push.example/a" {
		t.Errorf("subs = %+v", subs)
	}
}
