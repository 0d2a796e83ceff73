package wsbus

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcus/arcsync/internal/bus"
	"github.com/marcus/arcsync/internal/models"
)

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func setup(t *testing.T) (*Hub, *Remote) {
	t.Helper()
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	remote, err := Dial(ctx, srv.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	remote.SetRedialDelay(20 * time.Millisecond)
	return hub, remote
}

func open(t *testing.T, r *Remote, topic string) bus.Channel {
	t.Helper()
	ch, err := r.Open(topic)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestRelay_DeliversToOthersOnly(t *testing.T) {
	hub, remote := setup(t)

	fg := open(t, remote, bus.LocationTopic)
	bg := open(t, remote, bus.LocationTopic)
	other := open(t, remote, "elsewhere")
	waitUntil(t, "clients to register", func() bool {
		return hub.Clients(bus.LocationTopic) == 2 && hub.Clients("elsewhere") == 1 &&
			fg.(*remoteChannel).Connected() && bg.(*remoteChannel).Connected()
	})

	fgIn := make(chan bus.Message, 4)
	bgIn := make(chan bus.Message, 4)
	otherIn := make(chan bus.Message, 4)
	fg.OnMessage(func(m bus.Message) { fgIn <- m })
	bg.OnMessage(func(m bus.Message) { bgIn <- m })
	other.OnMessage(func(m bus.Message) { otherIn <- m })

	sample := models.LocationSample{Latitude: 22.2562, Longitude: 73.1833, Accuracy: 9, Timestamp: time.UnixMilli(1700000000000)}
	fg.Send(models.LocationUpdate("u1", sample))

	select {
	case m := <-bgIn:
		if m.Type != models.MsgLocationUpdate || m.Location == nil || m.Location.Latitude != 22.2562 {
			t.Errorf("bg got %+v", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("background never received the update")
	}

	select {
	case m := <-fgIn:
		t.Errorf("sender received its own message %+v", m)
	case m := <-otherIn:
		t.Errorf("other topic received %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClose_Unregisters(t *testing.T) {
	hub, remote := setup(t)

	ch := open(t, remote, bus.LocationTopic)
	waitUntil(t, "register", func() bool { return hub.Clients(bus.LocationTopic) == 1 })

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitUntil(t, "unregister", func() bool { return hub.Clients(bus.LocationTopic) == 0 })

	ch.Send(models.RequestLocation("")) // dropped, must not panic
}

func TestSend_DroppedWhileDisconnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote, err := Dial(ctx, "http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	ch, _ := remote.Open(bus.LocationTopic)
	defer ch.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			ch.Send(models.RequestLocation(""))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked while disconnected")
	}
}

func TestDial_RejectsScheme(t *testing.T) {
	if _, err := Dial(context.Background(), "ftp://example.com"); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestHubClose_StopsConnectedClients(t *testing.T) {
	hub, remote := setup(t)

	open(t, remote, bus.LocationTopic)
	waitUntil(t, "register", func() bool { return hub.Clients(bus.LocationTopic) == 1 })
	if hub.writers.Load() != 1 {
		t.Fatalf("writers = %d, want 1", hub.writers.Load())
	}

	hub.Close()
	waitUntil(t, "write loop exit", func() bool { return hub.writers.Load() == 0 })
}
