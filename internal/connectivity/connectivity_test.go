package connectivity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSet_EmitsOnlyOnChange(t *testing.T) {
	m := New(false)
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	m.Set(false)
	m.Set(true)
	m.Set(true)
	m.Set(false)

	want := []Transition{WentOnline, WentOffline}
	for i, w := range want {
		select {
		case got := <-ch:
			if got != w {
				t.Errorf("transition %d = %v, want %v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing transition %d", i)
		}
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra transition %v", extra)
	default:
	}
	if m.Online() {
		t.Error("Online() = true, want false")
	}
}

func TestSubscribe_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := New(false)
	_, unsubscribe := m.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			m.Set(i%2 == 0)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Set blocked on an unread subscriber")
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	m := New(true)
	ch, unsubscribe := m.Subscribe()
	unsubscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	m.Set(false) // must not panic on a closed channel
}

func TestReadStatusFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status")

	if online, err := ReadStatusFile(path); err != nil || online {
		t.Fatalf("missing file = (%v, %v), want (false, nil)", online, err)
	}

	tests := []struct {
		content string
		online  bool
		wantErr bool
	}{
		{"online\n", true, false},
		{"UP", true, false},
		{"1", true, false},
		{"offline", false, false},
		{"down\n", false, false},
		{"0", false, false},
		{"maybe", false, true},
	}
	for _, tt := range tests {
		if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
			t.Fatal(err)
		}
		online, err := ReadStatusFile(path)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tt.content, err, tt.wantErr)
		}
		if online != tt.online {
			t.Errorf("%q: online = %v, want %v", tt.content, online, tt.online)
		}
	}
}

func waitForState(t *testing.T, m *Monitor, want bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m.Online() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Online() never became %v", want)
}

func TestWatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "net-status")
	if err := os.WriteFile(path, []byte("online"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(false)
	if err := m.WatchFile(ctx, path); err != nil {
		t.Fatalf("WatchFile: %v", err)
	}
	if !m.Online() {
		t.Fatal("initial read should set online")
	}

	if err := os.WriteFile(path, []byte("offline"), 0644); err != nil {
		t.Fatal(err)
	}
	waitForState(t, m, false)

	if err := os.WriteFile(path, []byte("up"), 0644); err != nil {
		t.Fatal(err)
	}
	waitForState(t, m, true)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitForState(t, m, false)
}
