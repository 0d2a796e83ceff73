package bus

import (
	"testing"
	"time"

	"github.com/marcus/arcsync/internal/models"
)

func recv(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func expectNone(t *testing.T, ch <-chan Message) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("unexpected message %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func collect(c Channel) (<-chan Message, func()) {
	out := make(chan Message, 16)
	unsub := c.OnMessage(func(m Message) { out <- m })
	return out, unsub
}

func TestMemory_BroadcastSkipsSender(t *testing.T) {
	b := NewMemory()
	a, _ := b.Open(LocationTopic)
	p, _ := b.Open(LocationTopic)
	q, _ := b.Open(LocationTopic)
	defer a.Close()
	defer p.Close()
	defer q.Close()

	aIn, _ := collect(a)
	pIn, _ := collect(p)
	qIn, _ := collect(q)

	a.Send(models.RequestLocation("r1"))

	if m := recv(t, pIn); m.Type != models.MsgRequestLocation || m.ID != "r1" {
		t.Errorf("p got %+v", m)
	}
	if m := recv(t, qIn); m.Type != models.MsgRequestLocation {
		t.Errorf("q got %+v", m)
	}
	expectNone(t, aIn)
}

func TestMemory_TopicsAreIsolated(t *testing.T) {
	b := NewMemory()
	a, _ := b.Open(LocationTopic)
	other, _ := b.Open("other")
	defer a.Close()
	defer other.Close()

	in, _ := collect(other)
	a.Send(models.StopLocation(""))
	expectNone(t, in)
}

func TestMemory_NoBufferingForLateHandlers(t *testing.T) {
	b := NewMemory()
	a, _ := b.Open(LocationTopic)
	p, _ := b.Open(LocationTopic)
	defer a.Close()
	defer p.Close()

	a.Send(models.RequestLocation("early"))

	in, _ := collect(p)
	expectNone(t, in)

	a.Send(models.RequestLocation("late"))
	if m := recv(t, in); m.ID != "late" {
		t.Errorf("got %+v, want late", m)
	}
}

func TestMemory_UnsubscribeAndClose(t *testing.T) {
	b := NewMemory()
	a, _ := b.Open(LocationTopic)
	p, _ := b.Open(LocationTopic)
	defer a.Close()

	in, unsub := collect(p)
	unsub()
	a.Send(models.RequestLocation(""))
	expectNone(t, in)

	in, _ = collect(p)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	a.Send(models.RequestLocation(""))
	expectNone(t, in)

	p.Send(models.RequestLocation("")) // closed channel send is a no-op
}

func TestMemory_SendNeverBlocks(t *testing.T) {
	b := NewMemory()
	a, _ := b.Open(LocationTopic)
	p, _ := b.Open(LocationTopic)
	defer a.Close()
	defer p.Close()

	release := make(chan struct{})
	p.OnMessage(func(Message) { <-release })
	defer close(release)

	done := make(chan struct{})
	go func() {
		for i := 0; i < inboxSize*4; i++ {
			a.Send(models.RequestLocation(""))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked behind a stuck handler")
	}
}
