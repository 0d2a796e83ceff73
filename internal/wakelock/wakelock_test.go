package wakelock

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestNop(t *testing.T) {
	l, err := Nop{}.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
}

func TestInhibitor_ReleaseKillsProcess(t *testing.T) {
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	inh := &Inhibitor{Path: path, Args: []string{"60"}}

	l, err := inh.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pl := l.(*processLock)
	if pl.Released() {
		t.Fatal("process exited immediately")
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !pl.Released() {
		t.Error("process still running after Release")
	}
	// Idempotent.
	if err := l.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestInhibitor_ProcessExitedEarly(t *testing.T) {
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not available")
	}
	l, err := (&Inhibitor{Path: path}).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pl := l.(*processLock)
	deadline := time.Now().Add(2 * time.Second)
	for !pl.Released() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := l.Release(); err != nil {
		t.Errorf("Release after exit: %v", err)
	}
}

func TestInhibitor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Inhibitor{Path: "sleep"}).Acquire(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
