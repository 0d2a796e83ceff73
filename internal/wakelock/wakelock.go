// Package wakelock keeps the host awake while the bridge is watching location.
package wakelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// Locker acquires wake locks.
type Locker interface {
	Acquire(ctx context.Context) (Lock, error)
}

// Lock is a held wake lock.
type Lock interface {
	Release() error
}

// Nop is a Locker for hosts without a sleep inhibitor.
type Nop struct{}

func (Nop) Acquire(context.Context) (Lock, error) { return nopLock{}, nil }

type nopLock struct{}

func (nopLock) Release() error { return nil }

// Inhibitor holds a systemd-inhibit process for the life of each lock.
type Inhibitor struct {
	Path string
	Args []string
}

// NewInhibitor locates systemd-inhibit on PATH.
func NewInhibitor() (*Inhibitor, error) {
	path, err := exec.LookPath("systemd-inhibit")
	if err != nil {
		return nil, fmt.Errorf("systemd-inhibit not found in PATH: %w", err)
	}
	return &Inhibitor{
		Path: path,
		Args: []string{
			"--what=sleep:idle",
			"--who=arcsync",
			"--why=location watch active",
			"--mode=block",
			"sleep", "infinity",
		},
	}, nil
}

// Acquire starts the inhibitor process. The process is not bound to ctx;
// it lives until Release.
func (i *Inhibitor) Acquire(ctx context.Context) (Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(i.Path, i.Args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start inhibitor: %w", err)
	}
	l := &processLock{cmd: cmd, done: make(chan struct{})}
	go func() {
		l.waitErr = cmd.Wait()
		close(l.done)
	}()
	return l, nil
}

type processLock struct {
	cmd     *exec.Cmd
	once    sync.Once
	done    chan struct{}
	waitErr error
}

// Released reports whether the inhibitor process has exited.
func (l *processLock) Released() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *processLock) Release() error {
	var err error
	l.once.Do(func() {
		select {
		case <-l.done:
			// Exited on its own; the lock was already gone.
			return
		default:
		}
		if kerr := l.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = fmt.Errorf("kill inhibitor: %w", kerr)
		}
		<-l.done
	})
	return err
}
