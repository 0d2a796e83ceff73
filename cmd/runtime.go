package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/marcus/arcsync/internal/apiclient"
	"github.com/marcus/arcsync/internal/bus"
	"github.com/marcus/arcsync/internal/bus/wsbus"
	"github.com/marcus/arcsync/internal/config"
	"github.com/marcus/arcsync/internal/connectivity"
	"github.com/marcus/arcsync/internal/db"
	"github.com/marcus/arcsync/internal/devicesync"
	"github.com/marcus/arcsync/internal/output"
	"github.com/marcus/arcsync/internal/sensor"
	"github.com/marcus/arcsync/internal/tracing"
	"github.com/marcus/arcsync/internal/wakelock"
)

// openStatus returns a connectivity monitor fed by the configured status
// file, or one that is always online.
func openStatus(ctx context.Context, c *config.Config) (*connectivity.Monitor, error) {
	path := c.Connectivity.StatusFile
	if path == "" {
		return connectivity.New(true), nil
	}
	online, err := connectivity.ReadStatusFile(path)
	if err != nil {
		online = false
	}
	m := connectivity.New(online)
	if err := m.WatchFile(ctx, path); err != nil {
		return nil, err
	}
	return m, nil
}

// openBus returns the in-process bus, or a websocket hub client when a
// bus URL is configured.
func openBus(ctx context.Context, c *config.Config) (bus.Bus, error) {
	if c.Bus.URL == "" {
		return bus.NewMemory(), nil
	}
	remote, err := wsbus.Dial(ctx, c.Bus.URL)
	if err != nil {
		return nil, err
	}
	return remote, nil
}

func newSensor(c *config.Config) sensor.Sensor {
	if c.Sensor.Kind == "static" {
		return &sensor.Static{
			Latitude:  c.Sensor.Latitude,
			Longitude: c.Sensor.Longitude,
			Accuracy:  c.Sensor.Accuracy,
		}
	}
	return sensor.NewGPSD(c.Sensor.GPSDAddr)
}

// newLocker falls back to no wake lock when the inhibitor is missing.
func newLocker(c *config.Config) wakelock.Locker {
	if c.WakeLock.Kind == "none" {
		return wakelock.Nop{}
	}
	inh, err := wakelock.NewInhibitor()
	if err != nil {
		slog.Warn("wake lock unavailable", "err", err)
		return wakelock.Nop{}
	}
	return inh
}

// startTracing installs the configured tracer as the default. The returned
// func flushes it.
func startTracing(ctx context.Context, c *config.Config, service string) (func(), error) {
	tc := tracing.DefaultConfig()
	tc.ExporterType = tracing.ExporterType(c.Tracing.Exporter)
	tc.OTLPEndpoint = c.Tracing.Endpoint
	tc.ServiceName = service
	tc.Output = os.Stderr

	t, err := tracing.New(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	tracing.SetDefault(t)
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown", "err", err)
		}
	}, nil
}

func deviceClient(c *config.Config) *apiclient.Client {
	return apiclient.New(c.DeviceAPI.URL, c.DeviceAPI.Token)
}

func pushClient(c *config.Config) *apiclient.Client {
	return apiclient.New(c.PushAPI.URL, c.PushAPI.Token)
}

// newEngine builds a sync engine over the local queue that prints its
// connectivity notices.
func newEngine(database *db.DB, status devicesync.Status, c *config.Config) *devicesync.Engine {
	return devicesync.New(database, deviceClient(c), status, devicesync.Options{
		Interval: c.Sync.Interval,
		Notice:   output.Notice,
	})
}
