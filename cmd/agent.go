package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/arcsync/internal/apiclient"
	"github.com/marcus/arcsync/internal/bridge"
	"github.com/marcus/arcsync/internal/db"
	"github.com/marcus/arcsync/internal/geofence"
	"github.com/marcus/arcsync/internal/monitor"
	"github.com/marcus/arcsync/internal/output"
)

// Agent roles.
const (
	roleAll        = "all"
	roleForeground = "foreground"
	roleBackground = "background"
	roleSync       = "sync"
)

// agentLockTimeout bounds the wait for another agent to let go.
const agentLockTimeout = 2 * time.Second

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the sync engine, location bridge and geofence monitor",
	Long: `Runs the long-lived agent until interrupted.

Roles:
  all         sync engine, location bridge and geofence monitor in one process
  foreground  location bridge only (answers location requests from the sensor)
  background  geofence monitor only (requests locations and sends notifications)
  sync        offline sync engine only

Split roles talk over a websocket hub; set bus.url (see "arcsync hub").
Send SIGUSR1 when the foreground is hidden and SIGUSR2 when it is visible again.`,
	GroupID: "agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		switch role {
		case roleAll, roleForeground, roleBackground, roleSync:
		default:
			err := fmt.Errorf("unknown role %q", role)
			output.Error("%v", err)
			return err
		}
		if role != roleAll && cfg.Bus.URL == "" && role != roleSync {
			output.Warning("role %s on the in-process bus has no peer; set bus.url to reach the other half", role)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		flush, err := startTracing(ctx, cfg, "arcsync-agent")
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer flush()

		return runAgent(ctx, role)
	},
}

func runAgent(ctx context.Context, role string) error {
	log := slog.Default().With("component", "agent", "role", role)
	wants := func(r string) bool { return role == roleAll || role == r }

	var database *db.DB
	if wants(roleSync) || wants(roleBackground) {
		lock, err := db.AcquireAgentLock(cfg.DataDir, agentLockTimeout)
		if err != nil {
			if errors.Is(err, db.ErrAgentRunning) {
				output.Error("another agent is already running in %s", cfg.DataDir)
			} else {
				output.Error("%v", err)
			}
			return err
		}
		defer lock.Release()

		database, err = db.Open(cfg.DataDir)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	if wants(roleSync) {
		status, err := openStatus(ctx, cfg)
		if err != nil {
			output.Error("connectivity: %v", err)
			return err
		}
		engine := newEngine(database, status, cfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := engine.Run(ctx); err != nil {
				log.Error("sync engine", "err", err)
			}
		}()
	}

	if wants(roleForeground) || wants(roleBackground) {
		b, err := openBus(ctx, cfg)
		if err != nil {
			output.Error("bus: %v", err)
			return err
		}

		if wants(roleForeground) {
			ch, err := b.Open(cfg.Bus.Topic)
			if err != nil {
				output.Error("bus: %v", err)
				return err
			}
			defer ch.Close()

			br := bridge.New(ch, newSensor(cfg), newLocker(cfg), bridge.Options{
				RetryDelay: cfg.Bridge.RetryDelay,
				RequestPermission: func() {
					output.Warning("location access denied; grant access to the sensor and send SIGUSR2")
				},
			})
			br.Start(ctx)
			defer br.Close()
			watchVisibility(ctx, br.SetVisible)
		}

		if wants(roleBackground) {
			ch, err := b.Open(cfg.Bus.Topic)
			if err != nil {
				output.Error("bus: %v", err)
				return err
			}
			defer ch.Close()

			mon := monitor.New(ch, geofence.Target(cfg.Geofence), pushNotifier(pushClient(cfg), log), database, monitor.Options{
				Interval:    cfg.Monitor.Interval,
				PollTimeout: cfg.Monitor.PollTimeout,
			})
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := mon.Run(ctx); err != nil {
					log.Error("monitor", "err", err)
				}
				mon.Wait()
			}()
		}
	}

	log.Info("agent started", "data_dir", cfg.DataDir)
	<-ctx.Done()
	log.Info("agent stopping")
	return nil
}

// errDeliveryFailed means the backend answered but could not deliver the
// push; it has already dropped the dead subscription.
var errDeliveryFailed = errors.New("push delivery failed")

// pushNotifier sends match notifications through the push backend.
func pushNotifier(push *apiclient.Client, log *slog.Logger) monitor.Notifier {
	return monitor.NotifierFunc(func(ctx context.Context, message string) error {
		res, err := push.SendNotification(ctx, message)
		if err != nil {
			return err
		}
		if res.FailedCount > 0 {
			return fmt.Errorf("%w: %d failed, subscription removed", errDeliveryFailed, res.FailedCount)
		}
		log.Info("notification dispatched", "sent", res.TotalSent)
		return nil
	})
}

func init() {
	rootCmd.AddCommand(agentCmd)

	agentCmd.Flags().String("role", roleAll, "Agent role: all, foreground, background or sync")
}
