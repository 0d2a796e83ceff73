package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/arcsync/internal/bus/wsbus"
	"github.com/marcus/arcsync/internal/output"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Serve the websocket bus for split agent roles",
	Long: `Relays bus messages between agents over websockets at /bus/{topic}.
Point bus.url of each agent at this address.`,
	GroupID: "agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		log := slog.Default().With("component", "hub")

		hub := wsbus.NewHub()
		defer hub.Close()

		mux := http.NewServeMux()
		mux.Handle("GET /bus/{topic}", hub)
		mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		ln, err := net.Listen("tcp", listen)
		if err != nil {
			output.Error("listen %s: %v", listen, err)
			return err
		}
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() { errc <- srv.Serve(ln) }()
		log.Info("hub listening", "addr", ln.Addr().String())

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				output.Error("serve: %v", err)
				return err
			}
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(hubCmd)

	hubCmd.Flags().String("listen", "127.0.0.1:7420", "Address to listen on")
}
