package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcus/arcsync/internal/api"
	"github.com/marcus/arcsync/internal/logging"
	"github.com/marcus/arcsync/internal/notify"
	"github.com/marcus/arcsync/internal/pushdb"
	"github.com/marcus/arcsync/internal/tracing"
	"github.com/marcus/arcsync/internal/webpush"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "vapid-keys" {
		runVapidKeys(os.Args[2:])
		return
	}

	cfg := api.LoadConfig()
	slog.SetDefault(logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.New(ctx, tracing.Config{
		ExporterType: tracing.ExporterType(cfg.TracingExporter),
		OTLPEndpoint: cfg.TracingEndpoint,
		ServiceName:  "arcsync-push",
		SampleRate:   1.0,
		Output:       os.Stderr,
	})
	if err != nil {
		slog.Error("init tracing", "err", err)
		os.Exit(1)
	}
	tracing.SetDefault(tracer)

	store, err := pushdb.Open(cfg.DBDSN)
	if err != nil {
		slog.Error("open push db", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	sender, err := webpush.NewVAPIDSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	if err != nil {
		slog.Error("create sender", "err", err)
		os.Exit(1)
	}

	svc := notify.New(store, sender, notify.Options{Icon: cfg.NotificationIcon, Tracer: tracer})
	srv, err := api.NewServer(cfg, svc)
	if err != nil {
		slog.Error("create server", "err", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		slog.Error("start server", "err", err)
		os.Exit(1)
	}
	slog.Info("server started", "addr", srv.Addr())

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		slog.Error("tracing shutdown", "err", err)
	}
}
