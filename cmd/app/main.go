package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"folio_go/internal/app"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	go func() {
		// pprof endpoint, local only
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Warn("pprof server stopped", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, *configPath)
	if err != nil {
		slog.Error("startup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer application.Stop()

	if err := application.Run(ctx); err != nil {
		slog.Error("runtime failure", slog.Any("error", err))
		os.Exit(1)
	}
}
