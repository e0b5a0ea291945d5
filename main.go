package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bidvault/api"
)

func main() {
	args := ParseArgs()
	if !args.Validate() {
		panic("missing arguments")
	}
	logger := args.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := api.NewApp(ctx, args.ServerConfig, logger)
	if err != nil {
		panic(err)
	}
	defer app.Close()
	if err := app.Start(); err != nil {
		panic(err)
	}

	server := &http.Server{
		Addr:    args.ServerURL,
		Handler: app.Server.Router(),
	}
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), args.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Fail to shutdown http server", slog.Any("error", err))
		}
	}()

	logger.Info("Listening", slog.String("addr", args.ServerURL))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Http server stopped", slog.Any("error", err))
	}
}
