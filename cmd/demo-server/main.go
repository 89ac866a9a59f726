package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fbpages/internal/graphtest"
	"fbpages/internal/logging"
)

func main() {
	port := flag.Int("port", 8080, "Port to run the demo server on")
	host := flag.String("host", "localhost", "Host to bind the demo server to")
	level := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := logging.Must(*level, "console")
	defer func() { _ = logger.Sync() }()

	fixture := graphtest.DefaultFixture()
	addr := fmt.Sprintf("%s:%d", *host, *port)
	server := &http.Server{
		Addr:    addr,
		Handler: graphtest.NewHandler(fixture),
	}

	go func() {
		logger.Info("demo Graph API starting", zap.String("url", "http://"+addr))
		logger.Info("point fbpages at it",
			zap.String("api.base_url", "http://"+addr),
			zap.String("FACEBOOK_ACCESS_TOKEN", fixture.Token),
			zap.String("FACEBOOK_PAGE_ID", fixture.PageID),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down demo server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("demo server stopped")
}
