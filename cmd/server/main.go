/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the credit platform server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment)
  2. Configure structured logging
  3. Initialize SQLite store
  4. Wire the lending service and API handler
  5. Optionally start the status-refresh scheduler
  6. Start server with graceful shutdown

CONFIGURATION:
  Via environment (see config/config.go):
  PORT, DB_PATH, LOG_LEVEL, CORS_ALLOWED_ORIGINS,
  STATUS_REFRESH_ENABLED, STATUS_REFRESH_SCHEDULE

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, close the database
  4. Exit

EXAMPLES:
  # Run with defaults (./data/credit.db, port 8080)
  ./server

  # In-memory database on another port
  DB_PATH=":memory:" PORT=3000 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - lending/service.go: Domain operations
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/libramoneda/credit-engine/api"
	"github.com/libramoneda/credit-engine/config"
	"github.com/libramoneda/credit-engine/lending"
	"github.com/libramoneda/credit-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetLevel(cfg.ParseLogLevel())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	svc := lending.NewService(store, log)
	handler := api.NewHandler(svc, log)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	var refresher *api.StatusRefresher
	if cfg.StatusRefreshEnabled {
		refresher = api.NewStatusRefresher(svc, log, cfg.StatusRefreshSchedule)
		if err := refresher.Start(); err != nil {
			log.WithError(err).Fatal("failed to start status refresher")
		}
		defer refresher.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port": cfg.Port,
			"db":   cfg.DBPath,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}
