package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	provHandler "github.com/openlms/slackspaces/internal/controller/http/provisioning"
	"github.com/openlms/slackspaces/internal/provision"
	wsSqlite "github.com/openlms/slackspaces/internal/repositories/workspace/sqlite"
	"github.com/openlms/slackspaces/internal/slack"
	"github.com/openlms/slackspaces/pkg/common/config"
	"github.com/openlms/slackspaces/pkg/common/logger"
)

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config: %v", err)
		os.Exit(1)
	}
	logger.Initialize(cfg.LogLevel)
	logger.Info("starting server")

	repo, err := wsSqlite.NewSQLiteRepo(cfg.SQLitePath)
	if err != nil {
		logger.Error("init repo: %v", err)
		os.Exit(1)
	}

	slackClient := slack.New(slack.Config{
		Token:        cfg.SlackAPIToken,
		APIEndpoint:  cfg.SlackAPIEndpoint,
		SCIMEndpoint: cfg.SlackSCIMEndpoint,
	})
	svc := provision.NewService(repo, slackClient, cfg)

	h := provHandler.NewHandler(cfg, repo, svc)
	router := chi.NewRouter()
	const maxBodySize = 1_000_000
	router.Use(middleware.RequestSize(maxBodySize))
	router.Use(middleware.Recoverer)
	router.Mount("/", h.Router())

	addr := ":" + cfg.Port
	server := &http.Server{Addr: addr, Handler: withCORS(router)}

	go func() {
		logger.Info("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown: %v", err)
	}
	repo.Disconnect()
	logger.Info("server stopped")
}
