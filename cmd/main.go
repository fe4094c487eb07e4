package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edbox/internal/config"
	"edbox/internal/daemon"
	"edbox/internal/database"
	"edbox/internal/database/migrations"
	"edbox/internal/file"
	"edbox/internal/gateway"
	"edbox/internal/group"
	"edbox/internal/logger"
	"edbox/internal/message"
	"edbox/internal/org"
	"edbox/internal/session"
	"edbox/internal/telemetry"
	"edbox/internal/web"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal", "signal", sig.String())
		cancel()
	}()

	cfg := config.NewConfig()

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		tel.Shutdown(shutdownCtx)
	}()

	log := logger.New(*cfg, tel)

	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database.URL); err != nil {
		log.Error("Failed to connect to database", "error", err)
		return err
	}
	defer db.Close()

	if err := migrations.Up(log, cfg.Database.URL); err != nil {
		log.Error("Failed to migrate database", "error", err)
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	storage, err := file.NewStorage(cfg.Storage)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		return err
	}

	resolver := org.NewPostgresResolver(&db)
	deriver := group.NewDeriver(resolver)
	guard := group.NewGuard(deriver, &db)
	manager := group.NewManager(log, &db, resolver)
	store := message.NewPostgresStore(&db, cfg.Database.QueryTimeout)
	files := file.NewService(log, &db, storage, cfg.Storage.UploadPermissionTTL)
	sessions := session.NewStore(log, &db, rdb, cfg.Session.CacheTTL)
	limiter := gateway.NewRateLimiter(rdb, cfg.Gateway.RateLimit, cfg.Gateway.RateWindow)

	daemons := daemon.NewManager(log)
	daemons.Add("cleanup", daemon.CleanupTask(&db, log))
	daemons.Start(ctx)
	defer daemons.Wait()

	gw := gateway.NewGateway(log, cfg.Gateway, sessions, resolver, deriver, guard, &db, store, limiter)
	handler := web.NewHandler(log, &db, guard, manager, store, files)
	router := web.NewRouter(log, handler, sessions, gw.HandleSocket)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		return err
	}

	log.Info("Server stopped")
	return nil
}
