package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukerupert/snagbot/internal/backup"
	"github.com/dukerupert/snagbot/internal/database"
	"github.com/dukerupert/snagbot/internal/logging"
	"github.com/dukerupert/snagbot/internal/push"
	"github.com/dukerupert/snagbot/internal/scheduler"
	"github.com/dukerupert/snagbot/internal/server"
	"github.com/dukerupert/snagbot/internal/store"
	"github.com/dukerupert/snagbot/internal/telegram"
	"github.com/dukerupert/snagbot/internal/ugphone"
	ws "github.com/dukerupert/snagbot/internal/websocket"
)

func main() {
	restoreID := flag.Int64("restore", 0, "restore the backup with this id and exit")
	flag.Parse()

	logger := logging.Setup(os.Getenv("SNAGBOT_LOG_LEVEL"))

	dbPath := os.Getenv("SNAGBOT_DB_PATH")
	if dbPath == "" {
		dbPath = "snagbot.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("SNAGBOT_S3_ENDPOINT"),
			Bucket:    os.Getenv("SNAGBOT_S3_BUCKET"),
			Region:    os.Getenv("SNAGBOT_S3_REGION"),
			AccessKey: os.Getenv("SNAGBOT_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("SNAGBOT_S3_SECRET_KEY"),
		},
		DBPath:        dbPath,
		Passphrase:    os.Getenv("SNAGBOT_BACKUP_PASSPHRASE"),
		SaltHex:       os.Getenv("SNAGBOT_BACKUP_SALT"),
		ScheduleHour:  envInt("SNAGBOT_BACKUP_HOUR", 3),
		RetentionDays: envInt("SNAGBOT_BACKUP_RETENTION_DAYS", 30),
	}
	backupMgr, err := backup.NewManager(backupCfg, db, store.NewBackupStore(db), logger.With("component", "backup"))
	if err != nil {
		slog.Error("failed to configure backups", "error", err)
		os.Exit(1)
	}

	if *restoreID != 0 {
		if err := backupMgr.Restore(context.Background(), *restoreID); err != nil {
			slog.Error("restore failed", "backup_id", *restoreID, "error", err)
			os.Exit(1)
		}
		slog.Info("restore complete, start the service again", "backup_id", *restoreID)
		return
	}

	botToken := os.Getenv("SNAGBOT_TELEGRAM_TOKEN")
	if botToken == "" {
		slog.Error("SNAGBOT_TELEGRAM_TOKEN is required")
		os.Exit(1)
	}

	accountStore := store.NewAccountStore(db)
	eventStore := store.NewEventStore(db)
	pushStore := store.NewPushStore(db)

	ugClient := ugphone.NewClient(ugphone.Config{
		BaseURL: os.Getenv("SNAGBOT_UGPHONE_BASE_URL"),
	})
	tgClient := telegram.NewClient(botToken)

	hub := ws.NewHub(logger.With("component", "websocket"))

	notifiers := scheduler.MultiNotifier{
		telegram.NewNotifier(tgClient, accountStore, logger.With("component", "telegram_notifier")),
		ws.NewNotifier(hub),
	}

	// Web push is optional; it needs a VAPID key pair.
	var pushSvc *push.Service
	vapidPub := os.Getenv("SNAGBOT_VAPID_PUBLIC_KEY")
	vapidPriv := os.Getenv("SNAGBOT_VAPID_PRIVATE_KEY")
	if vapidPub != "" && vapidPriv != "" {
		pushSvc = push.NewService(vapidPub, vapidPriv)
		notifiers = append(notifiers, push.NewNotifier(pushSvc, pushStore, logger.With("component", "push")))
	}

	interval := 60 * time.Second
	if raw := os.Getenv("SNAGBOT_ATTEMPT_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			slog.Error("invalid SNAGBOT_ATTEMPT_INTERVAL", "value", raw)
			os.Exit(1)
		}
		interval = d
	}

	sched := scheduler.New(scheduler.Config{Interval: interval}, ugClient, notifiers, eventStore, logger.With("component", "scheduler"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)

	// Resume cycles for every stored account.
	accounts, err := accountStore.List()
	if err != nil {
		slog.Error("failed to load accounts", "error", err)
		os.Exit(1)
	}
	for i := range accounts {
		sched.Register(&accounts[i])
	}
	slog.Info("resumed accounts", "count", len(accounts))

	bot := telegram.NewBot(tgClient, accountStore, sched, ugClient, logger.With("component", "bot"))
	go func() {
		if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("bot stopped", "error", err)
		}
	}()

	backupMgr.Start(ctx)

	statusAddr := os.Getenv("SNAGBOT_STATUS_ADDR")
	if statusAddr == "" {
		statusAddr = ":8080"
	}
	srv := server.New(db, sched, hub, pushSvc, server.Config{
		Token: os.Getenv("SNAGBOT_STATUS_TOKEN"),
	}, logger)

	// Background cleanup for the rate limiter's bookkeeping.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              statusAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("status server starting", "addr", statusAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		slog.Error("scheduler stop", "error", err)
	}
	backupMgr.Stop()
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
