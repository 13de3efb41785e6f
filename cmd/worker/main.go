package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"lessonhub/internal/config"
	"lessonhub/internal/logging"
	"lessonhub/internal/notify"
	"lessonhub/internal/org"
	"lessonhub/internal/queue"
	"lessonhub/internal/scheduling"
	"lessonhub/internal/store"
)

// Worker consumes schedule events and dispatches notifications for
// organizations that have them enabled.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	orgRepo := org.NewRepository(db.Client)
	notifier := notify.NewConsole(logger)

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for schedule events")
	for msg := range messages {
		var ev scheduling.Event
		if err := json.Unmarshal(msg.Body, &ev); err != nil {
			logger.Warn("malformed event payload", zap.String("type", msg.Type), zap.Error(err))
			continue
		}

		settings, err := orgRepo.GetSettings(ctx, ev.OrgID)
		if err != nil {
			logger.Error("load settings", zap.String("org_id", ev.OrgID.String()), zap.Error(err))
			continue
		}
		if !settings.NotificationsEnabled {
			continue
		}

		switch msg.Type {
		case scheduling.EventCreated:
			err = notifier.ScheduleCreated(ctx, ev)
		case scheduling.EventCancelled:
			err = notifier.ScheduleCancelled(ctx, ev)
		default:
			continue
		}
		if err != nil {
			logger.Error("dispatch notification",
				zap.String("type", msg.Type),
				zap.String("schedule_id", ev.ScheduleID.String()),
				zap.Error(err),
			)
		}
	}

	logger.Info("worker stopped")
}
