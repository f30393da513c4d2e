package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/campus-shop/internal/audit"
	"github.com/ariefcatur/campus-shop/internal/config"
	kafkax "github.com/ariefcatur/campus-shop/internal/kafka"
	"github.com/ariefcatur/campus-shop/internal/logging"
	"github.com/ariefcatur/campus-shop/internal/orders"
	"github.com/ariefcatur/campus-shop/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if len(cfg.KafkaBrokers) == 0 {
		log.Error("KAFKA_BROKERS is required for the audit consumer")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc := &audit.Service{Log: log}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		svc.Dedup = &redisx.Dedup{RDB: rdb, Service: cfg.AuditGroup}
	}

	topics := orders.Topics()
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.AuditGroup, topics, cfg.AuditWorkers)
	log.Info("audit consumer started", "group", cfg.AuditGroup, "topics", topics, "workers", cfg.AuditWorkers)

	if err := cons.Start(ctx, svc.HandleEvent); err != nil {
		log.Error("consumer exit", "error", err)
		os.Exit(1)
	}
	log.Info("audit consumer stopped")
}
