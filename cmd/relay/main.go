package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alexzhu96/shop-cqrs/internal/broker"
	"github.com/alexzhu96/shop-cqrs/internal/config"
	"github.com/alexzhu96/shop-cqrs/internal/logger"
	"github.com/alexzhu96/shop-cqrs/internal/outbox"
	"github.com/alexzhu96/shop-cqrs/internal/repo"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger("outbox-relay")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. write store (the relay only reads and marks outbox rows)
	gdb, err := gorm.Open(postgres.Open(cfg.WriteDB.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open write store: %v", err)
	}
	repository := repo.NewCommandRepository(gdb, log)

	// 4. broker session; polling must not start before it exists
	ctx := context.Background()
	sess, err := broker.Connect(ctx, cfg.Broker.URL, broker.BackoffPolicy{
		MaxAttempts: 10,
		Delay:       3 * time.Second,
	}, log)
	if err != nil {
		log.Fatalf("connect broker: %v", err)
	}
	defer sess.Close()
	if err := sess.DeclareExchange(); err != nil {
		log.Fatalf("declare exchange: %v", err)
	}

	// 5. relay loop
	relay := outbox.NewRelay(
		repository,
		sess,
		time.Duration(cfg.Outbox.PollIntervalMS)*time.Millisecond,
		cfg.Outbox.BatchSize,
		log,
	)
	relay.Start(ctx)
}
