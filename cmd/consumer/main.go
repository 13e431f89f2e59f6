package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alexzhu96/shop-cqrs/internal/broker"
	"github.com/alexzhu96/shop-cqrs/internal/config"
	"github.com/alexzhu96/shop-cqrs/internal/event"
	"github.com/alexzhu96/shop-cqrs/internal/logger"
	"github.com/alexzhu96/shop-cqrs/internal/model"
	"github.com/alexzhu96/shop-cqrs/internal/projection"
	"github.com/alexzhu96/shop-cqrs/internal/repo"
	httptransport "github.com/alexzhu96/shop-cqrs/internal/transport/http"

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
	log, err := logger.NewLogger("consumer-service")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. read store
	gdb, err := gorm.Open(postgres.Open(cfg.ReadDB.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open read store: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.ProcessedEvent{},
		&model.ProductSalesView{},
		&model.CategoryMetricsView{},
		&model.CustomerLTVView{},
		&model.HourlySalesView{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. projection engine
	repository := repo.NewReadRepository(gdb, nil, log)
	projector := projection.NewProjector(repository, log)

	// 5. consumer with per-type handlers
	consumer := broker.NewConsumer(cfg.Broker.URL, map[string]broker.HandlerFunc{
		event.TypeOrderCreated:   projector.ApplyOrderCreated,
		event.TypeProductCreated: projector.ApplyProductCreated,
	}, log)

	// 6. liveness endpoint
	router := httptransport.NewConsumerRouter(consumer.Connected, log)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Infof("consumer health endpoint on %s", addr)
		if err := http.ListenAndServe(addr, router); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	// 7. consume until the process is stopped
	if err := consumer.Run(context.Background()); err != nil {
		log.Fatalf("consumer: %v", err)
	}
}
