package main

import (
	"fmt"
	"net/http"

	"github.com/alexzhu96/shop-cqrs/internal/config"
	"github.com/alexzhu96/shop-cqrs/internal/logger"
	"github.com/alexzhu96/shop-cqrs/internal/model"
	"github.com/alexzhu96/shop-cqrs/internal/repo"
	"github.com/alexzhu96/shop-cqrs/internal/service"
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
	log, err := logger.NewLogger("command-service")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. write store
	gdb, err := gorm.Open(postgres.Open(cfg.WriteDB.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open write store: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.Product{}, &model.Order{}, &model.OrderItem{}, &model.OutboxEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. repo & service
	repository := repo.NewCommandRepository(gdb, log)
	svc := service.NewCommandService(repository, log)

	// 5. gin router
	router := httptransport.NewCommandRouter(svc, cfg.RateLimit, log)

	// 6. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("command-service listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
