package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alexzhu96/shop-cqrs/internal/config"
	"github.com/alexzhu96/shop-cqrs/internal/logger"
	"github.com/alexzhu96/shop-cqrs/internal/query"
	"github.com/alexzhu96/shop-cqrs/internal/repo"
	httptransport "github.com/alexzhu96/shop-cqrs/internal/transport/http"

	"github.com/go-redis/redis/v8"
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
	log, err := logger.NewLogger("query-service")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. read store
	gdb, err := gorm.Open(postgres.Open(cfg.ReadDB.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open read store: %v", err)
	}

	// 4. redis view cache
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. repo & service
	repository := repo.NewReadRepository(gdb, rdb, log)
	svc := query.NewService(repository, log)

	// 6. gin router
	router := httptransport.NewQueryRouter(svc, log)

	// 7. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("query-service listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
