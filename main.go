package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"pharmapos/m/internal/api"
	"pharmapos/m/internal/catalog"
	"pharmapos/m/internal/config"
	"pharmapos/m/internal/database"
	"pharmapos/m/internal/migrations"
	"pharmapos/m/internal/notify"
	"pharmapos/m/internal/sales"
	"pharmapos/m/internal/seed"
	"pharmapos/m/internal/stock"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("unable to build logger: %v", err)
	}
	defer logger.Sync()

	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)
	seed.LoadProducts(db, "assets/products.csv")

	var publisher notify.Publisher = notify.NopPublisher{}
	if cfg.AMQPURL != "" {
		conn, rabbit, err := notify.Connect(cfg.AMQPURL, logger)
		if err != nil {
			logger.Warn("sale events disabled", zap.Error(err))
		} else {
			defer conn.Close()
			publisher = rabbit
		}
	}

	catalogSvc := catalog.NewService(db, catalog.NewCache(time.Minute), logger)
	inventory := stock.NewInventory(db)
	ledger := stock.NewLedger(db, logger, cfg.ReservationTTL)
	allocator := stock.NewAllocator(db)
	coordinator := sales.NewCoordinator(catalogSvc, allocator, ledger, sales.NewSQLStore(db), publisher, logger)
	reports := sales.NewReports(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ledger.RunSweeper(ctx, cfg.SweepInterval)

	handler := api.New(db, cfg.Secret, logger, catalogSvc, inventory, ledger, coordinator, reports)

	logger.Info("PharmaPOS server starting", zap.String("port", cfg.HTTPPort))
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
