package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/pos-backoffice/internal/adapter/storage"
	"github.com/rl1809/pos-backoffice/internal/config"
	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/core/service"
	"github.com/rl1809/pos-backoffice/internal/logger"
	"github.com/rl1809/pos-backoffice/internal/port"
)

const clientEmail = "stress@pos.local"

// Fires concurrent single-unit orders at one product and checks that exactly
// the initial stock was reserved and the ledger ended at zero.
func main() {
	initialStock := flag.Int("stock", 20, "Initial stock of the contended product")
	totalRequests := flag.Int("requests", 50, "Concurrent orders to place")
	driver := flag.String("storage", "", "Storage driver override (mysql or memory)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *driver != "" {
		cfg.Storage.Driver = *driver
	}

	log, err := logger.NewForEnvironment(cfg.App.Env, "warn")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	store, locks, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer cleanup()

	bulk := service.NewBulkService(store, cfg.Inventory.MaxQuantity, cfg.Bulk.MaxRows, nil, log)
	barcode := "STRESS-" + strings.ToUpper(uuid.NewString()[:8])
	if err := seed(ctx, bulk, barcode, *initialStock); err != nil {
		log.Fatal("Failed to seed product", zap.Error(err))
	}

	orders := service.NewOrderService(store, nil, locks, service.DefaultOrderConfig(), log)

	var fulfilled, unfulfilled, failed atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := orders.Create(ctx, []domain.OrderLine{{Barcode: barcode, Quantity: 1, SellingPrice: decimal.NewFromInt(1)}})
			switch {
			case err != nil:
				failed.Add(1)
				log.Error("Order failed", zap.Error(err))
			case order.Status == domain.OrderStatusFulfillable:
				fulfilled.Add(1)
			default:
				unfulfilled.Add(1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	want := min(*initialStock, *totalRequests)
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Storage:          %s\n", cfg.Storage.Driver)
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Fulfillable:      %d\n", fulfilled.Load())
	fmt.Printf("Unfulfillable:    %d\n", unfulfilled.Load())
	fmt.Printf("Errors:           %d\n", failed.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	ok := true
	if int(fulfilled.Load()) != want || failed.Load() != 0 {
		fmt.Printf("FAIL: expected %d fulfillable orders and no errors\n", want)
		ok = false
	}

	level, err := service.NewInventoryService(store, cfg.Inventory.MaxQuantity, log).Get(ctx, barcode)
	if err != nil {
		log.Fatal("Failed to read final stock", zap.Error(err))
	}
	fmt.Printf("Final Stock:      %d\n", level.Quantity)
	if level.Quantity != *initialStock-want {
		fmt.Printf("FAIL: expected final stock %d\n", *initialStock-want)
		ok = false
	}

	if !ok {
		os.Exit(1)
	}
	fmt.Println("PASS")
}

func seed(ctx context.Context, bulk *service.BulkService, barcode string, stock int) error {
	results, err := bulk.CreateProducts(ctx, []domain.ProductRow{{
		Line: 1, Barcode: barcode, ClientEmail: clientEmail, Name: "Stress item", MRP: "1.00",
	}})
	if err != nil {
		return err
	}
	if results[0].Failed() {
		return errors.New(results[0].Comment)
	}

	results, err = bulk.UpdateInventory(ctx, []domain.InventoryDeltaRow{{Line: 1, Barcode: barcode, Delta: stock}})
	if err != nil {
		return err
	}
	if results[0].Failed() {
		return errors.New(results[0].Comment)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (port.TransactionScope, port.LockRepository, func(), error) {
	if cfg.Storage.Driver == config.StorageMemory {
		mem := storage.NewMemoryAdapter()
		mem.AddClient(domain.Client{Email: clientEmail, Name: "Stress"})
		return mem, mem, func() {}, nil
	}

	db, err := sql.Open("mysql", cfg.Database.DSN())
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	if _, err := db.ExecContext(ctx,
		`INSERT IGNORE INTO clients (email, name) VALUES (?, ?)`, clientEmail, "Stress"); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("seed client: %w", err)
	}
	return storage.NewMySQLAdapter(db), storage.NewMemoryAdapter(), func() { db.Close() }, nil
}
