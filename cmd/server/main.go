package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/pos-backoffice/internal/adapter/handler"
	"github.com/rl1809/pos-backoffice/internal/adapter/invoice"
	"github.com/rl1809/pos-backoffice/internal/adapter/rpc"
	"github.com/rl1809/pos-backoffice/internal/adapter/storage"
	"github.com/rl1809/pos-backoffice/internal/config"
	"github.com/rl1809/pos-backoffice/internal/core/service"
	"github.com/rl1809/pos-backoffice/internal/logger"
	"github.com/rl1809/pos-backoffice/internal/metrics"
	"github.com/rl1809/pos-backoffice/internal/migration"
	"github.com/rl1809/pos-backoffice/internal/port"
	"github.com/rl1809/pos-backoffice/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	migrateFirst := flag.Bool("migrate", false, "Apply pending migrations before serving (mysql storage only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log, *migrateFirst); err != nil {
		log.Fatal("Server stopped with error", zap.Error(err))
	}
	log.Info("Server stopped")
}

func run(cfg *config.Config, log *zap.Logger, migrateFirst bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log, migrateFirst)
	if err != nil {
		return err
	}
	defer closeStore()

	locks, closeLocks, err := openLocks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocks()

	invoiceConn, err := grpc.NewClient(cfg.Invoice.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial invoice service: %w", err)
	}
	defer invoiceConn.Close()

	invoices := invoice.NewClient(invoiceConn, invoice.ClientConfig{
		BreakerName:     "invoice-service",
		BreakerTimeout:  cfg.Invoice.BreakerTimeout,
		BreakerFailures: cfg.Invoice.BreakerFailures,
	}, log)

	var m *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsHandler = m.Handler()
	}

	orderCfg := service.DefaultOrderConfig()
	orderCfg.MaxQuantity = cfg.Inventory.MaxQuantity
	orderCfg.ReferenceAttempts = cfg.Order.ReferenceAttempts
	orderCfg.InvoiceTimeout = cfg.Invoice.Timeout
	orderCfg.InvoiceLockTTL = cfg.Invoice.LockTTL

	orders := service.NewOrderService(store, invoices, locks, orderCfg, log, service.WithMetrics(m))
	inventory := service.NewInventoryService(store, cfg.Inventory.MaxQuantity, log)
	bulk := service.NewBulkService(store, cfg.Inventory.MaxQuantity, cfg.Bulk.MaxRows, m, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	httpHandler := handler.NewHTTPHandler(orders, inventory, bulk, metricsHandler, log)
	httpHandler.MetricsPath = cfg.Metrics.Path
	httpServer := &http.Server{
		Addr:              ":" + cfg.App.HTTPPort,
		Handler:           httpHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(rpc.UnaryLogging(log)))
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orders, log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.OrderServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", ":"+cfg.App.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger, migrateFirst bool) (port.TransactionScope, func(), error) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Warn("Using in-memory storage, data is lost on restart")
		return storage.NewMemoryAdapter(), func() {}, nil
	}

	db, err := sql.Open("mysql", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping mysql: %w", err)
	}
	log.Info("Connected to MySQL", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.DBName))

	if migrateFirst {
		if err := applyMigrations(db, log); err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	return storage.NewMySQLAdapter(db), func() { db.Close() }, nil
}

func applyMigrations(db *sql.DB, log *zap.Logger) error {
	m, err := migration.New(db, migrations.FS, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

func openLocks(ctx context.Context, cfg *config.Config, log *zap.Logger) (port.LockRepository, func(), error) {
	if !cfg.Redis.Enabled {
		log.Warn("Redis disabled, invoice locks are local to this process")
		return storage.NewMemoryAdapter(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	return storage.NewRedisAdapter(rdb), func() { rdb.Close() }, nil
}
