package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/pos-backoffice/internal/adapter/invoice"
	"github.com/rl1809/pos-backoffice/internal/adapter/rpc"
	"github.com/rl1809/pos-backoffice/internal/config"
	"github.com/rl1809/pos-backoffice/internal/logger"
)

// Reference invoicing service. Invoices live in memory.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	addr := flag.String("addr", cfg.Invoice.Addr, "Listen address")
	flag.Parse()

	log, err := logger.NewForEnvironment(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal("Failed to listen", zap.String("addr", *addr), zap.Error(err))
	}

	srv := grpc.NewServer(grpc.UnaryInterceptor(rpc.UnaryLogging(log)))
	invoice.RegisterInvoiceServer(srv, invoice.NewService(log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus(invoice.ServiceName, healthpb.HealthCheckResponse_SERVING)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("Shutting down invoice service")
		healthServer.Shutdown()
		srv.GracefulStop()
	}()

	log.Info("Invoice service listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		log.Fatal("Invoice service stopped", zap.Error(err))
	}
}
