package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/artromone/linkpulse/pkg/logger"
	"github.com/artromone/linkpulse/services/shortener/config"
	"github.com/artromone/linkpulse/services/shortener/tracing"
)

const serviceName = "linkpulse-shortener"

var version = "dev"

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	showEnv := flag.Bool("help-env", false, "print supported environment variables and exit")
	flag.Parse()

	if *showEnv {
		usage, err := config.Usage()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(usage)
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(serviceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("shortener stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, serviceName, version, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		a.shutdown(ctx)
		return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
	}

	srv := a.httpServer(cfg.Server)
	errCh := make(chan error, 2)

	go func() {
		log.Info("http listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		log.Info("grpc listening", zap.String("addr", cfg.GRPC.Addr))
		if err := a.grpc.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	a.health.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	a.grpc.GracefulStop()

	if err := a.shutdown(shutdownCtx); err != nil {
		log.Error("component shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown", zap.Error(err))
	}

	log.Info("shortener stopped")
	return runErr
}
