package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"querygate/internal/bootstrap"
	"querygate/internal/config"
)

func main() {
	validateOnly := flag.Bool("validate-only", false, "validate the catalogue and exit")
	flag.BoolVar(validateOnly, "validate", false, "alias for -validate-only")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *validateOnly {
		cfg.ValidationMode = config.ValidationOnly
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}

	switch cfg.ValidationMode {
	case config.ValidationOnly:
		_, _, ok := app.Validate(ctx)
		app.Close()
		if !ok {
			os.Exit(1)
		}
		return
	case config.ValidationGate:
		if _, _, ok := app.Validate(ctx); !ok {
			logger.Error("catalogue validation failed, refusing to serve")
			app.Close()
			os.Exit(1)
		}
	case config.ValidationDisabled:
		logger.Info("catalogue validation disabled")
	}

	if err := app.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
