package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sonuslabs/sonus-core/internal/config"
	"github.com/sonuslabs/sonus-core/internal/protocol"
	"github.com/sonuslabs/sonus-core/internal/stt"
	"github.com/sonuslabs/sonus-core/internal/telemetry"
	"github.com/sonuslabs/sonus-core/internal/worker"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	_ = godotenv.Load()

	// stdout carries the response protocol; all logging goes to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	start := time.Now()
	engine := worker.New(os.Stdin, os.Stdout, logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		fail(engine, logger, "failed to load config", err)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Telemetry.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Setup(ctx, cfg.ServiceName+"-stt-worker", cfg.Environment, cfg.Telemetry, logger)
	if err != nil {
		fail(engine, logger, "failed to set up telemetry", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	metrics, err := telemetry.NewWorkerMetrics(provider.Meter("sonus-stt-worker"))
	if err != nil {
		fail(engine, logger, "failed to create metrics", err)
	}

	model, err := buildModel(cfg, logger)
	if err != nil {
		fail(engine, logger, "failed to load recognition model", err)
	}
	defer func() {
		if err := model.Close(); err != nil {
			logger.Warn("model close failed", slog.String("error", err.Error()))
		}
	}()

	transcriber := stt.NewTranscriber(model, logger)
	engine = worker.New(os.Stdin, os.Stdout, logger, worker.WithMetrics(metrics))
	engine.Register(protocol.CommandTranscribe, transcriber.HandleRequest)

	info := model.Info()
	if err := engine.EmitReady(time.Since(start).Milliseconds(), map[string]any{
		"model":  info.Name,
		"device": info.Device,
	}); err != nil {
		logger.Error("failed to emit ready event", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("recognition worker ready",
		slog.String("model", info.Name),
		slog.String("device", info.Device),
		slog.String("version", version))

	if err := engine.Run(ctx); err != nil {
		logger.Error("worker loop failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("request stream closed, shutting down")
}

func buildModel(cfg config.Config, logger *slog.Logger) (stt.Model, error) {
	switch cfg.STT.Engine {
	case "mock":
		return stt.NewMockModel(cfg.STT.Model), nil
	case "whispercpp":
		return stt.NewWhisperModel(cfg.STT.ModelPath, cfg.STT.Model, cfg.STT.Device, logger)
	default:
		return nil, fmt.Errorf("unknown recognition engine: %s", cfg.STT.Engine)
	}
}

func fail(engine *worker.Engine, logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	if emitErr := engine.EmitStartupError(fmt.Errorf("%s: %w", msg, err)); emitErr != nil {
		logger.Error("failed to emit startup error", slog.String("error", emitErr.Error()))
	}
	os.Exit(1)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
