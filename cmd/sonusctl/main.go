// sonusctl drives the speech workers from the command line: it spawns
// them on demand, sends one request, and prints or writes the result.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sonuslabs/sonus-core/internal/audit"
	"github.com/sonuslabs/sonus-core/internal/bus"
	"github.com/sonuslabs/sonus-core/internal/config"
	"github.com/sonuslabs/sonus-core/internal/host"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	switch os.Args[1] {
	case "say":
		runSay(os.Args[2:])
	case "transcribe":
		runTranscribe(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sonusctl <say|transcribe|version> [flags]")
}

func runSay(args []string) {
	fs := flag.NewFlagSet("say", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (optional)")
	text := fs.String("text", "", "Text to synthesize")
	out := fs.String("out", "out.wav", "Output WAV file")
	lengthScale := fs.Float64("length-scale", 0, "Speaking pace multiplier (0 = worker default)")
	volume := fs.Float64("volume", 0, "Volume multiplier (0 = worker default)")
	fs.Parse(args)

	ctx, svc, logger, cleanup := setup(*configPath)
	defer cleanup()

	result, err := svc.Synthesize(ctx, *text, host.SynthesisOptions{
		LengthScale: *lengthScale,
		Volume:      *volume,
	})
	if err != nil {
		logger.Error("synthesis failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	wavData, err := base64.StdEncoding.DecodeString(result.AudioB64)
	if err != nil {
		logger.Error("failed to decode audio", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := os.WriteFile(*out, wavData, 0o644); err != nil {
		logger.Error("failed to write output", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("wrote audio",
		slog.String("path", *out),
		slog.Int("sample_rate", result.SampleRate),
		slog.Int64("duration_ms", result.DurationMS))
}

func runTranscribe(args []string) {
	fs := flag.NewFlagSet("transcribe", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (optional)")
	in := fs.String("in", "", "Input WAV file")
	language := fs.String("language", "", "Language hint")
	fs.Parse(args)

	ctx, svc, logger, cleanup := setup(*configPath)
	defer cleanup()

	if *in == "" {
		logger.Error("missing -in flag")
		os.Exit(2)
	}
	wavData, err := os.ReadFile(*in)
	if err != nil {
		logger.Error("failed to read input", slog.String("error", err.Error()))
		os.Exit(1)
	}

	result, err := svc.Transcribe(ctx, wavData, *language)
	if err != nil {
		logger.Error("transcription failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error("failed to encode result", slog.String("error", err.Error()))
		os.Exit(1)
	}
	fmt.Println(string(encoded))
}

func setup(configPath string) (context.Context, *host.Service, *slog.Logger, func()) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Telemetry.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	var opts []host.ServiceOption
	var closers []func()

	store, err := audit.Open(ctx, cfg.Audit, logger)
	if err != nil {
		logger.Error("failed to open audit store", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
	opts = append(opts, host.WithAudit(store))
	closers = append(closers, func() { _ = store.Close() })

	if cfg.Bus.Enabled {
		client, err := bus.Connect(ctx, cfg.Bus, logger)
		if err != nil {
			logger.Warn("bus unavailable, continuing without announcements",
				slog.String("error", err.Error()))
		} else {
			opts = append(opts, host.WithBus(client))
			closers = append(closers, client.Close)
		}
	}

	svc := host.NewService(cfg, logger, opts...)
	cleanup := func() {
		if err := svc.Close(); err != nil {
			logger.Warn("worker shutdown failed", slog.String("error", err.Error()))
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		stop()
	}
	return ctx, svc, logger, cleanup
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
