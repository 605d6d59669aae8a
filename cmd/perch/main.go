package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perchbot/perch/internal/api"
	"github.com/perchbot/perch/internal/config"
	"github.com/perchbot/perch/internal/gateway"
	"github.com/perchbot/perch/internal/history"
	"github.com/perchbot/perch/internal/openai"
	"github.com/perchbot/perch/internal/processor"
	"github.com/perchbot/perch/internal/prompt"
	"github.com/perchbot/perch/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("perch starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The transport connection and identity are the only fatal settings.
	if cfg.NatsURL == "" {
		slog.Error("NATS_URL is required")
		os.Exit(1)
	}
	if cfg.BotUsername == "" {
		slog.Error("BOT_USERNAME is required")
		os.Exit(1)
	}

	// Message log: disabled, postgres, or the local sqlite file.
	var log store.MessageLog
	switch {
	case cfg.NoDB:
		log = store.Disabled{}
		slog.Info("durable store disabled")
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		log = pg
		slog.Info("database connected", "backend", "postgres")
	default:
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			slog.Error("failed to open sqlite database", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		log = lite
		slog.Info("database connected", "backend", "sqlite", "path", cfg.SQLitePath)
	}
	defer log.Close()

	// Completion client. A missing key is not fatal: completions fail and
	// the pipeline degrades to the apology reply.
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY not set — completions will fail and users get the apology reply")
	}
	llm := openai.NewClient(cfg.OpenAIAPIKey, cfg.Model)
	slog.Info("completion client ready", "model", cfg.Model)

	cache := history.New(log, cfg.HistorySize, cfg.HistoryRetain, slog.Default())

	gw, err := gateway.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to gateway", "error", err)
		os.Exit(1)
	}
	defer gw.Close()
	slog.Info("gateway connected", "url", cfg.NatsURL)

	instruction := cfg.Instruction
	if instruction == "" {
		instruction = prompt.DefaultInstruction
	}

	proc := processor.New(log, cache, llm, gw, cfg.BotUsername, instruction, slog.Default())

	if err := gw.Subscribe(gateway.SubjectInbound, proc.HandleInboundMessage); err != nil {
		slog.Error("failed to subscribe to inbound messages", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(cfg.Port, log)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	if err := gw.Publish(gateway.SubjectRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"username":  cfg.BotUsername,
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("perch ready — listening for messages", "bot", cfg.BotUsername)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("perch stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
