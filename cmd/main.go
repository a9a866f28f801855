package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/credstore"
	"chat-relay/domain/event"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"chat-relay/server"
	"chat-relay/sink"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, starts the supervised workers, and blocks
// until a termination signal. Returning instead of exiting lets the
// defers close the databases cleanly.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var cfg internal.Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	// 2. Storage
	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(cfg.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = indexWriter.Close()
	}()

	if err := os.MkdirAll(cfg.FilesDir, 0o755); err != nil {
		return fmt.Errorf("creating files dir: %w", err)
	}

	creds := credstore.Load(cfg.CredentialsPath, log)
	chatLog, err := sink.NewChatLog(cfg.ChatLogPath, log)
	if err != nil {
		return fmt.Errorf("chat log opening failed: %w", err)
	}
	defer chatLog.Close()

	// 3. Domain services
	maskingChar, err := internal.CharacterRune(cfg.CharReplacement)
	if err != nil {
		return err
	}
	moderator, err := moderation.NewModerator(moderation.DefaultWords(), maskingChar, log)
	if err != nil {
		return fmt.Errorf("moderator setup failed: %w", err)
	}
	monitor, err := observability.NewMonitor(log)
	if err != nil {
		return fmt.Errorf("monitor setup failed: %w", err)
	}

	archive := repositories.NewArchiveRepository(db, log)
	search := repositories.NewSearchIndex(indexWriter, log)
	registry := server.NewRegistry()
	relay := server.NewRelay(registry, log)

	// 4. Workers under supervision
	events := make(chan event.DomainEvent, cfg.BufferSize)
	fanout := workers.NewEventFanout(log, events, cfg.SinkTimeout).Add(
		sink.NewArchiveSink(archive, log),
		sink.NewSearchSink(search, log),
	)
	telemetry := workers.NewTelemetryWorker(log, monitor, cfg.MetricInterval, registry.SessionCount)
	srv := server.NewServer(cfg, log, creds, registry, relay, chatLog,
		archive, search, moderator, monitor, events)

	sup := workers.NewSupervisor(log, cfg.RestartInterval)
	sup.Add(fanout, telemetry, srv)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Blocks until the signal arrives and every worker has stopped.
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}
