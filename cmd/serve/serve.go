// Package serve wires the full board stack and runs the HTTP API.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leadboard/leadboard-go/internal/board"
	"github.com/leadboard/leadboard-go/internal/bulk"
	"github.com/leadboard/leadboard-go/internal/cache"
	"github.com/leadboard/leadboard-go/internal/conf"
	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/geocoder"
	"github.com/leadboard/leadboard-go/internal/httpapi"
	"github.com/leadboard/leadboard-go/internal/jobqueue"
	"github.com/leadboard/leadboard-go/internal/logging"
	"github.com/leadboard/leadboard-go/internal/mailer"
	"github.com/leadboard/leadboard-go/internal/observability"
	"github.com/leadboard/leadboard-go/internal/realtime"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the board engine and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
}

func run(settings *conf.Settings) error {
	logging.Init()
	logger := logging.ForService("serve")
	if settings.Main.Log.Enabled {
		level := slog.LevelInfo
		if settings.Debug {
			level = slog.LevelDebug
		}
		fileLogger, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "serve", level)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", settings.Main.Log.Path, err)
		}
		defer func() {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
			}
		}()
		logger = fileLogger
	}

	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database output enabled in configuration")
	}
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close datastore", "error", err)
		}
	}()

	appMetrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	busConfig := realtime.DefaultConfig()
	if settings.Realtime.BufferSize > 0 {
		busConfig.BufferSize = settings.Realtime.BufferSize
	}
	if settings.Realtime.Workers > 0 {
		busConfig.Workers = settings.Realtime.Workers
	}
	bus := realtime.NewBus(busConfig)
	defer func() {
		if err := bus.Shutdown(5 * time.Second); err != nil {
			logger.Error("event bus shutdown incomplete", "error", err)
		}
	}()

	listCache := cache.NewMemoryStore(settings.Cache.TTL, settings.Cache.CleanupInterval)

	geo := geocoder.NewClient(geocoder.Config{
		BaseURL: settings.Geocoder.BaseURL,
		APIKey:  settings.Geocoder.APIKey,
		Timeout: settings.Geocoder.Timeout,
	})

	boardService := board.New(&board.Config{
		Store:    store,
		Cache:    listCache,
		Notifier: bus,
		Geocoder: geo,
		Metrics:  appMetrics.Board,
		CacheTTL: settings.Cache.TTL,
	})

	sender, err := mailer.NewShoutrrrSender(settings.Mail.SMTPURL, settings.Mail.SenderName, 30*time.Second)
	if err != nil {
		return fmt.Errorf("failed to create mail sender: %w", err)
	}

	// Gmail and Outlook provider wiring depends on the embedding
	// application's OAuth token store; the default sender carries all
	// deliveries until providers are registered here.
	emailAction := bulk.NewEmailAction(store, map[string]mailer.Provider{}, sender, settings.Mail.From, bus, appMetrics.Jobs)
	importAction := bulk.NewImportAction(store, bus, appMetrics.Jobs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := jobqueue.New(jobqueue.DefaultConfig(&settings.Jobs))
	queue.Start(ctx)
	defer queue.Stop()

	server := httpapi.New(settings, boardService, queue, emailAction, importAction, appMetrics)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Echo.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
