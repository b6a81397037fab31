package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"pitchbot/internal/bot"
	"pitchbot/internal/config"
	"pitchbot/internal/gamma"
	"pitchbot/internal/generator"
	"pitchbot/internal/settlement"
	"pitchbot/internal/storage"
	"pitchbot/internal/storage/sqlite"
	"pitchbot/internal/storage/stubs"
	"pitchbot/internal/worker"
)

// App wires together storage, settlement, the worker and the bot
type App struct {
	config *config.Config
	logger *zap.Logger
	db     storage.Storage
	bot    *bot.Bot
	worker *worker.Worker
	server *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting PitchBot")

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		return nil, err
	}
	app.initHTTPServer()

	return app, nil
}

// initDatabase opens the store and applies migrations
func (a *App) initDatabase() error {
	var db storage.Storage
	if a.config.UseMockDB {
		a.logger.Info("Using in-memory mock database")
		db = stubs.NewMockDB()
	} else {
		a.logger.Info("Opening SQLite database", zap.String("path", a.config.DatabasePath))
		sqliteDB, err := sqlite.New(a.config.DatabasePath, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		db = sqliteDB
	}

	if err := db.Initialize(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initServices builds the settlement service, external clients, the
// worker and the bot
func (a *App) initServices() error {
	settlementSvc := settlement.New(a.db, a.db, a.logger)

	contentGen := generator.NewClient(
		a.config.OpenAIAPIKey, a.config.OpenAIModel, a.config.OpenAIBaseURL, a.logger)
	renderer := gamma.NewClient(a.config.GammaAPIKey, a.config.GammaBaseURL, a.logger)

	telegramBot, err := bot.NewBot(
		a.config.TelegramToken, a.db, settlementSvc, a.config.AdminIDs, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	a.logger.Info("Bot created successfully", zap.Int64s("admin_ids", a.config.AdminIDs))

	a.worker = worker.New(worker.Config{
		PollInterval:       a.config.WorkerPollInterval,
		RenderPollInterval: a.config.RenderPollInterval,
		RenderTimeout:      a.config.RenderTimeout,
		DownloadDir:        a.config.DownloadDir,
	}, a.db, settlementSvc, contentGen, renderer, telegramBot, a.logger)

	a.bot = telegramBot
	return nil
}

// initHTTPServer starts the health endpoint in the background
func (a *App) initHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "PitchBot is running")
	})

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("Starting HTTP server", zap.Int("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Run starts the bot and the worker and blocks until shutdown
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.worker.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.bot.Start(ctx); err != nil {
			a.logger.Error("Bot stopped with error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	a.logger.Info("Shutting down...")
	cancel()
	wg.Wait()

	return a.Shutdown()
}

// Shutdown gracefully releases resources
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
	return nil
}
