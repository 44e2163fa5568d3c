package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	studiochat "github.com/set-night/studiochat"
	"github.com/set-night/studiochat/internal/config"
	"github.com/set-night/studiochat/internal/handler"
	"github.com/set-night/studiochat/internal/middleware"
	"github.com/set-night/studiochat/internal/repository"
	"github.com/set-night/studiochat/internal/service"
	"github.com/set-night/studiochat/internal/telegram"
)

// Handlers may wait on the chat or image provider for minutes; workers keep
// other chats responsive meanwhile.
const botWorkers = 8

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("bot exited", "error", err)
		os.Exit(1)
	}
	slog.Info("bot stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Initialize services
	repo := repository.NewWorkspaceRepository(store, repository.Policy{
		MaxMessages:        config.MaxPersistedMessages,
		MaxAttachmentChars: config.MaxPersistedImageChars,
	}, cfg.StoreQuotaBytes)
	sessions := service.NewSessionService(repo)
	canvas := service.NewCanvasBoard(config.MaxCanvasLogs)

	prompts, err := service.LoadPromptBook(cfg.PromptsFile)
	if err != nil {
		return err
	}

	var chat service.ChatClient
	if cfg.ChatConfigured() {
		chat = service.NewOpenAIChat(cfg.ChatBaseURL, cfg.ChatAPIKey, cfg.ChatModel)
	} else {
		slog.Warn("chat provider not configured, turns will be rejected")
	}

	images, err := imageGenerator(ctx, cfg)
	if err != nil {
		return err
	}

	turns := service.NewTurnService(sessions, chat, prompts, canvas, cfg.ChatModel, service.Pricing{
		Prompt:     cfg.PromptPrice(),
		Completion: cfg.CompletionPrice(),
	})
	actions := service.NewActionService(sessions, canvas, images, cfg.ImageModel)

	// Handler pointer for use in default handler closure
	var h *handler.Handler

	// Create bot
	b, err := bot.New(cfg.BotToken,
		bot.WithMiddlewares(
			middleware.Recover(),
			middleware.Logging(),
			middleware.RateLimit(cfg.RateLimitPerMinute),
			middleware.Workspace(),
		),
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if h == nil {
				return
			}
			h.HandleMessage(ctx, b, update)
		}),
		bot.WithWorkers(botWorkers),
	)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	if cfg.DropPendingUpdates {
		if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			slog.Warn("drop pending updates", "error", err)
		}
	}

	// Get bot info
	me, err := b.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}
	slog.Info("bot info retrieved", "id", me.ID, "username", me.Username)

	h = handler.New(handler.Deps{
		Bot:         b,
		Cfg:         cfg,
		Sessions:    sessions,
		Turns:       turns,
		Actions:     actions,
		Canvas:      canvas,
		Ops:         telegram.NewOpsLogger(b, cfg),
		BotUsername: me.Username,
	})
	h.Register()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting bot", "username", me.Username, "id", me.ID)
		b.Start(gctx)
		return nil
	})

	// Idle workspaces are dropped from memory; the store keeps their snapshot.
	g.Go(func() error {
		ticker := time.NewTicker(config.WorkspaceSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := sessions.Evict(gctx, config.WorkspaceIdleTTL); n > 0 {
					slog.Info("evicted idle workspaces", "count", n)
				}
			}
		}
	})

	return g.Wait()
}

// openStore opens the configured snapshot backend. The returned func
// releases it.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreBadger:
		store, err := repository.NewBadgerStore(cfg.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		return store, closeLogged(store), nil

	case config.StorePostgres:
		migrations, err := fs.Sub(studiochat.MigrationsFS, "migrations")
		if err != nil {
			return nil, nil, fmt.Errorf("load embedded migrations: %w", err)
		}
		store, err := repository.OpenPostgres(ctx, cfg.DatabaseURL, migrations)
		if err != nil {
			return nil, nil, err
		}
		return store, closeLogged(store), nil

	default:
		slog.Warn("using in-memory store, sessions are lost on restart")
		store := repository.NewMemoryStore()
		return store, closeLogged(store), nil
	}
}

func closeLogged(store repository.Store) func() {
	return func() {
		if err := store.Close(); err != nil {
			slog.Error("close store", "error", err)
		}
	}
}

// imageGenerator returns nil when the selected backend has no credentials.
func imageGenerator(ctx context.Context, cfg *config.Config) (service.ImageGenerator, error) {
	if !cfg.ImageConfigured() {
		slog.Warn("image provider not configured, generation will be rejected", "backend", cfg.ImageBackend)
		return nil, nil
	}
	if cfg.ImageBackend == config.ImageBackendGemini {
		gen, err := service.NewGeminiImageGenerator(ctx, cfg.GeminiAPIKey, cfg.ImageModel)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return gen, nil
	}
	return service.NewHTTPImageGenerator(cfg.ImageBaseURL, cfg.ImageAPIKey, cfg.ImageModel), nil
}
