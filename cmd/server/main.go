package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-realtime-chat/internal/chat"
	"go-realtime-chat/internal/config"
	"go-realtime-chat/internal/db"
	"go-realtime-chat/internal/logging"
	myMiddleware "go-realtime-chat/internal/middleware"
	"go-realtime-chat/internal/notification"
	"go-realtime-chat/internal/presence"
	"go-realtime-chat/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config & Flags
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer database.Close()
	logger.Info(ctx, "✅ Connected to PostgreSQL")

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "✅ Database Schema Initialized")

	// 3. Connect to Redis
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info(ctx, "✅ Connected to Redis")

	// 4. Presence
	lastSeen := presence.NewRedisLastSeen(redisClient)
	registry := presence.NewRegistry(lastSeen, logger.With("component", "registry"))
	broadcaster := presence.NewBroadcaster(registry, logger.With("component", "broadcaster"))
	go broadcaster.Run(ctx)

	// 5. Users
	userService := user.NewService(user.NewRepository(database.Conn), cfg.JWTSecret, cfg.TokenTTL)
	userHandler := user.NewHandler(userService)

	// 6. Notifications. No push provider is configured, so offline receivers
	// only get the stored row.
	notificationService := notification.NewService(
		notification.NewRepository(database.Conn), registry, nil,
		logger.With("component", "notifications"), cfg.SnippetLength,
	)
	notificationHandler := notification.NewHandler(notificationService)

	// 7. Chat
	dispatcher := chat.NewDispatcher(registry, logger.With("component", "dispatch"))
	chatService := chat.NewService(
		chat.NewRepository(database.Conn), userService, notificationService, dispatcher,
		logger.With("component", "chat"), cfg.HistoryLimit,
	)
	gateway := chat.NewGateway(registry, chatService, dispatcher, notificationService, logger.With("component", "gateway"))
	chatHandler := chat.NewHandler(chatService, gateway, logger.With("component", "ws"), cfg.SendBuffer, cfg.AllowedOrigins)

	presenceHandler := presence.NewHandler(registry, lastSeen)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 8. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// WebSocket (Real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Route("/api/users", func(r chi.Router) {
			r.Get("/search", userHandler.SearchUsers)
			r.Get("/blocked", userHandler.ListBlocked)
			r.Post("/{id}/block", userHandler.Block)
			r.Delete("/{id}/block", userHandler.Unblock)
		})

		r.Route("/api/messages", func(r chi.Router) {
			r.Post("/", chatHandler.SendPrivate)
			r.Get("/", chatHandler.History)
			r.Post("/global", chatHandler.SendGlobal)
			r.Get("/global", chatHandler.GlobalHistory)
			r.Post("/read", chatHandler.MarkRead)
			r.Patch("/{id}", chatHandler.Edit)
			r.Delete("/{id}", chatHandler.Delete)
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Get("/unread-count", notificationHandler.UnreadCount)
			r.Post("/read-all", notificationHandler.MarkAllRead)
			r.Get("/subscriptions", notificationHandler.Subscriptions)
			r.Post("/subscriptions", notificationHandler.Subscribe)
			r.Delete("/subscriptions", notificationHandler.Unsubscribe)
			r.Post("/{id}/read", notificationHandler.MarkRead)
			r.Post("/{id}/delivered", notificationHandler.MarkDelivered)
			r.Delete("/{id}", notificationHandler.Delete)
		})

		r.Get("/api/presence/online", presenceHandler.Online)
		r.Get("/api/presence/last-seen", presenceHandler.LastSeen)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "🚀 Server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "server shutdown", "error", err)
	}

	// Flush background last-seen writes and push fallbacks before closing stores.
	registry.Wait()
	notificationService.Wait()
	return nil
}
