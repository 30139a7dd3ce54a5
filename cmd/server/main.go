package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/splitledger/internal/api"
	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/internal/consensus"
	"github.com/mmynk/splitledger/internal/locks"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/realtime"
	"github.com/mmynk/splitledger/internal/service"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
	"github.com/mmynk/splitledger/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logging.SetupWith(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	if cfg.JWTSecret == config.Default().JWTSecret {
		slog.Warn("JWT_SECRET is not set, using the development secret")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		slog.Error("Failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Initialize SQLite storage
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := notify.New(notify.WithBuffer(cfg.SubscriberBuffer))
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		relay := notify.NewRedisRelay(rdb, notify.DefaultChannel)
		notifier.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx, notifier); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Event relay stopped", "error", err)
			}
		}()
		slog.Info("Event relay enabled", "redis", cfg.RedisAddr)
	}

	listLocks := locks.NewKeyed()
	ledger := service.NewLedgerService(store, notifier, listLocks, cfg.DebtCacheTTL)
	coordinator := consensus.New(store, notifier, listLocks, ledger)
	lists := service.NewListService(store, listLocks, ledger, coordinator)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	users := service.NewAuthService(auth.NewPasswordAuthenticator(store), jwtManager, store, slog.Default())

	mux := http.NewServeMux()

	server := api.New(api.Deps{
		Store:         store,
		Ledger:        ledger,
		Lists:         lists,
		Coordinator:   coordinator,
		Users:         users,
		Notifier:      notifier,
		AllowedOrigin: cfg.AllowedOrigin,
	})
	server.Register(mux)

	// Register Connect services
	authInterceptor := middleware.OptionalAuth(jwtManager)
	if cfg.RequireAuth {
		authInterceptor = middleware.RequireAuth(jwtManager)
	}
	realtimePath, realtimeHandler := realtime.NewHandler(
		realtime.NewService(ledger, notifier),
		connect.WithInterceptors(authInterceptor, middleware.LoggingInterceptor()),
	)
	mux.Handle(realtimePath, realtimeHandler)

	handler := middleware.Logging(
		corsMiddleware(cfg.AllowedOrigin,
			middleware.Authenticate(jwtManager, cfg.RequireAuth, "/register", "/login", "/health", "/metrics", "/users/check")(
				metrics.Middleware(mux),
			),
		),
	)

	// Wrap with h2c for HTTP/2 without TLS (required for Connect streaming)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "address", cfg.Addr, "require_auth", cfg.RequireAuth)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}
}
