package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"turbotalk/internal/config"
	"turbotalk/internal/db"
	apihttp "turbotalk/internal/http"
	"turbotalk/internal/repository"
	"turbotalk/internal/service"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var (
		userRepo    repository.UserRepository    = repository.NewMemoryUserRepository()
		profileRepo repository.ProfileRepository = repository.NewMemoryProfileRepository()
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		userRepo = repository.NewPgUserRepository(pool)
		profileRepo = repository.NewPgProfileRepository(pool)
	} else {
		logger.Warn("database not configured, using in-memory accounts")
	}

	var (
		storage = service.NewMemoryStateStorage()
		limiter = service.NewAttemptLimiter(cfg.SignInWindow(), cfg.SignInMaxAttempts)
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			storage = service.NewRedisStateStorage(redisClient)
			limiter = service.NewRedisAttemptLimiter(redisClient, cfg.SignInWindow(), cfg.SignInMaxAttempts)
		}
		cancel()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(registry)

	provider := service.NewAccountProvider(logger, userRepo, profileRepo)
	if cfg.SeedDemoAccounts {
		if err := service.SeedDemoAccounts(ctx, logger, provider); err != nil {
			logger.Fatal("seed demo accounts", zap.Error(err))
		}
	}
	tokens := service.NewTokenService(cfg.JWTSecret, cfg.TokenTTL())
	sessions := service.NewSessionRegistry(logger, provider, tokens, storage, limiter, metrics)

	var customerRules *service.IntentResolver
	if cfg.IntentRulesFile != "" {
		customerRules, err = service.LoadIntentRules(cfg.IntentRulesFile)
		if err != nil {
			logger.Fatal("load intent rules", zap.Error(err), zap.String("file", cfg.IntentRulesFile))
		}
		logger.Info("intent rules loaded", zap.String("file", cfg.IntentRulesFile), zap.Int("rules", len(customerRules.Rules())))
	}
	scheduler := service.NewResponseScheduler(cfg.ResponseDelay(), logger, metrics)
	chatSvc := service.NewChatService(logger, scheduler, service.DefaultPersonas(customerRules))
	defer chatSvc.Shutdown()
	go service.RunIdleSweeper(ctx, logger, cfg.SweepInterval(), cfg.IdleTimeout(), map[string]service.IdleSweeper{
		"conversations": chatSvc,
		"sessions":      sessions,
	})

	router := apihttp.NewRouter(logger, apihttp.ClientSessionMiddleware(sessions, cfg.ClientCookieName), apihttp.Handlers{
		Auth:         apihttp.NewAuthHandler(logger, service.DefaultRouteTable()),
		Dashboard:    apihttp.NewDashboardHandler(apihttp.DemoChatPath),
		CustomerChat: apihttp.NewChatHandler(logger, chatSvc, service.PersonaCustomer),
		DemoChat:     apihttp.NewChatHandler(logger, chatSvc, service.PersonaDemo),
	}, registry)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.Duration("response_delay", scheduler.Delay()))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
