package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bookgpt/backend/internal/agent"
	"bookgpt/backend/internal/agent/deps"
	"bookgpt/backend/internal/config"
	"bookgpt/backend/internal/handler"
	"bookgpt/backend/internal/llm"
	"bookgpt/backend/internal/middleware"
	"bookgpt/backend/internal/onboarding"
	"bookgpt/backend/internal/paywall"
	"bookgpt/backend/internal/store"
	logx "bookgpt/backend/pkg/logger"
	"bookgpt/backend/pkg/tracer"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

func main() {
	if err := run(); err != nil {
		logx.Fatal().Err(err).Msg("server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		logx.Init()
		return err
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment()})
	logx.Info().Str("env", cfg.Environment().String()).Str("provider", cfg.LLM.Provider).Msg("starting BookGPT")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logx.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	history, closeStore, err := newHistoryStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	images := llm.NewOpenRouterClient(llm.OpenRouterConfig{
		BaseURL: cfg.LLM.BaseURL,
		Referer: cfg.LLM.Referer,
		Title:   cfg.LLM.AppTitle,
		Timeout: cfg.LLM.Timeout,
	})

	client, err := newLLMClient(ctx, cfg, images)
	if err != nil {
		return err
	}

	var portraits deps.PortraitGenerator
	if cfg.LLM.Provider == config.ProviderOpenRouter && cfg.LLM.ImageModel != "" {
		portraits = agent.NewPortraitService(images, cfg.LLM.APIKey, cfg.LLM.ImageModel)
	}

	shelf := agent.NewBookshelf(agent.BookshelfDeps{
		Books:      agent.NewLLMBooksRepository(client, cfg.LLM.Search()),
		Characters: agent.NewLLMCharactersRepository(client, cfg.LLM.Characters()),
		Chat:       agent.NewCharacterChatService(client, cfg.LLM.Chat()),
		Store:      history,
		Portraits:  portraits,
	})

	content, err := onboarding.LoadContent(cfg.Onboarding.ContentPath)
	if err != nil {
		return err
	}
	catalog, err := paywall.LoadCatalog(cfg.Paywall.CatalogPath)
	if err != nil {
		return err
	}
	manager := onboarding.NewManager(
		content,
		onboarding.NewWikipediaVisualizer(cfg.Wikipedia),
		paywall.NewService(cfg.Paywall, catalog),
		cfg.Onboarding.Options(),
	)
	defer manager.Shutdown()

	h := handler.New(shelf, manager)
	if cfg.LLM.APIKey == "" {
		logx.Warn().Msg("LLM_API_KEY is not set, model-backed endpoints will fail")
	} else {
		h.SetReady(true)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(ctx, cfg, h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("port", cfg.Port).Msg("server ready")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Info().Msg("shutting down server")
	h.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(ctx context.Context, cfg *config.Config, h *handler.Handler) *gin.Engine {
	if cfg.Environment().IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics())

	// Security headers (before CORS)
	r.Use(middleware.SecurityHeaders())

	allowedOrigins := []string{}
	if !cfg.Environment().IsProduction() {
		allowedOrigins = append(allowedOrigins, "http://localhost:5173")
	}
	if cfg.CloudRunURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.CloudRunURL)
	}
	allowedOrigins = append(allowedOrigins, cfg.AllowedOrigins...)

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Accept-Language"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	ipLimiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.ChatPerSecond), cfg.RateLimit.ChatBurst)
	ipLimiter.StartCleanup(ctx, time.Minute, 10*time.Minute)
	dailyQuota := middleware.NewDailyQuota(cfg.RateLimit.DailyQuota)
	logx.Info().
		Float64("rps", cfg.RateLimit.ChatPerSecond).
		Int("burst", cfg.RateLimit.ChatBurst).
		Int64("daily_quota", cfg.RateLimit.DailyQuota).
		Msg("rate limiting enabled")

	// Health check endpoints (outside /api group, no rate limiting)
	r.GET("/health", h.HandleHealth)
	r.GET("/ready", h.HandleReadiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.Register(r, middleware.RateLimitMiddleware(ipLimiter, dailyQuota))

	if cfg.StaticDir != "" {
		r.Static("/assets", filepath.Join(cfg.StaticDir, "assets"))
		index := filepath.Join(cfg.StaticDir, "index.html")

		r.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api") {
				c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "code": "NOT_FOUND"})
				return
			}
			c.File(index)
		})
	}

	logx.Info().Strs("allowed_origins", allowedOrigins).Msg("router configured")
	return r
}

// newLLMClient builds the configured provider wrapped with the circuit breaker
// and the logging/metrics observer.
func newLLMClient(ctx context.Context, cfg *config.Config, openrouter *llm.OpenRouterClient) (deps.LLMClient, error) {
	var inner llm.Client
	switch cfg.LLM.Provider {
	case config.ProviderOpenRouter:
		inner = openrouter
	case config.ProviderGemini, config.ProviderEino:
		if cfg.LLM.APIKey == "" {
			return nil, errors.New("LLM_API_KEY is required for the gemini and eino providers")
		}
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.LLM.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		if cfg.LLM.Provider == config.ProviderGemini {
			inner = llm.NewGeminiClient(gc, cfg.LLM.Model)
		} else {
			ec, err := llm.NewEinoGeminiClient(ctx, gc, cfg.LLM.Model)
			if err != nil {
				return nil, fmt.Errorf("create eino client: %w", err)
			}
			inner = ec
		}
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLM.Provider)
	}

	return llm.NewObservedClient(llm.NewBreakerClient(inner, cfg.Breaker), cfg.LLM.LogPayloads), nil
}

func newHistoryStore(ctx context.Context, cfg *config.Config) (deps.HistoryStore, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		s, err := store.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logx.Info().Str("path", cfg.Store.SQLitePath).Msg("using sqlite history store")
		return s, func() { _ = s.Close() }, nil
	case config.BackendRedis:
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		logx.Info().Msg("using redis history store")
		return store.NewRedisStore(rdb, cfg.Store.TTL), func() { _ = rdb.Close() }, nil
	default:
		logx.Info().Msg("using in-memory history store")
		return store.NewMemoryStore(), func() {}, nil
	}
}
