package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/api/handlers"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/api/routes"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/config"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/service/contextcache"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/service/relay"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/service/upload"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/storage/postgres"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/pkg/blob"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/pkg/llm"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/pkg/llm/providers"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Настройка логгера
	logger, err := setupLogger(cfg.Logging)
	if err != nil {
		panic(fmt.Sprintf("Failed to setup logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting chat relay server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("engine_url", cfg.LLM.BaseURL),
		zap.String("database_url", maskDatabaseURL(cfg.Database.URL)),
		zap.String("redis_addr", cfg.Cache.RedisAddr),
		zap.Int("context_capacity", cfg.Cache.Capacity),
		zap.Duration("context_ttl", cfg.Cache.TTL),
	)

	// Контекст жизни фоновых компонентов
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Инициализация PostgreSQL storage
	storage, err := postgres.New(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize PostgreSQL storage", zap.Error(err))
	}
	defer storage.Close()

	// Выполнение миграций
	migrator := postgres.NewMigrator(storage.GetDB(), logger)
	if err := migrator.RunMigrationsFromStrings(rootCtx, postgres.EmbeddedMigrations); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	currentVersion, err := migrator.GetCurrentVersion(rootCtx)
	if err != nil {
		logger.Warn("Failed to get current migration version", zap.Error(err))
	} else {
		logger.Info("Database migrations completed", zap.Int("current_version", currentVersion))
	}

	// Redis для контекстного кэша. Недоступность при старте не фатальна:
	// кэш деградирует до локального fallback
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	defer redisClient.Close()

	probeCtx, probeCancel := context.WithTimeout(rootCtx, 3*time.Second)
	if err := redisClient.Ping(probeCtx).Err(); err != nil {
		logger.Warn("Redis unavailable at boot, context cache starts on local fallback",
			zap.String("redis_addr", cfg.Cache.RedisAddr),
			zap.Error(err))
	} else {
		logger.Info("Redis connection established", zap.String("redis_addr", cfg.Cache.RedisAddr))
	}
	probeCancel()

	// Контекстный кэш: разделяемый Redis + локальный fallback
	localStore := contextcache.NewLocalStore(cfg.Cache.SweepInterval, logger)
	go localStore.Run(rootCtx)

	contextCache := contextcache.NewCache(
		contextcache.NewRedisStore(redisClient, logger),
		localStore,
		contextcache.Config{
			Capacity:  cfg.Cache.Capacity,
			TTL:       cfg.Cache.TTL,
			KeyPrefix: cfg.Cache.KeyPrefix,
		},
		logger,
	)

	// Инициализация LLM клиента
	llmClient, err := initLLMClient(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize LLM client", zap.Error(err))
	}
	logger.Info("LLM client initialized",
		zap.String("provider", llmClient.GetProviderName()),
		zap.String("model", cfg.LLM.Model),
	)

	// Ретранслятор потока
	relayService := relay.NewService(
		storage, // MessageStore
		storage, // SessionStore
		contextCache,
		llmClient,
		relay.Config{
			SystemPrompt:    cfg.Chat.SystemPrompt,
			UpstreamTimeout: cfg.Chat.UpstreamTimeout,
			HistoryLimit:    cfg.Chat.HistoryLimit,
			Model:           cfg.LLM.Model,
		},
		logger,
	)
	logger.Info("Relay service initialized")

	// Блоб-хранилище и дедуплицирующий оркестратор загрузок
	blobStore, err := blob.NewS3Store(rootCtx, blob.Config{
		Endpoint:        cfg.Blob.Endpoint,
		Region:          cfg.Blob.Region,
		Bucket:          cfg.Blob.Bucket,
		AccessKeyID:     cfg.Blob.AccessKeyID,
		SecretAccessKey: cfg.Blob.SecretAccessKey,
		KeyPrefix:       cfg.Blob.KeyPrefix,
		UsePathStyle:    cfg.Blob.UsePathStyle,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize blob store", zap.Error(err))
	}
	uploadService := upload.NewService(blobStore, logger)
	logger.Info("Upload service initialized",
		zap.String("bucket", cfg.Blob.Bucket),
		zap.String("key_prefix", cfg.Blob.KeyPrefix),
	)

	// Инициализация handlers
	chatHandler := handlers.NewChatHandler(relayService, storage, logger)
	contextHandler := handlers.NewContextHandler(relayService, logger)
	uploadHandler := handlers.NewUploadHandler(uploadService, logger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": storage,
		"cache":    redisPinger{redisClient},
		"blob":     blobStore,
	}, relayService.Metrics)

	// Настройка роутов
	router := routes.SetupRoutes(cfg, logger, chatHandler, contextHandler, uploadHandler, healthHandler)

	// Настройка HTTP сервера
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logConfigInfo(cfg, logger)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// redisPinger адаптирует go-redis клиент к handlers.Pinger
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func initLLMClient(cfg *config.Config, logger *zap.Logger) (*llm.Client, error) {
	factory := providers.NewFactory(logger)
	provider, err := factory.CreateProvider(providers.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return llm.NewClientWithProvider(provider, logger), nil
}

func maskDatabaseURL(dbURL string) string {
	// Маскируем пароль в URL для логирования
	if dbURL == "" {
		return ""
	}

	parts := strings.Split(dbURL, "://")
	if len(parts) != 2 {
		return dbURL
	}

	afterProtocol := parts[1]
	atIndex := strings.Index(afterProtocol, "@")
	if atIndex == -1 {
		return dbURL
	}

	colonIndex := strings.Index(afterProtocol, ":")
	if colonIndex == -1 || colonIndex > atIndex {
		return dbURL
	}

	username := afterProtocol[:colonIndex]
	afterAt := afterProtocol[atIndex:]

	return fmt.Sprintf("%s://%s:***%s", parts[0], username, afterAt)
}

func logConfigInfo(cfg *config.Config, logger *zap.Logger) {
	configSources := config.GetConfigSource(cfg)

	logger.Info("Configuration loaded successfully",
		zap.String("config_file", configSources["config_file"]),
		zap.String("api_key_source", configSources["api_key"]),
		zap.String("provider", configSources["provider"]),
		zap.String("engine_url", configSources["engine_url"]),
		zap.String("redis", configSources["redis"]),
		zap.String("blob_bucket", configSources["blob_bucket"]),
	)

	logger.Info("Environment variables guide",
		zap.Strings("env_vars", config.GetEnvVars()),
	)
}

func setupLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	// Настройка уровня логирования
	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapCfg.Build()
}
