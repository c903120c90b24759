// internal/api/routes/routes.go
package routes

import (
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/api/handlers"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/api/middleware"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func SetupRoutes(
	cfg *config.Config,
	logger *zap.Logger,
	chatHandler *handlers.ChatHandler,
	contextHandler *handlers.ContextHandler,
	uploadHandler *handlers.UploadHandler,
	healthHandler *handlers.HealthHandler,
) *gin.Engine {

	// Настройка Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.TimeoutMiddleware(cfg.Server.ReadTimeout))

	// Health check
	r.GET("/health", healthHandler.Check)

	// API routes
	api := r.Group("/api/v1")
	{
		// Chat endpoints
		chat := api.Group("/chat")
		{
			// Основной обмен: сырой chunked text/plain поток
			chat.POST("", chatHandler.SendMessage)

			// Операции с сессиями
			chat.GET("/:session_id", chatHandler.GetSession)
			chat.DELETE("/:session_id", chatHandler.DeleteSession)

			// История сообщений
			chat.GET("/:session_id/history", chatHandler.GetHistory)
		}

		// Context window endpoints
		contextep := api.Group("/context")
		{
			contextep.GET("/:session_id", contextHandler.GetContext)
			contextep.GET("/:session_id/stats", contextHandler.GetStats)
			contextep.DELETE("/:session_id", contextHandler.ClearContext)
		}

		// Upload endpoints
		uploads := api.Group("/uploads")
		{
			uploads.POST("", uploadHandler.Upload)
			uploads.POST("/check", uploadHandler.Check)

			// Операторский проход уплотнения хранилища
			uploads.POST("/compact", uploadHandler.Compact)
		}

		// Config endpoints (для отладки и мониторинга)
		configep := api.Group("/config")
		{
			// Получение информации о конфигурации (без секретов)
			configep.GET("/info", func(c *gin.Context) {
				configSources := config.GetConfigSource(cfg)

				c.JSON(200, gin.H{
					"server": gin.H{
						"host": cfg.Server.Host,
						"port": cfg.Server.Port,
					},
					"cache": gin.H{
						"capacity":   cfg.Cache.Capacity,
						"ttl":        cfg.Cache.TTL.String(),
						"redis_addr": cfg.Cache.RedisAddr,
					},
					"llm": gin.H{
						"provider": cfg.LLM.Provider,
						"model":    cfg.LLM.Model,
						"base_url": cfg.LLM.BaseURL,
						// НЕ включаем API ключ в ответ
					},
					"blob": gin.H{
						"bucket":     cfg.Blob.Bucket,
						"key_prefix": cfg.Blob.KeyPrefix,
					},
					"sources": configSources,
				})
			})

			// Получение рекомендуемых переменных окружения
			configep.GET("/env-vars", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"env_vars": config.GetEnvVars(),
					"example":  "export CHAT_RELAY_LLM_API_KEY=your_engine_key",
				})
			})
		}
	}

	return r
}
