package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/service/relay"

	"github.com/gin-gonic/gin"
)

// Pinger проверка живости одного компонента
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	components map[string]Pinger
	metrics    func() relay.MetricsSnapshot
}

func NewHealthHandler(components map[string]Pinger, metrics func() relay.MetricsSnapshot) *HealthHandler {
	return &HealthHandler{
		components: components,
		metrics:    metrics,
	}
}

// GET /health - живость сервиса и его зависимостей.
// Деградация кэша не делает сервис нездоровым: есть fallback
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	components := make(map[string]string, len(h.components))
	for name, pinger := range h.components {
		if err := pinger.Ping(ctx); err != nil {
			components[name] = "unavailable: " + err.Error()
			if name == "database" {
				status = "degraded"
			}
		} else {
			components[name] = "ok"
		}
	}

	resp := gin.H{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if h.metrics != nil {
		resp["relay"] = h.metrics()
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
