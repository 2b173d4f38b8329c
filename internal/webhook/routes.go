package webhook

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes sets up all webhook routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handler, metricsPath string) {
	router.GET("/", h.health)
	router.POST("/log-conversation", h.logConversation)

	if metricsPath != "" {
		router.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}
}
