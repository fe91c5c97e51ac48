package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

// RegisterRoutes wires the operational HTTP surface: liveness plus a small
// status readout of the pipeline.
func RegisterRoutes(router *gin.Engine, appLogger *logger.Logger, st *store.Store) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API is running. Wallet scanner active!"})
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")
	{
		apiGroup.GET("/status", func(c *gin.Context) {
			now := time.Now().UTC()
			c.JSON(http.StatusOK, gin.H{
				"cursor":         st.Cursor(),
				"trackedWallets": len(st.TrackedPrimaries()),
				"liveChats":      st.LiveChatCount(now),
				"time":           now.Format(time.RFC3339),
			})
		})
	}
	appLogger.Info("API routes registered under /api/v1")
}
