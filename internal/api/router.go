package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"canister-transfer-backend/config"
	"canister-transfer-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	rateLimiter := mw.RateLimiter(cfg.OperatorHeader, rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Invalidate(cacheStore))
	{
		api.POST("/systems/:system_id/schedule", handler.RunScheduler)

		batch := api.Group("/batches/:batch_id")
		batch.GET("/cycles/:cycle_id", caching, handler.GetCycle)
		batch.GET("/cycles/:cycle_id/completion", handler.GetCycleCompletion)
		batch.PUT("/cycles/:cycle_id/devices/:device_id/status", handler.PutDeviceStatus)
		batch.POST("/canisters/:canister_id/confirm", handler.ConfirmPlacement)
		batch.POST("/canisters/:canister_id/alternate", handler.SkipWithAlternate)
		batch.POST("/skip", handler.Skip)
		batch.POST("/transfer-later", handler.TransferLater)

		api.POST("/scans", handler.ScanDrawer)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
