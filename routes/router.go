package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/ledger/config"
	"github.com/cppla/ledger/controllers"
	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/middleware"
	"github.com/cppla/ledger/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(l *ledger.Ledger, hub *utils.Hub, cfg config.AppConfig) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.ServiceTokenHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		if err := l.Ping(ctx.Request.Context()); err != nil {
			utils.Sugar.Warnf("health: database unreachable: %v", err)
			utils.Error(ctx, http.StatusServiceUnavailable, 50300, "database unavailable")
			return
		}
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	xpController := controllers.NewXPController(l, cfg.LeaderboardSize, cfg.LeaderboardTTL())
	pointsController := controllers.NewPointsController(l)
	achievementController := controllers.NewAchievementController(l)
	rewardController := controllers.NewRewardController(l)
	guildController := controllers.NewGuildController(l)
	internalController := controllers.NewInternalController(l)
	configController := controllers.NewConfigController(l)
	streamController := controllers.NewStreamController(hub, cfg.AllowedOrigins)

	api := r.Group("/api/v1")
	api.GET("/config/rules", configController.GetRules)
	api.GET("/stream", middleware.AuthRequiredOrQuery(), streamController.Stream)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimit(cfg.RateLimitPerMinute))

	protected.GET("/xp/me", xpController.Me)
	protected.GET("/xp/transactions", xpController.Transactions)
	protected.GET("/xp/leaderboard", xpController.Leaderboard)
	protected.GET("/points/me", pointsController.Me)
	protected.GET("/points/transactions", pointsController.Transactions)
	protected.GET("/habits/streaks", achievementController.Streaks)
	protected.GET("/achievements", achievementController.List)

	protected.GET("/rewards", rewardController.List)
	protected.POST("/rewards", rewardController.Create)
	protected.GET("/rewards/history", rewardController.History)
	protected.PATCH("/rewards/:id", rewardController.Update)
	protected.DELETE("/rewards/:id", rewardController.Delete)
	protected.POST("/rewards/:id/redeem", rewardController.Redeem)

	guild := protected.Group("/guilds/:guild")
	guild.Use(middleware.GuildMember("guild"))
	guild.GET("/xp", xpController.Me)
	guild.GET("/xp/transactions", xpController.Transactions)
	guild.GET("/level", guildController.Level)
	guild.GET("/treasury", pointsController.Me)
	guild.GET("/treasury/transactions", pointsController.Transactions)
	guild.GET("/achievements", achievementController.List)
	guild.GET("/contributors", guildController.Contributors)
	guild.GET("/rewards", rewardController.List)
	guild.POST("/rewards/:id/redeem", rewardController.Redeem)

	guildAdmin := guild.Group("")
	guildAdmin.Use(middleware.GuildAdmin("guild"))
	guildAdmin.POST("/rewards", rewardController.Create)
	guildAdmin.PATCH("/rewards/:id", rewardController.Update)
	guildAdmin.DELETE("/rewards/:id", rewardController.Delete)
	guildAdmin.GET("/redemptions", rewardController.GuildRedemptions)
	guildAdmin.POST("/redemptions/:id/fulfill", rewardController.Fulfill)

	internal := r.Group("/internal")
	internal.Use(middleware.ServiceAuth(cfg.ServiceToken))
	internal.POST("/awards/xp", internalController.AwardXP)
	internal.POST("/awards/points", internalController.AwardPoints)
	internal.POST("/events", internalController.Event)
	internal.PUT("/owners/:kind/:id/stats", internalController.Stats)
	internal.POST("/tokens/revoke", internalController.RevokeToken)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
