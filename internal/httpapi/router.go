package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/circuitsapp/circuits-backend/internal/common"
	"github.com/circuitsapp/circuits-backend/internal/config"
	"github.com/circuitsapp/circuits-backend/internal/httpapi/handlers"
	"github.com/circuitsapp/circuits-backend/internal/httpapi/middleware"
	"github.com/circuitsapp/circuits-backend/internal/store/rabbitmq"
	"github.com/circuitsapp/circuits-backend/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, rds, rabbit)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "circuits-backend",
			"version": "1.0.0",
		})
	})

	// auth
	authGroup := r.Group("/api/auth")
	authGroup.POST("/signup", h.Signup)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/refresh", h.Refresh)
	authGroup.POST("/logout", h.Logout)
	authGroup.POST("/forgot-password", h.ForgotPassword)
	authGroup.POST("/update-password", h.UpdatePassword)
	authGroup.GET("/me", middleware.AuthRequired(cfg.JWTSecret), h.Me)

	// profiles (JWT required)
	profileGroup := r.Group("/api/profiles")
	profileGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	profileGroup.GET("/me", h.GetMyProfile)
	profileGroup.PUT("/me", h.UpdateMyProfile)
	profileGroup.GET("/:user_id", h.GetProfileByID)

	// users
	r.GET("/api/users", h.ListUsers)
	r.GET("/api/users/:id", h.GetUserByID)

	// chat (identity optional; anonymous and owned sessions never mix)
	chatGroup := r.Group("/chat")
	chatGroup.Use(middleware.AuthOptional(cfg.JWTSecret))
	chatGroup.POST("/sessions", h.CreateChatSession)
	chatGroup.GET("/sessions", h.ListChatSessions)
	chatGroup.GET("/sessions/:session_id", h.GetChatSession)
	chatGroup.PUT("/sessions/:session_id", h.UpdateChatSession)
	chatGroup.DELETE("/sessions/:session_id", h.DeleteChatSession)
	chatGroup.POST("/sessions/:session_id/messages", h.SendChatMessage)
	chatGroup.GET("/usage/summary", h.UsageSummary)

	return r
}
