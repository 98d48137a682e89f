package router

import (
	"net/http"
	"time"

	"avanspay/config"
	"avanspay/internal/handler"
	"avanspay/internal/metrics"
	"avanspay/internal/middleware"
	"avanspay/internal/repository"
	"avanspay/internal/service"
	"avanspay/pkg/gateway"
	"avanspay/pkg/sms"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Setup wires repositories, services and handlers and returns the engine
// plus the reconciler for the background sweep in main.
func Setup(cfg *config.Config, db *gorm.DB, gw gateway.Provider, smsSender sms.Sender) (*gin.Engine, *service.Reconciler) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second), "/api/v1/webhooks/", "/metrics"))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	rbRepo := repository.NewReimbursementRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	// Services
	recMetrics := metrics.NewReconcilerMetrics()
	notifSvc := service.NewNotificationService(smsSender)
	reconciler := service.NewReconciler(txRepo, rbRepo, historyRepo, notifSvc, gw, recMetrics)
	authSvc := service.NewAuthService(cfg, userRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	webhookHandler := handler.NewGatewayWebhookHandler(reconciler, recMetrics)
	txHandler := handler.NewTransactionHandler(txRepo, reconciler)
	rbHandler := handler.NewReimbursementHandler(cfg, rbRepo, txRepo, gw)
	historyHandler := handler.NewHistoryHandler(historyRepo)
	gatewayHandler := handler.NewGatewayHandler(gw)

	authMw := middleware.AuthRequired(&cfg.JWT)
	adminMw := middleware.RequireRole("ADMIN")

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/webhooks/gateway", webhookHandler.Handle)

		admin := api.Group("", authMw, adminMw)
		{
			admin.GET("/transactions", txHandler.List)
			admin.GET("/transactions/:id", txHandler.Get)
			admin.POST("/transactions/:id/reconcile", txHandler.Reconcile)
			admin.POST("/transactions/:id/cancel", txHandler.Cancel)

			admin.GET("/reimbursements", rbHandler.List)
			admin.POST("/reimbursements", rbHandler.Create)
			admin.GET("/reimbursements/:id", rbHandler.Get)
			admin.POST("/reimbursements/:id/pay", rbHandler.InitiatePayment)

			admin.GET("/history", historyHandler.List)
			admin.GET("/gateway/balance", gatewayHandler.Balance)
		}
	}

	return r, reconciler
}
