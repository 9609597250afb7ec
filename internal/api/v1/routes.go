package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/stakelabs/harvest-server/internal/api/handlers"
)

func registerPoolRoutes(router *gin.RouterGroup, ledgerHandler *handlers.LedgerHandler, adminHandler *handlers.AdminHandler) {
	pools := router.Group("/pools")
	{
		pools.POST("", adminHandler.AddPool)
		pools.GET("", ledgerHandler.ListPools)
		pools.GET("/count", ledgerHandler.PoolCount)
		pools.POST("/update", ledgerHandler.MassUpdatePools)

		pools.PATCH("/:id", adminHandler.SetPool)
		pools.POST("/:id/update", ledgerHandler.UpdatePool)
		pools.POST("/:id/deposit", ledgerHandler.Deposit)
		pools.POST("/:id/withdraw", ledgerHandler.Withdraw)
		pools.POST("/:id/emergency-withdraw", ledgerHandler.EmergencyWithdraw)
		pools.GET("/:id/positions/:user", ledgerHandler.PositionOf)
		pools.GET("/:id/positions/:user/pending", ledgerHandler.PendingReward)
	}
}

func registerLedgerRoutes(router *gin.RouterGroup, ledgerHandler *handlers.LedgerHandler, adminHandler *handlers.AdminHandler, webhookHandler *handlers.WebhookHandler) {
	router.POST("/fund", adminHandler.Fund)
	router.GET("/balance", ledgerHandler.LockedRewardBalance)

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("", webhookHandler.RegisterWebhook)
		webhooks.DELETE("/:id", webhookHandler.UnregisterWebhook)
	}
}

func RegisterRoutes(api *gin.RouterGroup, ledgerHandler *handlers.LedgerHandler, adminHandler *handlers.AdminHandler, webhookHandler *handlers.WebhookHandler) {
	registerPoolRoutes(api, ledgerHandler, adminHandler)
	registerLedgerRoutes(api, ledgerHandler, adminHandler, webhookHandler)
}
