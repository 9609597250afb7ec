package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stakelabs/harvest-server/internal/api/handlers"
	"github.com/stakelabs/harvest-server/internal/api/middleware"
	v1 "github.com/stakelabs/harvest-server/internal/api/v1"
)

func init() {
	// Release mode silences gin's own debug logging; requests are logged by
	// the middleware instead.
	gin.SetMode(gin.ReleaseMode)
}

type Router struct {
	engine   *gin.Engine
	endpoint string
}

func NewRouter(ledgerHandler *handlers.LedgerHandler, adminHandler *handlers.AdminHandler, webhookHandler *handlers.WebhookHandler, endpoint string) *Router {
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.Logging())

	r := &Router{
		engine:   engine,
		endpoint: endpoint,
	}

	api := engine.Group(endpoint)
	v1.RegisterRoutes(api, ledgerHandler, adminHandler, webhookHandler)

	return r
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}
