package handler

import (
	"net/http"

	"github.com/GoPolymarket/polysession/internal/config"
	"github.com/GoPolymarket/polysession/internal/middleware"
	"github.com/GoPolymarket/polysession/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the HTTP surface needs. Wallet-bound fields are nil when
// no signing key is configured.
type Deps struct {
	Config      *config.Config
	Wallet      Wallet
	Approvals   ApprovalReader
	Credentials CredentialsProvider
	Orders      OrderGateway
	Quotes      Quotes
	Books       BookProvider
	Session     SessionMachine
	Audit       *service.AuditService
	Idempotency middleware.IdempotencyStore
	Limiter     *middleware.IPRateLimiter
}

// NewRouter wires middleware and routes. The result is wrapped in CORS.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	address := ""
	if d.Wallet != nil {
		address = d.Wallet.Info().EOAAddress
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestContext())
	// Audit wraps ErrorHandler so it sees the rendered status.
	r.Use(middleware.AuditMiddleware(d.Audit, address))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ErrorHandler())

	r.GET("/health", Health)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	wallet := NewWalletHandler(d.Wallet, d.Approvals, d.Credentials)
	orders := NewOrderHandler(d.Orders)
	markets := NewMarketHandler(d.Quotes, d.Books)
	sessions := NewSessionHandler(d.Session)
	audit := NewAuditHandler(d.Audit, address)

	idem := middleware.IdempotencyMiddleware(d.Idempotency)

	api := r.Group("/api")
	if d.Limiter != nil {
		api.Use(middleware.RateLimitMiddleware(d.Limiter))
	}
	api.Use(middleware.AuthMiddleware(cfg))
	api.Use(middleware.ReadOnlyMiddleware(cfg.Server.ReadOnly))
	{
		api.GET("/wallet", wallet.Info)
		api.GET("/wallet/approvals", wallet.Approvals)
		api.GET("/wallet/balance", wallet.Balance)
		api.POST("/wallet/credentials", wallet.Credentials)
		api.POST("/wallet/relay", idem, wallet.Relay)
		api.POST("/wallet/transfer", idem, wallet.Transfer)
		api.POST("/wallet/redeem", idem, wallet.Redeem)

		api.GET("/orders/active", orders.Active)
		api.POST("/orders", idem, orders.PlaceOrder)
		api.DELETE("/orders", orders.CancelOrder)

		api.POST("/polymarket/prices", markets.Prices)
		api.GET("/polymarket/tick-size", markets.TickSize)
		api.GET("/polymarket/book", markets.Book)

		api.POST("/session", sessions.Initialize)
		api.GET("/session", sessions.Status)
		api.DELETE("/session", sessions.End)
	}

	admin := r.Group("/api/admin")
	admin.Use(middleware.AdminMiddleware(cfg))
	admin.GET("/audit", audit.List)

	return middleware.CORS(cfg.Server.AllowedOrigins).Handler(r)
}
