package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/polysession/internal/approvals"
	"github.com/GoPolymarket/polysession/internal/auth"
	"github.com/GoPolymarket/polysession/internal/clob"
	"github.com/GoPolymarket/polysession/internal/config"
	"github.com/GoPolymarket/polysession/internal/handler"
	"github.com/GoPolymarket/polysession/internal/market"
	"github.com/GoPolymarket/polysession/internal/middleware"
	"github.com/GoPolymarket/polysession/internal/pkg/logger"
	"github.com/GoPolymarket/polysession/internal/proxy"
	"github.com/GoPolymarket/polysession/internal/relay"
	"github.com/GoPolymarket/polysession/internal/repository"
	"github.com/GoPolymarket/polysession/internal/service"
	"github.com/GoPolymarket/polysession/internal/session"
	"github.com/GoPolymarket/polysession/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const cleanupInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	// 1. Persistence
	var db *gorm.DB
	if cfg.Session.Store == "postgres" || cfg.Session.Store == "sqlite" || cfg.Database.DSN != "" {
		if cfg.Session.Store == "sqlite" {
			cfg.Database.Driver = "sqlite"
			if cfg.Database.DSN == "" {
				cfg.Database.DSN = "polysession.db"
			}
		}
		db, err = repository.NewDB(cfg)
		if err != nil {
			logger.Error("failed to connect to database", "error", err, "driver", cfg.Database.Driver)
			if cfg.Session.Store == "postgres" || cfg.Session.Store == "sqlite" {
				os.Exit(1)
			}
		} else {
			logger.Info("connected to database", "driver", cfg.Database.Driver)
		}
	}

	var redisClient *repository.RedisClient
	if cfg.Session.Store == "redis" || cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			if cfg.Session.Store == "redis" {
				os.Exit(1)
			}
			redisClient = nil
		} else {
			logger.Info("connected to redis", "addr", cfg.Redis.Addr)
			closers = append(closers, redisClient)
		}
	}

	store, err := newSessionStore(cfg, db, redisClient, &closers)
	if err != nil {
		logger.Error("failed to open session store", "error", err, "store", cfg.Session.Store)
		os.Exit(1)
	}

	var auditRepo service.AuditRepo
	switch {
	case db != nil:
		auditRepo = repository.NewSQLAuditRepo(db)
	case redisClient != nil:
		auditRepo = repository.NewRedisAuditRepo(redisClient, 0)
	}
	auditSvc, err := service.NewAuditService(cfg.Server.AuditLogDir, auditRepo)
	if err != nil {
		logger.Error("failed to initialize audit service", "error", err)
		os.Exit(1)
	}

	idemTTL := time.Duration(cfg.Redis.IdempotencyTTLSeconds) * time.Second
	var idemStore middleware.IdempotencyStore
	switch {
	case redisClient != nil:
		idemStore = repository.NewRedisIdempotencyStore(redisClient, idemTTL)
	case db != nil:
		idemStore = repository.NewSQLIdempotencyStore(db)
	default:
		idemStore = middleware.NewInMemIdempotencyStore(idemTTL)
	}
	if db != nil {
		go runCleanup(ctx, db, idemTTL)
	}

	// 2. Upstreams
	builderCreds := auth.Credentials{
		Key:        cfg.Builder.ApiKey,
		Secret:     cfg.Builder.ApiSecret,
		Passphrase: cfg.Builder.ApiPassphrase,
	}
	if !cfg.Builder.Enabled() {
		logger.Warn("builder credentials not configured, relay submissions will be rejected upstream")
	}
	clobClient := clob.NewClient(cfg.Clob.BaseURL, cfg.Clob.Timeout, builderCreds)
	relayClient := relay.NewClient(cfg.Relayer.BaseURL, cfg.Relayer.Timeout, builderCreds, relay.PollPolicy{
		Interval:    cfg.Relayer.PollInterval,
		MaxInterval: cfg.Relayer.PollMaxInterval,
		Multiplier:  1.5,
		MaxAttempts: cfg.Relayer.PollMaxAttempts,
	})

	deriver, err := proxy.NewDeriver(cfg.Contracts.ProxyFactory, cfg.Contracts.ProxyInitCode)
	if err != nil {
		logger.Error("invalid proxy factory configuration", "error", err)
		os.Exit(1)
	}
	addrs := approvals.Addresses{
		USDC: common.HexToAddress(cfg.Contracts.USDC),
		CTF:  common.HexToAddress(cfg.Contracts.ConditionalToken),
		Spenders: []common.Address{
			common.HexToAddress(cfg.Contracts.Exchange),
			common.HexToAddress(cfg.Contracts.NegRiskExchange),
			common.HexToAddress(cfg.Contracts.NegRiskAdapter),
		},
	}
	checker := approvals.NewChecker(cfg.Chain.RPCURL, addrs, cfg.Chain.RPCTimeout, cfg.Chain.RPCRetries)

	// 3. Market data. Price and book reads need no signer.
	public := clob.NewGateway(clobClient, nil, common.Address{})
	var books handler.BookProvider = gatewayBooks{public}
	var riskBooks service.BookReader
	var marketSvc *market.MarketService
	if cfg.Market.Enabled {
		marketSvc = market.NewMarketService(cfg.Market.WSURL, public)
		marketSvc.Start()
		books = marketSvc
		riskBooks = marketSvc
	}

	var usageRepo service.UsageRepo
	switch {
	case db != nil:
		usageRepo = repository.NewSQLUsageRepo(db)
	case redisClient != nil:
		usageRepo = repository.NewRedisUsageRepo(redisClient)
	}

	deps := handler.Deps{
		Config:      cfg,
		Quotes:      public,
		Books:       books,
		Audit:       auditSvc,
		Idempotency: idemStore,
		Limiter:     middleware.NewIPRateLimiter(cfg.Server.RateLimitQPS, cfg.Server.RateLimitBurst),
	}

	// 4. Wallet-bound services
	if cfg.Wallet.PrivateKey == "" {
		logger.Warn("wallet private key not configured, wallet endpoints are disabled")
	} else {
		s, err := signer.NewSigner(cfg.Wallet.PrivateKey, cfg.Chain.ID,
		common.HexToAddress(cfg.Contracts.Exchange), common.HexToAddress(cfg.Contracts.NegRiskExchange))
		if err != nil {
			logger.Error("invalid wallet private key", "error", err)
			os.Exit(1)
		}
		proxyAddr := deriver.Derive(s.Address())
		gateway := clob.NewGateway(clobClient, s, proxyAddr)
		risk := service.NewRiskEngine(usageRepo, riskBooks, public, cfg.Risk)
		wallet := service.NewWalletService(s, deriver, common.HexToAddress(cfg.Contracts.RelayHub), relayClient, addrs)
		machine := session.NewMachine(session.Options{
			EOA:       s.Address(),
			Proxy:     proxyAddr,
			Creds:     gateway,
			Approvals: checker,
			Relay:     wallet,
			Store:     store,
			MaxAge:    cfg.Session.MaxAge,
		})

		deps.Wallet = wallet
		deps.Approvals = checker
		deps.Credentials = gateway
		deps.Orders = service.NewRiskGateway(gateway, risk, s.Address().Hex())
		deps.Quotes = gateway
		deps.Session = machine
		logger.Info("wallet configured", "eoa", s.Address().Hex(), "proxy", proxyAddr.Hex())
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("polysession started", "port", cfg.Server.Port, "session_store", cfg.Session.Store, "read_only", cfg.Server.ReadOnly)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if marketSvc != nil {
		marketSvc.Stop()
	}
	auditSvc.Close()
	logger.Info("server exiting")
}

func newSessionStore(cfg *config.Config, db *gorm.DB, rc *repository.RedisClient, closers *[]io.Closer) (session.Store, error) {
	switch cfg.Session.Store {
	case "redis":
		return repository.NewRedisSessionStore(rc), nil
	case "postgres", "sqlite":
		return repository.NewSQLSessionStore(db), nil
	case "pebble":
		ps, err := repository.NewPebbleSessionStore(cfg.Pebble.Path)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, ps)
		return ps, nil
	default:
		return session.NewMemoryStore(), nil
	}
}

func runCleanup(ctx context.Context, db *gorm.DB, idemTTL time.Duration) {
	audit := repository.NewSQLAuditRepo(db)
	idem := repository.NewSQLIdempotencyStore(db)
	usage := repository.NewSQLUsageRepo(db)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := audit.Cleanup(ctx, 30*24*time.Hour); err != nil {
				logger.Error("audit cleanup failed", "error", err)
			}
			if err := idem.Cleanup(ctx, idemTTL); err != nil {
				logger.Error("idempotency cleanup failed", "error", err)
			}
			if err := usage.Cleanup(ctx, 7*24*time.Hour); err != nil {
				logger.Error("risk usage cleanup failed", "error", err)
			}
		}
	}
}

// gatewayBooks exposes Gateway.GetBook as handler.BookProvider.
type gatewayBooks struct{ *clob.Gateway }

func (g gatewayBooks) Book(ctx context.Context, tokenID string) (*clob.Book, error) {
	return g.GetBook(ctx, tokenID)
}
