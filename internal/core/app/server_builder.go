package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/stakelabs/harvest-server/internal/api"
	"github.com/stakelabs/harvest-server/internal/api/handlers"
	"github.com/stakelabs/harvest-server/internal/core/config"
	"github.com/stakelabs/harvest-server/internal/core/services"
	"github.com/stakelabs/harvest-server/internal/database"
	"github.com/stakelabs/harvest-server/internal/database/repositories"
	"github.com/stakelabs/harvest-server/pkg/logger"
	"github.com/stakelabs/harvest-server/pkg/wallet"
)

type Server struct {
	Config         *config.Config
	HttpServer     *http.Server
	DB             *gorm.DB
	LedgerService  *services.LedgerService
	WebhookService *services.WebhookService
	MonitorService *services.MonitorService
}

func (s *Server) Shutdown(ctx context.Context) {
	log := logger.Get()

	if s.MonitorService != nil {
		s.MonitorService.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := s.HttpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown error")
	}
}

// ServerBuilder wires the ledger service to its bindings step by step; the
// first error short-circuits the chain and surfaces from Build.
type ServerBuilder struct {
	cfg *config.Config
	err error

	db           *gorm.DB
	poolRepo     *repositories.PoolRepository
	positionRepo *repositories.PositionRepository
	chain        *services.ChainService
	ledger       *services.LedgerService
	webhooks     *services.WebhookService
	monitor      *services.MonitorService
	router       *api.Router
}

func NewServerBuilder(cfg *config.Config) *ServerBuilder {
	return &ServerBuilder{cfg: cfg}
}

func (b *ServerBuilder) InitDatabase() *ServerBuilder {
	if b.err != nil {
		return b
	}
	db, err := database.Connect(context.Background(), b.cfg.Database.GetConnectionURL())
	if err != nil {
		b.err = fmt.Errorf("failed to connect to database: %w", err)
		return b
	}
	b.db = db
	return b
}

func (b *ServerBuilder) InitRepositories() *ServerBuilder {
	if b.err != nil {
		return b
	}
	b.poolRepo = repositories.NewPoolRepository(b.db)
	b.positionRepo = repositories.NewPositionRepository(b.db)
	return b
}

func (b *ServerBuilder) InitWallet() *ServerBuilder {
	if b.err != nil {
		return b
	}
	client, err := wallet.NewClient(b.cfg.Ethereum.RPC, b.cfg.Ethereum.ChainID)
	if err != nil {
		b.err = fmt.Errorf("failed to create wallet client: %w", err)
		return b
	}
	b.chain = services.NewChainService(client)
	return b
}

func (b *ServerBuilder) InitServices() *ServerBuilder {
	if b.err != nil {
		return b
	}

	rewardPerTick, err := b.cfg.Ledger.RewardPerTickInt()
	if err != nil {
		b.err = err
		return b
	}
	if !common.IsHexAddress(b.cfg.Ethereum.RewardTokenAddress) {
		b.err = fmt.Errorf("invalid ETHEREUM_REWARD_TOKEN_ADDRESS %q", b.cfg.Ethereum.RewardTokenAddress)
		return b
	}

	authorizer := services.NewAllowlistAuthorizer(b.cfg.Ledger.AdminList())

	b.ledger = services.NewLedgerService(
		b.chain,
		b.chain,
		authorizer,
		b.poolRepo,
		b.positionRepo,
		b.chain.Custody(),
		common.HexToAddress(b.cfg.Ethereum.RewardTokenAddress),
		rewardPerTick,
		b.cfg.Ledger.StartTick,
	)
	if err := b.ledger.Load(context.Background()); err != nil {
		b.err = err
		return b
	}

	b.webhooks = services.NewWebhookService()
	b.ledger.AddEventSink(services.NewLogSink())
	b.ledger.AddEventSink(b.webhooks)
	return b
}

func (b *ServerBuilder) InitMonitor() *ServerBuilder {
	if b.err != nil {
		return b
	}

	var snapshots *services.SnapshotService
	if b.cfg.AWS.BucketName != "" {
		svc, err := services.NewSnapshotService(b.cfg, b.ledger)
		if err != nil {
			b.err = fmt.Errorf("failed to create snapshot service: %w", err)
			return b
		}
		snapshots = svc
	}

	b.monitor = services.NewMonitorService(b.ledger, snapshots)
	if b.cfg.Scheduler.Interval > 0 {
		b.monitor.SetInterval(time.Duration(b.cfg.Scheduler.Interval) * time.Minute)
	}
	return b
}

func (b *ServerBuilder) InitRouter() *ServerBuilder {
	if b.err != nil {
		return b
	}

	ledgerHandler := handlers.NewLedgerHandler(b.ledger)
	adminHandler := handlers.NewAdminHandler(b.ledger)
	webhookHandler := handlers.NewWebhookHandler(b.webhooks)

	b.router = api.NewRouter(ledgerHandler, adminHandler, webhookHandler, b.cfg.Server.Endpoint)
	return b
}

func (b *ServerBuilder) Build() (*Server, error) {
	if b.err != nil {
		return nil, b.err
	}

	addr := fmt.Sprintf("%s:%s", b.cfg.Server.Host, b.cfg.Server.Port)
	return &Server{
		Config: b.cfg,
		HttpServer: &http.Server{
			Addr:              addr,
			Handler:           b.router.Engine(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		DB:             b.db,
		LedgerService:  b.ledger,
		WebhookService: b.webhooks,
		MonitorService: b.monitor,
	}, nil
}
