package types

import (
	"context"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/tokenbound/pkg/events"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/canopy-network/tokenbound/pkg/redis"
	"github.com/canopy-network/tokenbound/pkg/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type App struct {
	Config Config

	// Ledger and the contracts installed at genesis
	Ledger   *ledger.Ledger
	Registry *registry.Client
	Policy   common.Address
	Fixtures *Fixtures

	// Live event fan-out (websocket subscribers)
	Hub *events.Hub

	// Worker pool for batch endpoints
	Pool pond.Pool

	// Cron runs periodic maintenance (expired challenge sweep), according to
	// Config.SweepSpec.
	Cron *cron.Cron

	// Redis Client and publisher (optional)
	RedisClient *redis.Client
	Publisher   *redis.Publisher

	// Zap Logger
	Logger *zap.Logger

	// HTTP Server
	Server *http.Server
}

// NewApp builds the ledger, runs genesis and attaches the event hub. Redis is
// wired separately by the caller.
func NewApp(ctx context.Context, logger *zap.Logger, cfg Config) (*App, error) {
	l := ledger.New(logger.Named("ledger"), cfg.ChainID)
	hub := events.NewHub(logger.Named("events"), events.DefaultDecoder(), events.DefaultBuffer)
	l.AddSink(hub)

	gen, err := RunGenesis(ctx, logger, l, cfg)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &App{
		Config:   cfg,
		Ledger:   l,
		Registry: gen.Registry,
		Policy:   gen.Policy,
		Fixtures: gen.Fixtures,
		Hub:      hub,
		Pool:     pond.NewPool(workers, pond.WithQueueSize(poolQueueSize(workers))),
		Logger:   logger,
	}, nil
}

func poolQueueSize(workers int) int {
	return max(workers*256, 1024)
}

// SetupScheduler registers job on spec. Each run is recovered so a panic in
// maintenance never takes the devnet down.
func (a *App) SetupScheduler(logger cron.Logger, spec string, job func()) error {
	// Seconds field, optional
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))
	if _, err := a.Cron.AddFunc(spec, job); err != nil {
		return err
	}
	return nil
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	if a.Publisher != nil {
		go a.Publisher.Run(ctx)
	}
	if a.Cron != nil {
		a.Cron.Start()
		a.Logger.Info("Cron started", zap.String("cronSpec", a.Config.SweepSpec))
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("Server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
	a.Pool.StopAndWait()

	if a.RedisClient != nil {
		// let the publisher flush before the connection goes away
		time.Sleep(200 * time.Millisecond)
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	a.Logger.Info("さようなら!")
}
