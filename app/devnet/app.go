package devnet

import (
	"context"

	"github.com/canopy-network/tokenbound/app/devnet/types"
	"github.com/canopy-network/tokenbound/pkg/logging"
	"github.com/canopy-network/tokenbound/pkg/redis"
	"github.com/canopy-network/tokenbound/pkg/utils"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	cfg, err := types.ConfigFromEnv()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	app, err := types.NewApp(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("Unable to initialize devnet", zap.Error(err))
	}

	// Mirror ledger events to a Redis stream for tbactl tail and other
	// consumers (optional)
	if utils.EnvBool("REDIS_ENABLED", false) {
		redisClient, err := redis.NewClient(ctx, logger, redis.ConfigFromEnv())
		if err != nil {
			logger.Warn("Failed to initialize Redis client - events will not be mirrored to Redis",
				zap.Error(err))
		} else {
			app.RedisClient = redisClient
			app.Publisher = redis.NewPublisher(redisClient, logger.Named("publisher"), cfg.ChainID, 0)
			app.Hub.Forward(app.Publisher.Enqueue)
			logger.Info("Redis client initialized for event mirroring",
				zap.String("stream", redis.StreamName(cfg.ChainID)))
		}
	} else {
		logger.Info("Redis disabled - events are only available over the websocket")
	}

	return app
}
