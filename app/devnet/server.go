package devnet

import (
	"net/http"
	"time"

	"github.com/canopy-network/tokenbound/app/devnet/controller"
	"github.com/canopy-network/tokenbound/app/devnet/types"
	"github.com/canopy-network/tokenbound/pkg/utils"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// NewServer builds the HTTP server for app. It is started by app.Start.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	err = app.SetupScheduler(cron.DefaultLogger, app.Config.SweepSpec, func() {
		swept := ctler.SweepChallenges(time.Now())
		fields := []zap.Field{
			zap.Int("expiredChallenges", swept),
			zap.Int("subscribers", app.Hub.Subscribers()),
			zap.Uint64("droppedEvents", app.Hub.Dropped()),
		}
		if app.Publisher != nil {
			fields = append(fields, zap.Uint64("droppedPublishes", app.Publisher.Dropped()))
		}
		app.Logger.Debug("Maintenance sweep", fields...)
	})
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":8545")

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           controller.WithCORS(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
