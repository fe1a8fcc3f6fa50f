package bootstrap

import (
	"github.com/lerianstudio/midaz-sync/common"
	"github.com/lerianstudio/midaz-sync/common/mlog"
	"github.com/lerianstudio/midaz-sync/common/mopentelemetry"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// Server runs the Delivery API's fiber app.
type Server struct {
	app           *fiber.App
	serverAddress string
	mlog.Logger
	mopentelemetry.Telemetry
}

func NewServer(cfg *Config, app *fiber.App, logger mlog.Logger, telemetry *mopentelemetry.Telemetry) *Server {
	return &Server{
		app:           app,
		serverAddress: cfg.ServerAddress,
		Logger:        logger,
		Telemetry:     *telemetry,
	}
}

func (s *Server) ServerAddress() string {
	return s.serverAddress
}

// Run implements common.App. It is called from its own goroutine by
// common.Launcher, so Listen blocking here does not hold up the queue
// workers' own Run calls.
func (s *Server) Run(l *common.Launcher) error {
	if err := s.app.Listen(s.ServerAddress()); err != nil {
		return errors.Wrap(err, "failed to run the delivery API server")
	}

	return nil
}
