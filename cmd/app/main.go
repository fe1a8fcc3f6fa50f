package main

import (
	"github.com/lerianstudio/midaz-sync/internal/bootstrap"

	"github.com/lerianstudio/midaz-sync/common"
)

func main() {
	common.InitLocalEnvConfig()

	service, logger, telemetry := bootstrap.InitServers()

	telemetry.InitializeTelemetry()
	defer telemetry.ShutdownTelemetry()

	defer func() {
		if err := logger.Sync(); err != nil {
			logger.Fatalf("failed to sync logger: %s", err)
		}
	}()

	service.Run()
}
