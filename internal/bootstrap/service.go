package bootstrap

import "github.com/lerianstudio/midaz-sync/common"

// Run starts the Delivery API and both queue workers concurrently. This is
// the only code main.go needs to run the process.
func (app *Service) Run() {
	common.NewLauncher(
		common.WithLogger(app.Logger),
		common.RunApp("Delivery API", app.Server),
		common.RunApp("Capture Worker", app.CaptureWorker),
		common.RunApp("Ingest Worker", app.IngestWorker),
	).Run()
}
