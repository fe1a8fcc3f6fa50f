package in

import (
	"time"

	"github.com/lerianstudio/midaz-sync/common/mlog"
	"github.com/lerianstudio/midaz-sync/common/mopentelemetry"
	mhttp "github.com/lerianstudio/midaz-sync/common/net/http"
	"github.com/lerianstudio/midaz-sync/internal/ledgerstore"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/redis/go-redis/v9"
	fiberSwagger "github.com/swaggo/fiber-swagger"
)

// apiKeyCacheTTL bounds how long a resolved API key is trusted out of Redis
// before the next request re-checks Postgres, so a revoked credential stops
// working within one TTL window rather than instantly.
const apiKeyCacheTTL = 30 * time.Second

// NewRouter assembles the Delivery API: peer endpoints behind API-key auth,
// operator endpoints behind basic auth, health/version/swagger utility
// routes.
func NewRouter(
	lg mlog.Logger,
	tl *mopentelemetry.Telemetry,
	delivery *DeliveryHandler,
	operator *OperatorHandler,
	creds ledgerstore.CredentialRepository,
	stations ledgerstore.StationRepository,
	cache *redis.Client,
	operatorUser, operatorPass string,
) *fiber.App {
	f := fiber.New(fiber.Config{DisableStartupMessage: true})

	tlMid := mhttp.NewTelemetryMiddleware(tl)

	f.Use(tlMid.WithTelemetry(tl))
	f.Use(cors.New())
	f.Use(mhttp.WithHTTPLogging(mhttp.WithCustomLogger(lg)))

	apiKeyAuth := WithAPIKey(creds, stations, cache, apiKeyCacheTTL)
	operatorAuth := mhttp.WithBasicAuth(mhttp.FixedBasicAuthFunc(operatorUser, operatorPass), "sync-operator")

	// -- Peer endpoints --
	f.Post("/push", apiKeyAuth, delivery.Push)
	f.Get("/get-pending", apiKeyAuth, delivery.GetPending)
	f.Post("/acknowledge", apiKeyAuth, delivery.Acknowledge)

	// -- Operator endpoints --
	f.Get("/workstation-list", operatorAuth, operator.ListWorkstations)
	f.Post("/sync-configs", operatorAuth, operator.CreateSyncConfig)
	f.Get("/sync-configs/:station_id", operatorAuth, operator.ListSyncConfigs)
	f.Delete("/sync-configs/:id", operatorAuth, operator.RevokeSyncConfig)

	// -- Health / version / docs --
	f.Get("/health", mhttp.Ping)
	f.Get("/version", mhttp.Version("1.0.0"))
	f.Get("/swagger/*", fiberSwagger.WrapHandler)

	f.Use(tlMid.EndTracingSpans)

	return f
}
