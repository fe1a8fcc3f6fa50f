package in

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/lerianstudio/midaz-sync/common"
	cn "github.com/lerianstudio/midaz-sync/common/constant"
	mhttp "github.com/lerianstudio/midaz-sync/common/net/http"
	"github.com/lerianstudio/midaz-sync/internal/domain"
	"github.com/lerianstudio/midaz-sync/internal/ledgerstore"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type stationContextKey string

const stationLocal stationContextKey = "station"

// StationFromContext returns the authenticated station a middleware-passed
// request is acting as.
func StationFromContext(c *fiber.Ctx) *domain.Station {
	s, _ := c.Locals(stationLocal).(*domain.Station)
	return s
}

// WithAPIKey authenticates peer stations on the wire's
// "Authorization: Api-Key <token>" header, the same constant-time-compare
// discipline WithBasicAuth uses, with a short-lived Redis cache in front of
// the Postgres lookup so a chatty poller doesn't hit the database on every
// get-pending call.
func WithAPIKey(creds ledgerstore.CredentialRepository, stations ledgerstore.StationRepository, cache *redis.Client, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")

		const prefix = "Api-Key "
		if !strings.HasPrefix(auth, prefix) {
			return mhttp.WithError(c, common.ValidateBusinessError(cn.ErrTokenMissing, "StationCredential"))
		}

		token := strings.TrimPrefix(auth, prefix)

		cred, err := lookupCredential(c.UserContext(), creds, cache, ttl, token)
		if err != nil {
			return mhttp.WithError(c, common.ValidateBusinessError(cn.ErrInvalidToken, "StationCredential"))
		}

		station, err := stations.Find(c.UserContext(), cred.StationID)
		if err != nil {
			return mhttp.WithError(c, err)
		}

		c.Locals(stationLocal, station)

		now := time.Now().UTC()
		_ = stations.TouchLastSeen(c.UserContext(), station.ID, now)

		return c.Next()
	}
}

func lookupCredential(ctx context.Context, creds ledgerstore.CredentialRepository, cache *redis.Client, ttl time.Duration, token string) (*domain.StationCredential, error) {
	cacheKey := "sync:apikey:" + token

	if cache != nil {
		if stationID, err := cache.Get(ctx, cacheKey).Int64(); err == nil {
			return &domain.StationCredential{APIKey: token, StationID: stationID}, nil
		}
	}

	cred, err := creds.FindByAPIKey(ctx, token)
	if err != nil {
		return nil, err
	}

	if !constantTimeEqual(cred.APIKey, token) {
		return nil, common.ValidateBusinessError(cn.ErrInvalidToken, "StationCredential")
	}

	if cache != nil {
		cache.Set(ctx, cacheKey, cred.StationID, ttl)
	}

	return cred, nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
