package in

import (
	"net/http/httptest"
	"testing"

	"github.com/lerianstudio/midaz-sync/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthTestApp(creds *fakeCreds, stations *fakeStations) *fiber.App {
	app := fiber.New()
	app.Get("/get-pending", WithAPIKey(creds, stations, nil, 0), func(c *fiber.Ctx) error {
		station := StationFromContext(c)
		return c.JSON(fiber.Map{"station_id": station.ID})
	})

	return app
}

func TestWithAPIKey_RejectsMissingAuthorizationHeader(t *testing.T) {
	app := newAuthTestApp(&fakeCreds{byAPIKey: map[string]*domain.StationCredential{}}, &fakeStations{})

	resp, err := app.Test(httptest.NewRequest("GET", "/get-pending", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWithAPIKey_RejectsWrongScheme(t *testing.T) {
	app := newAuthTestApp(&fakeCreds{byAPIKey: map[string]*domain.StationCredential{}}, &fakeStations{})

	req := httptest.NewRequest("GET", "/get-pending", nil)
	req.Header.Set("Authorization", "Bearer sometoken")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWithAPIKey_RejectsUnknownToken(t *testing.T) {
	app := newAuthTestApp(&fakeCreds{byAPIKey: map[string]*domain.StationCredential{}}, &fakeStations{})

	req := httptest.NewRequest("GET", "/get-pending", nil)
	req.Header.Set("Authorization", "Api-Key does-not-exist")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWithAPIKey_AcceptsKnownTokenAndLoadsStation(t *testing.T) {
	creds := &fakeCreds{byAPIKey: map[string]*domain.StationCredential{
		"good-token": {ID: 1, StationID: 4, APIKey: "good-token"},
	}}
	stations := &fakeStations{stations: []*domain.Station{{ID: 4, Name: "annex"}}}

	app := newAuthTestApp(creds, stations)

	req := httptest.NewRequest("GET", "/get-pending", nil)
	req.Header.Set("Authorization", "Api-Key good-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
