package bootstrap

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/lerianstudio/midaz-sync/common/mlog"
	"github.com/lerianstudio/midaz-sync/internal/domain"
	"github.com/lerianstudio/midaz-sync/internal/ingest"
	"github.com/lerianstudio/midaz-sync/internal/ledgerstore"
	"github.com/lerianstudio/midaz-sync/internal/queue"
	"github.com/lerianstudio/midaz-sync/internal/registry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyLogger records every Errorf call so a test can assert on message content
// without depending on mzap's real output.
type spyLogger struct {
	mlog.Logger
	errors []string
}

func newSpyLogger() *spyLogger { return &spyLogger{Logger: noopLogger{}} }

func (s *spyLogger) Errorf(format string, args ...any) {
	s.errors = append(s.errors, format)
}

// noopLogger backs spyLogger's embedded mlog.Logger so every other method
// required by the interface has a harmless implementation.
type noopLogger struct{}

func (noopLogger) Info(...any)            {}
func (noopLogger) Infof(string, ...any)   {}
func (noopLogger) Infoln(...any)          {}
func (noopLogger) Error(...any)           {}
func (noopLogger) Errorf(string, ...any)  {}
func (noopLogger) Errorln(...any)         {}
func (noopLogger) Warn(...any)            {}
func (noopLogger) Warnf(string, ...any)   {}
func (noopLogger) Warnln(...any)          {}
func (noopLogger) Debug(...any)           {}
func (noopLogger) Debugf(string, ...any)  {}
func (noopLogger) Debugln(...any)         {}
func (noopLogger) Fatal(...any)           {}
func (noopLogger) Fatalf(string, ...any)  {}
func (noopLogger) Fatalln(...any)         {}
func (noopLogger) WithFields(...any) mlog.Logger { return noopLogger{} }
func (noopLogger) Sync() error            { return nil }

type fakeEvents struct{}

func (fakeEvents) Create(_ context.Context, ev *domain.Event) (*domain.Event, error) { return ev, nil }
func (fakeEvents) Find(context.Context, uuid.UUID) (*domain.Event, error)            { return nil, nil }
func (fakeEvents) ListSince(context.Context, []uuid.UUID) ([]*domain.Event, error)   { return nil, nil }

type fakeAcks struct{}

func (fakeAcks) CreateFanout(context.Context, uuid.UUID, []int64) error { return nil }
func (fakeAcks) PendingEventIDs(context.Context, int64, int) ([]uuid.UUID, error) {
	return nil, nil
}
func (fakeAcks) Acknowledge(context.Context, int64, []uuid.UUID, time.Time) (int64, error) {
	return 0, nil
}
func (fakeAcks) FullyAcknowledgedFromSource(context.Context, int64) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeStations struct{}

func (fakeStations) Find(context.Context, int64) (*domain.Station, error) { return nil, nil }
func (fakeStations) List(context.Context) ([]*domain.Station, error)      { return nil, nil }
func (fakeStations) TouchLastSeen(context.Context, int64, time.Time) error { return nil }

var (
	_ ledgerstore.EventRepository   = fakeEvents{}
	_ ledgerstore.AckRepository     = fakeAcks{}
	_ ledgerstore.StationRepository = fakeStations{}
)

func newTestIngestWorker(t *testing.T, softTimeout time.Duration, logger *spyLogger) *IngestWorker {
	t.Helper()

	reg := registry.New()
	reg.Register(registry.Describe[registry.Workstation]("workstation", registry.PKUUID, nil))
	reg.WireForeignKeys()

	processor := ingest.NewProcessor(reg, fakeEvents{}, fakeAcks{}, fakeStations{})

	return &IngestWorker{processor: processor, softTimeout: softTimeout, Logger: logger}
}

func validChangeBody(t *testing.T) []byte {
	t.Helper()

	change := domain.InboundChange{
		EventUUID:   uuid.New(),
		Model:       "workstation",
		Action:      domain.ActionCreated,
		ObjectID:    uuid.New().String(),
		DataPayload: json.RawMessage(`{}`),
	}

	raw, err := json.Marshal(change)
	require.NoError(t, err)

	job := queue.IngestJob{SourceStationID: 1, Changes: []json.RawMessage{raw}}

	body, err := json.Marshal(job)
	require.NoError(t, err)

	return body
}

func TestIngestWorker_HandleAppliesWithinSoftTimeout(t *testing.T) {
	logger := newSpyLogger()
	w := newTestIngestWorker(t, time.Minute, logger)

	err := w.handle(context.Background(), validChangeBody(t))
	require.NoError(t, err)

	for _, msg := range logger.errors {
		assert.NotContains(t, msg, "soft timeout", "a batch well within budget must not log a timeout")
	}
}

func TestIngestWorker_HandleReportsExpiredSoftTimeout(t *testing.T) {
	logger := newSpyLogger()
	// An already-expired budget: handle's own context.WithTimeout wraps a
	// context that is canceled before ApplyBatch ever runs, exercising the
	// same ctx.Err() branch a genuinely slow batch would hit.
	w := newTestIngestWorker(t, -time.Second, logger)

	err := w.handle(context.Background(), validChangeBody(t))
	require.NoError(t, err)

	found := false

	for _, msg := range logger.errors {
		if strings.Contains(msg, "soft timeout") {
			found = true
		}
	}

	assert.True(t, found, "an expired soft timeout must be logged")
}
