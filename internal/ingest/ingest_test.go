package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lerianstudio/midaz-sync/common"
	cn "github.com/lerianstudio/midaz-sync/common/constant"
	"github.com/lerianstudio/midaz-sync/internal/domain"
	"github.com/lerianstudio/midaz-sync/internal/ledgerstore"
	"github.com/lerianstudio/midaz-sync/internal/registry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvents struct {
	byID map[uuid.UUID]*domain.Event
}

func newFakeEvents() *fakeEvents { return &fakeEvents{byID: map[uuid.UUID]*domain.Event{}} }

func (f *fakeEvents) Create(_ context.Context, ev *domain.Event) (*domain.Event, error) {
	f.byID[ev.ID] = ev
	return ev, nil
}
func (f *fakeEvents) Find(_ context.Context, id uuid.UUID) (*domain.Event, error) {
	return f.byID[id], nil
}
func (f *fakeEvents) ListSince(context.Context, []uuid.UUID) ([]*domain.Event, error) {
	return nil, nil
}

type fakeAcks struct {
	fanouts map[uuid.UUID][]int64
}

func newFakeAcks() *fakeAcks { return &fakeAcks{fanouts: map[uuid.UUID][]int64{}} }

func (f *fakeAcks) CreateFanout(_ context.Context, eventID uuid.UUID, stationIDs []int64) error {
	f.fanouts[eventID] = append([]int64{}, stationIDs...)
	return nil
}
func (f *fakeAcks) PendingEventIDs(context.Context, int64, int) ([]uuid.UUID, error) {
	return nil, nil
}
func (f *fakeAcks) Acknowledge(context.Context, int64, []uuid.UUID, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeAcks) FullyAcknowledgedFromSource(context.Context, int64) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeStations struct {
	stations []*domain.Station
}

func (f *fakeStations) Find(context.Context, int64) (*domain.Station, error) { return nil, nil }
func (f *fakeStations) List(context.Context) ([]*domain.Station, error)      { return f.stations, nil }
func (f *fakeStations) TouchLastSeen(context.Context, int64, time.Time) error { return nil }

var (
	_ ledgerstore.EventRepository   = (*fakeEvents)(nil)
	_ ledgerstore.AckRepository     = (*fakeAcks)(nil)
	_ ledgerstore.StationRepository = (*fakeStations)(nil)
)

func newTestProcessor(stations []*domain.Station) (*Processor, *registry.Registry, *fakeEvents, *fakeAcks) {
	reg := registry.New()
	reg.Register(registry.Describe[registry.Workstation]("workstation", registry.PKUUID, nil))
	reg.Register(registry.Describe[registry.Driver]("driver", registry.PKInt, nil))
	reg.WireForeignKeys()

	events := newFakeEvents()
	acks := newFakeAcks()

	return NewProcessor(reg, events, acks, &fakeStations{stations: stations}), reg, events, acks
}

func change(model string, action domain.Action, objectID string, payload map[string]any) domain.InboundChange {
	raw, _ := json.Marshal(payload)
	return domain.InboundChange{
		EventUUID:   uuid.New(),
		Model:       model,
		Action:      action,
		ObjectID:    objectID,
		DataPayload: raw,
	}
}

func TestApplyBatch_CreatesAndFansOutToEveryStationExceptSource(t *testing.T) {
	p, _, events, acks := newTestProcessor([]*domain.Station{{ID: 1}, {ID: 2}, {ID: 3}})

	id := uuid.New()
	c := change("workstation", domain.ActionCreated, id.String(), map[string]any{"id": id.String(), "name": "bench-1", "timezone": "UTC"})

	outcomes := p.ApplyBatch(context.Background(), 1, []domain.InboundChange{c})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)

	ev, ok := events.byID[c.EventUUID]
	require.True(t, ok)
	assert.ElementsMatch(t, []int64{2, 3}, acks.fanouts[ev.ID])
}

func TestApplyBatch_RedeliveredEventIsIdempotent(t *testing.T) {
	p, _, events, acks := newTestProcessor([]*domain.Station{{ID: 1}, {ID: 2}})

	id := uuid.New()
	c := change("workstation", domain.ActionCreated, id.String(), map[string]any{"id": id.String(), "name": "bench-2", "timezone": "UTC"})

	first := p.ApplyBatch(context.Background(), 1, []domain.InboundChange{c})
	require.NoError(t, first[0].Err)

	second := p.ApplyBatch(context.Background(), 1, []domain.InboundChange{c})
	require.NoError(t, second[0].Err)

	assert.Len(t, events.byID, 1)
	// fan-out recorded once, not duplicated by the redelivery
	assert.Len(t, acks.fanouts, 1)
}

func TestApplyBatch_ResolvesExistingInstanceByUniqueFieldWhenPKAbsent(t *testing.T) {
	p, reg, _, _ := newTestProcessor([]*domain.Station{{ID: 1}})

	original := uuid.New()
	create := change("workstation", domain.ActionCreated, original.String(), map[string]any{"id": original.String(), "name": "bench-3", "timezone": "UTC"})
	outcomes := p.ApplyBatch(context.Background(), 1, []domain.InboundChange{create})
	require.NoError(t, outcomes[0].Err)

	// A later update arrives keyed by a *different* object_id (e.g. this
	// station's own locally generated id for the same workstation) but
	// carrying the same unique "name" - it must resolve to the existing row
	// rather than creating a second one.
	differentID := uuid.New()
	update := change("workstation", domain.ActionUpdated, differentID.String(), map[string]any{"id": differentID.String(), "name": "bench-3", "timezone": "America/New_York"})
	outcomes = p.ApplyBatch(context.Background(), 1, []domain.InboundChange{update})
	require.NoError(t, outcomes[0].Err)

	d, err := reg.Resolve("workstation")
	require.NoError(t, err)

	// the original row was updated in place - looking it up by its own
	// original primary key still finds it, now with the updated timezone
	instance, err := d.LoadByPK(context.Background(), original.String())
	require.NoError(t, err)
	require.NotNil(t, instance)

	ws, ok := instance.(*registry.Workstation)
	require.True(t, ok)
	assert.Equal(t, "America/New_York", ws.Timezone)

	// the second object_id never became its own row
	second, err := d.LoadByPK(context.Background(), differentID.String())
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestApplyBatch_AmbiguousUniqueMatchIsRejected(t *testing.T) {
	p, reg, _, _ := newTestProcessor(nil)

	d, err := reg.Resolve("workstation")
	require.NoError(t, err)

	first := uuid.New()
	second := uuid.New()
	ws1 := &registry.Workstation{ID: first, Name: "dup", Timezone: "UTC"}
	ws2 := &registry.Workstation{ID: second, Name: "dup", Timezone: "UTC"}
	require.NoError(t, d.Persist(context.Background(), ws1))
	require.NoError(t, d.Persist(context.Background(), ws2))

	third := uuid.New()
	c := change("workstation", domain.ActionUpdated, third.String(), map[string]any{"id": third.String(), "name": "dup", "timezone": "UTC"})

	outcomes := p.ApplyBatch(context.Background(), 1, []domain.InboundChange{c})

	require.Len(t, outcomes, 1)
	require.Error(t, outcomes[0].Err)

	var conflict common.EntityConflictError
	require.True(t, errors.As(outcomes[0].Err, &conflict))
	assert.Equal(t, cn.ErrAmbiguousUniqueMatch.Error(), conflict.Code)
}

func TestApplyBatch_DanglingForeignKeyIsSkippedSilentlyNotAnError(t *testing.T) {
	p, reg, _, _ := newTestProcessor(nil)

	driverID := int64(42)
	missingWorkstation := uuid.New()
	c := change("driver", domain.ActionCreated, "42", map[string]any{
		"id":               "42",
		"full_name":        "river",
		"license":          "L-1",
		"hired_at":         time.Now().UTC().Format(time.RFC3339),
		"hourly_rate":      "15.50",
		"home_workstation": missingWorkstation.String(),
	})

	outcomes := p.ApplyBatch(context.Background(), 1, []domain.InboundChange{c})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err, "a dangling foreign key must not surface as a business error")

	d, err := reg.Resolve("driver")
	require.NoError(t, err)

	instance, err := d.LoadByPK(context.Background(), "42")
	require.NoError(t, err)
	require.NotNil(t, instance)

	drv, ok := instance.(*registry.Driver)
	require.True(t, ok)
	assert.Equal(t, driverID, drv.ID)
	assert.Equal(t, uuid.Nil, drv.HomeWorkstationID, "the dangling reference must not be written")
}

func TestApplyBatch_UnknownEntityTypeIsRejected(t *testing.T) {
	p, _, _, _ := newTestProcessor(nil)

	c := change("unknown-entity", domain.ActionCreated, "1", map[string]any{"id": "1"})
	outcomes := p.ApplyBatch(context.Background(), 1, []domain.InboundChange{c})

	require.Len(t, outcomes, 1)

	var valErr common.ValidationError
	require.True(t, errors.As(outcomes[0].Err, &valErr))
	assert.Equal(t, cn.ErrUnknownEntityType.Error(), valErr.Code)
}

func TestApplyBatch_InvalidActionIsRejected(t *testing.T) {
	p, _, _, _ := newTestProcessor(nil)

	c := change("workstation", domain.Action("X"), uuid.New().String(), map[string]any{"id": "1"})
	outcomes := p.ApplyBatch(context.Background(), 1, []domain.InboundChange{c})

	require.Len(t, outcomes, 1)

	var valErr common.ValidationError
	require.True(t, errors.As(outcomes[0].Err, &valErr))
	assert.Equal(t, cn.ErrInvalidAction.Error(), valErr.Code)
}

func TestApplyBatch_DeleteRemovesTheRow(t *testing.T) {
	p, reg, _, _ := newTestProcessor(nil)

	id := uuid.New()
	create := change("workstation", domain.ActionCreated, id.String(), map[string]any{"id": id.String(), "name": "bench-9", "timezone": "UTC"})
	outcomes := p.ApplyBatch(context.Background(), 1, []domain.InboundChange{create})
	require.NoError(t, outcomes[0].Err)

	del := change("workstation", domain.ActionDeleted, id.String(), map[string]any{})
	outcomes = p.ApplyBatch(context.Background(), 1, []domain.InboundChange{del})
	require.NoError(t, outcomes[0].Err)

	d, err := reg.Resolve("workstation")
	require.NoError(t, err)

	instance, err := d.LoadByPK(context.Background(), id.String())
	require.NoError(t, err)
	assert.Nil(t, instance)
}
