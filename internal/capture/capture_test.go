package capture

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lerianstudio/midaz-sync/internal/domain"
	"github.com/lerianstudio/midaz-sync/internal/ledgerstore"
	"github.com/lerianstudio/midaz-sync/internal/queue"
	"github.com/lerianstudio/midaz-sync/internal/registry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDescriptor struct {
	name     string
	snapshot map[string]any
	pk       string
	snapErr  error
}

func (d *fakeDescriptor) Name() string                       { return d.name }
func (d *fakeDescriptor) PKKind() registry.PKKind             { return registry.PKInt }
func (d *fakeDescriptor) Fields() []registry.FieldDescriptor  { return nil }
func (d *fakeDescriptor) LoadByPK(context.Context, string) (any, error) { return nil, nil }
func (d *fakeDescriptor) LookupByUnique(context.Context, string, any) (any, error) {
	return nil, nil
}
func (d *fakeDescriptor) New(pk string) any { return pk }
func (d *fakeDescriptor) Snapshot(context.Context, any, registry.Direction) (map[string]any, error) {
	return d.snapshot, d.snapErr
}
func (d *fakeDescriptor) ApplyScalars(any, map[string]any) error { return nil }
func (d *fakeDescriptor) ResolveFK(context.Context, any, string, string) (bool, error) {
	return false, nil
}
func (d *fakeDescriptor) SetM2M(context.Context, any, string, []string) error { return nil }
func (d *fakeDescriptor) Persist(context.Context, any) error                  { return nil }
func (d *fakeDescriptor) DeleteByPK(context.Context, string) error            { return nil }
func (d *fakeDescriptor) PKOf(any) string                                     { return d.pk }

type fakeEvents struct {
	created []*domain.Event
	byID    map[uuid.UUID]*domain.Event
}

func (f *fakeEvents) Create(_ context.Context, ev *domain.Event) (*domain.Event, error) {
	f.created = append(f.created, ev)
	if f.byID == nil {
		f.byID = map[uuid.UUID]*domain.Event{}
	}
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
	fannedOutEvent uuid.UUID
	fannedOutTo    []int64
}

func (f *fakeAcks) CreateFanout(_ context.Context, eventID uuid.UUID, stationIDs []int64) error {
	f.fannedOutEvent = eventID
	f.fannedOutTo = append([]int64{}, stationIDs...)
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

// capturedPublish records what Fire attempted to publish, standing in for
// the real queue.Publisher so Fire is exercised without a RabbitMQ
// connection - it has no HTTP call site in this repo (the hook is a library
// entry point an embedding application invokes directly), so its own tests
// are the only place it gets driven end to end.
type capturedPublish struct {
	job queue.CaptureJob
	ok  bool
}

func (cp *capturedPublish) PublishCapture(_ context.Context, job queue.CaptureJob) error {
	cp.job = job
	cp.ok = true
	return nil
}

func newHookUnderTest(t *testing.T) (*Hook, *capturedPublish) {
	t.Helper()

	reg := registry.New()
	reg.Register(&fakeDescriptor{name: "Workstation", snapshot: map[string]any{"id": "7", "name": "bench-3"}, pk: "7"})

	cp := &capturedPublish{}
	hook := &Hook{registry: reg, publisher: cp, appName: "shopfloor"}

	return hook, cp
}

func TestHookFire_PublishesSnapshot(t *testing.T) {
	hook, cp := newHookUnderTest(t)

	err := hook.Fire(context.Background(), "Workstation", domain.ActionUpdated, "7")
	require.NoError(t, err)

	assert.True(t, cp.ok)
	assert.Equal(t, "shopfloor", cp.job.App)
	assert.Equal(t, "Workstation", cp.job.Model)
	assert.Equal(t, "7", cp.job.ObjectID)
	assert.Equal(t, "U", cp.job.Action)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(cp.job.PayloadJSON, &decoded))
	assert.Equal(t, "bench-3", decoded["name"])
}

func TestHookFire_NoopUnderSyncOperation(t *testing.T) {
	hook, cp := newHookUnderTest(t)

	ctx := WithSyncOperation(context.Background())
	err := hook.Fire(ctx, "Workstation", domain.ActionCreated, "7")

	require.NoError(t, err)
	assert.False(t, cp.ok, "Fire must not publish once the context is marked as a sync operation")
}

func TestHookFire_UnknownEntityReturnsError(t *testing.T) {
	reg := registry.New()
	cp := &capturedPublish{}
	hook := &Hook{registry: reg, publisher: cp, appName: "shopfloor"}

	err := hook.Fire(context.Background(), "Nonexistent", domain.ActionCreated, "1")
	require.Error(t, err)
	assert.False(t, cp.ok)
}

func TestWorkerHandle_WritesEventAndFansOutToEveryStation(t *testing.T) {
	events := &fakeEvents{}
	acks := &fakeAcks{}
	stations := &fakeStations{stations: []*domain.Station{{ID: 1}, {ID: 2}, {ID: 3}}}

	w := NewWorker(events, acks, stations)

	job := queue.CaptureJob{App: "shopfloor", Model: "Workstation", ObjectID: "7", Action: "C", PayloadJSON: json.RawMessage(`{"id":"7"}`)}
	body, err := json.Marshal(job)
	require.NoError(t, err)

	require.NoError(t, w.Handle(context.Background(), body))

	require.Len(t, events.created, 1)
	assert.Equal(t, "Workstation", events.created[0].EntityType)
	assert.ElementsMatch(t, []int64{1, 2, 3}, acks.fannedOutTo)
}

func TestWorkerHandle_MalformedBodyIsRejected(t *testing.T) {
	w := NewWorker(&fakeEvents{}, &fakeAcks{}, &fakeStations{})

	err := w.Handle(context.Background(), []byte("not json"))
	require.Error(t, err)
	assert.True(t, errors.As(err, new(*json.SyntaxError)))
}
