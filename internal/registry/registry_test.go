package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_PushEmbedsFileInlinePullReferencesByURL(t *testing.T) {
	reg := New()
	reg.Register(Describe[Driver]("driver", PKInt, func(filename string) string {
		return "https://files.example/" + filename
	}))

	d, err := reg.Resolve("driver")
	require.NoError(t, err)

	drv := &Driver{
		ID:         7,
		FullName:   "Alex",
		License:    "L-7",
		HiredAt:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		HourlyRate: decimal.RequireFromString("20.25"),
		Photo:      File{Filename: "photo.jpg", Content: []byte("binary-data")},
	}

	pushed, err := d.Snapshot(context.Background(), drv, DirectionPush)
	require.NoError(t, err)

	photoPush, ok := pushed["photo"].(map[string]any)
	require.True(t, ok, "push direction embeds the file inline")
	assert.Equal(t, "photo.jpg", photoPush["filename"])
	assert.NotEmpty(t, photoPush["content"])

	pulled, err := d.Snapshot(context.Background(), drv, DirectionPull)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/photo.jpg", pulled["photo"])

	assert.Equal(t, "7", pushed["id"])
	assert.Equal(t, "20.25", pushed["hourly_rate"])
	assert.Equal(t, "2024-03-01T00:00:00Z", pushed["hired_at"])
}

func TestSnapshot_EmptyFileFieldSerializesAsNil(t *testing.T) {
	d := Describe[Driver]("driver", PKInt, nil)

	drv := &Driver{ID: 1, FullName: "Sam", License: "L-1", HourlyRate: decimal.Zero}

	out, err := d.Snapshot(context.Background(), drv, DirectionPull)
	require.NoError(t, err)
	assert.Nil(t, out["photo"])
}

func TestApplyScalars_SetsEveryFieldKindAndClearsAbsentFile(t *testing.T) {
	d := Describe[Driver]("driver", PKInt, nil)

	drv := &Driver{ID: 1, Photo: File{Filename: "old.jpg", Content: []byte("x")}}

	err := d.ApplyScalars(drv, map[string]any{
		"full_name":   "Jordan",
		"license":     "L-99",
		"hired_at":    "2023-06-15T12:00:00Z",
		"hourly_rate": "33.10",
	})
	require.NoError(t, err)

	assert.Equal(t, "Jordan", drv.FullName)
	assert.Equal(t, "L-99", drv.License)
	assert.Equal(t, "2023-06-15T12:00:00Z", drv.HiredAt.UTC().Format(time.RFC3339))
	assert.True(t, decimal.RequireFromString("33.10").Equal(drv.HourlyRate))
	// photo absent from the payload - the existing value is cleared, not left stale
	assert.Equal(t, File{}, drv.Photo)
}

func TestApplyScalars_DecodesInlineFileContent(t *testing.T) {
	d := Describe[Driver]("driver", PKInt, nil)
	drv := &Driver{ID: 1}

	err := d.ApplyScalars(drv, map[string]any{
		"photo": map[string]any{"filename": "id.png", "content": "aGVsbG8="},
	})
	require.NoError(t, err)

	assert.Equal(t, "id.png", drv.Photo.Filename)
	assert.Equal(t, "hello", string(drv.Photo.Content))
}

func TestApplyScalars_RejectsNonPointerInstance(t *testing.T) {
	d := Describe[Driver]("driver", PKInt, nil)
	err := d.ApplyScalars(Driver{}, map[string]any{})
	assert.Error(t, err)
}

func TestPKOf_UUIDAndIntKinds(t *testing.T) {
	wsID := uuid.New()
	wd := Describe[Workstation]("workstation", PKUUID, nil)
	assert.Equal(t, wsID.String(), wd.PKOf(&Workstation{ID: wsID}))

	dd := Describe[Driver]("driver", PKInt, nil)
	assert.Equal(t, "42", dd.PKOf(&Driver{ID: 42}))
}

func TestNew_SeedsPrimaryKeyOnly(t *testing.T) {
	wsID := uuid.New()
	wd := Describe[Workstation]("workstation", PKUUID, nil)

	instance := wd.New(wsID.String())
	ws, ok := instance.(*Workstation)
	require.True(t, ok)
	assert.Equal(t, wsID, ws.ID)
	assert.Empty(t, ws.Name)
}

func TestPersistAndLoadByPK_RoundTripsAndClonesSoMutationsDontAlias(t *testing.T) {
	d := Describe[Workstation]("workstation", PKUUID, nil)
	id := uuid.New()

	ws := &Workstation{ID: id, Name: "bench", Timezone: "UTC"}
	require.NoError(t, d.Persist(context.Background(), ws))

	ws.Name = "mutated-after-persist"

	loaded, err := d.LoadByPK(context.Background(), id.String())
	require.NoError(t, err)

	got, ok := loaded.(*Workstation)
	require.True(t, ok)
	assert.Equal(t, "bench", got.Name, "Persist must not alias the caller's instance")

	got.Name = "mutated-after-load"

	reloaded, err := d.LoadByPK(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, "bench", reloaded.(*Workstation).Name, "LoadByPK must not alias the stored instance")
}

func TestLoadByPK_AbsentRowReturnsNilNil(t *testing.T) {
	d := Describe[Workstation]("workstation", PKUUID, nil)
	instance, err := d.LoadByPK(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, instance)
}

func TestLookupByUnique_UnknownFieldIsAnError(t *testing.T) {
	d := Describe[Workstation]("workstation", PKUUID, nil)
	_, err := d.LookupByUnique(context.Background(), "timezone", "UTC")
	assert.Error(t, err, "timezone is not tagged unique")
}

func TestDeleteByPK_AbsentRowIsANoop(t *testing.T) {
	d := Describe[Workstation]("workstation", PKUUID, nil)
	assert.NoError(t, d.DeleteByPK(context.Background(), uuid.New().String()))
}

func TestSetM2M_NoopPlaceholder(t *testing.T) {
	d := Describe[Workstation]("workstation", PKUUID, nil)
	ws := &Workstation{ID: uuid.New()}
	assert.NoError(t, d.SetM2M(context.Background(), ws, "anything", []string{"a", "b"}))
}

func TestWireForeignKeys_ResolvesFKOnlyWhenTargetRowExists(t *testing.T) {
	reg := New()
	reg.Register(Describe[Workstation]("workstation", PKUUID, nil))
	driverDescriptor := Describe[Driver]("driver", PKInt, nil)
	reg.Register(driverDescriptor)
	reg.WireForeignKeys()

	wsID := uuid.New()
	drv := &Driver{ID: 1}

	found, err := driverDescriptor.ResolveFK(context.Background(), drv, "home_workstation", wsID.String())
	require.NoError(t, err)
	assert.False(t, found, "target row does not exist yet")
	assert.Equal(t, uuid.Nil, drv.HomeWorkstationID)

	wd, err := reg.Resolve("workstation")
	require.NoError(t, err)
	require.NoError(t, wd.Persist(context.Background(), &Workstation{ID: wsID, Name: "bench", Timezone: "UTC"}))

	found, err = driverDescriptor.ResolveFK(context.Background(), drv, "home_workstation", wsID.String())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, wsID, drv.HomeWorkstationID)
}

func TestResolveFK_UnknownFieldIsAnError(t *testing.T) {
	d := Describe[Driver]("driver", PKInt, nil)
	_, err := d.ResolveFK(context.Background(), &Driver{ID: 1}, "no_such_field", "1")
	assert.Error(t, err)
}

func TestRegistry_ResolveUnknownNameIsAnError(t *testing.T) {
	reg := New()
	_, err := reg.Resolve("nonexistent")
	assert.Error(t, err)
}

func TestRegistry_NamesListsEveryRegisteredType(t *testing.T) {
	reg := New()
	reg.Register(Describe[Workstation]("workstation", PKUUID, nil))
	reg.Register(Describe[Driver]("driver", PKInt, nil))

	assert.ElementsMatch(t, []string{"workstation", "driver"}, reg.Names())
}
