// Package capture implements the post-commit Capture Pipeline: a hook the
// storage layer invokes after a local write commits, which snapshots the
// row synchronously (before returning) and hands the rest of the work - event
// log write, acknowledgement fanout - to an async queue so request latency
// never absorbs RabbitMQ or Postgres contention.
package capture

import (
	"context"
	"encoding/json"

	"github.com/lerianstudio/midaz-sync/common"
	"github.com/lerianstudio/midaz-sync/internal/domain"
	"github.com/lerianstudio/midaz-sync/internal/ledgerstore"
	"github.com/lerianstudio/midaz-sync/internal/queue"
	"github.com/lerianstudio/midaz-sync/internal/registry"

	"github.com/google/uuid"
)

// syncOperationKey marks a goroutine-local context as originating from the
// ingestion pipeline's own writes, so applying an inbound change never
// re-triggers capture and loops the event back to its own source.
type syncOperationKey struct{}

// WithSyncOperation marks ctx as an in-flight sync write. Hook checks this
// before snapshotting and returns immediately if set.
func WithSyncOperation(ctx context.Context) context.Context {
	return context.WithValue(ctx, syncOperationKey{}, true)
}

// IsSyncOperation reports whether ctx was marked by WithSyncOperation.
func IsSyncOperation(ctx context.Context) bool {
	v, _ := ctx.Value(syncOperationKey{}).(bool)
	return v
}

// capturePublisher is the narrow seam Fire needs out of queue.Publisher;
// depending on the interface rather than the concrete type lets the hook's
// own tests exercise Fire without a RabbitMQ connection.
type capturePublisher interface {
	PublishCapture(ctx context.Context, job queue.CaptureJob) error
}

// Hook is invoked by application code immediately after a local row commits.
// The instance passed to Fire must already reflect the post-commit state;
// its primary key is read through the entity's descriptor.
type Hook struct {
	registry  *registry.Registry
	publisher capturePublisher
	appName   string
}

func NewHook(reg *registry.Registry, publisher *queue.Publisher, appName string) *Hook {
	return &Hook{registry: reg, publisher: publisher, appName: appName}
}

// Fire snapshots instance and enqueues a CaptureJob. It is a no-op under
// WithSyncOperation. Resolve and snapshot failures are logged through the
// context logger; every error, including a failed publish, is returned to
// the caller.
func (h *Hook) Fire(ctx context.Context, entityType string, action domain.Action, instance any) error {
	if IsSyncOperation(ctx) {
		return nil
	}

	logger := common.NewLoggerFromContext(ctx)

	descriptor, err := h.registry.Resolve(entityType)
	if err != nil {
		logger.Errorf("capture hook: %v", err)
		return err
	}

	snapshot, err := descriptor.Snapshot(ctx, instance, registry.DirectionPush)
	if err != nil {
		logger.Errorf("capture hook: snapshot failed for %s: %v", entityType, err)
		return err
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	job := queue.CaptureJob{
		App:         h.appName,
		Model:       entityType,
		ObjectID:    descriptor.PKOf(instance),
		Action:      string(action),
		PayloadJSON: payload,
	}

	return h.publisher.PublishCapture(ctx, job)
}

// Worker drains the capture queue, writing one Event row plus one
// Acknowledgement row per known station for every CaptureJob.
type Worker struct {
	events   ledgerstore.EventRepository
	acks     ledgerstore.AckRepository
	stations ledgerstore.StationRepository
}

func NewWorker(events ledgerstore.EventRepository, acks ledgerstore.AckRepository, stations ledgerstore.StationRepository) *Worker {
	return &Worker{events: events, acks: acks, stations: stations}
}

// Handle is the queue.Consumer callback: decode the job, write the event,
// fan it out to every known station (captured events have no source to
// exclude - every station, including whichever one the row-owning app
// belongs to, needs a copy).
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var job queue.CaptureJob

	if err := json.Unmarshal(body, &job); err != nil {
		return err
	}

	ev := &domain.Event{
		ID:         uuid.New(),
		EntityType: job.Model,
		ObjectID:   job.ObjectID,
		Action:     domain.Action(job.Action),
		Payload:    job.PayloadJSON,
	}

	created, err := w.events.Create(ctx, ev)
	if err != nil {
		return err
	}

	stations, err := w.stations.List(ctx)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(stations))
	for _, s := range stations {
		ids = append(ids, s.ID)
	}

	return w.acks.CreateFanout(ctx, created.ID, ids)
}
