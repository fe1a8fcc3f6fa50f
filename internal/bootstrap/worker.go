package bootstrap

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lerianstudio/midaz-sync/common"
	"github.com/lerianstudio/midaz-sync/common/mlog"
	"github.com/lerianstudio/midaz-sync/common/mopentelemetry"
	"github.com/lerianstudio/midaz-sync/internal/capture"
	"github.com/lerianstudio/midaz-sync/internal/domain"
	"github.com/lerianstudio/midaz-sync/internal/ingest"
	"github.com/lerianstudio/midaz-sync/internal/queue"
)

// CaptureWorker drains the capture queue, writing one Event plus one
// Acknowledgement row per known station for every locally captured
// mutation.
type CaptureWorker struct {
	consumer *queue.Consumer
	handler  *capture.Worker
	mlog.Logger
	mopentelemetry.Telemetry
}

func NewCaptureWorker(consumer *queue.Consumer, handler *capture.Worker, logger mlog.Logger, telemetry *mopentelemetry.Telemetry) *CaptureWorker {
	return &CaptureWorker{consumer: consumer, handler: handler, Logger: logger, Telemetry: *telemetry}
}

func (w *CaptureWorker) Run(l *common.Launcher) error {
	ctx := common.ContextWithLogger(context.Background(), w.Logger)
	return w.consumer.Consume(ctx, queue.CaptureQueue, w.handler.Handle)
}

// IngestWorker drains the ingest queue, decoding each IngestJob and running
// its batch through the two-pass apply pipeline. softTimeout bounds one
// batch's apply time (§5's soft deadline): a batch still running past it is
// interrupted via context.WithTimeout rather than left to run forever.
type IngestWorker struct {
	consumer    *queue.Consumer
	processor   *ingest.Processor
	softTimeout time.Duration
	mlog.Logger
	mopentelemetry.Telemetry
}

func NewIngestWorker(consumer *queue.Consumer, processor *ingest.Processor, logger mlog.Logger, telemetry *mopentelemetry.Telemetry, softTimeout time.Duration) *IngestWorker {
	return &IngestWorker{consumer: consumer, processor: processor, softTimeout: softTimeout, Logger: logger, Telemetry: *telemetry}
}

func (w *IngestWorker) Run(l *common.Launcher) error {
	ctx := common.ContextWithLogger(context.Background(), w.Logger)
	return w.consumer.Consume(ctx, queue.IngestQueue, w.handle)
}

func (w *IngestWorker) handle(ctx context.Context, body []byte) error {
	var job queue.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		return err
	}

	changes := make([]domain.InboundChange, 0, len(job.Changes))

	for _, raw := range job.Changes {
		var change domain.InboundChange
		if err := json.Unmarshal(raw, &change); err != nil {
			w.Logger.Errorf("ingest worker: skipping malformed change: %v", err)
			continue
		}

		changes = append(changes, change)
	}

	ctx, cancel := context.WithTimeout(ctx, w.softTimeout)
	defer cancel()

	outcomes := w.processor.ApplyBatch(ctx, job.SourceStationID, changes)

	for _, o := range outcomes {
		if o.Err != nil {
			w.Logger.Errorf("ingest worker: change %s failed: %v", o.EventUUID, o.Err)
		}
	}

	if ctx.Err() != nil {
		w.Logger.Errorf("ingest worker: batch for source station %d hit the soft timeout: %v", job.SourceStationID, ctx.Err())
	}

	return nil
}
