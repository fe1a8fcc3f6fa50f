// Package queue wraps the two RabbitMQ work queues the sync core runs: one
// carrying CaptureJob envelopes from the capture pipeline to the event-log
// writer, one carrying IngestJob envelopes from the Delivery API's push
// handler to the ingestion pipeline's two-pass apply worker.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lerianstudio/midaz-sync/common"
	"github.com/lerianstudio/midaz-sync/common/mopentelemetry"
	"github.com/lerianstudio/midaz-sync/common/mrabbitmq"
	"github.com/lerianstudio/midaz-sync/common/mretry"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// prefetchCount bounds how many unacknowledged deliveries RabbitMQ will hand
// a consumer at once; it also bounds how many deliveries Consume processes
// concurrently, so the two stay consistent.
const prefetchCount = 10

const (
	CaptureQueue = "sync.capture"
	IngestQueue  = "sync.ingest"
)

// CaptureJob is the envelope the capture pipeline's post-commit hook
// publishes: one locally mutated row, snapshotted synchronously before the
// hook returns.
type CaptureJob struct {
	App         string          `json:"app"`
	Model       string          `json:"model"`
	ObjectID    string          `json:"object_id"`
	Action      string          `json:"action"`
	PayloadJSON json.RawMessage `json:"payload_json"`
}

// IngestJob is the envelope the push handler publishes after accepting a
// batch: the two-pass apply worker consumes these off-request, so a slow or
// partially-failing batch never blocks the HTTP response.
type IngestJob struct {
	SourceStationID int64             `json:"source_station_id"`
	Changes         []json.RawMessage `json:"changes"`
}

// Publisher publishes job envelopes onto a named queue with bounded,
// jittered-exponential retry.
type Publisher struct {
	conn   *mrabbitmq.RabbitMQConnection
	retry  mretry.Config
}

func NewPublisher(conn *mrabbitmq.RabbitMQConnection, retry mretry.Config) *Publisher {
	return &Publisher{conn: conn, retry: retry}
}

func (p *Publisher) PublishCapture(ctx context.Context, job CaptureJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.publish(ctx, CaptureQueue, body)
}

func (p *Publisher) PublishIngest(ctx context.Context, job IngestJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.publish(ctx, IngestQueue, body)
}

func (p *Publisher) publish(ctx context.Context, queueName string, body []byte) error {
	tracer := common.NewTracerFromContext(ctx)
	logger := common.NewLoggerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "queue.publish")
	defer span.End()

	var lastErr error

	for attempt := 1; attempt <= p.retry.MaxRetries; attempt++ {
		ch, err := p.conn.GetChannel(ctx)
		if err != nil {
			lastErr = err
		} else if err := declareQueue(ch, queueName); err != nil {
			lastErr = err
		} else {
			lastErr = ch.Publish("", queueName, false, false, amqp.Publishing{
				MessageId:    uuid.NewString(),
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
			})
		}

		if lastErr == nil {
			return nil
		}

		logger.Warnf("queue publish attempt %d/%d to %s failed: %v", attempt, p.retry.MaxRetries, queueName, lastErr)

		if attempt < p.retry.MaxRetries {
			time.Sleep(p.retry.Backoff(attempt))
		}
	}

	mopentelemetry.HandleSpanError(&span, "Failed to publish after exhausting retries", lastErr)

	return lastErr
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}

// Consumer drains a named queue, invoking handle for each delivery. A
// handler error nacks the delivery with requeue=true: it is redelivered
// without backoff and without a limit on redeliveries, and is never
// dead-lettered.
type Consumer struct {
	conn *mrabbitmq.RabbitMQConnection
}

func NewConsumer(conn *mrabbitmq.RabbitMQConnection) *Consumer {
	return &Consumer{conn: conn}
}

func (c *Consumer) Consume(ctx context.Context, queueName string, handle func(context.Context, []byte) error) error {
	logger := common.NewLoggerFromContext(ctx)

	ch, err := c.conn.GetChannel(ctx)
	if err != nil {
		return err
	}

	if err := declareQueue(ch, queueName); err != nil {
		return err
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	logger.Infof("consuming queue %s", queueName)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchCount)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return g.Wait()
			}

			d := d

			g.Go(func() error {
				if err := handle(gctx, d.Body); err != nil {
					logger.Errorf("handler failed for queue %s: %v", queueName, err)
					_ = d.Nack(false, true)

					return nil
				}

				_ = d.Ack(false)

				return nil
			})
		}
	}
}
