package mrabbitmq

import (
	"context"
	"errors"

	"github.com/lerianstudio/midaz-sync/common/mlog"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQConnection is a hub which deals with rabbitmq connections, shared
// by the capture pipeline's producer and the ingestion pipeline's consumer.
type RabbitMQConnection struct {
	ConnectionStringSource string
	Consumer               string
	Producer               string
	Conn                   *amqp.Connection
	Channel                *amqp.Channel
	Connected              bool
	Logger                 mlog.Logger
}

// Connect keeps a singleton connection with rabbitmq.
func (rc *RabbitMQConnection) Connect(ctx context.Context) error {
	rc.Logger.Info("Connecting on rabbitmq...")

	conn, err := amqp.Dial(rc.ConnectionStringSource)
	if err != nil {
		rc.Logger.Error("failed to connect on rabbitmq", zap.Error(err))
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		rc.Logger.Error("failed to open channel on rabbitmq", zap.Error(err))
		return err
	}

	rc.Conn = conn
	rc.Channel = ch

	if !rc.healthCheck() {
		rc.Connected = false
		err := errors.New("can't connect rabbitmq")
		rc.Logger.Error("RabbitMQ.HealthCheck", zap.Error(err))

		return err
	}

	rc.Logger.Info("Connected on rabbitmq")

	rc.Connected = true

	return nil
}

// GetChannel returns the rabbitmq channel, initializing the connection if necessary.
func (rc *RabbitMQConnection) GetChannel(ctx context.Context) (*amqp.Channel, error) {
	if !rc.Connected {
		if err := rc.Connect(ctx); err != nil {
			rc.Logger.Error("failed to reconnect to rabbitmq", zap.Error(err))
			return nil, err
		}
	}

	return rc.Channel, nil
}

// healthCheck declares a durable health_check_queue to prove the channel is
// usable, so a broken connection fails fast at startup instead of on the
// first publish. The pipeline's own queues are not declared here.
func (rc *RabbitMQConnection) healthCheck() bool {
	_, err := rc.Channel.QueueDeclare(
		"health_check_queue",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		rc.Logger.Error("rabbitmq unhealthy", zap.Error(err))
		return false
	}

	return true
}
