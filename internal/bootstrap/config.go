// Package bootstrap wires the sync core's components together: config
// loading, connections, repositories, the capture/ingest pipelines and the
// Delivery API, assembled the way the teacher's own bootstrap packages
// build a Service out of a Config.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/lerianstudio/midaz-sync/common/mlog"
	"github.com/lerianstudio/midaz-sync/common/mopentelemetry"
	"github.com/lerianstudio/midaz-sync/common/mpostgres"
	"github.com/lerianstudio/midaz-sync/common/mrabbitmq"
	"github.com/lerianstudio/midaz-sync/common/mredis"
	"github.com/lerianstudio/midaz-sync/common/mretry"
	"github.com/lerianstudio/midaz-sync/common/mzap"
	"github.com/lerianstudio/midaz-sync/internal/adapters/http/in"
	"github.com/lerianstudio/midaz-sync/internal/capture"
	"github.com/lerianstudio/midaz-sync/internal/ingest"
	"github.com/lerianstudio/midaz-sync/internal/ledgerstore"
	"github.com/lerianstudio/midaz-sync/internal/queue"
	"github.com/lerianstudio/midaz-sync/internal/registry"

	"github.com/lerianstudio/midaz-sync/common"
)

// ApplicationName identifies this process in logs and telemetry resources.
const ApplicationName = "midaz-sync"

// Config is the top-level configuration struct, populated from the
// environment by common.SetConfigFromEnvVars.
type Config struct {
	EnvName  string `env:"ENV_NAME"`
	LogLevel string `env:"LOG_LEVEL"`

	OtelServiceName         string `env:"OTEL_RESOURCE_SERVICE_NAME"`
	OtelLibraryName         string `env:"OTEL_LIBRARY_NAME"`
	OtelServiceVersion      string `env:"OTEL_RESOURCE_SERVICE_VERSION"`
	OtelDeploymentEnv       string `env:"OTEL_RESOURCE_DEPLOYMENT_ENVIRONMENT"`
	OtelColExporterEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	ServerAddress string `env:"SERVER_ADDRESS"`

	PrimaryDBHost     string `env:"DB_HOST"`
	PrimaryDBPort     string `env:"DB_PORT"`
	PrimaryDBName     string `env:"DB_NAME"`
	PrimaryDBUser     string `env:"DB_USER"`
	PrimaryDBPassword string `env:"DB_PASSWORD"`

	ReplicaDBHost     string `env:"DB_REPLICA_HOST"`
	ReplicaDBPort     string `env:"DB_REPLICA_PORT"`
	ReplicaDBName     string `env:"DB_REPLICA_NAME"`
	ReplicaDBUser     string `env:"DB_REPLICA_USER"`
	ReplicaDBPassword string `env:"DB_REPLICA_PASSWORD"`

	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     string `env:"REDIS_PORT"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	RabbitMQHost     string `env:"RABBITMQ_HOST"`
	RabbitMQPortAMQP string `env:"RABBITMQ_PORT_AMQP"`
	RabbitMQUser     string `env:"RABBITMQ_DEFAULT_USER"`
	RabbitMQPass     string `env:"RABBITMQ_DEFAULT_PASS"`

	// SynchronizableModels is loaded from SYNCHRONIZABLE_MODELS but nothing
	// reads it: the registry is populated by registry.RegisterFixtures
	// whatever this value holds.
	SynchronizableModels string `env:"SYNCHRONIZABLE_MODELS"`

	FilesBaseURL string `env:"FILES_BASE_URL"`

	OperatorUser string `env:"OPERATOR_BASIC_AUTH_USER"`
	OperatorPass string `env:"OPERATOR_BASIC_AUTH_PASSWORD"`

	CaptureMaxRetries int `env:"CAPTURE_MAX_RETRIES"`
	IngestMaxRetries  int `env:"INGEST_MAX_RETRIES"`

	// TaskSoftTimeoutSeconds bounds one ingest batch's apply time; a batch
	// still running past it is interrupted rather than left to run forever.
	TaskSoftTimeoutSeconds int `env:"TASK_SOFT_TIMEOUT_SECONDS"`
}

// defaultTaskSoftTimeout is used when TASK_SOFT_TIMEOUT_SECONDS is unset.
const defaultTaskSoftTimeout = 300 * time.Second

// Service is the fully wired application: an HTTP server plus the two
// background queue workers, assembled the way the teacher's Service bundles
// *Server and *Consumer behind a single Run(). CaptureHook is exported
// alongside the runnable components since it is the signal-like hook
// domain-write paths invoke on mutation (§OVERVIEW) - those write paths are
// an external collaborator out of this repo's scope, so the hook has no
// HTTP call site here; an embedding application wires it directly.
type Service struct {
	*Server
	*CaptureWorker
	*IngestWorker
	CaptureHook *capture.Hook
	mlog.Logger
}

// InitServers loads Config from the environment and wires every connection,
// repository and pipeline component into a runnable Service, mirroring the
// teacher's InitServers() shape: build connections, build repositories,
// build use-cases, hand back (service, logger, telemetry).
func InitServers() (*Service, mlog.Logger, *mopentelemetry.Telemetry) {
	cfg := &Config{}

	if err := common.SetConfigFromEnvVars(cfg); err != nil {
		panic(err)
	}

	logger := mzap.InitializeLogger()

	telemetry := &mopentelemetry.Telemetry{
		LibraryName:               cfg.OtelLibraryName,
		ServiceName:               cfg.OtelServiceName,
		ServiceVersion:            cfg.OtelServiceVersion,
		DeploymentEnv:             cfg.OtelDeploymentEnv,
		CollectorExporterEndpoint: cfg.OtelColExporterEndpoint,
	}

	primaryConnStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.PrimaryDBUser, cfg.PrimaryDBPassword, cfg.PrimaryDBHost, cfg.PrimaryDBPort, cfg.PrimaryDBName)
	replicaConnStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.ReplicaDBUser, cfg.ReplicaDBPassword, cfg.ReplicaDBHost, cfg.ReplicaDBPort, cfg.ReplicaDBName)

	postgresConnection := &mpostgres.PostgresConnection{
		ConnectionStringPrimary: primaryConnStr,
		ConnectionStringReplica: replicaConnStr,
		PrimaryDBName:           cfg.PrimaryDBName,
		ReplicaDBName:           cfg.ReplicaDBName,
	}

	redisSource := fmt.Sprintf("redis://:%s@%s:%s/0", cfg.RedisPassword, cfg.RedisHost, cfg.RedisPort)

	redisConnection := &mredis.RedisConnection{
		ConnectionStringSource: redisSource,
		Logger:                 logger,
	}

	rabbitSource := fmt.Sprintf("amqp://%s:%s@%s:%s",
		cfg.RabbitMQUser, cfg.RabbitMQPass, cfg.RabbitMQHost, cfg.RabbitMQPortAMQP)

	rabbitMQConnection := &mrabbitmq.RabbitMQConnection{
		ConnectionStringSource: rabbitSource,
		Consumer:               ApplicationName + "-consumer",
		Producer:               ApplicationName + "-producer",
		Logger:                 logger,
	}

	reg := registry.New()

	fileURL := func(filename string) string { return cfg.FilesBaseURL + "/" + filename }
	registry.RegisterFixtures(reg, fileURL)

	stations := ledgerstore.NewStationPostgreSQLRepository(postgresConnection)
	creds := ledgerstore.NewCredentialPostgreSQLRepository(postgresConnection)
	events := ledgerstore.NewEventPostgreSQLRepository(postgresConnection)
	acks := ledgerstore.NewAckPostgreSQLRepository(postgresConnection)

	captureRetry := mretry.DefaultCaptureConfig()
	if cfg.CaptureMaxRetries > 0 {
		captureRetry = captureRetry.WithMaxRetries(cfg.CaptureMaxRetries)
	}

	ingestRetry := mretry.DefaultIngestConfig()
	if cfg.IngestMaxRetries > 0 {
		ingestRetry = ingestRetry.WithMaxRetries(cfg.IngestMaxRetries)
	}

	publisher := queue.NewPublisher(rabbitMQConnection, captureRetry)
	ingestPublisher := queue.NewPublisher(rabbitMQConnection, ingestRetry)
	consumer := queue.NewConsumer(rabbitMQConnection)

	captureHook := capture.NewHook(reg, publisher, ApplicationName)
	captureWorkerHandler := capture.NewWorker(events, acks, stations)

	ingestProcessor := ingest.NewProcessor(reg, events, acks, stations)

	deliveryHandler := in.NewDeliveryHandler(reg, events, acks, ingestPublisher)
	operatorHandler := in.NewOperatorHandler(stations, creds)

	redisClient, err := redisConnection.GetDB(context.Background())
	if err != nil {
		logger.Warnf("redis not reachable at startup, api-key cache disabled: %v", err)
	}

	router := in.NewRouter(logger, telemetry, deliveryHandler, operatorHandler, creds, stations, redisClient, cfg.OperatorUser, cfg.OperatorPass)

	server := NewServer(cfg, router, logger, telemetry)
	captureWorker := NewCaptureWorker(consumer, captureWorkerHandler, logger, telemetry)

	taskSoftTimeout := defaultTaskSoftTimeout
	if cfg.TaskSoftTimeoutSeconds > 0 {
		taskSoftTimeout = time.Duration(cfg.TaskSoftTimeoutSeconds) * time.Second
	}

	ingestWorker := NewIngestWorker(consumer, ingestProcessor, logger, telemetry, taskSoftTimeout)

	service := &Service{
		Server:        server,
		CaptureWorker: captureWorker,
		IngestWorker:  ingestWorker,
		CaptureHook:   captureHook,
		Logger:        logger,
	}

	return service, logger, telemetry
}
