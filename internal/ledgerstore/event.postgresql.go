package ledgerstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lerianstudio/midaz-sync/common"
	cn "github.com/lerianstudio/midaz-sync/common/constant"
	"github.com/lerianstudio/midaz-sync/common/mopentelemetry"
	"github.com/lerianstudio/midaz-sync/common/mpostgres"
	"github.com/lerianstudio/midaz-sync/internal/domain"
)

// EventRepository manages the append-only event log. Events are never
// updated or deleted once written.
type EventRepository interface {
	Create(ctx context.Context, ev *domain.Event) (*domain.Event, error)
	Find(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	ListSince(ctx context.Context, ids []uuid.UUID) ([]*domain.Event, error)
}

type EventPostgreSQLRepository struct {
	connection *mpostgres.PostgresConnection
	tableName  string
}

func NewEventPostgreSQLRepository(pc *mpostgres.PostgresConnection) *EventPostgreSQLRepository {
	return &EventPostgreSQLRepository{connection: pc, tableName: "events"}
}

type eventRow struct {
	ID              uuid.UUID
	EntityType      string
	ObjectID        string
	Action          string
	Payload         json.RawMessage
	SourceStationID sql.NullInt64
	CreatedAt       time.Time
}

func (m *eventRow) ToEntity() *domain.Event {
	ev := &domain.Event{
		ID: m.ID, EntityType: m.EntityType, ObjectID: m.ObjectID,
		Action: domain.Action(m.Action), Payload: m.Payload, CreatedAt: m.CreatedAt,
	}
	if m.SourceStationID.Valid {
		ev.SourceStationID = &m.SourceStationID.Int64
	}

	return ev
}

func (r *EventPostgreSQLRepository) Create(ctx context.Context, ev *domain.Event) (*domain.Event, error) {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.create_event")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return nil, err
	}

	var sourceID any
	if ev.SourceStationID != nil {
		sourceID = *ev.SourceStationID
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := &eventRow{}

	err = db.QueryRowContext(ctx,
		`INSERT INTO events (id, model, object_id, action, data_payload, source_station_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, model, object_id, action, data_payload, source_station_id, created_at`,
		ev.ID, ev.EntityType, ev.ObjectID, string(ev.Action), []byte(ev.Payload), sourceID, createdAt,
	).Scan(&row.ID, &row.EntityType, &row.ObjectID, &row.Action, &row.Payload, &row.SourceStationID, &row.CreatedAt)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to insert event", err)
		return nil, err
	}

	return row.ToEntity(), nil
}

func (r *EventPostgreSQLRepository) Find(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.find_event")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return nil, err
	}

	var row eventRow

	err = db.QueryRowContext(ctx,
		"SELECT id, model, object_id, action, data_payload, source_station_id, created_at FROM events WHERE id = $1",
		id,
	).Scan(&row.ID, &row.EntityType, &row.ObjectID, &row.Action, &row.Payload, &row.SourceStationID, &row.CreatedAt)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to scan row", err)

		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ValidateBusinessError(cn.ErrEventNotFound, reflect.TypeOf(domain.Event{}).Name())
		}

		return nil, err
	}

	return row.ToEntity(), nil
}

// ListSince returns events identified by ids, oldest created_at first.
// Used to hydrate OutboundChange payloads for the pending-rows a station's
// acknowledgement ledger names.
func (r *EventPostgreSQLRepository) ListSince(ctx context.Context, ids []uuid.UUID) ([]*domain.Event, error) {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.list_events_by_ids")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := squirrel.Select("id", "model", "object_id", "action", "data_payload", "source_station_id", "created_at").
		From(r.tableName).
		Where(squirrel.Eq{"id": ids}).
		OrderBy("created_at ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to build query", err)
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to list events", err)
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Event

	for rows.Next() {
		var row eventRow
		if err := rows.Scan(&row.ID, &row.EntityType, &row.ObjectID, &row.Action, &row.Payload, &row.SourceStationID, &row.CreatedAt); err != nil {
			mopentelemetry.HandleSpanError(&span, "Failed to scan row", err)
			return nil, err
		}

		out = append(out, row.ToEntity())
	}

	return out, rows.Err()
}
