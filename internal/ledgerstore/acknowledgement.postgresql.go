package ledgerstore

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lerianstudio/midaz-sync/common"
	"github.com/lerianstudio/midaz-sync/common/mopentelemetry"
	"github.com/lerianstudio/midaz-sync/common/mpostgres"
	"github.com/lerianstudio/midaz-sync/internal/domain"
)

// AckRepository manages the per-destination acknowledgement ledger: one row
// per (event, station) pair, the join table a station's pending/acknowledged
// state is read from.
type AckRepository interface {
	CreateFanout(ctx context.Context, eventID uuid.UUID, stationIDs []int64) error
	PendingEventIDs(ctx context.Context, stationID int64, limit int) ([]uuid.UUID, error)
	Acknowledge(ctx context.Context, stationID int64, eventIDs []uuid.UUID, at time.Time) (int64, error)
	FullyAcknowledgedFromSource(ctx context.Context, sourceStationID int64) ([]uuid.UUID, error)
}

type AckPostgreSQLRepository struct {
	connection *mpostgres.PostgresConnection
	tableName  string
}

func NewAckPostgreSQLRepository(pc *mpostgres.PostgresConnection) *AckPostgreSQLRepository {
	return &AckPostgreSQLRepository{connection: pc, tableName: "acknowledgements"}
}

// CreateFanout inserts one pending Acknowledgement row per station in
// stationIDs for eventID, in a single batched insert.
func (r *AckPostgreSQLRepository) CreateFanout(ctx context.Context, eventID uuid.UUID, stationIDs []int64) error {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.create_ack_fanout")
	defer span.End()

	if len(stationIDs) == 0 {
		return nil
	}

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return err
	}

	insert := squirrel.Insert(r.tableName).
		Columns("event_id", "station_id", "status", "created_at").
		PlaceholderFormat(squirrel.Dollar)

	now := time.Now().UTC()
	for _, sid := range stationIDs {
		insert = insert.Values(eventID, sid, string(domain.AckPending), now)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to build fanout insert", err)
		return err
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to insert fanout rows", err)
		return err
	}

	return nil
}

// PendingEventIDs returns up to limit event IDs still pending for stationID,
// oldest first.
func (r *AckPostgreSQLRepository) PendingEventIDs(ctx context.Context, stationID int64, limit int) ([]uuid.UUID, error) {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.pending_event_ids")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return nil, err
	}

	query, args, err := squirrel.Select("a.event_id").
		From(r.tableName+" a").
		Join("events e ON e.id = a.event_id").
		Where(squirrel.Eq{"a.station_id": stationID, "a.status": string(domain.AckPending)}).
		OrderBy("e.created_at ASC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to build query", err)
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to list pending acknowledgements", err)
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			mopentelemetry.HandleSpanError(&span, "Failed to scan row", err)
			return nil, err
		}

		out = append(out, id)
	}

	return out, rows.Err()
}

// Acknowledge marks eventIDs as acknowledged for stationID and returns how
// many rows were actually updated - a number smaller than len(eventIDs)
// means some IDs were already acknowledged or did not target this station,
// both treated as idempotent no-ops by the caller.
func (r *AckPostgreSQLRepository) Acknowledge(ctx context.Context, stationID int64, eventIDs []uuid.UUID, at time.Time) (int64, error) {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.acknowledge")
	defer span.End()

	if len(eventIDs) == 0 {
		return 0, nil
	}

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return 0, err
	}

	query, args, err := squirrel.Update(r.tableName).
		Set("status", string(domain.AckAcknowledged)).
		Set("acknowledged_at", at).
		Where(squirrel.Eq{"station_id": stationID, "event_id": eventIDs, "status": string(domain.AckPending)}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to build update", err)
		return 0, err
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to acknowledge rows", err)
		return 0, err
	}

	return result.RowsAffected()
}

// FullyAcknowledgedFromSource returns event IDs originated by sourceStationID
// that have zero remaining Pending acknowledgement rows - the signal that a
// previously pushed event has reached every other peer.
func (r *AckPostgreSQLRepository) FullyAcknowledgedFromSource(ctx context.Context, sourceStationID int64) ([]uuid.UUID, error) {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.fully_acknowledged_from_source")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT e.id FROM events e
		WHERE e.source_station_id = $1
		AND NOT EXISTS (
			SELECT 1 FROM acknowledgements a
			WHERE a.event_id = e.id AND a.status = $2
		)`, sourceStationID, string(domain.AckPending))
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to query fully acknowledged events", err)
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			mopentelemetry.HandleSpanError(&span, "Failed to scan row", err)
			return nil, err
		}

		out = append(out, id)
	}

	return out, rows.Err()
}
