// Package ledgerstore holds the Postgres repositories backing the sync
// core's own tables: stations, station_credentials, events and
// acknowledgements. Each file follows the teacher's per-entity repository
// shape: a Repository interface, a *PostgreSQLRepository wrapping a shared
// connection, squirrel for dynamic filters and raw SQL for fixed-shape
// queries, and a Model type translating between the wire/domain struct and
// the database row.
package ledgerstore

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"time"

	"github.com/lerianstudio/midaz-sync/common"
	cn "github.com/lerianstudio/midaz-sync/common/constant"
	"github.com/lerianstudio/midaz-sync/common/mopentelemetry"
	"github.com/lerianstudio/midaz-sync/common/mpostgres"
	"github.com/lerianstudio/midaz-sync/internal/domain"
)

// StationRepository reads and touches Station rows. Stations are
// provisioned out-of-band (operator tooling, migrations, seed data) - the
// sync core never creates one itself, only reads and updates last_seen.
type StationRepository interface {
	Find(ctx context.Context, id int64) (*domain.Station, error)
	List(ctx context.Context) ([]*domain.Station, error)
	TouchLastSeen(ctx context.Context, id int64, seenAt time.Time) error
}

type StationPostgreSQLRepository struct {
	connection *mpostgres.PostgresConnection
	tableName  string
}

func NewStationPostgreSQLRepository(pc *mpostgres.PostgresConnection) *StationPostgreSQLRepository {
	return &StationPostgreSQLRepository{connection: pc, tableName: "stations"}
}

type stationRow struct {
	ID       int64
	Name     string
	LastSeen sql.NullTime
}

func (m *stationRow) ToEntity() *domain.Station {
	s := &domain.Station{ID: m.ID, Name: m.Name}
	if m.LastSeen.Valid {
		s.LastSeen = &m.LastSeen.Time
	}

	return s
}

func (r *StationPostgreSQLRepository) Find(ctx context.Context, id int64) (*domain.Station, error) {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.find_station")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return nil, err
	}

	var row stationRow

	if err := db.QueryRowContext(ctx, "SELECT id, name, last_seen FROM stations WHERE id = $1", id).
		Scan(&row.ID, &row.Name, &row.LastSeen); err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to scan row", err)

		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ValidateBusinessError(cn.ErrStationNotFound, reflect.TypeOf(domain.Station{}).Name())
		}

		return nil, err
	}

	return row.ToEntity(), nil
}

func (r *StationPostgreSQLRepository) List(ctx context.Context) ([]*domain.Station, error) {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.list_stations")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT id, name, last_seen FROM stations ORDER BY id")
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to list stations", err)
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Station

	for rows.Next() {
		var row stationRow
		if err := rows.Scan(&row.ID, &row.Name, &row.LastSeen); err != nil {
			mopentelemetry.HandleSpanError(&span, "Failed to scan row", err)
			return nil, err
		}

		out = append(out, row.ToEntity())
	}

	return out, rows.Err()
}

func (r *StationPostgreSQLRepository) TouchLastSeen(ctx context.Context, id int64, seenAt time.Time) error {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.touch_station_last_seen")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return err
	}

	_, err = db.ExecContext(ctx, "UPDATE stations SET last_seen = $1 WHERE id = $2", seenAt, id)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to touch last_seen", err)
	}

	return err
}
