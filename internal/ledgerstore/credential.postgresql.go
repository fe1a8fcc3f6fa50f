package ledgerstore

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lerianstudio/midaz-sync/common"
	cn "github.com/lerianstudio/midaz-sync/common/constant"
	"github.com/lerianstudio/midaz-sync/common/mopentelemetry"
	"github.com/lerianstudio/midaz-sync/common/mpostgres"
	"github.com/lerianstudio/midaz-sync/internal/domain"
)

// CredentialRepository manages StationCredential rows - the API keys peer
// stations authenticate push/pull calls with.
type CredentialRepository interface {
	Create(ctx context.Context, cred *domain.StationCredential) (*domain.StationCredential, error)
	FindByAPIKey(ctx context.Context, apiKey string) (*domain.StationCredential, error)
	Revoke(ctx context.Context, id int64) error
	ListByStation(ctx context.Context, stationID int64) ([]*domain.StationCredential, error)
}

type CredentialPostgreSQLRepository struct {
	connection *mpostgres.PostgresConnection
	tableName  string
}

func NewCredentialPostgreSQLRepository(pc *mpostgres.PostgresConnection) *CredentialPostgreSQLRepository {
	return &CredentialPostgreSQLRepository{connection: pc, tableName: "station_credentials"}
}

type credentialRow struct {
	ID        int64
	StationID int64
	BaseURL   string
	APIKey    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *credentialRow) ToEntity() *domain.StationCredential {
	return &domain.StationCredential{
		ID: m.ID, StationID: m.StationID, BaseURL: m.BaseURL,
		APIKey: m.APIKey, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func (r *CredentialPostgreSQLRepository) Create(ctx context.Context, cred *domain.StationCredential) (*domain.StationCredential, error) {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.create_credential")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return nil, err
	}

	now := time.Now().UTC()

	row := &credentialRow{}

	err = db.QueryRowContext(ctx,
		`INSERT INTO station_credentials (station_id, base_url, api_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4) RETURNING id, station_id, base_url, api_key, created_at, updated_at`,
		cred.StationID, cred.BaseURL, cred.APIKey, now,
	).Scan(&row.ID, &row.StationID, &row.BaseURL, &row.APIKey, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to insert credential", err)

		if isUniqueViolation(err) {
			return nil, common.ValidateBusinessError(cn.ErrDuplicateAPIKey, reflect.TypeOf(domain.StationCredential{}).Name())
		}

		return nil, err
	}

	return row.ToEntity(), nil
}

func (r *CredentialPostgreSQLRepository) FindByAPIKey(ctx context.Context, apiKey string) (*domain.StationCredential, error) {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.find_credential_by_api_key")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return nil, err
	}

	var row credentialRow

	err = db.QueryRowContext(ctx,
		"SELECT id, station_id, base_url, api_key, created_at, updated_at FROM station_credentials WHERE api_key = $1",
		apiKey,
	).Scan(&row.ID, &row.StationID, &row.BaseURL, &row.APIKey, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to scan row", err)

		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ValidateBusinessError(cn.ErrCredentialNotFound, reflect.TypeOf(domain.StationCredential{}).Name())
		}

		return nil, err
	}

	return row.ToEntity(), nil
}

func (r *CredentialPostgreSQLRepository) Revoke(ctx context.Context, id int64) error {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.revoke_credential")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return err
	}

	result, err := db.ExecContext(ctx, "DELETE FROM station_credentials WHERE id = $1", id)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to revoke credential", err)
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return common.ValidateBusinessError(cn.ErrCredentialNotFound, reflect.TypeOf(domain.StationCredential{}).Name())
	}

	return nil
}

func (r *CredentialPostgreSQLRepository) ListByStation(ctx context.Context, stationID int64) ([]*domain.StationCredential, error) {
	tracer := common.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.list_credentials_by_station")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to get database connection", err)
		return nil, err
	}

	query, args, err := squirrel.Select("id", "station_id", "base_url", "api_key", "created_at", "updated_at").
		From(r.tableName).
		Where(squirrel.Eq{"station_id": stationID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to build query", err)
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		mopentelemetry.HandleSpanError(&span, "Failed to list credentials", err)
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StationCredential

	for rows.Next() {
		var row credentialRow
		if err := rows.Scan(&row.ID, &row.StationID, &row.BaseURL, &row.APIKey, &row.CreatedAt, &row.UpdatedAt); err != nil {
			mopentelemetry.HandleSpanError(&span, "Failed to scan row", err)
			return nil, err
		}

		out = append(out, row.ToEntity())
	}

	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "unique constraint") || strings.Contains(err.Error(), "duplicate key"))
}
