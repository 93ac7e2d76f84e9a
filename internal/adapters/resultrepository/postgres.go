package resultrepository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ebakken/memoflight/internal/domain"
	"github.com/ebakken/memoflight/internal/reporting"
)

type PostgresResultRepository struct {
	db     *sqlx.DB
	schema string

	tracer trace.Tracer
}

func NewPostgresResultRepository(db *sqlx.DB, schema string) *PostgresResultRepository {
	tracer := otel.Tracer("memoflight/resultrepository/postgres")

	return &PostgresResultRepository{
		db:     db,
		schema: schema,

		tracer: tracer,
	}
}

type dbResult struct {
	ID          string    `db:"id"`
	Key         string    `db:"key"`
	Data        []byte    `db:"data"`
	ContentType string    `db:"content_type"`
	StatusCode  int       `db:"status_code"`
	ComputedAt  time.Time `db:"computed_at"`
}

func (r *PostgresResultRepository) StoreResult(ctx context.Context, result *domain.Result) error {
	ctx, span := r.tracer.Start(ctx, "Postgres.StoreResult")
	defer span.End()

	if result == nil {
		err := fmt.Errorf("result is nil")
		reporting.Report(ctx, err)
		return err
	}

	dbID, err := uuid.NewV7()
	if err != nil {
		err := fmt.Errorf("failed to generate db id: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"key": result.Key,
		})
		return err
	}

	txx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		err := fmt.Errorf("failed to start transaction: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"key": result.Key,
		})
		return err
	}
	defer txx.Rollback()

	_, err = txx.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", pq.QuoteIdentifier(r.schema)))
	if err != nil {
		err := fmt.Errorf("failed to set search path: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"key": result.Key,
		})
		return err
	}

	_, err = txx.ExecContext(
		ctx,
		`INSERT INTO results (id, key, data, content_type, status_code, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		dbID.String(),
		result.Key,
		result.Data,
		result.ContentType,
		result.StatusCode,
		result.ComputedAt,
	)
	if err != nil {
		err := fmt.Errorf("failed to insert result: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"key": result.Key,
		})
		return err
	}

	if err := txx.Commit(); err != nil {
		err := fmt.Errorf("failed to commit transaction: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"key": result.Key,
		})
		return err
	}

	return nil
}

func (r *PostgresResultRepository) GetLatestResult(ctx context.Context, key string) (*domain.Result, error) {
	ctx, span := r.tracer.Start(ctx, "Postgres.GetLatestResult")
	defer span.End()

	txx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		err := fmt.Errorf("failed to start transaction: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"key": key,
		})
		return nil, err
	}
	defer txx.Rollback()

	_, err = txx.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", pq.QuoteIdentifier(r.schema)))
	if err != nil {
		err := fmt.Errorf("failed to set search path: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"key": key,
		})
		return nil, err
	}

	var row dbResult
	err = txx.GetContext(
		ctx,
		&row,
		`SELECT id, key, data, content_type, status_code, computed_at
		FROM results
		WHERE key = $1
		ORDER BY computed_at DESC
		LIMIT 1`,
		key,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, key)
	}
	if err != nil {
		err := fmt.Errorf("failed to query result: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"key": key,
		})
		return nil, err
	}

	return &domain.Result{
		Key:         row.Key,
		Data:        row.Data,
		ContentType: row.ContentType,
		StatusCode:  row.StatusCode,
		ComputedAt:  row.ComputedAt,
	}, nil
}
