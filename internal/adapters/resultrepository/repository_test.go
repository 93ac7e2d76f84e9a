package resultrepository

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/ebakken/memoflight/internal/adapters/database"
	"github.com/ebakken/memoflight/internal/domain"
)

func newPostgresResultRepository(t *testing.T, db *sqlx.DB, schema string) *PostgresResultRepository {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db.MustExec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pq.QuoteIdentifier(schema)))

	migrator := database.NewDatabaseMigrator(db, logger)

	err := migrator.Migrate(context.Background(), schema)
	require.NoError(t, err)

	return NewPostgresResultRepository(db, schema)
}

func TestPostgresResultRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping db tests in short mode.")
	}
	t.Parallel()

	db, err := database.NewPostgresDatabase(database.LOCAL_CONNECTION_STRING)
	require.NoError(t, err)

	repo := newPostgresResultRepository(t, db, database.TESTING_SCHEMA)
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := repo.GetLatestResult(ctx, "nonexistent")
		require.ErrorIs(t, err, ErrResultNotFound)
	})

	t.Run("store and get roundtrip", func(t *testing.T) {
		computedAt := time.Now().UTC().Truncate(time.Microsecond)
		stored := &domain.Result{
			Key:         "resource-1",
			Data:        []byte(`{"value": 25}`),
			ContentType: "application/json",
			StatusCode:  200,
			ComputedAt:  computedAt,
		}
		require.NoError(t, repo.StoreResult(ctx, stored))

		got, err := repo.GetLatestResult(ctx, "resource-1")
		require.NoError(t, err)
		require.Equal(t, stored.Key, got.Key)
		require.Equal(t, stored.Data, got.Data)
		require.Equal(t, stored.ContentType, got.ContentType)
		require.Equal(t, stored.StatusCode, got.StatusCode)
		require.True(t, computedAt.Equal(got.ComputedAt))
	})

	t.Run("latest result wins", func(t *testing.T) {
		older := &domain.Result{
			Key:         "resource-2",
			Data:        []byte("old"),
			ContentType: "text/plain",
			StatusCode:  200,
			ComputedAt:  time.Now().Add(-1 * time.Hour),
		}
		newer := &domain.Result{
			Key:         "resource-2",
			Data:        []byte("new"),
			ContentType: "text/plain",
			StatusCode:  200,
			ComputedAt:  time.Now(),
		}
		require.NoError(t, repo.StoreResult(ctx, older))
		require.NoError(t, repo.StoreResult(ctx, newer))

		got, err := repo.GetLatestResult(ctx, "resource-2")
		require.NoError(t, err)
		require.Equal(t, []byte("new"), got.Data)
	})

	t.Run("nil result rejected", func(t *testing.T) {
		require.Error(t, repo.StoreResult(ctx, nil))
	})
}
