//go:build integration

package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/dumaterial/materials-api/internal/domain"
	"github.com/dumaterial/materials-api/internal/persistence"
	"github.com/dumaterial/materials-api/internal/repository"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dumaterial_test"),
		postgres.WithUsername("dumaterial"),
		postgres.WithPassword("dumaterial_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, persistence.RunMigrations(ctx, dsn, zap.NewNop()))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStores(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	admins, err := repository.NewPrincipalRepository(pool, domain.RoleAdmin)
	require.NoError(t, err)
	users, err := repository.NewPrincipalRepository(pool, domain.RoleUser)
	require.NoError(t, err)

	t.Run("email unique per table under concurrency", func(t *testing.T) {
		const workers = 8
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			ok    int
			dupes int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := admins.Create(ctx, &domain.Principal{
					FirstName: "Race", LastName: "Admin", Email: "race@example.com", PasswordHash: "h",
				})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
				} else if errors.Is(err, repository.ErrDuplicateEmail) {
					dupes++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, ok)
		assert.Equal(t, workers-1, dupes)

		// Same email in the other realm's table is allowed.
		require.NoError(t, users.Create(ctx, &domain.Principal{
			FirstName: "Race", LastName: "User", Email: "race@example.com", PasswordHash: "h",
		}))
	})

	t.Run("not found mapping", func(t *testing.T) {
		_, err := admins.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		_, err = admins.GetByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("materials and purchases", func(t *testing.T) {
		admin, err := admins.GetByEmail(ctx, "race@example.com")
		require.NoError(t, err)
		user, err := users.GetByEmail(ctx, "race@example.com")
		require.NoError(t, err)

		materials := repository.NewMaterialRepository(pool)
		m := &domain.Material{
			CreatorID: admin.ID,
			Sem:       "3",
			Subject:   "DBMS",
			Chapter:   domain.NumberedEntry{Number: "1", Name: "Intro"},
			Assets: map[domain.AssetField]domain.MediaAsset{
				domain.AssetPPT: {PublicID: "du_material/k1", URL: "https://cdn/k1"},
			},
		}
		require.NoError(t, materials.Create(ctx, m))

		got, err := materials.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "Intro", got.Chapter.Name)
		assert.Equal(t, "du_material/k1", got.Assets[domain.AssetPPT].PublicID)

		listed, err := materials.List(ctx, repository.MaterialFilter{Sem: "3", Subject: "DBMS"})
		require.NoError(t, err)
		assert.Len(t, listed, 1)

		purchases := repository.NewPurchaseRepository(pool)
		p := &domain.Purchase{UserID: user.ID, MaterialID: m.ID}
		created, err := purchases.Create(ctx, p)
		require.NoError(t, err)
		assert.True(t, created)

		again := &domain.Purchase{UserID: user.ID, MaterialID: m.ID}
		created, err = purchases.Create(ctx, again)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, p.ID, again.ID)

		require.NoError(t, materials.Delete(ctx, m.ID))
		assert.ErrorIs(t, materials.Delete(ctx, m.ID), repository.ErrNotFound)

		list, err := purchases.ListByUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
