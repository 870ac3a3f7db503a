package postgres

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/internal/models"
	"github.com/assiworks/opening-registration/internal/store"
	"github.com/assiworks/opening-registration/pkg/database"
)

func TestNullableRoundTrip(t *testing.T) {
	assert.Nil(t, nullable(""))
	v := nullable("AssiWorks")
	if assert.NotNil(t, v) {
		assert.Equal(t, "AssiWorks", deref(v))
	}
	assert.Equal(t, "", deref(nil))
}

// openTestRepository connects to DATABASE_URL, migrates, and empties both
// tables. The test is skipped when no database is configured.
func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := database.NewPostgresPool(ctx, dsn, database.PoolOptions{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE email_logs, registrations`)
	require.NoError(t, err)
	r := NewRepository(pool)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func newRegistration(email, token string) *models.Registration {
	return &models.Registration{Email: email, Name: "Kim Minji", Affiliation: "AssiWorks", CancelToken: token}
}

func TestRepository(t *testing.T) {
	r := openTestRepository(t)
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		reg := newRegistration("kim@example.com", "pg-tok-1")
		reg.Note = "vegetarian"
		require.NoError(t, r.Create(ctx, reg))
		assert.NotEqual(t, uuid.Nil, reg.ID)
		assert.False(t, reg.CreatedAt.IsZero())

		byToken, err := r.GetByToken(ctx, "pg-tok-1")
		require.NoError(t, err)
		assert.Equal(t, reg.ID, byToken.ID)
		assert.Equal(t, "vegetarian", byToken.Note)
		assert.Equal(t, "", byToken.Position)
		assert.Nil(t, byToken.CancelledAt)

		byID, err := r.GetByID(ctx, reg.ID)
		require.NoError(t, err)
		assert.Equal(t, "pg-tok-1", byID.CancelToken)

		_, err = r.GetByToken(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = r.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate token", func(t *testing.T) {
		require.NoError(t, r.Create(ctx, newRegistration("a@example.com", "pg-same")))
		err := r.Create(ctx, newRegistration("b@example.com", "pg-same"))
		assert.ErrorIs(t, err, store.ErrDuplicateToken)
	})

	t.Run("cancel once", func(t *testing.T) {
		require.NoError(t, r.Create(ctx, newRegistration("c@example.com", "pg-cancel")))
		first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		changed, err := r.CancelByToken(ctx, "pg-cancel", first)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = r.CancelByToken(ctx, "pg-cancel", first.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, changed)

		reg, err := r.GetByToken(ctx, "pg-cancel")
		require.NoError(t, err)
		require.NotNil(t, reg.CancelledAt)
		assert.True(t, first.Equal(*reg.CancelledAt))

		changed, err = r.CancelByToken(ctx, "unknown", first)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("concurrent cancel transitions once", func(t *testing.T) {
		require.NoError(t, r.Create(ctx, newRegistration("d@example.com", "pg-race")))
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				changed, err := r.CancelByToken(ctx, "pg-race", time.Now().Add(time.Duration(i)*time.Second))
				assert.NoError(t, err)
				if changed {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestRepositoryListDeleteAndCount(t *testing.T) {
	r := openTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]uuid.UUID, 5)
	for i := range ids {
		reg := newRegistration("user@example.com", uuid.NewString())
		reg.Name = string(rune('A' + i))
		require.NoError(t, r.Create(ctx, reg))
		_, err := r.pool.Exec(ctx, `UPDATE registrations SET created_at = $1 WHERE id = $2`, base.Add(time.Duration(i)*time.Hour), reg.ID)
		require.NoError(t, err)
		ids[i] = reg.ID
	}

	list, err := r.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "E", list[0].Name)
	assert.Equal(t, "D", list[1].Name)
	assert.Equal(t, "C", list[2].Name)

	_, err = r.CancelByToken(ctx, list[0].CancelToken, time.Now())
	require.NoError(t, err)
	n, err := r.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	missing := uuid.New()
	deleted, err := r.DeleteByIDs(ctx, []uuid.UUID{ids[0], missing})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ids[0]}, deleted)
	_, err = r.GetByID(ctx, ids[0])
	assert.ErrorIs(t, err, store.ErrNotFound)

	deleted, err = r.DeleteByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestRepositoryEmailLogsSurviveRegistrationDelete(t *testing.T) {
	r := openTestRepository(t)
	ctx := context.Background()
	reg := newRegistration("a@example.com", "pg-log")
	require.NoError(t, r.Create(ctx, reg))

	el := &models.EmailLog{
		RegistrationID: &reg.ID,
		RecipientEmail: reg.Email,
		Subject:        "registered",
		Status:         models.EmailLogStatusFailed,
		Endpoint:       "https://mail.example.com/email/aws-send",
		ErrorMessage:   "boom",
		Attempt:        1,
	}
	require.NoError(t, r.CreateEmailLog(ctx, el))
	assert.NotEqual(t, uuid.Nil, el.ID)

	_, err := r.DeleteByIDs(ctx, []uuid.UUID{reg.ID})
	require.NoError(t, err)

	logs, err := r.ListEmailLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].RegistrationID)
	assert.Equal(t, "boom", logs[0].ErrorMessage)
	assert.Equal(t, 1, logs[0].Attempt)
}
