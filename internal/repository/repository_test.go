package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/cofeast/internal/model"
	"github.com/Shivanand-hulikatti/cofeast/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	repo := NewEventRepository(pool)

	t.Run("Create and GetByID round trip location", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC().Truncate(time.Microsecond)
		e := &model.MealEvent{
			ID:         uuid.NewString(),
			Title:      "Soup night",
			HostUserID: "host-1",
			Capacity:   4,
			StartTime:  now,
			EndTime:    now.Add(time.Hour),
			Status:     model.EventOpen,
			Address:    model.Address{FullAddress: "1 Main St", City: "Taipei"},
			Location:   &model.Coordinates{Latitude: 25.033, Longitude: 121.565},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		require.NoError(t, repo.Create(ctx, e))

		got, err := repo.GetByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Soup night", got.Title)
		assert.Equal(t, "Taipei", got.Address.City)
		require.NotNil(t, got.Location)
		assert.InDelta(t, 121.565, got.Location.Longitude, 1e-9)

		_, err = repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UpdateAggregate writes count and status", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		e := testutil.InsertEvent(t, ctx, pool, "Dumplings", 2)

		require.NoError(t, repo.UpdateAggregate(ctx, e.ID, 2, model.EventFull, time.Now().UTC()))

		got, err := repo.GetByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.ConfirmedCount)
		assert.Equal(t, model.EventFull, got.Status)

		assert.ErrorIs(t, repo.UpdateAggregate(ctx, "missing", 0, model.EventOpen, time.Now()), ErrNotFound)
	})

	t.Run("List pages newest first", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		for i := 0; i < 3; i++ {
			testutil.InsertEvent(t, ctx, pool, "Meal", 0)
			time.Sleep(2 * time.Millisecond)
		}

		total, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, total)

		page, err := repo.List(ctx, 1, 10)
		require.NoError(t, err)
		assert.Len(t, page, 2)
		assert.True(t, !page[0].CreatedAt.Before(page[1].CreatedAt))
	})

	t.Run("Delete refuses events with participants", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		joined := testutil.InsertEvent(t, ctx, pool, "Joined", 2)
		testutil.InsertParticipation(t, ctx, pool, joined.ID, "user-1", 1, model.ParticipationCancelled)
		empty := testutil.InsertEvent(t, ctx, pool, "Empty", 2)

		assert.ErrorIs(t, repo.Delete(ctx, joined.ID), ErrReferenced)
		assert.NoError(t, repo.Delete(ctx, empty.ID))
		assert.ErrorIs(t, repo.Delete(ctx, empty.ID), ErrNotFound)
	})
}

func TestParticipationRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	repo := NewParticipationRepository(pool)
	tx := NewTransactor(pool, time.Second)

	newRow := func(eventID, userID string, seats int) *model.Participation {
		now := time.Now().UTC().Truncate(time.Microsecond)
		return &model.Participation{
			ID:        uuid.NewString(),
			EventID:   eventID,
			UserID:    userID,
			SeatCount: seats,
			Status:    model.ParticipationConfirmed,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	t.Run("Insert enforces one row per event and user", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		e := testutil.InsertEvent(t, ctx, pool, "Curry", 5)

		require.NoError(t, repo.Insert(ctx, newRow(e.ID, "user-1", 1)))
		assert.ErrorIs(t, repo.Insert(ctx, newRow(e.ID, "user-1", 2)), ErrDuplicate)
		assert.ErrorIs(t, repo.Insert(ctx, newRow("missing", "user-1", 1)), ErrNotFound)
	})

	t.Run("GetForUpdate returns nil for unknown pair", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		e := testutil.InsertEvent(t, ctx, pool, "Curry", 5)
		id := testutil.InsertParticipation(t, ctx, pool, e.ID, "user-1", 2, model.ParticipationConfirmed)

		err := tx.WithTx(ctx, func(txCtx context.Context) error {
			p, err := repo.GetForUpdate(txCtx, e.ID, "user-1")
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, id, p.ID)

			p, err = repo.GetForUpdate(txCtx, e.ID, "user-2")
			require.NoError(t, err)
			assert.Nil(t, p)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("SumConfirmed ignores cancelled rows", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		e := testutil.InsertEvent(t, ctx, pool, "Curry", 10)
		testutil.InsertParticipation(t, ctx, pool, e.ID, "user-1", 2, model.ParticipationConfirmed)
		testutil.InsertParticipation(t, ctx, pool, e.ID, "user-2", 3, model.ParticipationConfirmed)
		testutil.InsertParticipation(t, ctx, pool, e.ID, "user-3", 4, model.ParticipationCancelled)

		sum, err := repo.SumConfirmed(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, sum)

		n, err := repo.CountByEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		empty := testutil.InsertEvent(t, ctx, pool, "Nobody", 10)
		sum, err = repo.SumConfirmed(ctx, empty.ID)
		require.NoError(t, err)
		assert.Zero(t, sum)
	})

	t.Run("CancelConfirmed returns changed rows", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		e := testutil.InsertEvent(t, ctx, pool, "Curry", 10)
		testutil.InsertParticipation(t, ctx, pool, e.ID, "user-1", 1, model.ParticipationConfirmed)
		testutil.InsertParticipation(t, ctx, pool, e.ID, "user-2", 1, model.ParticipationConfirmed)
		testutil.InsertParticipation(t, ctx, pool, e.ID, "user-3", 1, model.ParticipationCancelled)

		changed, err := repo.CancelConfirmed(ctx, e.ID, time.Now().UTC())
		require.NoError(t, err)
		assert.Len(t, changed, 2)
		for _, p := range changed {
			assert.Equal(t, model.ParticipationCancelled, p.Status)
		}

		confirmed, err := repo.ListConfirmed(ctx, e.ID)
		require.NoError(t, err)
		assert.Empty(t, confirmed)
	})

	t.Run("Update reactivates a cancelled row", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		e := testutil.InsertEvent(t, ctx, pool, "Curry", 10)
		id := testutil.InsertParticipation(t, ctx, pool, e.ID, "user-1", 1, model.ParticipationCancelled)

		p, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		p.Status = model.ParticipationConfirmed
		p.SeatCount = 3
		p.Contact.Email = "u1@example.com"
		p.UpdatedAt = time.Now().UTC()
		require.NoError(t, repo.Update(ctx, p))

		mine, err := repo.ListConfirmedByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, id, mine[0].ID)
		assert.Equal(t, 3, mine[0].SeatCount)
		assert.Equal(t, "u1@example.com", mine[0].Contact.Email)
	})
}

func TestTransactor(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	events := NewEventRepository(pool)

	t.Run("error rolls back", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		e := testutil.InsertEvent(t, ctx, pool, "Rollback", 3)
		tx := NewTransactor(pool, time.Second)
		boom := errors.New("boom")

		err := tx.WithTx(ctx, func(txCtx context.Context) error {
			if err := events.UpdateAggregate(txCtx, e.ID, 3, model.EventFull, time.Now()); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := events.GetByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.ConfirmedCount)
		assert.Equal(t, model.EventOpen, got.Status)
	})

	t.Run("lock wait is bounded", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		e := testutil.InsertEvent(t, ctx, pool, "Contended", 3)
		holder := NewTransactor(pool, 0)
		waiter := NewTransactor(pool, 100*time.Millisecond)

		locked := make(chan struct{})
		release := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = holder.WithTx(ctx, func(txCtx context.Context) error {
				if _, err := events.GetForUpdate(txCtx, e.ID); err != nil {
					return err
				}
				close(locked)
				<-release
				return nil
			})
		}()

		<-locked
		err := waiter.WithTx(ctx, func(txCtx context.Context) error {
			_, err := events.GetForUpdate(txCtx, e.ID)
			return err
		})
		close(release)
		wg.Wait()

		assert.ErrorIs(t, err, ErrLockTimeout)
	})
}
