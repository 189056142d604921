package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/cofeast/internal/model"
	"github.com/Shivanand-hulikatti/cofeast/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func seedEvent(t *testing.T, s *Store, id string, capacity int) {
	t.Helper()
	require.NoError(t, s.Events().Create(context.Background(), &model.MealEvent{
		ID:         id,
		Title:      "Meal " + id,
		HostUserID: "host-1",
		Capacity:   capacity,
		Status:     model.EventOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func confirmed(id, eventID, userID string, seats int) *model.Participation {
	return &model.Participation{
		ID:        id,
		EventID:   eventID,
		UserID:    userID,
		SeatCount: seats,
		Status:    model.ParticipationConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedEvent(t, s, "e1", 4)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.Participations().Insert(txCtx, confirmed("p1", "e1", "u1", 2)))
		require.NoError(t, s.Events().UpdateAggregate(txCtx, "e1", 2, model.EventOpen, now))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	e, err := s.Events().GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Zero(t, e.ConfirmedCount)
	_, err = s.Participations().GetByID(ctx, "p1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_WithTxCommitsAndNests(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedEvent(t, s, "e1", 4)

	err := s.WithTx(ctx, func(txCtx context.Context) error {
		return s.WithTx(txCtx, func(inner context.Context) error {
			return s.Participations().Insert(inner, confirmed("p1", "e1", "u1", 1))
		})
	})
	require.NoError(t, err)

	sum, err := s.Participations().SumConfirmed(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, sum)
}

func TestStore_WithTxHonoursContext(t *testing.T) {
	s := NewStore()
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.WithTx(context.Background(), func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithTx(ctx, func(context.Context) error { return nil })
	close(hold)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParticipationRepository_Constraints(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedEvent(t, s, "e1", 4)
	parts := s.Participations()

	require.NoError(t, parts.Insert(ctx, confirmed("p1", "e1", "u1", 1)))
	assert.ErrorIs(t, parts.Insert(ctx, confirmed("p2", "e1", "u1", 1)), repository.ErrDuplicate)
	assert.ErrorIs(t, parts.Insert(ctx, confirmed("p3", "missing", "u1", 1)), repository.ErrNotFound)

	p, err := parts.GetForUpdate(ctx, "e1", "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)

	assert.ErrorIs(t, s.Events().Delete(ctx, "e1"), repository.ErrReferenced)
}

func TestParticipationRepository_CancelConfirmed(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedEvent(t, s, "e1", 10)
	parts := s.Participations()
	require.NoError(t, parts.Insert(ctx, confirmed("p1", "e1", "u1", 2)))
	require.NoError(t, parts.Insert(ctx, confirmed("p2", "e1", "u2", 3)))

	later := now.Add(time.Hour)
	changed, err := parts.CancelConfirmed(ctx, "e1", later)
	require.NoError(t, err)
	require.Len(t, changed, 2)
	assert.Equal(t, "p1", changed[0].ID)
	assert.Equal(t, model.ParticipationCancelled, changed[1].Status)
	assert.Equal(t, later, changed[1].UpdatedAt)

	sum, err := parts.SumConfirmed(ctx, "e1")
	require.NoError(t, err)
	assert.Zero(t, sum)

	n, err := parts.CountByEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEventRepository_ListOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedEvent(t, s, "a", 0)
	seedEvent(t, s, "b", 0)
	seedEvent(t, s, "c", 0)

	page, err := s.Events().List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)

	page, err = s.Events().List(ctx, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}
