package run

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/radio-curator/internal/schedule"
)

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryRepository(0)
	ctx := context.Background()
	r := New(schedule.KindResetPlayed, schedule.OriginManual)

	require.NoError(t, repo.Save(ctx, r))
	got, err := repo.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	got.Status = StatusFailed
	again, _ := repo.FindByID(ctx, r.ID)
	assert.Equal(t, StatusQueued, again.Status, "stored run must not alias the returned clone")

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMemoryRepository_ListNewestFirst(t *testing.T) {
	repo := NewMemoryRepository(0)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := NewWithID(fmt.Sprintf("r-%d", i), schedule.KindLocalUpdate, schedule.OriginSchedule)
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Save(ctx, r))
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "r-2", list[0].ID)
	assert.Equal(t, "r-0", list[2].ID)
}

func TestMemoryRepository_EvictsOldestTerminal(t *testing.T) {
	repo := NewMemoryRepository(2)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	pending := NewWithID("pending", schedule.KindLocalUpdate, schedule.OriginManual)
	pending.CreatedAt = base
	require.NoError(t, repo.Save(ctx, pending))

	for i := 1; i <= 3; i++ {
		r := NewWithID(fmt.Sprintf("done-%d", i), schedule.KindLocalUpdate, schedule.OriginManual)
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, r.Fail("x"))
		require.NoError(t, repo.Save(ctx, r))
	}

	list, _ := repo.List(ctx)
	ids := make([]string, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"done-3", "pending"}, ids)
}

func TestMemoryRepository_Concurrent(t *testing.T) {
	repo := NewMemoryRepository(0)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := NewWithID(fmt.Sprintf("r-%d", i), schedule.KindPlay, schedule.OriginManual)
			_ = repo.Save(ctx, r)
			_, _ = repo.FindByID(ctx, r.ID)
			_, _ = repo.List(ctx)
		}(i)
	}
	wg.Wait()
	list, _ := repo.List(ctx)
	assert.Len(t, list, 50)
}
