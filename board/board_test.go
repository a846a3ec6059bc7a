package board

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ariebrainware/ltt-bedboard/localcache"
	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupBoardDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:testdb_board_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func newTestBoard(t *testing.T, db *gorm.DB, cache *localcache.Cache, clock *fakeClock) *Board {
	t.Helper()
	b, err := New(Options{
		DB:           db,
		Cache:        cache,
		DeviceID:     "desk",
		BedCount:     4,
		TickInterval: 10 * time.Millisecond,
		Clock:        clock.Now,
	})
	require.NoError(t, err)
	return b
}

func activeBed(id int, at time.Time) model.Bed {
	b := model.NewIdleBed(id)
	start := at.UnixMilli()
	b.Status = model.BedActive
	b.StartTime = &start
	b.OriginalDuration = 600
	b.RemainingTime = 600
	b.CustomPreset = &model.Preset{Name: "custom", Steps: []model.TreatmentStep{
		{ID: "Hot", Name: "Hot Pack", Duration: 600, EnableTimer: true, Color: "red"},
	}}
	b.LastUpdateTimestamp = start
	return b
}

func TestNew_RequiresDB(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestMigrate_SeedsCatalog(t *testing.T) {
	db := setupBoardDB(t)
	b := newTestBoard(t, db, nil, &fakeClock{now: time.Now()})
	assert.Len(t, b.Catalog.Templates(), len(model.DefaultQuickTreatments))
	assert.Len(t, b.Store.IDs(), 4)
}

func TestStart_RestoresCacheAndResetsStale(t *testing.T) {
	db := setupBoardDB(t)
	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	cache, err := localcache.Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	fresh := activeBed(1, clock.Now().Add(-2*time.Minute))
	stale := activeBed(2, clock.Now().Add(-13*time.Hour))
	require.NoError(t, cache.SaveBeds([]model.Bed{fresh, stale, model.NewIdleBed(3), model.NewIdleBed(4)}))

	b := newTestBoard(t, db, cache, clock)
	require.NoError(t, b.Start(context.Background()))

	got, _ := b.Store.Get(1)
	assert.Equal(t, model.BedActive, got.Status)
	assert.Equal(t, 480, b.Store.CalculateRemaining(got))
	got, _ = b.Store.Get(2)
	assert.True(t, got.IsCanonicalIdle())

	var count int64
	require.NoError(t, db.Model(&model.BedRow{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
	assert.Contains(t, b.Remote.Dirty(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics.ActiveBeds))
}

func TestStart_ResetsStaleRemoteBed(t *testing.T) {
	db := setupBoardDB(t)
	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	remote := activeBed(3, clock.Now().Add(-20*time.Hour))
	remote.LastUpdateTimestamp = 0
	row := model.BedToRow(remote)
	row.UpdatedAt = clock.Now().Add(-20 * time.Hour).UnixMilli()
	require.NoError(t, db.Create(&row).Error)

	b := newTestBoard(t, db, nil, clock)
	require.NoError(t, b.Start(context.Background()))

	got, _ := b.Store.Get(3)
	assert.True(t, got.IsCanonicalIdle())
	assert.Empty(t, b.ResetStale())
}

func TestRun_AlarmWriteAndCache(t *testing.T) {
	db := setupBoardDB(t)
	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	cache, err := localcache.Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	b := newTestBoard(t, db, cache, clock)
	require.NoError(t, b.Start(context.Background()))

	hot, ok := b.Catalog.QuickByLabel("Hot")
	require.True(t, ok)
	require.True(t, b.Store.StartQuick(1, hot.ID, model.CareFlags{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	clock.Advance(time.Duration(hot.Duration+1) * time.Second)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(b.Metrics.Alarms) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		var row model.BedRow
		if err := db.First(&row, 1).Error; err != nil {
			return false
		}
		return row.Status == string(model.BedActive)
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		beds, ok, err := cache.LoadBeds()
		return err == nil && ok && beds[0].Status == model.BedActive
	}, 2*time.Second, 10*time.Millisecond)

	// the overtime gauge follows the timer ticks
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(b.Metrics.OvertimeBeds) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, b.Store.Clear(1))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(b.Metrics.OvertimeBeds) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("board did not stop")
	}
}
