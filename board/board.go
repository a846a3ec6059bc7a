// Package board wires the bed table, its timer and its sync bridges into one
// running client instance.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ariebrainware/ltt-bedboard/bedmove"
	"github.com/ariebrainware/ltt-bedboard/bedstore"
	"github.com/ariebrainware/ltt-bedboard/bedtimer"
	"github.com/ariebrainware/ltt-bedboard/catalog"
	"github.com/ariebrainware/ltt-bedboard/localcache"
	"github.com/ariebrainware/ltt-bedboard/metrics"
	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/ariebrainware/ltt-bedboard/notify"
	"github.com/ariebrainware/ltt-bedboard/remotesync"
	"github.com/ariebrainware/ltt-bedboard/visitsync"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options configure a Board. DB is required; everything else has a default.
type Options struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Cache    *localcache.Cache
	DeviceID string
	BedCount int

	TickInterval   time.Duration
	StaleAfter     time.Duration
	ResyncInterval time.Duration
	PollInterval   time.Duration

	Clock  func() time.Time
	Logger *zap.Logger
}

// Board is one client instance.
type Board struct {
	DeviceID string
	DB       *gorm.DB
	Catalog  *catalog.Catalog
	Store    *bedstore.Store
	Timer    *bedtimer.Timer
	Remote   *remotesync.Bridge
	Visits   *visitsync.Bridge
	Mover    *bedmove.Mover
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
	Cache    *localcache.Cache

	clock      func() time.Time
	staleAfter time.Duration
	logger     *zap.Logger
	saveBeds   chan struct{}
}

// Migrate creates the remote tables and seeds the catalog.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.BedRow{},
		&model.Visit{},
		&model.PresetRow{},
		&model.QuickTreatmentRow{},
		&model.BoardEventLog{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return model.SeedCatalog(db)
}

// New builds a Board. It does not touch the network; call Start then Run.
func New(opts Options) (*Board, error) {
	if opts.DB == nil {
		return nil, errors.New("board: DB is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.BedCount <= 0 {
		opts.BedCount = 11
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = bedstore.StaleAfter
	}
	logger := opts.Logger.With(zap.String("device_id", opts.DeviceID))

	cat := catalog.New(opts.DB)
	if err := cat.Load(); err != nil {
		return nil, err
	}

	m := metrics.New()
	store := bedstore.New(opts.BedCount, cat,
		bedstore.WithClock(opts.Clock),
		bedstore.WithLogger(logger.Named("store")))
	pub := remotesync.NewPublisher(opts.Redis)

	remote := remotesync.New(remotesync.Config{
		DB:             opts.DB,
		Publisher:      pub,
		Store:          store,
		DeviceID:       opts.DeviceID,
		Logger:         logger.Named("remotesync"),
		Metrics:        m,
		ResyncInterval: opts.ResyncInterval,
		PollInterval:   opts.PollInterval,
		Clock:          opts.Clock,
	})
	repo := visitsync.NewRepository(opts.DB, pub, opts.DeviceID, logger.Named("visits"))
	visits := visitsync.New(visitsync.Config{
		Repo:    repo,
		Store:   store,
		Logger:  logger.Named("visitsync"),
		Metrics: m,
		Clock:   opts.Clock,
	})

	b := &Board{
		DeviceID: opts.DeviceID,
		DB:       opts.DB,
		Catalog:  cat,
		Store:    store,
		Timer: bedtimer.New(
			bedtimer.WithInterval(opts.TickInterval),
			bedtimer.WithClock(opts.Clock),
			bedtimer.WithLogger(logger.Named("timer"))),
		Remote:     remote,
		Visits:     visits,
		Mover:      bedmove.New(opts.DB, store, remote, repo, logger.Named("bedmove"), opts.Clock),
		Notifier:   notify.New(pub, opts.DeviceID, m, logger.Named("notify")),
		Metrics:    m,
		Cache:      opts.Cache,
		clock:      opts.Clock,
		staleAfter: opts.StaleAfter,
		logger:     logger,
		saveBeds:   make(chan struct{}, 1),
	}
	store.Subscribe(b.observe)
	remote.Attach()
	visits.Attach()
	return b, nil
}

// observe runs on the mutating goroutine; it only records and signals.
func (b *Board) observe(ch bedstore.Change) {
	b.Metrics.BedChanges.WithLabelValues(string(ch.Op), string(ch.Source)).Inc()
	if ch.Op == bedstore.OpStamp {
		return
	}
	b.Timer.Update(bedtimer.InputsFrom(b.Store))
	active := 0
	for _, bed := range b.Store.Snapshot() {
		if bed.Status == model.BedActive {
			active++
		}
	}
	b.Metrics.ActiveBeds.Set(float64(active))
	select {
	case b.saveBeds <- struct{}{}:
	default:
	}
}

// Start performs the cold start: cached beds first, then the remote table.
// Beds changed locally after their last remote write are queued for resync.
// Remote failures are logged; the board keeps running on local state.
func (b *Board) Start(ctx context.Context) error {
	if b.Cache != nil {
		beds, ok, err := b.Cache.LoadBeds()
		switch {
		case err != nil:
			b.logger.Warn("failed to load cached beds", zap.Error(err))
		case ok:
			normalized, reset := bedstore.NormalizeStale(beds, b.clock(), b.staleAfter)
			b.Store.Replace(normalized)
			b.logger.Info("beds restored from cache", zap.Int("beds", len(beds)), zap.Ints("stale_reset", reset))
		}
	}

	if err := b.Remote.EnsureRows(ctx); err != nil {
		b.logger.Warn("failed to ensure remote bed rows", zap.Error(err))
	}
	if err := b.Remote.Refetch(ctx); err != nil {
		b.logger.Warn("initial bed refetch failed", zap.Error(err))
	}
	b.ResetStale()
	for _, bed := range b.Store.Snapshot() {
		if bed.LastUpdateTimestamp > bed.UpdatedAt {
			b.Remote.MarkDirty(bed.ID)
		}
	}
	b.Timer.Update(bedtimer.InputsFrom(b.Store))
	b.refreshVisits(ctx)
	return nil
}

// ResetStale clears every bed left running or completed for longer than the
// stale window and returns their ids. Clears are local changes, so the reset
// reaches the remote store.
func (b *Board) ResetStale() []int {
	_, stale := bedstore.NormalizeStale(b.Store.Snapshot(), b.clock(), b.staleAfter)
	for _, id := range stale {
		b.Store.Clear(id)
	}
	if len(stale) > 0 {
		b.logger.Info("stale beds reset", zap.Ints("bed_ids", stale))
	}
	return stale
}

// Run starts every worker and blocks until ctx is done.
func (b *Board) Run(ctx context.Context) error {
	workers := []func(context.Context) error{
		b.Timer.Run,
		b.Remote.Run,
		b.Visits.Run,
		func(ctx context.Context) error { return b.Notifier.Run(ctx, b.Timer.Alarms()) },
		b.cacheLoop,
		b.watchVisits,
		b.tickLoop,
	}
	var wg sync.WaitGroup
	for _, run := range workers {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Error("board worker stopped", zap.Error(err))
			}
		}(run)
	}
	<-ctx.Done()
	wg.Wait()
	b.SaveBeds()
	return ctx.Err()
}

// tickLoop refreshes the clock-derived gauges once per timer tick.
func (b *Board) tickLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.Timer.Ticks():
			overtime := 0
			for _, v := range b.Store.Views() {
				if v.Overtime {
					overtime++
				}
			}
			b.Metrics.OvertimeBeds.Set(float64(overtime))
		}
	}
}

func (b *Board) cacheLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.saveBeds:
			b.SaveBeds()
		}
	}
}

// SaveBeds writes the current bed table to the local cache.
func (b *Board) SaveBeds() {
	if b.Cache == nil {
		return
	}
	if err := b.Cache.SaveBeds(b.Store.Snapshot()); err != nil {
		b.Metrics.CacheSaveErrors.Inc()
		b.logger.Warn("failed to save beds to cache", zap.Error(err))
	}
}

// watchVisits refreshes the cached visit list whenever another device edits
// a visit of today.
func (b *Board) watchVisits(ctx context.Context) error {
	b.Visits.Repo().Watch(ctx, b.Visits.Today(), func(visitsync.VisitEvent) {
		b.refreshVisits(ctx)
	})
	return nil
}

func (b *Board) refreshVisits(ctx context.Context) {
	if b.Cache == nil {
		return
	}
	date := b.Visits.Today()
	visits, err := b.Visits.Repo().ListByDate(ctx, date)
	if err != nil {
		b.logger.Warn("failed to list visits", zap.String("date", date), zap.Error(err))
		return
	}
	if err := b.Cache.SaveVisits(date, visits); err != nil {
		b.Metrics.CacheSaveErrors.Inc()
		b.logger.Warn("failed to save visits to cache", zap.Error(err))
	}
}
