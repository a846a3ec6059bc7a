// Package remotesync keeps the local bed table and the shared remote store in
// step. Local mutations are written out asynchronously; remote change events
// are merged in with last-writer-wins arbitration.
package remotesync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariebrainware/ltt-bedboard/bedstore"
	"github.com/ariebrainware/ltt-bedboard/metrics"
	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/ariebrainware/ltt-bedboard/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultQueueSize      = 256
	DefaultResyncInterval = 15 * time.Second
)

// Config wires a Bridge.
type Config struct {
	DB        *gorm.DB
	Publisher *Publisher
	Store     *bedstore.Store
	DeviceID  string
	Logger    *zap.Logger
	Metrics   *metrics.Metrics

	QueueSize      int
	ResyncInterval time.Duration
	// PollInterval enables a periodic full refetch. Used when no event
	// subscription is available.
	PollInterval time.Duration
	// Clock stamps updated_at on written rows.
	Clock func() time.Time
}

// Bridge is the remote sync worker of one device.
type Bridge struct {
	db      *gorm.DB
	pub     *Publisher
	store   *bedstore.Store
	remote  *bedstore.Store
	device  string
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
	resync  time.Duration
	poll    time.Duration
	queue   chan bedstore.Change
	// writeMu orders every write of a bed row with the read of the state
	// it writes.
	writeMu  sync.Mutex
	dirtyMu  sync.Mutex
	dirty    map[int]struct{}
	attached sync.Once
}

// New returns a Bridge. Call Attach before the first local mutation and Run to
// start the workers.
func New(cfg Config) *Bridge {
	b := &Bridge{
		db:      cfg.DB,
		pub:     cfg.Publisher,
		store:   cfg.Store,
		remote:  cfg.Store.WithSource(bedstore.SourceRemote),
		device:  cfg.DeviceID,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		resync:  cfg.ResyncInterval,
		poll:    cfg.PollInterval,
		dirty:   map[int]struct{}{},
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.metrics == nil {
		b.metrics = metrics.New()
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	if b.resync <= 0 {
		b.resync = DefaultResyncInterval
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	b.queue = make(chan bedstore.Change, size)
	return b
}

// Attach subscribes the bridge to the store's changes.
func (b *Bridge) Attach() {
	b.attached.Do(func() { b.store.Subscribe(b.enqueue) })
}

// pushes reports whether a change has to be written out by the bridge.
func pushes(ch bedstore.Change) bool {
	if ch.Op == bedstore.OpStamp {
		return false
	}
	switch ch.Source {
	case bedstore.SourceRemote, bedstore.SourceLoad, bedstore.SourceMove:
		return false
	}
	return true
}

func (b *Bridge) enqueue(ch bedstore.Change) {
	if !pushes(ch) {
		return
	}
	select {
	case b.queue <- ch:
	default:
		b.logger.Warn("outbound queue full, bed marked for resync", zap.Int("bed_id", ch.BedID))
		b.markDirty(ch.BedID)
	}
}

// Run drives the outbound writer, the resync loop and the inbound
// subscription until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.pub.Subscribe(ctx, BedChannel, func(payload string) {
			if err := b.HandleMessage(ctx, payload); err != nil {
				b.logger.Warn("failed to handle bed event", zap.Error(err))
			}
		})
	}()
	go func() {
		defer wg.Done()
		b.resyncLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case ch := <-b.queue:
			b.Push(ctx, ch)
		}
	}
}

func (b *Bridge) resyncLoop(ctx context.Context) {
	resync := time.NewTicker(b.resync)
	defer resync.Stop()
	var poll <-chan time.Time
	if b.poll > 0 {
		t := time.NewTicker(b.poll)
		defer t.Stop()
		poll = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-resync.C:
			b.Resync(ctx)
		case <-poll:
			if err := b.Refetch(ctx); err != nil {
				b.logger.Warn("bed refetch failed", zap.Error(err))
			}
		}
	}
}

// Push writes the columns touched by one local change. The values come from
// the bed as it is now, not as it was when the change was queued, so a push
// that lands after a resync never rolls the row back. Failures are logged and
// leave the bed dirty for the resync loop; they never reach the caller that
// mutated the bed.
func (b *Bridge) Push(ctx context.Context, ch bedstore.Change) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	bed, ok := b.store.Get(ch.BedID)
	if !ok {
		return
	}
	if bed.LastUpdateTimestamp > ch.Bed.LastUpdateTimestamp {
		b.logger.Debug("pushing newer bed state than queued",
			zap.Int("bed_id", ch.BedID),
			zap.String("op", string(ch.Op)))
	}
	updatedAt, err := b.write(b.db.WithContext(ctx), bed, ch.Fields)
	if err != nil {
		b.metrics.RemoteWrites.WithLabelValues("error").Inc()
		b.logger.Error("failed to write bed",
			zap.Int("bed_id", ch.BedID),
			zap.String("op", string(ch.Op)),
			zap.Error(err))
		util.LogBoardEvent(util.BoardEvent{
			EventType: util.EventOutboundFailure,
			DeviceID:  b.device,
			BedID:     ch.BedID,
			Message:   err.Error(),
			Details:   map[string]interface{}{"op": string(ch.Op)},
		})
		b.markDirty(ch.BedID)
		return
	}
	b.metrics.RemoteWrites.WithLabelValues("ok").Inc()
	b.committed(ctx, bed, updatedAt)
}

// Serialize runs fn with no push or resync in flight. Writers outside the
// bridge queue, such as a bed move, use it around their read and write.
func (b *Bridge) Serialize(fn func() error) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return fn()
}

// WriteTx writes bed fields inside tx and returns the assigned updated_at.
// The caller must call Committed after tx commits.
func (b *Bridge) WriteTx(tx *gorm.DB, bed model.Bed, fields []model.BedField) (int64, error) {
	return b.write(tx, bed, fields)
}

// Committed stamps the local bed and announces the write.
func (b *Bridge) Committed(ctx context.Context, bed model.Bed, updatedAt int64) {
	b.committed(ctx, bed, updatedAt)
}

// MarkDirty schedules a full rewrite of bed id.
func (b *Bridge) MarkDirty(id int) {
	b.markDirty(id)
}

func (b *Bridge) write(db *gorm.DB, bed model.Bed, fields []model.BedField) (int64, error) {
	updatedAt := b.clock().UnixMilli()
	row := model.BedToRow(bed)
	row.UpdatedAt = updatedAt
	cols := model.BedColumns(row, fields)
	cols["updated_at"] = updatedAt

	res := db.Model(&model.BedRow{}).Where("id = ?", row.ID).Updates(cols)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if err := db.Create(&row).Error; err != nil {
			return 0, fmt.Errorf("create bed row %d: %w", row.ID, err)
		}
	}
	return updatedAt, nil
}

func (b *Bridge) committed(ctx context.Context, bed model.Bed, updatedAt int64) {
	b.store.Stamp(bed.ID, updatedAt)
	row := model.BedToRow(bed)
	row.UpdatedAt = updatedAt
	ev := ChangeEvent{
		Table:     row.TableName(),
		Origin:    b.device,
		ID:        row.ID,
		UpdatedAt: updatedAt,
		Row:       &row,
	}
	if err := b.pub.Publish(ctx, BedChannel, ev); err != nil {
		b.logger.Warn("failed to publish bed event", zap.Int("bed_id", bed.ID), zap.Error(err))
	}
}

func (b *Bridge) markDirty(id int) {
	b.dirtyMu.Lock()
	b.dirty[id] = struct{}{}
	n := len(b.dirty)
	b.dirtyMu.Unlock()
	b.metrics.DirtyBeds.Set(float64(n))
}

// Dirty lists the beds waiting for a resync.
func (b *Bridge) Dirty() []int {
	b.dirtyMu.Lock()
	defer b.dirtyMu.Unlock()
	ids := make([]int, 0, len(b.dirty))
	for id := range b.dirty {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Resync rewrites the full current state of every dirty bed. A full write is
// idempotent, so repeating it after a partial failure is safe.
func (b *Bridge) Resync(ctx context.Context) {
	for _, id := range b.Dirty() {
		b.resyncBed(ctx, id)
	}
}

func (b *Bridge) resyncBed(ctx context.Context, id int) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	bed, ok := b.store.Get(id)
	if !ok {
		b.clearDirty(id)
		return
	}
	updatedAt, err := b.write(b.db.WithContext(ctx), bed, model.AllBedFields)
	if err != nil {
		b.metrics.RemoteWrites.WithLabelValues("error").Inc()
		b.logger.Warn("bed resync failed", zap.Int("bed_id", id), zap.Error(err))
		return
	}
	b.metrics.RemoteWrites.WithLabelValues("resync").Inc()
	b.clearDirty(id)
	b.committed(ctx, bed, updatedAt)
}

func (b *Bridge) clearDirty(id int) {
	b.dirtyMu.Lock()
	delete(b.dirty, id)
	n := len(b.dirty)
	b.dirtyMu.Unlock()
	b.metrics.DirtyBeds.Set(float64(n))
}

// HandleMessage merges one published event. Events this device published are
// dropped.
func (b *Bridge) HandleMessage(ctx context.Context, payload string) error {
	ev, err := DecodeEvent(payload)
	if err != nil {
		return err
	}
	if ev.Origin == b.device {
		return nil
	}
	row := ev.Row
	if row == nil {
		var fetched model.BedRow
		if err := b.db.WithContext(ctx).First(&fetched, ev.ID).Error; err != nil {
			return fmt.Errorf("read bed %d: %w", ev.ID, err)
		}
		row = &fetched
	}
	remote, err := model.BedFromRow(*row)
	if err != nil {
		return err
	}
	b.Apply(remote)
	return nil
}

// Apply merges one remote bed record into the store and reports the decision.
func (b *Bridge) Apply(remote model.Bed) Decision {
	local, ok := b.store.Get(remote.ID)
	if !ok {
		return IgnoredStale
	}
	merged, decision := Merge(local, remote, b.store.Now())
	if !decision.Ignored() && remote.UpdatedAt != 0 && remote.UpdatedAt <= local.UpdatedAt {
		decision = Unchanged
	}
	b.metrics.RemoteEvents.WithLabelValues(string(decision)).Inc()
	if decision.Ignored() {
		b.logger.Debug("remote bed update ignored",
			zap.Int("bed_id", remote.ID),
			zap.String("decision", string(decision)),
			zap.Int64("local_ts", local.LastUpdateTimestamp),
			zap.Int64("remote_ts", remote.UpdatedAt))
		util.LogBoardEvent(util.BoardEvent{
			EventType:       util.EventRemoteIgnored,
			DeviceID:        b.device,
			BedID:           remote.ID,
			Message:         string(decision),
			LocalTimestamp:  local.LastUpdateTimestamp,
			RemoteTimestamp: remote.UpdatedAt,
		})
		return decision
	}
	b.remote.ApplyRemote(merged)
	return decision
}

// EnsureRows creates an IDLE row for every local bed missing remotely.
func (b *Bridge) EnsureRows(ctx context.Context) error {
	db := b.db.WithContext(ctx)
	for _, id := range b.store.IDs() {
		row := model.BedToRow(model.NewIdleBed(id))
		if err := db.Where(model.BedRow{ID: uint(id)}).FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("ensure bed row %d: %w", id, err)
		}
	}
	return nil
}

// Refetch reads every bed row and merges it into the store.
func (b *Bridge) Refetch(ctx context.Context) error {
	var rows []model.BedRow
	if err := b.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return fmt.Errorf("fetch beds: %w", err)
	}
	var errs []error
	for _, row := range rows {
		remote, err := model.BedFromRow(row)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.Apply(remote)
	}
	return errors.Join(errs...)
}
