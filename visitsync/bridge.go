// Package visitsync keeps visit log rows and beds moving together. Bed
// treatment changes cascade into the bed's current visit, and log edits can
// start, override or clear the bed they point at.
package visitsync

import (
	"context"
	"fmt"
	"time"

	"github.com/ariebrainware/ltt-bedboard/bedstore"
	"github.com/ariebrainware/ltt-bedboard/codec"
	"github.com/ariebrainware/ltt-bedboard/metrics"
	"github.com/ariebrainware/ltt-bedboard/model"
	"go.uber.org/zap"
)

const defaultQueueSize = 128

// Config wires a Bridge.
type Config struct {
	Repo    *Repository
	Store   *bedstore.Store
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

// Bridge is the visit and bed cross-sync of one device.
type Bridge struct {
	repo     *Repository
	store    *bedstore.Store
	logStore *bedstore.Store
	logger   *zap.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
	queue    chan bedstore.Change
}

// New returns a Bridge. Call Attach and Run to enable the bed cascade.
func New(cfg Config) *Bridge {
	b := &Bridge{
		repo:     cfg.Repo,
		store:    cfg.Store,
		logStore: cfg.Store.WithSource(bedstore.SourceVisitLog),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		clock:    cfg.Clock,
		queue:    make(chan bedstore.Change, defaultQueueSize),
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
	return b
}

// Today returns the visit date of now.
func (b *Bridge) Today() string {
	return b.clock().Format(model.VisitDateLayout)
}

// Repo returns the visit repository.
func (b *Bridge) Repo() *Repository {
	return b.repo
}

// Attach subscribes the cascade to the store's changes.
func (b *Bridge) Attach() {
	b.store.Subscribe(b.enqueue)
}

// cascadeFields picks the visit-relevant fields of a change. Changes that came
// from the log, from another device or from the cache never cascade.
func cascadeFields(ch bedstore.Change) []model.BedField {
	switch ch.Source {
	case bedstore.SourceVisitLog, bedstore.SourceRemote, bedstore.SourceLoad, bedstore.SourceMove:
		return nil
	}
	switch ch.Op {
	case bedstore.OpStart:
		return []model.BedField{model.FieldPreset, model.FieldFlags}
	case bedstore.OpReorder, bedstore.OpSteps:
		return []model.BedField{model.FieldPreset}
	case bedstore.OpFlag:
		return []model.BedField{model.FieldFlags}
	}
	return nil
}

func (b *Bridge) enqueue(ch bedstore.Change) {
	fields := cascadeFields(ch)
	if len(fields) == 0 {
		return
	}
	ch.Fields = fields
	select {
	case b.queue <- ch:
	default:
		b.metrics.VisitCascades.WithLabelValues("dropped").Inc()
		b.logger.Warn("visit cascade queue full", zap.Int("bed_id", ch.BedID))
	}
}

// Run applies queued cascades until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch := <-b.queue:
			if err := b.OnBedChanged(ctx, ch.BedID, ch.Fields, ch.Bed, ch.Steps); err != nil {
				b.metrics.VisitCascades.WithLabelValues("error").Inc()
				b.logger.Error("failed to cascade bed change into visit",
					zap.Int("bed_id", ch.BedID), zap.Error(err))
			}
		}
	}
}

// OnBedChanged copies the given bed fields into the bed's current visit. It is
// a no-op when the bed has no visit today.
func (b *Bridge) OnBedChanged(ctx context.Context, bedID int, fields []model.BedField, bed model.Bed, steps []model.TreatmentStep) error {
	v, ok, err := b.repo.CurrentForBed(ctx, bedID, b.Today())
	if err != nil {
		return err
	}
	if !ok {
		b.metrics.VisitCascades.WithLabelValues("no_visit").Inc()
		return nil
	}
	var patch model.VisitPatch
	for _, f := range fields {
		switch f {
		case model.FieldPreset:
			code := codec.Encode(steps, b.templates())
			if code != v.TreatmentName {
				patch.TreatmentName = &code
			}
		case model.FieldFlags:
			if bed.Flags != v.Flags {
				flags := bed.Flags
				patch.Flags = &flags
			}
		}
	}
	if len(patch.Columns()) == 0 {
		return nil
	}
	if _, err := b.repo.Update(ctx, v.ID, patch); err != nil {
		return err
	}
	b.metrics.VisitCascades.WithLabelValues("ok").Inc()
	return nil
}

// CreateVisitWithBedSync inserts v and starts its bed from the visit's code.
// An ACTIVE bed is only overwritten after confirmation.
func (b *Bridge) CreateVisitWithBedSync(ctx context.Context, v *model.Visit, confirm Confirmer) error {
	if err := validate(*v); err != nil {
		return err
	}
	force := false
	if v.BedID != nil {
		target, ok := b.store.Get(*v.BedID)
		if !ok {
			return fmt.Errorf("%w: unknown bed %d", ErrInvalidVisit, *v.BedID)
		}
		if target.Status == model.BedActive {
			err := Ask(ctx, confirm, ConfirmRequest{
				Kind:    ConfirmOverwriteBed,
				BedID:   *v.BedID,
				Message: fmt.Sprintf("bed %d is in use; overwrite it with %s?", *v.BedID, v.PatientName),
			})
			if err != nil {
				return err
			}
			force = true
		}
	}
	if err := b.repo.Create(ctx, v); err != nil {
		return err
	}
	if v.BedID != nil {
		b.OverrideBedFromLog(*v.BedID, *v, force)
	}
	return nil
}

// UpdateVisitWithBedSync is the log editing entry point. With skipBedSync
// only the visit row changes. Otherwise a bed reassignment onto an ACTIVE bed
// needs confirmation, then the bed is started from the visit's code. The bed
// the visit leaves is cleared.
func (b *Bridge) UpdateVisitWithBedSync(ctx context.Context, visitID uint, patch model.VisitPatch, skipBedSync bool, confirm Confirmer) (model.Visit, error) {
	if skipBedSync {
		return b.repo.Update(ctx, visitID, patch)
	}
	before, err := b.repo.Get(ctx, visitID)
	if err != nil {
		return model.Visit{}, err
	}
	after := patch.Apply(before)
	if err := validate(after); err != nil {
		return model.Visit{}, err
	}

	reassigned := patch.TouchesBed() && !model.SameBed(before.BedID, after.BedID)
	if reassigned && after.BedID != nil {
		target, ok := b.store.Get(*after.BedID)
		if !ok {
			return model.Visit{}, fmt.Errorf("%w: unknown bed %d", ErrInvalidVisit, *after.BedID)
		}
		if target.Status == model.BedActive {
			err := Ask(ctx, confirm, ConfirmRequest{
				Kind:    ConfirmOverwriteBed,
				BedID:   *after.BedID,
				VisitID: visitID,
				Message: fmt.Sprintf("bed %d is in use; overwrite it with %s?", *after.BedID, after.PatientName),
			})
			if err != nil {
				return model.Visit{}, err
			}
		}
	}

	// The old bed is only cleared when this visit is what it was running.
	leaving := false
	if reassigned && before.BedID != nil {
		cur, ok, err := b.repo.CurrentForBed(ctx, *before.BedID, before.VisitDate)
		if err != nil {
			return model.Visit{}, err
		}
		leaving = ok && cur.ID == before.ID
	}

	saved, err := b.repo.Update(ctx, visitID, patch)
	if err != nil {
		return model.Visit{}, err
	}

	if leaving {
		b.logStore.Clear(*before.BedID)
	}
	switch {
	case reassigned && saved.BedID != nil:
		b.OverrideBedFromLog(*saved.BedID, saved, true)
	case saved.BedID != nil && (patch.TreatmentName != nil || patch.Flags != nil):
		// An older visit on a bed that has since been taken over is history.
		cur, ok, err := b.repo.CurrentForBed(ctx, *saved.BedID, saved.VisitDate)
		if err != nil {
			return saved, err
		}
		if ok && cur.ID == saved.ID {
			b.OverrideBedFromLog(*saved.BedID, saved, false)
		}
	}
	return saved, nil
}

// OverrideBedFromLog drives bed bedID from a visit's treatment code. An IDLE
// bed, or any bed when forceRestart is set, is started from scratch. A busy
// bed only gets new steps when the code actually differs, so unrelated edits
// never reset its clock. It reports whether the bed changed.
func (b *Bridge) OverrideBedFromLog(bedID int, v model.Visit, forceRestart bool) bool {
	templates := b.templates()
	steps := codec.Decode(v.TreatmentName, templates)
	bed, current, ok := b.store.GetWithSteps(bedID)
	if !ok {
		return false
	}
	if bed.Status == model.BedIdle || forceRestart {
		if len(steps) == 0 {
			return false
		}
		return b.logStore.Start(bedID, steps, v.Flags)
	}

	changed := false
	if len(steps) > 0 && codec.Encode(current, templates) != codec.Encode(steps, templates) {
		changed = b.logStore.ReplaceSteps(bedID, steps)
	}
	if b.logStore.SetFlags(bedID, v.Flags) {
		changed = true
	}
	return changed
}

func (b *Bridge) templates() []model.QuickTreatment {
	if c := b.store.Catalog(); c != nil {
		return c.Templates()
	}
	return nil
}
