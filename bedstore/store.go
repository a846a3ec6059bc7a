// Package bedstore is the canonical local table of treatment beds. All bed
// mutations go through a Store; readers get deep-copied snapshots.
package bedstore

import (
	"sync"
	"time"

	"github.com/ariebrainware/ltt-bedboard/model"
	"go.uber.org/zap"
)

// Source tags where a mutation came from.
type Source string

const (
	SourceLocal    Source = "local"
	SourceRemote   Source = "remote"
	SourceVisitLog Source = "visit-log"
	SourceMove     Source = "move"
	SourceLoad     Source = "load"
)

// Op names the operation that produced a Change.
type Op string

const (
	OpStart    Op = "start"
	OpAdvance  Op = "advance"
	OpComplete Op = "complete"
	OpRetreat  Op = "retreat"
	OpPause    Op = "pause"
	OpResume   Op = "resume"
	OpReorder  Op = "reorder"
	OpSteps    Op = "steps"
	OpMemo     Op = "memo"
	OpDuration Op = "duration"
	OpFlag     Op = "flag"
	OpClear    Op = "clear"
	OpRemote   Op = "remote"
	OpLoad     Op = "load"
	OpStamp    Op = "stamp"
	OpMoveIn   Op = "move-in"
	OpMoveOut  Op = "move-out"
)

// Change describes one applied mutation. Bed and Steps are copies taken
// right after the mutation.
type Change struct {
	BedID  int
	Op     Op
	Source Source
	Fields []model.BedField
	Bed    model.Bed
	Steps  []model.TreatmentStep
}

// Catalog resolves preset and template references.
type Catalog interface {
	Preset(id uint) (model.Preset, bool)
	Quick(id uint) (model.QuickTreatment, bool)
	QuickByLabel(label string) (model.QuickTreatment, bool)
	Templates() []model.QuickTreatment
}

type entry struct {
	bed   model.Bed
	steps []model.TreatmentStep
}

type table struct {
	mu      sync.RWMutex
	beds    map[int]*entry
	ids     []int
	catalog Catalog
	now     func() time.Time
	logger  *zap.Logger

	// emitMu keeps subscriber delivery in mutation order.
	emitMu sync.Mutex
	subMu  sync.RWMutex
	subs   []func(Change)
}

// Store is a handle on the bed table. Handles returned by WithSource share
// the same table and differ only in the Source they stamp on changes.
type Store struct {
	t      *table
	source Source
}

// Option configures a Store.
type Option func(*table)

// WithClock sets the wall clock used for timestamps and remaining time.
func WithClock(now func() time.Time) Option {
	return func(t *table) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *table) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates beds 1..count, all IDLE. Beds are never added or removed later.
func New(count int, catalog Catalog, opts ...Option) *Store {
	t := &table{
		beds:    make(map[int]*entry, count),
		catalog: catalog,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(t)
	}
	for id := 1; id <= count; id++ {
		t.beds[id] = &entry{bed: model.NewIdleBed(id)}
		t.ids = append(t.ids, id)
	}
	return &Store{t: t, source: SourceLocal}
}

// WithSource returns a handle whose mutations are tagged with src.
func (s *Store) WithSource(src Source) *Store {
	return &Store{t: s.t, source: src}
}

// Catalog returns the catalog the store resolves presets with.
func (s *Store) Catalog() Catalog {
	return s.t.catalog
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.t.now()
}

// Subscribe registers fn to receive every change. fn runs synchronously on the
// mutating goroutine, after the table lock is released; it must not block and
// must not mutate the store.
func (s *Store) Subscribe(fn func(Change)) {
	s.t.subMu.Lock()
	s.t.subs = append(s.t.subs, fn)
	s.t.subMu.Unlock()
}

// IDs lists the bed ids in ascending order.
func (s *Store) IDs() []int {
	return append([]int(nil), s.t.ids...)
}

// Has reports whether id is a known bed.
func (s *Store) Has(id int) bool {
	_, ok := s.t.beds[id]
	return ok
}

// Get returns a copy of bed id.
func (s *Store) Get(id int) (model.Bed, bool) {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()
	e, ok := s.t.beds[id]
	if !ok {
		return model.Bed{}, false
	}
	return e.bed.Clone(), true
}

// Steps returns a copy of the step list bed id is running.
func (s *Store) Steps(id int) []model.TreatmentStep {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()
	e, ok := s.t.beds[id]
	if !ok {
		return nil
	}
	return model.CloneSteps(e.steps)
}

// GetWithSteps returns a copy of bed id and of its step list, taken together.
func (s *Store) GetWithSteps(id int) (model.Bed, []model.TreatmentStep, bool) {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()
	e, ok := s.t.beds[id]
	if !ok {
		return model.Bed{}, nil, false
	}
	return e.bed.Clone(), model.CloneSteps(e.steps), true
}

// Snapshot returns one consistent copy of every bed, ordered by id.
func (s *Store) Snapshot() []model.Bed {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()
	out := make([]model.Bed, 0, len(s.t.ids))
	for _, id := range s.t.ids {
		out = append(out, s.t.beds[id].bed.Clone())
	}
	return out
}

// Remaining derives the remaining seconds of bed id at the store clock.
func (s *Store) Remaining(id int) (int, bool) {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()
	e, ok := s.t.beds[id]
	if !ok {
		return 0, false
	}
	return CalculateRemaining(e.bed, e.steps, s.t.now()), true
}

// CalculateRemaining derives the remaining seconds of bed using the store's
// step snapshot and clock.
func (s *Store) CalculateRemaining(bed model.Bed) int {
	s.t.mu.RLock()
	var steps []model.TreatmentStep
	if e, ok := s.t.beds[bed.ID]; ok {
		steps = e.steps
	}
	now := s.t.now()
	s.t.mu.RUnlock()
	return CalculateRemaining(bed, steps, now)
}

// mutate runs fn on bed id under the write lock. fn returns the change to emit
// or nil when the operation does not apply.
func (s *Store) mutate(id int, fn func(e *entry, now time.Time) *Change) bool {
	s.t.emitMu.Lock()
	defer s.t.emitMu.Unlock()

	s.t.mu.Lock()
	e, ok := s.t.beds[id]
	if !ok {
		s.t.mu.Unlock()
		return false
	}
	now := s.t.now()
	ch := fn(e, now)
	if ch == nil {
		s.t.mu.Unlock()
		return false
	}
	if ch.Op != OpStamp && ch.Source != SourceRemote && ch.Source != SourceLoad {
		e.bed.LastUpdateTimestamp = now.UnixMilli()
	}
	if e.bed.Status != model.BedIdle {
		e.bed.ClearedAt = 0
	}
	s.fill(ch, id, e)
	s.t.mu.Unlock()

	s.emit(*ch)
	return true
}

func (s *Store) fill(ch *Change, id int, e *entry) {
	ch.BedID = id
	if ch.Source == "" {
		ch.Source = s.source
	}
	ch.Bed = e.bed.Clone()
	ch.Steps = model.CloneSteps(e.steps)
}

func (s *Store) emit(changes ...Change) {
	s.t.subMu.RLock()
	subs := make([]func(Change), len(s.t.subs))
	copy(subs, s.t.subs)
	s.t.subMu.RUnlock()
	for _, ch := range changes {
		for _, fn := range subs {
			fn(ch)
		}
	}
}

// resolve returns the step list bed content points at.
func (t *table) resolve(b model.Bed) []model.TreatmentStep {
	if b.CustomPreset != nil {
		return model.CloneSteps(b.CustomPreset.Steps)
	}
	if b.CurrentPresetID != nil && t.catalog != nil {
		if p, ok := t.catalog.Preset(*b.CurrentPresetID); ok {
			return p.Steps
		}
	}
	return nil
}
