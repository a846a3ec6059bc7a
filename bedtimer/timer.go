// Package bedtimer runs the step countdown alarms of the board on their own
// goroutine. It compares the clock against a fixed target instant per bed, so
// missed or delayed ticks never shift an alarm.
package bedtimer

import (
	"context"
	"time"

	"github.com/ariebrainware/ltt-bedboard/bedstore"
	"github.com/ariebrainware/ltt-bedboard/codec"
	"github.com/ariebrainware/ltt-bedboard/model"
	"go.uber.org/zap"
)

// DefaultInterval is the tick period.
const DefaultInterval = time.Second

// Input is the timing snapshot of one bed.
type Input struct {
	BedID     int
	StartTime int64 // unix ms
	Basis     int   // seconds
	Enabled   bool
	Label     string
}

// Target returns the instant the running step runs out.
func (in Input) Target() int64 {
	return in.StartTime + int64(in.Basis)*1000
}

// Alarm reports that the running step of a bed has run out.
type Alarm struct {
	BedID  int
	Label  string
	Target time.Time
	At     time.Time
}

type target struct {
	at      int64
	label   string
	alarmed bool
}

// Timer is safe to use from any goroutine once Run has started.
type Timer struct {
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	inputs chan []Input
	ticks  chan time.Time
	alarms chan Alarm

	targets map[int]*target
}

// Option configures a Timer.
type Option func(*Timer)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithClock sets the wall clock.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Timer) {
		if l != nil {
			t.logger = l
		}
	}
}

// New returns a stopped Timer.
func New(opts ...Option) *Timer {
	t := &Timer{
		interval: DefaultInterval,
		now:      time.Now,
		logger:   zap.NewNop(),
		inputs:   make(chan []Input, 1),
		ticks:    make(chan time.Time, 1),
		alarms:   make(chan Alarm, 64),
		targets:  map[int]*target{},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Ticks delivers one value per interval. Ticks are dropped while the reader
// is behind; only the latest matters. The board refreshes its overtime gauge
// from it.
func (t *Timer) Ticks() <-chan time.Time {
	return t.ticks
}

// Alarms delivers exactly one Alarm per bed and target instant.
func (t *Timer) Alarms() <-chan Alarm {
	return t.alarms
}

// Update hands the timer a full set of bed inputs. It never blocks: a newer
// set replaces one the worker has not picked up yet.
func (t *Timer) Update(inputs []Input) {
	cp := append([]Input(nil), inputs...)
	for {
		select {
		case t.inputs <- cp:
			return
		default:
		}
		select {
		case <-t.inputs:
		default:
		}
	}
}

// Run drives the timer until ctx is done.
func (t *Timer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	t.logger.Info("bed timer started", zap.Duration("interval", t.interval))
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("bed timer stopped")
			return ctx.Err()
		case in := <-t.inputs:
			t.apply(in)
		case <-ticker.C:
			now := t.now()
			select {
			case t.ticks <- now:
			default:
			}
			for _, a := range t.due(now) {
				select {
				case t.alarms <- a:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// apply replaces the tracked targets. A bed keeps its alarmed mark only while
// its target instant is unchanged.
func (t *Timer) apply(inputs []Input) {
	next := make(map[int]*target, len(inputs))
	for _, in := range inputs {
		if !in.Enabled {
			continue
		}
		at := in.Target()
		if cur, ok := t.targets[in.BedID]; ok && cur.at == at {
			cur.label = in.Label
			next[in.BedID] = cur
			continue
		}
		next[in.BedID] = &target{at: at, label: in.Label}
	}
	t.targets = next
}

// due marks and returns every target that has passed and not yet alarmed.
func (t *Timer) due(now time.Time) []Alarm {
	ms := now.UnixMilli()
	var out []Alarm
	for id, tg := range t.targets {
		if tg.alarmed || ms < tg.at {
			continue
		}
		tg.alarmed = true
		out = append(out, Alarm{BedID: id, Label: tg.label, Target: time.UnixMilli(tg.at), At: now})
		t.logger.Debug("step alarm", zap.Int("bed_id", id), zap.String("label", tg.label))
	}
	return out
}

// InputFor builds the timer input of one bed.
func InputFor(b model.Bed, steps []model.TreatmentStep, templates []model.QuickTreatment) Input {
	in := Input{BedID: b.ID, Basis: b.OriginalDuration}
	if b.StartTime != nil {
		in.StartTime = *b.StartTime
	}
	if b.CurrentStepIndex < 0 || b.CurrentStepIndex >= len(steps) {
		return in
	}
	step := steps[b.CurrentStepIndex]
	in.Label = codec.Abbreviate(step, templates)
	in.Enabled = b.Status == model.BedActive && !b.IsPaused && b.StartTime != nil && step.EnableTimer
	return in
}

// InputsFrom builds the inputs of every bed in the store.
func InputsFrom(s *bedstore.Store) []Input {
	var templates []model.QuickTreatment
	if c := s.Catalog(); c != nil {
		templates = c.Templates()
	}
	out := make([]Input, 0, len(s.IDs()))
	for _, id := range s.IDs() {
		b, steps, ok := s.GetWithSteps(id)
		if !ok {
			continue
		}
		out = append(out, InputFor(b, steps, templates))
	}
	return out
}
