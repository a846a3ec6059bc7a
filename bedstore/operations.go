package bedstore

import (
	"strings"
	"time"

	"github.com/ariebrainware/ltt-bedboard/model"
)

// customPresetName is the name given to ad-hoc step lists.
const customPresetName = "custom"

// tractionStep is used when the catalog has no traction template.
var tractionStep = model.TreatmentStep{
	ID:          model.TractionLabel,
	Name:        "Traction",
	Duration:    900,
	EnableTimer: true,
	Color:       "green",
}

// Start runs an ad-hoc step list on bed id, overwriting whatever the bed was
// doing. Callers that must not overwrite an active bed check first.
func (s *Store) Start(id int, steps []model.TreatmentStep, flags model.CareFlags) bool {
	if len(steps) == 0 {
		return false
	}
	preset := &model.Preset{Name: customPresetName, Steps: model.CloneSteps(steps)}
	return s.start(id, nil, preset, flags)
}

// StartPreset runs catalog preset presetID on bed id.
func (s *Store) StartPreset(id int, presetID uint, flags model.CareFlags) bool {
	if s.t.catalog == nil {
		return false
	}
	p, ok := s.t.catalog.Preset(presetID)
	if !ok || len(p.Steps) == 0 {
		return false
	}
	pid := p.ID
	return s.startResolved(id, &pid, nil, p.Steps, flags)
}

// StartQuick runs a single quick-treatment template on bed id.
func (s *Store) StartQuick(id int, quickID uint, flags model.CareFlags) bool {
	if s.t.catalog == nil {
		return false
	}
	q, ok := s.t.catalog.Quick(quickID)
	if !ok {
		return false
	}
	preset := &model.Preset{Name: q.Name, Steps: []model.TreatmentStep{q.Step()}}
	return s.start(id, nil, preset, flags)
}

// StartTraction runs the fixed single-step traction preset on bed id.
func (s *Store) StartTraction(id int, flags model.CareFlags) bool {
	step := tractionStep
	if s.t.catalog != nil {
		if q, ok := s.t.catalog.QuickByLabel(model.TractionLabel); ok {
			step = q.Step()
		}
	}
	preset := &model.Preset{Name: step.Name, Steps: []model.TreatmentStep{step}}
	return s.start(id, nil, preset, flags)
}

func (s *Store) start(id int, presetID *uint, custom *model.Preset, flags model.CareFlags) bool {
	return s.startResolved(id, presetID, custom, custom.Steps, flags)
}

func (s *Store) startResolved(id int, presetID *uint, custom *model.Preset, steps []model.TreatmentStep, flags model.CareFlags) bool {
	steps = model.CloneSteps(steps)
	return s.mutate(id, func(e *entry, now time.Time) *Change {
		b := &e.bed
		b.Status = model.BedActive
		b.CurrentPresetID = presetID
		b.CustomPreset = custom.Clone()
		b.CurrentStepIndex = 0
		b.Flags = flags
		b.Memos = map[int]string{}
		e.steps = steps
		resetClock(b, steps[0].Duration, now)
		return &Change{Op: OpStart, Fields: model.AllBedFields}
	})
}

// Advance moves bed id to its next step, or completes it after the last one.
func (s *Store) Advance(id int) bool {
	return s.mutate(id, func(e *entry, now time.Time) *Change {
		b := &e.bed
		if b.Status != model.BedActive {
			return nil
		}
		next := b.CurrentStepIndex + 1
		if next < len(e.steps) {
			b.CurrentStepIndex = next
			resetClock(b, e.steps[next].Duration, now)
			return &Change{Op: OpAdvance, Fields: append([]model.BedField{model.FieldStepIndex}, model.TimerFields...)}
		}
		b.Status = model.BedCompleted
		if len(e.steps) > 0 {
			b.CurrentStepIndex = len(e.steps) - 1
		}
		b.StartTime = nil
		b.RemainingTime = 0
		b.IsPaused = false
		return &Change{Op: OpComplete, Fields: append([]model.BedField{model.FieldStatus, model.FieldStepIndex}, model.TimerFields...)}
	})
}

// Retreat moves an active bed back one step.
func (s *Store) Retreat(id int) bool {
	return s.mutate(id, func(e *entry, now time.Time) *Change {
		b := &e.bed
		if b.Status != model.BedActive || b.CurrentStepIndex <= 0 || b.CurrentStepIndex > len(e.steps) {
			return nil
		}
		b.CurrentStepIndex--
		resetClock(b, e.steps[b.CurrentStepIndex].Duration, now)
		return &Change{Op: OpRetreat, Fields: append([]model.BedField{model.FieldStepIndex}, model.TimerFields...)}
	})
}

// TogglePause freezes or resumes the countdown of an active bed. Resuming
// continues from the frozen remaining time, not from the step duration.
func (s *Store) TogglePause(id int) bool {
	return s.mutate(id, func(e *entry, now time.Time) *Change {
		b := &e.bed
		if b.Status != model.BedActive {
			return nil
		}
		if b.IsPaused {
			st := now.UnixMilli()
			b.StartTime = &st
			b.OriginalDuration = b.RemainingTime
			b.IsPaused = false
			return &Change{Op: OpResume, Fields: model.TimerFields}
		}
		b.RemainingTime = CalculateRemaining(*b, e.steps, now)
		b.IsPaused = true
		return &Change{Op: OpPause, Fields: model.TimerFields}
	})
}

// Reorder swaps steps i and j together with their memos. The bed switches to
// a custom snapshot of its steps. Moving the running step restarts its clock.
func (s *Store) Reorder(id, i, j int) bool {
	return s.mutate(id, func(e *entry, now time.Time) *Change {
		b := &e.bed
		if b.Status == model.BedIdle || i == j || i < 0 || j < 0 || i >= len(e.steps) || j >= len(e.steps) {
			return nil
		}
		steps := model.CloneSteps(e.steps)
		steps[i], steps[j] = steps[j], steps[i]
		name := customPresetName
		if b.CustomPreset != nil {
			name = b.CustomPreset.Name
		} else if b.CurrentPresetID != nil && s.t.catalog != nil {
			if p, ok := s.t.catalog.Preset(*b.CurrentPresetID); ok {
				name = p.Name
			}
		}
		b.CurrentPresetID = nil
		b.CustomPreset = &model.Preset{Name: name, Steps: model.CloneSteps(steps)}
		e.steps = steps

		mi, iok := b.Memos[i]
		mj, jok := b.Memos[j]
		delete(b.Memos, i)
		delete(b.Memos, j)
		if iok {
			b.Memos[j] = mi
		}
		if jok {
			b.Memos[i] = mj
		}

		fields := []model.BedField{model.FieldPreset, model.FieldMemos}
		if b.Status == model.BedActive && (b.CurrentStepIndex == i || b.CurrentStepIndex == j) {
			resetClock(b, steps[b.CurrentStepIndex].Duration, now)
			fields = append(fields, model.TimerFields...)
		}
		return &Change{Op: OpReorder, Fields: fields}
	})
}

// ReplaceSteps swaps in a new step list for a running bed, keeping its
// position when possible. The clock restarts on the (new) current step.
func (s *Store) ReplaceSteps(id int, steps []model.TreatmentStep) bool {
	if len(steps) == 0 {
		return false
	}
	steps = model.CloneSteps(steps)
	return s.mutate(id, func(e *entry, now time.Time) *Change {
		b := &e.bed
		if b.Status == model.BedIdle {
			return nil
		}
		b.CurrentPresetID = nil
		b.CustomPreset = &model.Preset{Name: customPresetName, Steps: model.CloneSteps(steps)}
		e.steps = steps
		if b.CurrentStepIndex >= len(steps) {
			b.CurrentStepIndex = len(steps) - 1
		}
		for k := range b.Memos {
			if k >= len(steps) {
				delete(b.Memos, k)
			}
		}
		fields := []model.BedField{model.FieldPreset, model.FieldStepIndex, model.FieldMemos}
		if b.Status == model.BedActive {
			resetClock(b, steps[b.CurrentStepIndex].Duration, now)
			fields = append(fields, model.TimerFields...)
		}
		return &Change{Op: OpSteps, Fields: fields}
	})
}

// SetMemo stores text for step index idx, or deletes it when text is nil or
// blank.
func (s *Store) SetMemo(id, idx int, text *string) bool {
	return s.mutate(id, func(e *entry, _ time.Time) *Change {
		b := &e.bed
		if b.Status == model.BedIdle || idx < 0 || idx >= len(e.steps) {
			return nil
		}
		if text == nil || strings.TrimSpace(*text) == "" {
			if _, ok := b.Memos[idx]; !ok {
				return nil
			}
			delete(b.Memos, idx)
		} else {
			b.Memos[idx] = *text
		}
		return &Change{Op: OpMemo, Fields: []model.BedField{model.FieldMemos}}
	})
}

// SetDuration overrides the running step's timer basis. Negative values are
// clamped to zero.
func (s *Store) SetDuration(id, seconds int) bool {
	if seconds < 0 {
		seconds = 0
	}
	return s.mutate(id, func(e *entry, now time.Time) *Change {
		if e.bed.Status != model.BedActive {
			return nil
		}
		resetClock(&e.bed, seconds, now)
		return &Change{Op: OpDuration, Fields: model.TimerFields}
	})
}

// ToggleFlag flips one care flag of a non-idle bed.
func (s *Store) ToggleFlag(id int, name string) bool {
	return s.mutate(id, func(e *entry, _ time.Time) *Change {
		if e.bed.Status == model.BedIdle || !e.bed.Flags.Toggle(name) {
			return nil
		}
		return &Change{Op: OpFlag, Fields: []model.BedField{model.FieldFlags}}
	})
}

// SetFlags replaces the care flags of a non-idle bed.
func (s *Store) SetFlags(id int, flags model.CareFlags) bool {
	return s.mutate(id, func(e *entry, _ time.Time) *Change {
		if e.bed.Status == model.BedIdle || e.bed.Flags == flags {
			return nil
		}
		e.bed.Flags = flags
		return &Change{Op: OpFlag, Fields: []model.BedField{model.FieldFlags}}
	})
}

// Clear resets bed id to the canonical IDLE state from any status.
func (s *Store) Clear(id int) bool {
	return s.mutate(id, func(e *entry, now time.Time) *Change {
		e.bed.ResetIdle()
		e.bed.ClearedAt = now.UnixMilli()
		e.steps = nil
		return &Change{Op: OpClear, Fields: model.AllBedFields}
	})
}

// ApplyRemote replaces bed state with a merged remote record. The local
// LastUpdateTimestamp and ClearedAt are kept: they only ever track local
// mutations.
func (s *Store) ApplyRemote(b model.Bed) bool {
	return s.mutate(b.ID, func(e *entry, _ time.Time) *Change {
		local, cleared := e.bed.LastUpdateTimestamp, e.bed.ClearedAt
		e.bed = b.Clone()
		e.bed.LastUpdateTimestamp = local
		e.bed.ClearedAt = cleared
		if e.bed.Status == model.BedIdle {
			e.bed.ResetIdle()
		}
		e.steps = s.t.resolve(e.bed)
		return &Change{Op: OpRemote, Source: SourceRemote, Fields: model.AllBedFields}
	})
}

// Stamp records the remote store's update time for bed id without counting as
// a local mutation.
func (s *Store) Stamp(id int, updatedAt int64) bool {
	return s.mutate(id, func(e *entry, _ time.Time) *Change {
		if updatedAt <= e.bed.UpdatedAt {
			return nil
		}
		e.bed.UpdatedAt = updatedAt
		return &Change{Op: OpStamp, Source: SourceRemote}
	})
}

// Replace loads beds from a cache or a full refetch. Unknown ids are skipped.
func (s *Store) Replace(beds []model.Bed) {
	for _, b := range beds {
		b := b
		s.mutate(b.ID, func(e *entry, _ time.Time) *Change {
			e.bed = b.Clone()
			if e.bed.Memos == nil {
				e.bed.Memos = map[int]string{}
			}
			e.steps = s.t.resolve(e.bed)
			return &Change{Op: OpLoad, Source: SourceLoad, Fields: model.AllBedFields}
		})
	}
}

// resetClock restarts the countdown at seconds from now.
func resetClock(b *model.Bed, seconds int, now time.Time) {
	st := now.UnixMilli()
	b.StartTime = &st
	b.OriginalDuration = seconds
	b.RemainingTime = seconds
	b.IsPaused = false
}
