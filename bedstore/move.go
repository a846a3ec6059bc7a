package bedstore

import (
	"errors"
	"time"

	"github.com/ariebrainware/ltt-bedboard/model"
)

var (
	ErrUnknownBed      = errors.New("unknown bed")
	ErrSameBed         = errors.New("source and destination are the same bed")
	ErrSourceIdle      = errors.New("source bed is idle")
	ErrDestinationBusy = errors.New("destination bed is not idle")
)

// CheckMove validates a move of from onto to without changing anything. It
// returns ErrDestinationBusy when to has a running or completed treatment; the
// caller decides whether to overwrite it.
func (s *Store) CheckMove(from, to int) error {
	s.t.mu.RLock()
	defer s.t.mu.RUnlock()
	src, ok := s.t.beds[from]
	dst, ok2 := s.t.beds[to]
	if !ok || !ok2 {
		return ErrUnknownBed
	}
	if from == to {
		return ErrSameBed
	}
	if src.bed.Status == model.BedIdle {
		return ErrSourceIdle
	}
	if dst.bed.Status != model.BedIdle {
		return ErrDestinationBusy
	}
	return nil
}

// Move carries the live state of bed from onto bed to and clears from. The
// destination keeps the exact remaining time and pause state. Both changes are
// applied under one lock and emitted together. A non-idle destination is
// overwritten.
func (s *Store) Move(from, to int) error {
	s.t.emitMu.Lock()
	defer s.t.emitMu.Unlock()

	s.t.mu.Lock()
	src, ok := s.t.beds[from]
	dst, ok2 := s.t.beds[to]
	if !ok || !ok2 {
		s.t.mu.Unlock()
		return ErrUnknownBed
	}
	if from == to {
		s.t.mu.Unlock()
		return ErrSameBed
	}
	if src.bed.Status == model.BedIdle {
		s.t.mu.Unlock()
		return ErrSourceIdle
	}

	now := s.t.now()
	moved := src.bed.Clone()
	moved.ID = to
	moved.UpdatedAt = dst.bed.UpdatedAt
	if moved.Status == model.BedActive {
		remaining := CalculateRemaining(src.bed, src.steps, now)
		moved.RemainingTime = remaining
		if !moved.IsPaused {
			st := now.UnixMilli()
			moved.StartTime = &st
			moved.OriginalDuration = remaining
		}
	}
	moved.LastUpdateTimestamp = now.UnixMilli()
	dst.bed = moved
	dst.steps = model.CloneSteps(src.steps)

	src.bed.ResetIdle()
	src.bed.LastUpdateTimestamp = now.UnixMilli()
	src.bed.ClearedAt = now.UnixMilli()
	src.steps = nil

	in := Change{Op: OpMoveIn, Source: SourceMove, Fields: model.AllBedFields}
	s.fill(&in, to, dst)
	out := Change{Op: OpMoveOut, Source: SourceMove, Fields: model.AllBedFields}
	s.fill(&out, from, src)
	s.t.mu.Unlock()

	s.emit(in, out)
	return nil
}

// RestoreMove reverses a move whose remote half failed: the destination goes
// back to before and the source gets the moved state.
func (s *Store) RestoreMove(from, to int, fromBefore, toBefore model.Bed) {
	s.mutate(to, func(e *entry, _ time.Time) *Change {
		e.bed = toBefore.Clone()
		e.steps = s.t.resolve(e.bed)
		return &Change{Op: OpLoad, Source: SourceMove, Fields: model.AllBedFields}
	})
	s.mutate(from, func(e *entry, _ time.Time) *Change {
		e.bed = fromBefore.Clone()
		e.steps = s.t.resolve(e.bed)
		return &Change{Op: OpLoad, Source: SourceMove, Fields: model.AllBedFields}
	})
}
