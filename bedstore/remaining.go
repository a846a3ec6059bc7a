package bedstore

import (
	"time"

	"github.com/ariebrainware/ltt-bedboard/model"
)

// StaleAfter is the age after which a non-idle bed loaded from cache is
// treated as abandoned.
const StaleAfter = 12 * time.Hour

// CalculateRemaining derives the remaining seconds of bed at now. The result
// is not clamped: a negative value means the step has overrun.
//
// Beds that are not running a clock report their stored RemainingTime. A
// step with its timer disabled always reports zero.
func CalculateRemaining(bed model.Bed, steps []model.TreatmentStep, now time.Time) int {
	if bed.Status != model.BedActive || bed.StartTime == nil || bed.IsPaused {
		return bed.RemainingTime
	}
	if bed.CurrentStepIndex >= 0 && bed.CurrentStepIndex < len(steps) && !steps[bed.CurrentStepIndex].EnableTimer {
		return 0
	}
	return bed.OriginalDuration - int(floorDiv(now.UnixMilli()-*bed.StartTime, 1000))
}

// floorDiv rounds toward negative infinity. A start time ahead of the local
// clock gives a negative elapsed time.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// IsStale reports whether a non-idle bed has not been touched for maxAge.
func IsStale(bed model.Bed, now time.Time, maxAge time.Duration) bool {
	if bed.Status == model.BedIdle {
		return false
	}
	last := bed.LastUpdateTimestamp
	if bed.UpdatedAt > last {
		last = bed.UpdatedAt
	}
	if last == 0 && bed.StartTime != nil {
		last = *bed.StartTime
	}
	return now.UnixMilli()-last > maxAge.Milliseconds()
}

// NormalizeStale returns the beds with every stale one reset to IDLE, and the
// ids that were reset.
func NormalizeStale(beds []model.Bed, now time.Time, maxAge time.Duration) ([]model.Bed, []int) {
	out := make([]model.Bed, 0, len(beds))
	var reset []int
	for _, b := range beds {
		b = b.Clone()
		if IsStale(b, now, maxAge) {
			b.ResetIdle()
			reset = append(reset, b.ID)
		}
		out = append(out, b)
	}
	return out, reset
}
