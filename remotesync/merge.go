package remotesync

import (
	"time"

	"github.com/ariebrainware/ltt-bedboard/model"
)

// ZombieWindow is how long after a local clear an incoming ACTIVE record is
// treated as a stale echo. A bed that went IDLE through a remote record is
// not protected.
const ZombieWindow = 10 * time.Second

// Decision is the outcome of merging a remote bed record.
type Decision string

const (
	Accepted         Decision = "accepted"
	ContentPreserved Decision = "content_preserved"
	IgnoredStale     Decision = "ignored_stale"
	IgnoredZombie    Decision = "ignored_zombie"
	Unchanged        Decision = "unchanged"
)

// Ignored reports whether the remote payload was discarded.
func (d Decision) Ignored() bool {
	return d == IgnoredStale || d == IgnoredZombie || d == Unchanged
}

// ShouldIgnoreServerUpdate reports whether the local bed was mutated after the
// remote record was written.
func ShouldIgnoreServerUpdate(local, remote model.Bed) bool {
	return local.LastUpdateTimestamp > remote.UpdatedAt
}

// Merge decides how a remote record folds into the local bed and returns the
// bed to apply. The local LastUpdateTimestamp and ClearedAt always survive.
func Merge(local, remote model.Bed, now time.Time) (model.Bed, Decision) {
	if ShouldIgnoreServerUpdate(local, remote) {
		return local, IgnoredStale
	}
	if local.Status == model.BedIdle && remote.Status == model.BedActive &&
		local.ClearedAt > 0 &&
		now.UnixMilli()-local.ClearedAt < ZombieWindow.Milliseconds() {
		return local, IgnoredZombie
	}

	merged := remote.Clone()
	merged.ID = local.ID
	merged.LastUpdateTimestamp = local.LastUpdateTimestamp
	merged.ClearedAt = local.ClearedAt
	decision := Accepted

	if merged.Status != model.BedIdle && !merged.HasContent() &&
		local.Status != model.BedIdle && local.HasContent() {
		if local.CurrentPresetID != nil {
			id := *local.CurrentPresetID
			merged.CurrentPresetID = &id
		}
		merged.CustomPreset = local.CustomPreset.Clone()
		merged.CurrentStepIndex = local.CurrentStepIndex
		merged.Memos = local.Clone().Memos
		decision = ContentPreserved
	}

	if merged.Status == model.BedIdle {
		merged.ResetIdle()
	}
	if merged.Memos == nil {
		merged.Memos = map[int]string{}
	}
	return merged, decision
}
