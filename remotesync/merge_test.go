package remotesync

import (
	"testing"
	"time"

	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeBed(id int, presetID uint) model.Bed {
	b := model.NewIdleBed(id)
	b.Status = model.BedActive
	b.CurrentPresetID = &presetID
	start := int64(1_000)
	b.StartTime = &start
	b.OriginalDuration = 600
	b.RemainingTime = 600
	return b
}

func TestShouldIgnoreServerUpdate(t *testing.T) {
	stamps := []int64{0, 1, 999, 1_000, 1_001, 1_700_000_000_000}
	for _, l := range stamps {
		for _, r := range stamps {
			local := model.Bed{LastUpdateTimestamp: l}
			remote := model.Bed{UpdatedAt: r}
			assert.Equal(t, l > r, ShouldIgnoreServerUpdate(local, remote), "local=%d remote=%d", l, r)
		}
	}
}

func TestMerge_StaleRemoteIgnored(t *testing.T) {
	local := activeBed(1, 2)
	local.LastUpdateTimestamp = 5_000
	remote := model.NewIdleBed(1)
	remote.UpdatedAt = 4_999

	got, d := Merge(local, remote, time.UnixMilli(6_000))
	assert.Equal(t, IgnoredStale, d)
	assert.True(t, d.Ignored())
	assert.Equal(t, local, got)
}

func TestMerge_ZombieSuppressed(t *testing.T) {
	local := model.NewIdleBed(5)
	local.LastUpdateTimestamp = 100_000
	local.ClearedAt = 100_000
	remote := activeBed(5, 1)
	remote.UpdatedAt = 101_000

	_, d := Merge(local, remote, time.UnixMilli(105_000))
	assert.Equal(t, IgnoredZombie, d)

	got, d := Merge(local, remote, time.UnixMilli(110_001))
	assert.Equal(t, Accepted, d)
	assert.Equal(t, model.BedActive, got.Status)
	assert.Equal(t, int64(100_000), got.LastUpdateTimestamp)
}

func TestMerge_RemotelyIdledBedAcceptsRestart(t *testing.T) {
	// went IDLE through a remote record, never cleared here
	local := model.NewIdleBed(5)
	local.LastUpdateTimestamp = 100_000
	remote := activeBed(5, 1)
	remote.UpdatedAt = 101_000

	got, d := Merge(local, remote, time.UnixMilli(102_000))
	assert.Equal(t, Accepted, d)
	assert.Equal(t, model.BedActive, got.Status)
	assert.Zero(t, got.ClearedAt)
}

func TestMerge_NeverTouchedIdleAcceptsActive(t *testing.T) {
	remote := activeBed(2, 1)
	remote.UpdatedAt = 10
	got, d := Merge(model.NewIdleBed(2), remote, time.UnixMilli(20))
	assert.Equal(t, Accepted, d)
	assert.Equal(t, model.BedActive, got.Status)
}

func TestMerge_PreservesContent(t *testing.T) {
	local := activeBed(3, 4)
	local.LastUpdateTimestamp = 1_000
	local.CurrentStepIndex = 2
	local.Memos = map[int]string{1: "left knee"}
	remote := activeBed(3, 4)
	remote.CurrentPresetID = nil
	remote.Flags.Fluid = true
	remote.CurrentStepIndex = 5
	remote.UpdatedAt = 2_000

	got, d := Merge(local, remote, time.UnixMilli(3_000))
	assert.Equal(t, ContentPreserved, d)
	require.NotNil(t, got.CurrentPresetID)
	assert.Equal(t, uint(4), *got.CurrentPresetID)
	assert.True(t, got.Flags.Fluid)
	assert.Equal(t, 2, got.CurrentStepIndex)
	assert.Equal(t, map[int]string{1: "left knee"}, got.Memos)
	assert.Equal(t, int64(2_000), got.UpdatedAt)

	// the merged memos are a copy
	got.Memos[1] = "changed"
	assert.Equal(t, "left knee", local.Memos[1])
}

func TestMerge_IdleIsCanonical(t *testing.T) {
	local := activeBed(3, 4)
	local.LastUpdateTimestamp = 1_000
	remote := model.NewIdleBed(3)
	remote.RemainingTime = 45
	remote.Flags.Manual = true
	remote.Memos = map[int]string{0: "left over"}
	preset := uint(9)
	remote.CurrentPresetID = &preset
	remote.UpdatedAt = 2_000

	got, d := Merge(local, remote, time.UnixMilli(3_000))
	assert.Equal(t, Accepted, d)
	assert.True(t, got.IsCanonicalIdle())
	assert.Equal(t, int64(2_000), got.UpdatedAt)
	assert.Equal(t, int64(1_000), got.LastUpdateTimestamp)
}
