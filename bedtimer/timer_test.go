package bedtimer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariebrainware/ltt-bedboard/bedstore"
	"github.com/ariebrainware/ltt-bedboard/catalog"
	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func at(ms int64) time.Time { return time.UnixMilli(ms) }

func TestDue_FiresOncePerTarget(t *testing.T) {
	tm := New()
	tm.apply([]Input{{BedID: 1, StartTime: 0, Basis: 10, Enabled: true, Label: "Hot"}})

	assert.Empty(t, tm.due(at(9_999)))
	alarms := tm.due(at(10_000))
	require.Len(t, alarms, 1)
	assert.Equal(t, 1, alarms[0].BedID)
	assert.Equal(t, "Hot", alarms[0].Label)
	assert.Equal(t, at(10_000), alarms[0].Target)

	assert.Empty(t, tm.due(at(11_000)))
	assert.Empty(t, tm.due(at(99_000)))
}

func TestDue_MissedTicksStillFireOnce(t *testing.T) {
	tm := New()
	tm.apply([]Input{{BedID: 4, StartTime: 0, Basis: 5, Enabled: true}})
	alarms := tm.due(at(3_600_000))
	require.Len(t, alarms, 1)
	assert.Equal(t, at(5_000), alarms[0].Target)
}

func TestApply_KeepsAlarmedForSameTarget(t *testing.T) {
	tm := New()
	in := Input{BedID: 1, StartTime: 0, Basis: 10, Enabled: true}
	tm.apply([]Input{in})
	require.Len(t, tm.due(at(10_000)), 1)

	tm.apply([]Input{in, {BedID: 2, StartTime: 0, Basis: 20, Enabled: true}})
	alarms := tm.due(at(20_000))
	require.Len(t, alarms, 1)
	assert.Equal(t, 2, alarms[0].BedID)
}

func TestApply_RearmsOnNewTarget(t *testing.T) {
	tm := New()
	tm.apply([]Input{{BedID: 1, StartTime: 0, Basis: 10, Enabled: true}})
	require.Len(t, tm.due(at(10_000)), 1)

	// duration corrected after the alarm
	tm.apply([]Input{{BedID: 1, StartTime: 10_000, Basis: 30, Enabled: true}})
	assert.Empty(t, tm.due(at(39_000)))
	assert.Len(t, tm.due(at(40_000)), 1)
}

func TestApply_DisabledBedsAreDropped(t *testing.T) {
	tm := New()
	tm.apply([]Input{{BedID: 1, StartTime: 0, Basis: 10, Enabled: true}})
	tm.apply([]Input{{BedID: 1, StartTime: 0, Basis: 10, Enabled: false}})
	assert.Empty(t, tm.due(at(60_000)))
}

func TestInputFor(t *testing.T) {
	start := int64(5_000)
	steps := []model.TreatmentStep{
		{ID: "Hot", Name: "Hot Pack", Duration: 600, EnableTimer: true},
		{ID: "Manual", Name: "Manual Therapy", Duration: 600, EnableTimer: false},
	}
	templates := model.DefaultQuickTreatments
	b := model.Bed{ID: 3, Status: model.BedActive, StartTime: &start, OriginalDuration: 600}

	in := InputFor(b, steps, templates)
	assert.True(t, in.Enabled)
	assert.Equal(t, "Hot", in.Label)
	assert.Equal(t, int64(605_000), in.Target())

	b.IsPaused = true
	assert.False(t, InputFor(b, steps, templates).Enabled)

	b.IsPaused = false
	b.CurrentStepIndex = 1
	in = InputFor(b, steps, templates)
	assert.False(t, in.Enabled)
	assert.Equal(t, "Manual", in.Label)

	b.Status = model.BedCompleted
	assert.False(t, InputFor(b, steps, templates).Enabled)
}

func TestInputsFrom(t *testing.T) {
	s := bedstore.New(3, catalog.Default())
	require.True(t, s.StartPreset(2, 1, model.CareFlags{}))

	inputs := InputsFrom(s)
	require.Len(t, inputs, 3)
	assert.False(t, inputs[0].Enabled)
	assert.True(t, inputs[1].Enabled)
	assert.Equal(t, "Hot", inputs[1].Label)
}

func TestUpdate_NeverBlocks(t *testing.T) {
	tm := New()
	for i := 0; i < 10; i++ {
		tm.Update([]Input{{BedID: i}})
	}
	latest := <-tm.inputs
	require.Len(t, latest, 1)
	assert.Equal(t, 9, latest[0].BedID)
}

func TestRun_DeliversTicksAndAlarms(t *testing.T) {
	c := &clock{now: at(0)}
	tm := New(WithInterval(5*time.Millisecond), WithClock(c.Now))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tm.Run(ctx) }()

	tm.Update([]Input{{BedID: 7, StartTime: 0, Basis: 60, Enabled: true, Label: "US"}})

	select {
	case <-tm.Ticks():
	case <-time.After(time.Second):
		t.Fatal("no tick")
	}

	c.Advance(61 * time.Second)
	select {
	case a := <-tm.Alarms():
		assert.Equal(t, 7, a.BedID)
		assert.Equal(t, "US", a.Label)
	case <-time.After(time.Second):
		t.Fatal("no alarm")
	}

	select {
	case a := <-tm.Alarms():
		t.Fatalf("duplicate alarm %+v", a)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
