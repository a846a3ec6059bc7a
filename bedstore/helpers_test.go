package bedstore

import (
	"sync"
	"time"

	"github.com/ariebrainware/ltt-bedboard/catalog"
	"github.com/ariebrainware/ltt-bedboard/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(count int) (*Store, *fakeClock) {
	clock := newFakeClock()
	return New(count, catalog.Default(), WithClock(clock.Now)), clock
}

func hotICT() []model.TreatmentStep {
	return []model.TreatmentStep{
		{ID: "Hot", Name: "Hot Pack", Duration: 600, EnableTimer: true, Color: "red"},
		{ID: "ICT", Name: "ICT", Duration: 600, EnableTimer: true, Color: "blue"},
	}
}

func recordChanges(s *Store) *[]Change {
	var mu sync.Mutex
	var out []Change
	s.Subscribe(func(ch Change) {
		mu.Lock()
		out = append(out, ch)
		mu.Unlock()
	})
	return &out
}
