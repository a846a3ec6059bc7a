// Package catalog holds the treatment library: presets and quick-treatment
// templates. Reads are served from memory; writes go to the database first.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ariebrainware/ltt-bedboard/model"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a preset or template id is unknown.
var ErrNotFound = errors.New("catalog entry not found")

// Catalog is safe for concurrent use.
type Catalog struct {
	db *gorm.DB

	mu      sync.RWMutex
	presets map[uint]model.Preset
	quick   map[uint]model.QuickTreatment
	order   []uint // quick treatment ids in sort order
	pOrder  []uint
}

// New returns an empty catalog backed by db. db may be nil for a memory-only
// catalog.
func New(db *gorm.DB) *Catalog {
	return &Catalog{
		db:      db,
		presets: map[uint]model.Preset{},
		quick:   map[uint]model.QuickTreatment{},
	}
}

// NewStatic returns a memory-only catalog holding the given entries. Ids are
// assigned from 1 when zero.
func NewStatic(presets []model.Preset, quick []model.QuickTreatment) *Catalog {
	c := New(nil)
	for i, q := range quick {
		if q.ID == 0 {
			q.ID = uint(i + 1)
		}
		c.quick[q.ID] = q
		c.order = append(c.order, q.ID)
	}
	for i, p := range presets {
		if p.ID == 0 {
			p.ID = uint(i + 1)
		}
		c.presets[p.ID] = p
		c.pOrder = append(c.pOrder, p.ID)
	}
	return c
}

// Default returns a memory-only catalog with the seeded library.
func Default() *Catalog {
	quick := append([]model.QuickTreatment(nil), model.DefaultQuickTreatments...)
	byLabel := map[string]model.QuickTreatment{}
	for _, q := range quick {
		byLabel[q.Label] = q
	}
	var presets []model.Preset
	for _, def := range model.DefaultPresets {
		p := model.Preset{Name: def.Name}
		for _, l := range def.Labels {
			p.Steps = append(p.Steps, byLabel[l].Step())
		}
		presets = append(presets, p)
	}
	return NewStatic(presets, quick)
}

// Load replaces the in-memory library with the database contents.
func (c *Catalog) Load() error {
	if c.db == nil {
		return nil
	}
	var presetRows []model.PresetRow
	if err := c.db.Order("sort_order, id").Find(&presetRows).Error; err != nil {
		return fmt.Errorf("load presets: %w", err)
	}
	var quickRows []model.QuickTreatmentRow
	if err := c.db.Order("sort_order, id").Find(&quickRows).Error; err != nil {
		return fmt.Errorf("load quick treatments: %w", err)
	}

	presets := make(map[uint]model.Preset, len(presetRows))
	pOrder := make([]uint, 0, len(presetRows))
	for _, row := range presetRows {
		p, err := model.PresetFromRow(row)
		if err != nil {
			return err
		}
		presets[p.ID] = p
		pOrder = append(pOrder, p.ID)
	}
	quick := make(map[uint]model.QuickTreatment, len(quickRows))
	order := make([]uint, 0, len(quickRows))
	for _, row := range quickRows {
		quick[row.ID] = model.QuickFromRow(row)
		order = append(order, row.ID)
	}

	c.mu.Lock()
	c.presets, c.pOrder = presets, pOrder
	c.quick, c.order = quick, order
	c.mu.Unlock()
	return nil
}

// Preset returns a copy of preset id.
func (c *Catalog) Preset(id uint) (model.Preset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.presets[id]
	if !ok {
		return model.Preset{}, false
	}
	return *p.Clone(), true
}

// Presets lists every preset in display order.
func (c *Catalog) Presets() []model.Preset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Preset, 0, len(c.pOrder))
	for _, id := range c.pOrder {
		p := c.presets[id]
		out = append(out, *p.Clone())
	}
	return out
}

// Quick returns quick treatment id.
func (c *Catalog) Quick(id uint) (model.QuickTreatment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quick[id]
	return q, ok
}

// QuickByLabel finds a template by label, ignoring case.
func (c *Catalog) QuickByLabel(label string) (model.QuickTreatment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.order {
		if q := c.quick[id]; strings.EqualFold(q.Label, label) {
			return q, true
		}
	}
	return model.QuickTreatment{}, false
}

// Templates lists the quick treatments in display order. The step codec
// uses them as its abbreviation table.
func (c *Catalog) Templates() []model.QuickTreatment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.QuickTreatment, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.quick[id])
	}
	return out
}

// SavePreset creates or updates a preset and returns it with its id.
func (c *Catalog) SavePreset(p model.Preset) (model.Preset, error) {
	if strings.TrimSpace(p.Name) == "" {
		return model.Preset{}, fmt.Errorf("preset name is required")
	}
	if len(p.Steps) == 0 {
		return model.Preset{}, fmt.Errorf("preset %q has no steps", p.Name)
	}
	if c.db != nil {
		row := model.PresetToRow(p)
		if err := c.db.Save(&row).Error; err != nil {
			return model.Preset{}, fmt.Errorf("save preset: %w", err)
		}
		p.ID = row.ID
	} else if p.ID == 0 {
		p.ID = c.nextPresetID()
	}

	c.mu.Lock()
	if _, exists := c.presets[p.ID]; !exists {
		c.pOrder = append(c.pOrder, p.ID)
	}
	c.presets[p.ID] = *p.Clone()
	c.mu.Unlock()
	return p, nil
}

// DeletePreset removes a preset. Beds already running it are unaffected: the
// bed store resolves preset steps once, when the bed starts.
func (c *Catalog) DeletePreset(id uint) error {
	c.mu.RLock()
	_, ok := c.presets[id]
	c.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if c.db != nil {
		if err := c.db.Delete(&model.PresetRow{}, id).Error; err != nil {
			return fmt.Errorf("delete preset: %w", err)
		}
	}
	c.mu.Lock()
	delete(c.presets, id)
	c.pOrder = removeID(c.pOrder, id)
	c.mu.Unlock()
	return nil
}

// SaveQuick creates or updates a quick treatment.
func (c *Catalog) SaveQuick(q model.QuickTreatment) (model.QuickTreatment, error) {
	if strings.TrimSpace(q.Name) == "" || strings.TrimSpace(q.Label) == "" {
		return model.QuickTreatment{}, fmt.Errorf("quick treatment name and label are required")
	}
	if q.Duration < 0 {
		q.Duration = 0
	}
	if c.db != nil {
		row := model.QuickToRow(q)
		if err := c.db.Save(&row).Error; err != nil {
			return model.QuickTreatment{}, fmt.Errorf("save quick treatment: %w", err)
		}
		q.ID = row.ID
	} else if q.ID == 0 {
		q.ID = c.nextQuickID()
	}

	c.mu.Lock()
	if _, exists := c.quick[q.ID]; !exists {
		c.order = append(c.order, q.ID)
	}
	c.quick[q.ID] = q
	c.mu.Unlock()
	return q, nil
}

// DeleteQuick removes a quick treatment.
func (c *Catalog) DeleteQuick(id uint) error {
	c.mu.RLock()
	_, ok := c.quick[id]
	c.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if c.db != nil {
		if err := c.db.Delete(&model.QuickTreatmentRow{}, id).Error; err != nil {
			return fmt.Errorf("delete quick treatment: %w", err)
		}
	}
	c.mu.Lock()
	delete(c.quick, id)
	c.order = removeID(c.order, id)
	c.mu.Unlock()
	return nil
}

func (c *Catalog) nextPresetID() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maxKey(c.pOrder) + 1
}

func (c *Catalog) nextQuickID() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maxKey(c.order) + 1
}

func maxKey(ids []uint) uint {
	sorted := append([]uint(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if len(sorted) == 0 {
		return 0
	}
	return sorted[len(sorted)-1]
}

func removeID(ids []uint, id uint) []uint {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
