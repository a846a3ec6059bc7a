package bedstore

import (
	"github.com/ariebrainware/ltt-bedboard/codec"
	"github.com/ariebrainware/ltt-bedboard/model"
)

// View is a bed as shown on the board: the stored state plus derived values.
type View struct {
	model.Bed
	Steps       []model.TreatmentStep `json:"steps"`
	CurrentStep *model.TreatmentStep  `json:"current_step"`
	PresetName  string                `json:"preset_name"`
	Code        string                `json:"code"`
	Remaining   int                   `json:"remaining"`
	Overtime    bool                  `json:"overtime"`
}

// View returns the board view of bed id.
func (s *Store) View(id int) (View, bool) {
	s.t.mu.RLock()
	e, ok := s.t.beds[id]
	if !ok {
		s.t.mu.RUnlock()
		return View{}, false
	}
	b := e.bed.Clone()
	steps := model.CloneSteps(e.steps)
	now := s.t.now()
	s.t.mu.RUnlock()
	return s.view(b, steps, CalculateRemaining(b, steps, now)), true
}

// Views returns the board view of every bed, ordered by id.
func (s *Store) Views() []View {
	out := make([]View, 0, len(s.t.ids))
	for _, id := range s.t.ids {
		if v, ok := s.View(id); ok {
			out = append(out, v)
		}
	}
	return out
}

func (s *Store) view(b model.Bed, steps []model.TreatmentStep, remaining int) View {
	v := View{Bed: b, Steps: steps, Remaining: remaining}
	if b.Status == model.BedIdle {
		return v
	}
	if b.CurrentStepIndex >= 0 && b.CurrentStepIndex < len(steps) {
		st := steps[b.CurrentStepIndex]
		v.CurrentStep = &st
		v.Overtime = b.Status == model.BedActive && st.EnableTimer && remaining < 0
	}
	switch {
	case b.CustomPreset != nil:
		v.PresetName = b.CustomPreset.Name
	case b.CurrentPresetID != nil && s.t.catalog != nil:
		if p, ok := s.t.catalog.Preset(*b.CurrentPresetID); ok {
			v.PresetName = p.Name
		}
	}
	var templates []model.QuickTreatment
	if s.t.catalog != nil {
		templates = s.t.catalog.Templates()
	}
	v.Code = codec.Encode(steps, templates)
	return v
}
