package model

// TreatmentStep is one timed or untimed activity inside a preset. A bed keeps
// its own copy of the steps it runs, so catalog edits never reach a bed that
// is already in progress.
type TreatmentStep struct {
	ID          string `json:"id" example:"hot"`
	Name        string `json:"name" example:"Hot Pack"`
	Duration    int    `json:"duration" example:"600"`
	EnableTimer bool   `json:"enable_timer" example:"true"`
	Color       string `json:"color" example:"red"`
}

// Preset is a named ordered step list.
type Preset struct {
	ID    uint            `json:"id" example:"1"`
	Name  string          `json:"name" example:"Basic"`
	Steps []TreatmentStep `json:"steps"`
}

// QuickTreatment is a single-step template. The catalog also uses quick
// treatments as the abbreviation table for the step codec.
type QuickTreatment struct {
	ID          uint   `json:"id" example:"1"`
	Name        string `json:"name" example:"Hot Pack"`
	Label       string `json:"label" example:"Hot"`
	Duration    int    `json:"duration" example:"600"`
	EnableTimer bool   `json:"enable_timer" example:"true"`
	Color       string `json:"color" example:"red"`
}

// Step returns the quick treatment as a step snapshot.
func (q QuickTreatment) Step() TreatmentStep {
	return TreatmentStep{
		ID:          q.Label,
		Name:        q.Name,
		Duration:    q.Duration,
		EnableTimer: q.EnableTimer,
		Color:       q.Color,
	}
}

// CloneSteps returns a copy of steps that shares no backing array.
func CloneSteps(steps []TreatmentStep) []TreatmentStep {
	if steps == nil {
		return nil
	}
	out := make([]TreatmentStep, len(steps))
	copy(out, steps)
	return out
}

// Clone deep-copies the preset.
func (p *Preset) Clone() *Preset {
	if p == nil {
		return nil
	}
	return &Preset{ID: p.ID, Name: p.Name, Steps: CloneSteps(p.Steps)}
}
