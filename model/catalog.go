package model

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PresetRow stores a catalog preset.
type PresetRow struct {
	gorm.Model
	Name      string         `json:"name" gorm:"type:varchar(100);not null;uniqueIndex"`
	Steps     datatypes.JSON `json:"steps" gorm:"type:json"`
	SortOrder int            `json:"sort_order"`
}

func (PresetRow) TableName() string {
	return "presets"
}

// QuickTreatmentRow stores a single-step template.
type QuickTreatmentRow struct {
	gorm.Model
	Name        string `json:"name" gorm:"type:varchar(100);not null;uniqueIndex"`
	Label       string `json:"label" gorm:"type:varchar(16);not null"`
	Duration    int    `json:"duration" gorm:"not null"`
	EnableTimer bool   `json:"enable_timer" gorm:"not null;default:true"`
	Color       string `json:"color" gorm:"type:varchar(32)"`
	SortOrder   int    `json:"sort_order"`
}

func (QuickTreatmentRow) TableName() string {
	return "quick_treatments"
}

// PresetFromRow decodes a preset row.
func PresetFromRow(row PresetRow) (Preset, error) {
	p := Preset{ID: row.ID, Name: row.Name}
	if isJSONValue(row.Steps) {
		if err := json.Unmarshal(row.Steps, &p.Steps); err != nil {
			return Preset{}, fmt.Errorf("preset %d: decode steps: %w", row.ID, err)
		}
	}
	return p, nil
}

// PresetToRow encodes a preset for storage.
func PresetToRow(p Preset) PresetRow {
	raw, _ := json.Marshal(p.Steps)
	row := PresetRow{Name: p.Name, Steps: datatypes.JSON(raw)}
	row.ID = p.ID
	return row
}

// QuickFromRow converts a quick treatment row.
func QuickFromRow(row QuickTreatmentRow) QuickTreatment {
	return QuickTreatment{
		ID:          row.ID,
		Name:        row.Name,
		Label:       row.Label,
		Duration:    row.Duration,
		EnableTimer: row.EnableTimer,
		Color:       row.Color,
	}
}

// QuickToRow converts a quick treatment for storage.
func QuickToRow(q QuickTreatment) QuickTreatmentRow {
	row := QuickTreatmentRow{
		Name:        q.Name,
		Label:       q.Label,
		Duration:    q.Duration,
		EnableTimer: q.EnableTimer,
		Color:       q.Color,
	}
	row.ID = q.ID
	return row
}

// TractionLabel is the label of the fixed traction template.
const TractionLabel = "Tx"

// DefaultQuickTreatments is the template library seeded on first start.
var DefaultQuickTreatments = []QuickTreatment{
	{Name: "Hot Pack", Label: "Hot", Duration: 600, EnableTimer: true, Color: "red"},
	{Name: "Cold Pack", Label: "Cold", Duration: 600, EnableTimer: true, Color: "cyan"},
	{Name: "ICT", Label: "ICT", Duration: 600, EnableTimer: true, Color: "blue"},
	{Name: "TENS", Label: "TENS", Duration: 600, EnableTimer: true, Color: "indigo"},
	{Name: "Magnetic", Label: "Mg", Duration: 600, EnableTimer: true, Color: "purple"},
	{Name: "Ultrasound", Label: "US", Duration: 300, EnableTimer: true, Color: "teal"},
	{Name: "Laser", Label: "Laser", Duration: 300, EnableTimer: true, Color: "orange"},
	{Name: "Infrared", Label: "IR", Duration: 600, EnableTimer: true, Color: "amber"},
	{Name: "Traction", Label: TractionLabel, Duration: 900, EnableTimer: true, Color: "green"},
	{Name: "ESWT", Label: "ESWT", Duration: 300, EnableTimer: false, Color: "pink"},
	{Name: "Manual Therapy", Label: "Manual", Duration: 600, EnableTimer: false, Color: "yellow"},
}

// DefaultPresets are built from DefaultQuickTreatments labels.
var DefaultPresets = []struct {
	Name   string
	Labels []string
}{
	{Name: "Basic", Labels: []string{"Hot", "ICT"}},
	{Name: "Basic + Magnetic", Labels: []string{"Hot", "ICT", "Mg"}},
	{Name: "Ultrasound Course", Labels: []string{"Hot", "US", "ICT"}},
	{Name: "Lumbar Traction", Labels: []string{"Hot", "Tx", "ICT"}},
	{Name: "Manual Course", Labels: []string{"Hot", "Manual"}},
}

// SeedCatalog inserts the default templates and presets that do not exist yet.
func SeedCatalog(db *gorm.DB) error {
	byLabel := map[string]QuickTreatment{}
	for i, q := range DefaultQuickTreatments {
		byLabel[q.Label] = q
		var existing QuickTreatmentRow
		err := db.Where("name = ?", q.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		row := QuickToRow(q)
		row.SortOrder = i
		if err := db.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to seed quick treatment %s: %w", q.Name, err)
		}
	}

	for i, def := range DefaultPresets {
		var existing PresetRow
		err := db.Where("name = ?", def.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		p := Preset{Name: def.Name}
		for _, label := range def.Labels {
			p.Steps = append(p.Steps, byLabel[label].Step())
		}
		row := PresetToRow(p)
		row.SortOrder = i
		if err := db.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to seed preset %s: %w", def.Name, err)
		}
	}
	return nil
}
