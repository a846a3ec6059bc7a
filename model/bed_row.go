package model

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// BedRow is the remote store shape of a bed. Every column maps 1:1 to a Bed
// field except LastUpdateTimestamp, which stays local.
type BedRow struct {
	ID               uint           `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Status           string         `json:"status" gorm:"type:varchar(16);not null;default:IDLE"`
	CurrentPresetID  *uint          `json:"current_preset_id"`
	CustomPreset     datatypes.JSON `json:"custom_preset" gorm:"type:json"`
	CurrentStepIndex int            `json:"current_step_index" gorm:"not null;default:0"`
	StartTime        *int64         `json:"start_time"`
	OriginalDuration int            `json:"original_duration" gorm:"not null;default:0"`
	RemainingTime    int            `json:"remaining_time" gorm:"not null;default:0"`
	IsPaused         bool           `json:"is_paused" gorm:"not null;default:false"`
	Flags            CareFlags      `json:"flags" gorm:"embedded;embeddedPrefix:flag_"`
	Memos            datatypes.JSON `json:"memos" gorm:"type:json"`
	UpdatedAt        int64          `json:"updated_at" gorm:"autoUpdateTime:false;not null;default:0"`
}

func (BedRow) TableName() string {
	return "beds"
}

// BedToRow maps a bed to its store row.
func BedToRow(b Bed) BedRow {
	row := BedRow{
		ID:               uint(b.ID),
		Status:           string(b.Status),
		CurrentStepIndex: b.CurrentStepIndex,
		OriginalDuration: b.OriginalDuration,
		RemainingTime:    b.RemainingTime,
		IsPaused:         b.IsPaused,
		Flags:            b.Flags,
		UpdatedAt:        b.UpdatedAt,
	}
	if b.CurrentPresetID != nil {
		id := *b.CurrentPresetID
		row.CurrentPresetID = &id
	}
	if b.StartTime != nil {
		st := *b.StartTime
		row.StartTime = &st
	}
	if b.CustomPreset != nil {
		// Preset only holds strings, ints and bools; Marshal cannot fail.
		raw, _ := json.Marshal(b.CustomPreset)
		row.CustomPreset = datatypes.JSON(raw)
	}
	memos := b.Memos
	if memos == nil {
		memos = map[int]string{}
	}
	raw, _ := json.Marshal(memos)
	row.Memos = datatypes.JSON(raw)
	return row
}

// BedFromRow maps a store row back to a bed. LastUpdateTimestamp is left zero.
func BedFromRow(row BedRow) (Bed, error) {
	b := Bed{
		ID:               int(row.ID),
		Status:           BedStatus(row.Status),
		CurrentStepIndex: row.CurrentStepIndex,
		OriginalDuration: row.OriginalDuration,
		RemainingTime:    row.RemainingTime,
		IsPaused:         row.IsPaused,
		Flags:            row.Flags,
		Memos:            map[int]string{},
		UpdatedAt:        row.UpdatedAt,
	}
	if !b.Status.Valid() {
		return Bed{}, fmt.Errorf("bed %d: unknown status %q", row.ID, row.Status)
	}
	if row.CurrentPresetID != nil {
		id := *row.CurrentPresetID
		b.CurrentPresetID = &id
	}
	if row.StartTime != nil {
		st := *row.StartTime
		b.StartTime = &st
	}
	if isJSONValue(row.CustomPreset) {
		var p Preset
		if err := json.Unmarshal(row.CustomPreset, &p); err != nil {
			return Bed{}, fmt.Errorf("bed %d: decode custom preset: %w", row.ID, err)
		}
		b.CustomPreset = &p
	}
	if isJSONValue(row.Memos) {
		if err := json.Unmarshal(row.Memos, &b.Memos); err != nil {
			return Bed{}, fmt.Errorf("bed %d: decode memos: %w", row.ID, err)
		}
		if b.Memos == nil {
			b.Memos = map[int]string{}
		}
	}
	return b, nil
}

func isJSONValue(raw datatypes.JSON) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// BedColumns returns the partial-update column map for the given field
// groups of row. updated_at is not included.
func BedColumns(row BedRow, fields []BedField) map[string]interface{} {
	cols := make(map[string]interface{}, len(fields)+4)
	for _, f := range fields {
		switch f {
		case FieldStatus:
			cols["status"] = row.Status
		case FieldPreset:
			cols["current_preset_id"] = row.CurrentPresetID
			cols["custom_preset"] = row.CustomPreset
		case FieldStepIndex:
			cols["current_step_index"] = row.CurrentStepIndex
		case FieldStartTime:
			cols["start_time"] = row.StartTime
		case FieldOriginalDuration:
			cols["original_duration"] = row.OriginalDuration
		case FieldRemainingTime:
			cols["remaining_time"] = row.RemainingTime
		case FieldPaused:
			cols["is_paused"] = row.IsPaused
		case FieldFlags:
			cols["flag_injection"] = row.Flags.Injection
			cols["flag_fluid"] = row.Flags.Fluid
			cols["flag_traction"] = row.Flags.Traction
			cols["flag_eswt"] = row.Flags.ESWT
			cols["flag_manual"] = row.Flags.Manual
		case FieldMemos:
			cols["memos"] = row.Memos
		}
	}
	return cols
}
