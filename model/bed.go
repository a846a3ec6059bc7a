package model

import "strings"

// BedStatus is the treatment state of a bed.
type BedStatus string

const (
	BedIdle      BedStatus = "IDLE"
	BedActive    BedStatus = "ACTIVE"
	BedCompleted BedStatus = "COMPLETED"
)

// Valid reports whether s is one of the known statuses.
func (s BedStatus) Valid() bool {
	switch s {
	case BedIdle, BedActive, BedCompleted:
		return true
	}
	return false
}

// CareFlags are the five independent care markers shown on a bed and
// mirrored on its visit row.
type CareFlags struct {
	Injection bool `json:"injection" gorm:"column:injection"`
	Fluid     bool `json:"fluid" gorm:"column:fluid"`
	Traction  bool `json:"traction" gorm:"column:traction"`
	ESWT      bool `json:"eswt" gorm:"column:eswt"`
	Manual    bool `json:"manual" gorm:"column:manual"`
}

// FlagNames lists the flag names accepted by Toggle.
var FlagNames = []string{"injection", "fluid", "traction", "eswt", "manual"}

// Toggle flips the flag called name and reports whether the name was known.
func (f *CareFlags) Toggle(name string) bool {
	switch strings.ToLower(name) {
	case "injection":
		f.Injection = !f.Injection
	case "fluid":
		f.Fluid = !f.Fluid
	case "traction":
		f.Traction = !f.Traction
	case "eswt":
		f.ESWT = !f.ESWT
	case "manual":
		f.Manual = !f.Manual
	default:
		return false
	}
	return true
}

// Any reports whether at least one flag is set.
func (f CareFlags) Any() bool {
	return f.Injection || f.Fluid || f.Traction || f.ESWT || f.Manual
}

// Bed is the live treatment state of one physical bed.
//
// Timestamps are unix milliseconds. LastUpdateTimestamp is stamped locally on
// every mutation and never persisted remotely; UpdatedAt is assigned by the
// remote store.
type Bed struct {
	ID                  int            `json:"id"`
	Status              BedStatus      `json:"status"`
	CurrentPresetID     *uint          `json:"current_preset_id"`
	CustomPreset        *Preset        `json:"custom_preset"`
	CurrentStepIndex    int            `json:"current_step_index"`
	StartTime           *int64         `json:"start_time"`
	OriginalDuration    int            `json:"original_duration"`
	RemainingTime       int            `json:"remaining_time"`
	IsPaused            bool           `json:"is_paused"`
	Flags               CareFlags      `json:"flags"`
	Memos               map[int]string `json:"memos"`
	LastUpdateTimestamp int64          `json:"last_update_timestamp"`
	UpdatedAt           int64          `json:"updated_at"`
	// ClearedAt is when this device last cleared the bed. It is zero while
	// the bed is not IDLE and is never persisted remotely.
	ClearedAt int64 `json:"cleared_at,omitempty"`
}

// NewIdleBed returns bed id in the canonical IDLE state.
func NewIdleBed(id int) Bed {
	return Bed{ID: id, Status: BedIdle, Memos: map[int]string{}}
}

// HasContent reports whether the bed carries treatment content.
func (b Bed) HasContent() bool {
	return b.CurrentPresetID != nil || (b.CustomPreset != nil && len(b.CustomPreset.Steps) > 0)
}

// ResetIdle puts b into the canonical IDLE state. Timestamps, ClearedAt
// included, are kept.
func (b *Bed) ResetIdle() {
	b.Status = BedIdle
	b.CurrentPresetID = nil
	b.CustomPreset = nil
	b.CurrentStepIndex = 0
	b.StartTime = nil
	b.OriginalDuration = 0
	b.RemainingTime = 0
	b.IsPaused = false
	b.Flags = CareFlags{}
	b.Memos = map[int]string{}
}

// IsCanonicalIdle reports whether b satisfies every IDLE invariant.
func (b Bed) IsCanonicalIdle() bool {
	return b.Status == BedIdle &&
		b.CurrentPresetID == nil &&
		b.CustomPreset == nil &&
		b.CurrentStepIndex == 0 &&
		b.RemainingTime == 0 &&
		!b.IsPaused &&
		!b.Flags.Any() &&
		len(b.Memos) == 0
}

// Clone returns a deep copy of b.
func (b Bed) Clone() Bed {
	out := b
	if b.CurrentPresetID != nil {
		id := *b.CurrentPresetID
		out.CurrentPresetID = &id
	}
	if b.StartTime != nil {
		st := *b.StartTime
		out.StartTime = &st
	}
	out.CustomPreset = b.CustomPreset.Clone()
	out.Memos = make(map[int]string, len(b.Memos))
	for k, v := range b.Memos {
		out.Memos[k] = v
	}
	return out
}

// BedField names a group of bed columns touched by a mutation.
type BedField string

const (
	FieldStatus           BedField = "status"
	FieldPreset           BedField = "preset"
	FieldStepIndex        BedField = "current_step_index"
	FieldStartTime        BedField = "start_time"
	FieldOriginalDuration BedField = "original_duration"
	FieldRemainingTime    BedField = "remaining_time"
	FieldPaused           BedField = "is_paused"
	FieldFlags            BedField = "flags"
	FieldMemos            BedField = "memos"
)

// AllBedFields is every field group, in column order.
var AllBedFields = []BedField{
	FieldStatus,
	FieldPreset,
	FieldStepIndex,
	FieldStartTime,
	FieldOriginalDuration,
	FieldRemainingTime,
	FieldPaused,
	FieldFlags,
	FieldMemos,
}

// TimerFields are the fields that change whenever a step's clock is reset.
var TimerFields = []BedField{FieldStartTime, FieldOriginalDuration, FieldRemainingTime, FieldPaused}
