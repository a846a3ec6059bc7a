package model

import (
	"gorm.io/gorm"
)

// VisitDateLayout is the layout of Visit.VisitDate.
const VisitDateLayout = "2006-01-02"

// Visit is a per-date patient log entry, optionally linked to a bed.
// @Description Patient visit log entry
type Visit struct {
	gorm.Model
	VisitDate     string    `json:"visit_date" gorm:"type:varchar(10);not null;index" example:"2025-01-15"`
	BedID         *int      `json:"bed_id" gorm:"index" example:"3"`
	PatientName   string    `json:"patient_name" gorm:"not null" example:"John Doe"`
	BodyPart      string    `json:"body_part" example:"Lumbar"`
	TreatmentName string    `json:"treatment_name" example:"Hot/ICT"`
	Memo          string    `json:"memo" example:"Left side only"`
	Author        string    `json:"author" example:"PT Kim"`
	Flags         CareFlags `json:"flags" gorm:"embedded;embeddedPrefix:flag_"`
}

// VisitPatch is a partial visit update. Nil pointers leave a field as is.
// UnassignBed clears bed_id and wins over BedID.
type VisitPatch struct {
	VisitDate     *string    `json:"visit_date,omitempty"`
	PatientName   *string    `json:"patient_name,omitempty"`
	BodyPart      *string    `json:"body_part,omitempty"`
	TreatmentName *string    `json:"treatment_name,omitempty"`
	Memo          *string    `json:"memo,omitempty"`
	Author        *string    `json:"author,omitempty"`
	Flags         *CareFlags `json:"flags,omitempty"`
	BedID         *int       `json:"bed_id,omitempty"`
	UnassignBed   bool       `json:"unassign_bed,omitempty"`
}

// TouchesBed reports whether the patch changes the bed assignment.
func (p VisitPatch) TouchesBed() bool {
	return p.BedID != nil || p.UnassignBed
}

// Apply returns a copy of v with the patch applied.
func (p VisitPatch) Apply(v Visit) Visit {
	if p.VisitDate != nil {
		v.VisitDate = *p.VisitDate
	}
	if p.PatientName != nil {
		v.PatientName = *p.PatientName
	}
	if p.BodyPart != nil {
		v.BodyPart = *p.BodyPart
	}
	if p.TreatmentName != nil {
		v.TreatmentName = *p.TreatmentName
	}
	if p.Memo != nil {
		v.Memo = *p.Memo
	}
	if p.Author != nil {
		v.Author = *p.Author
	}
	if p.Flags != nil {
		v.Flags = *p.Flags
	}
	if p.UnassignBed {
		v.BedID = nil
	} else if p.BedID != nil {
		id := *p.BedID
		v.BedID = &id
	}
	return v
}

// Columns returns the column map for a gorm Updates call.
func (p VisitPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.VisitDate != nil {
		cols["visit_date"] = *p.VisitDate
	}
	if p.PatientName != nil {
		cols["patient_name"] = *p.PatientName
	}
	if p.BodyPart != nil {
		cols["body_part"] = *p.BodyPart
	}
	if p.TreatmentName != nil {
		cols["treatment_name"] = *p.TreatmentName
	}
	if p.Memo != nil {
		cols["memo"] = *p.Memo
	}
	if p.Author != nil {
		cols["author"] = *p.Author
	}
	if p.Flags != nil {
		cols["flag_injection"] = p.Flags.Injection
		cols["flag_fluid"] = p.Flags.Fluid
		cols["flag_traction"] = p.Flags.Traction
		cols["flag_eswt"] = p.Flags.ESWT
		cols["flag_manual"] = p.Flags.Manual
	}
	if p.UnassignBed {
		cols["bed_id"] = nil
	} else if p.BedID != nil {
		cols["bed_id"] = *p.BedID
	}
	return cols
}

// SameBed reports whether two optional bed ids are equal.
func SameBed(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
