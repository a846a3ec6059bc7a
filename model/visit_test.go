package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// VisitSpec describes the fields for creating a test Visit.
type VisitSpec struct {
	VisitDate     string
	BedID         *int
	PatientName   string
	TreatmentName string
	Memo          string
}

// VisitOption configures a VisitSpec
type VisitOption func(*VisitSpec)

func WithBed(id int) VisitOption         { return func(s *VisitSpec) { s.BedID = &id } }
func WithTreatment(t string) VisitOption { return func(s *VisitSpec) { s.TreatmentName = t } }
func WithMemo(m string) VisitOption      { return func(s *VisitSpec) { s.Memo = m } }
func WithVisitDate(d string) VisitOption { return func(s *VisitSpec) { s.VisitDate = d } }

func mkVisit(patient string, opts ...VisitOption) Visit {
	spec := VisitSpec{PatientName: patient, VisitDate: todayStr()}
	for _, o := range opts {
		o(&spec)
	}
	return Visit{
		VisitDate:     spec.VisitDate,
		BedID:         spec.BedID,
		PatientName:   spec.PatientName,
		TreatmentName: spec.TreatmentName,
		Memo:          spec.Memo,
	}
}

func todayStr() string {
	return time.Now().Format(VisitDateLayout)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestVisitModel_CreateAndRead(t *testing.T) {
	db := setupTestDB(t, "visit", &Visit{})

	v := mkVisit("John Doe", WithBed(3), WithTreatment("Hot/ICT"), WithMemo("first"))
	v.Flags = CareFlags{Fluid: true}
	require.NoError(t, db.Create(&v).Error)
	assert.NotZero(t, v.ID)

	var found Visit
	require.NoError(t, db.First(&found, v.ID).Error)
	assert.Equal(t, "Hot/ICT", found.TreatmentName)
	assert.Equal(t, 3, *found.BedID)
	assert.True(t, found.Flags.Fluid)
}

func TestVisitModel_SoftDelete(t *testing.T) {
	db := setupTestDB(t, "visit_delete", &Visit{})

	v := mkVisit("Jane Doe")
	require.NoError(t, db.Create(&v).Error)
	require.NoError(t, db.Delete(&v).Error)

	var found Visit
	assert.Error(t, db.First(&found, v.ID).Error)
}

func TestVisitPatch_Apply(t *testing.T) {
	v := mkVisit("John Doe", WithBed(2), WithTreatment("Hot"))

	got := VisitPatch{Memo: strPtr("note"), TreatmentName: strPtr("Hot/ICT")}.Apply(v)
	assert.Equal(t, "note", got.Memo)
	assert.Equal(t, "Hot/ICT", got.TreatmentName)
	assert.Equal(t, 2, *got.BedID)
	assert.Equal(t, "Hot", v.TreatmentName, "original untouched")

	got = VisitPatch{BedID: intPtr(5)}.Apply(v)
	assert.Equal(t, 5, *got.BedID)

	got = VisitPatch{BedID: intPtr(5), UnassignBed: true}.Apply(v)
	assert.Nil(t, got.BedID)
}

func TestVisitPatch_Columns(t *testing.T) {
	assert.Empty(t, VisitPatch{}.Columns())
	assert.False(t, VisitPatch{Memo: strPtr("x")}.TouchesBed())

	cols := VisitPatch{UnassignBed: true, Flags: &CareFlags{Traction: true}}.Columns()
	assert.Contains(t, cols, "bed_id")
	assert.Nil(t, cols["bed_id"])
	assert.Equal(t, true, cols["flag_traction"])
	assert.Equal(t, false, cols["flag_manual"])

	cols = VisitPatch{BedID: intPtr(4), PatientName: strPtr("A")}.Columns()
	assert.Equal(t, map[string]interface{}{"bed_id": 4, "patient_name": "A"}, cols)
}

func TestVisitPatch_UpdatesRow(t *testing.T) {
	db := setupTestDB(t, "visit_patch", &Visit{})
	v := mkVisit("John Doe", WithBed(1))
	require.NoError(t, db.Create(&v).Error)

	patch := VisitPatch{UnassignBed: true, BodyPart: strPtr("Knee")}
	require.NoError(t, db.Model(&Visit{}).Where("id = ?", v.ID).Updates(patch.Columns()).Error)

	var found Visit
	require.NoError(t, db.First(&found, v.ID).Error)
	assert.Nil(t, found.BedID)
	assert.Equal(t, "Knee", found.BodyPart)
}

func TestSameBed(t *testing.T) {
	assert.True(t, SameBed(nil, nil))
	assert.False(t, SameBed(intPtr(1), nil))
	assert.False(t, SameBed(nil, intPtr(1)))
	assert.True(t, SameBed(intPtr(2), intPtr(2)))
	assert.False(t, SameBed(intPtr(2), intPtr(3)))
}
