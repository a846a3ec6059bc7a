package endpoint

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/ariebrainware/ltt-bedboard/visitsync"
	"github.com/gin-gonic/gin"
)

// VisitRequest is the body of POST /visits. An empty visit date means today.
type VisitRequest struct {
	VisitDate     string          `json:"visit_date"`
	BedID         *int            `json:"bed_id"`
	PatientName   string          `json:"patient_name" binding:"required"`
	BodyPart      string          `json:"body_part"`
	TreatmentName string          `json:"treatment_name"`
	Memo          string          `json:"memo"`
	Author        string          `json:"author"`
	Flags         model.CareFlags `json:"flags"`
}

// respondVisitError maps visit and bed sync errors onto the envelope.
func respondVisitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, visitsync.ErrVisitNotFound):
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Visit not found", Err: err})
	case errors.Is(err, visitsync.ErrInvalidVisit):
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid visit", Err: err})
	case errors.Is(err, visitsync.ErrConfirmationDeclined):
		util.CallConflict(c, util.APIErrorParams{
			Msg: "Bed is in use; repeat with confirm=true to overwrite",
			Err: err,
		}, nil)
	default:
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to save visit", Err: err})
	}
}

func visitIDOrRespond(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Invalid visit id",
			Err: fmt.Errorf("id must be a positive integer"),
		})
		return 0, false
	}
	return uint(id), true
}

// ListVisits godoc
// @Summary      List visits of a date
// @Tags         Visits
// @Produce      json
// @Param        date  query  string  false  "YYYY-MM-DD, defaults to today"
// @Success      200 {object} util.APIResponse
// @Failure      400 {object} util.APIResponse
// @Router       /visits [get]
func ListVisits(c *gin.Context) {
	b, ok := getBoardOrRespond(c)
	if !ok {
		return
	}
	date := c.DefaultQuery("date", b.Visits.Today())
	if _, err := time.Parse(model.VisitDateLayout, date); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid date", Err: err})
		return
	}
	visits, err := b.Visits.Repo().ListByDate(c.Request.Context(), date)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to list visits", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Visits retrieved", Data: visits})
}

func CreateVisit(c *gin.Context) {
	b, ok := getBoardOrRespond(c)
	if !ok {
		return
	}
	var req VisitRequest
	if !bindJSONOrRespond(c, &req) {
		return
	}
	if req.VisitDate == "" {
		req.VisitDate = b.Visits.Today()
	}
	v := model.Visit{
		VisitDate:     req.VisitDate,
		BedID:         req.BedID,
		PatientName:   util.NormalizeName(req.PatientName),
		BodyPart:      req.BodyPart,
		TreatmentName: req.TreatmentName,
		Memo:          req.Memo,
		Author:        req.Author,
		Flags:         req.Flags,
	}
	if err := b.Visits.CreateVisitWithBedSync(c.Request.Context(), &v, confirmer(c)); err != nil {
		respondVisitError(c, err)
		return
	}
	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Visit created", Data: v})
}

// UpdateVisit applies a partial update. skip_bed_sync=true leaves the beds
// alone; confirm=true allows overwriting a busy bed.
func UpdateVisit(c *gin.Context) {
	b, ok := getBoardOrRespond(c)
	if !ok {
		return
	}
	id, ok := visitIDOrRespond(c)
	if !ok {
		return
	}
	var patch model.VisitPatch
	if !bindJSONOrRespond(c, &patch) {
		return
	}
	if patch.PatientName != nil {
		name := util.NormalizeName(*patch.PatientName)
		patch.PatientName = &name
	}
	skip := c.Query("skip_bed_sync") == "true"
	saved, err := b.Visits.UpdateVisitWithBedSync(c.Request.Context(), id, patch, skip, confirmer(c))
	if err != nil {
		respondVisitError(c, err)
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Visit updated", Data: saved})
}

func DeleteVisit(c *gin.Context) {
	b, ok := getBoardOrRespond(c)
	if !ok {
		return
	}
	id, ok := visitIDOrRespond(c)
	if !ok {
		return
	}
	if err := b.Visits.Repo().Delete(c.Request.Context(), id); err != nil {
		respondVisitError(c, err)
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Visit deleted"})
}
