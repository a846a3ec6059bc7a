package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ariebrainware/ltt-bedboard/bedstore"
	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/ariebrainware/ltt-bedboard/visitsync"
	"github.com/gin-gonic/gin"
)

// StartRequest picks what to start on a bed. Exactly one of PresetID,
// QuickID, Traction or Steps must be set.
type StartRequest struct {
	PresetID *uint                 `json:"preset_id"`
	QuickID  *uint                 `json:"quick_id"`
	Traction bool                  `json:"traction"`
	Steps    []model.TreatmentStep `json:"steps"`
	Flags    model.CareFlags       `json:"flags"`
}

func (r StartRequest) sources() int {
	n := 0
	if r.PresetID != nil {
		n++
	}
	if r.QuickID != nil {
		n++
	}
	if r.Traction {
		n++
	}
	if len(r.Steps) > 0 {
		n++
	}
	return n
}

type reorderRequest struct {
	I *int `json:"i" binding:"required"`
	J *int `json:"j" binding:"required"`
}

type memoRequest struct {
	Index *int    `json:"index" binding:"required"`
	Text  *string `json:"text"`
}

type durationRequest struct {
	Seconds *int `json:"seconds" binding:"required"`
}

// ListBeds godoc
// @Summary      List beds
// @Description  Every bed with its steps and derived remaining time
// @Tags         Beds
// @Produce      json
// @Success      200 {object} util.APIResponse
// @Router       /beds [get]
func ListBeds(c *gin.Context) {
	b, ok := getBoardOrRespond(c)
	if !ok {
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Beds retrieved",
		Data: b.Store.Views(),
	})
}

func GetBed(c *gin.Context) {
	b, id, ok := bedOrRespond(c)
	if !ok {
		return
	}
	v, _ := b.Store.View(id)
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Bed retrieved", Data: v})
}

// StartBed godoc
// @Summary      Start a treatment on a bed
// @Description  Starts a preset, quick treatment, traction or custom step list. A busy bed needs confirm=true.
// @Tags         Beds
// @Accept       json
// @Produce      json
// @Param        id       path   int           true  "Bed ID"
// @Param        confirm  query  bool          false "Overwrite a busy bed"
// @Param        request  body   StartRequest  true  "What to start"
// @Success      200 {object} util.APIResponse
// @Failure      400 {object} util.APIResponse
// @Failure      404 {object} util.APIResponse
// @Failure      409 {object} util.APIResponse "Bed is busy"
// @Router       /beds/{id}/start [post]
func StartBed(c *gin.Context) {
	b, id, ok := bedOrRespond(c)
	if !ok {
		return
	}
	var req StartRequest
	if !bindJSONOrRespond(c, &req) {
		return
	}
	if req.sources() != 1 {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Choose one of preset_id, quick_id, traction or steps",
			Err: errors.New("ambiguous start request"),
		})
		return
	}

	if bed, _ := b.Store.Get(id); bed.Status != model.BedIdle && !confirmed(c) {
		v, _ := b.Store.View(id)
		util.CallConflict(c, util.APIErrorParams{
			Msg: "Bed is in use; repeat with confirm=true to overwrite",
			Err: fmt.Errorf("bed %d is %s", id, bed.Status),
		}, v)
		return
	}

	var applied bool
	switch {
	case req.PresetID != nil:
		if _, found := b.Catalog.Preset(*req.PresetID); !found {
			util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Preset not found", Err: fmt.Errorf("preset %d", *req.PresetID)})
			return
		}
		applied = b.Store.StartPreset(id, *req.PresetID, req.Flags)
	case req.QuickID != nil:
		if _, found := b.Catalog.Quick(*req.QuickID); !found {
			util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Quick treatment not found", Err: fmt.Errorf("quick treatment %d", *req.QuickID)})
			return
		}
		applied = b.Store.StartQuick(id, *req.QuickID, req.Flags)
	case req.Traction:
		applied = b.Store.StartTraction(id, req.Flags)
	default:
		applied = b.Store.Start(id, req.Steps, req.Flags)
	}
	respondBed(c, b, id, applied, "Treatment started")
}

func NextStep(c *gin.Context) {
	b, id, ok := bedOrRespond(c)
	if !ok {
		return
	}
	respondBed(c, b, id, b.Store.Advance(id), "Advanced to next step")
}

func PrevStep(c *gin.Context) {
	b, id, ok := bedOrRespond(c)
	if !ok {
		return
	}
	respondBed(c, b, id, b.Store.Retreat(id), "Returned to previous step")
}

func TogglePause(c *gin.Context) {
	b, id, ok := bedOrRespond(c)
	if !ok {
		return
	}
	respondBed(c, b, id, b.Store.TogglePause(id), "Pause toggled")
}

func ClearBed(c *gin.Context) {
	b, id, ok := bedOrRespond(c)
	if !ok {
		return
	}
	b.Store.Clear(id)
	respondBed(c, b, id, true, "Bed cleared")
}

func ReorderSteps(c *gin.Context) {
	b, id, ok := bedOrRespond(c)
	if !ok {
		return
	}
	var req reorderRequest
	if !bindJSONOrRespond(c, &req) {
		return
	}
	respondBed(c, b, id, b.Store.Reorder(id, *req.I, *req.J), "Steps reordered")
}

// SetMemo sets the memo of one step. A null or blank text removes it.
func SetMemo(c *gin.Context) {
	b, id, ok := bedOrRespond(c)
	if !ok {
		return
	}
	var req memoRequest
	if !bindJSONOrRespond(c, &req) {
		return
	}
	if steps := b.Store.Steps(id); *req.Index < 0 || *req.Index >= len(steps) {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Invalid step index",
			Err: fmt.Errorf("bed %d has %d steps", id, len(steps)),
		})
		return
	}
	b.Store.SetMemo(id, *req.Index, req.Text)
	respondBed(c, b, id, true, "Memo saved")
}

func SetDuration(c *gin.Context) {
	b, id, ok := bedOrRespond(c)
	if !ok {
		return
	}
	var req durationRequest
	if !bindJSONOrRespond(c, &req) {
		return
	}
	respondBed(c, b, id, b.Store.SetDuration(id, *req.Seconds), "Duration updated")
}

func ToggleFlag(c *gin.Context) {
	b, id, ok := bedOrRespond(c)
	if !ok {
		return
	}
	name := strings.ToLower(c.Param("flag"))
	if !util.Contains(name, model.FlagNames) {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Unknown flag",
			Err: fmt.Errorf("flag must be one of %s", strings.Join(model.FlagNames, ", ")),
		})
		return
	}
	respondBed(c, b, id, b.Store.ToggleFlag(id, name), "Flag toggled")
}

// MoveBed godoc
// @Summary      Move a treatment to another bed
// @Description  Carries the running treatment and the current visit of bed id onto bed to. An ACTIVE destination needs confirm=true.
// @Tags         Beds
// @Produce      json
// @Param        id       path   int   true  "Source bed"
// @Param        to       path   int   true  "Destination bed"
// @Param        confirm  query  bool  false "Overwrite an active destination"
// @Success      200 {object} util.APIResponse
// @Failure      409 {object} util.APIResponse "Destination is in use"
// @Router       /beds/{id}/move/{to} [post]
func MoveBed(c *gin.Context) {
	b, ok := getBoardOrRespond(c)
	if !ok {
		return
	}
	from, ok := paramIntOrRespond(c, "id")
	if !ok {
		return
	}
	to, ok := paramIntOrRespond(c, "to")
	if !ok {
		return
	}

	res, err := b.Mover.Move(c.Request.Context(), from, to, confirmer(c))
	switch {
	case err == nil:
		util.CallSuccessOK(c, util.APISuccessParams{Msg: "Bed moved", Data: res})
	case errors.Is(err, bedstore.ErrUnknownBed):
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Bed not found", Err: err})
	case errors.Is(err, bedstore.ErrSameBed), errors.Is(err, bedstore.ErrSourceIdle):
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid move", Err: err})
	case errors.Is(err, visitsync.ErrConfirmationDeclined):
		util.CallConflict(c, util.APIErrorParams{
			Msg: "Destination bed is in use; repeat with confirm=true to overwrite",
			Err: err,
		}, gin.H{"from": from, "to": to})
	default:
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to move bed", Err: err})
	}
}
