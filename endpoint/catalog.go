package endpoint

import (
	"errors"
	"strconv"

	"github.com/ariebrainware/ltt-bedboard/catalog"
	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/gin-gonic/gin"
)

func ListPresets(c *gin.Context) {
	b, ok := getBoardOrRespond(c)
	if !ok {
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Presets retrieved", Data: b.Catalog.Presets()})
}

func ListQuickTreatments(c *gin.Context) {
	b, ok := getBoardOrRespond(c)
	if !ok {
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Quick treatments retrieved", Data: b.Catalog.Templates()})
}

// SavePreset creates a preset, or updates the one named by id.
func SavePreset(c *gin.Context) {
	b, ok := getBoardOrRespond(c)
	if !ok {
		return
	}
	var p model.Preset
	if !bindJSONOrRespond(c, &p) {
		return
	}
	saved, err := b.Catalog.SavePreset(p)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Failed to save preset", Err: err})
		return
	}
	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Preset saved", Data: saved})
}

func DeletePreset(c *gin.Context) {
	b, ok := getBoardOrRespond(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid preset id", Err: err})
		return
	}
	switch err := b.Catalog.DeletePreset(uint(id)); {
	case err == nil:
		util.CallSuccessOK(c, util.APISuccessParams{Msg: "Preset deleted"})
	case errors.Is(err, catalog.ErrNotFound):
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Preset not found", Err: err})
	default:
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to delete preset", Err: err})
	}
}
