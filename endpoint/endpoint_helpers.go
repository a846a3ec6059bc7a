package endpoint

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ariebrainware/ltt-bedboard/bedstore"
	"github.com/ariebrainware/ltt-bedboard/board"
	"github.com/ariebrainware/ltt-bedboard/middleware"
	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/ariebrainware/ltt-bedboard/visitsync"
	"github.com/gin-gonic/gin"
)

// bindJSONOrRespond binds the request body into dst or writes a 400.
func bindJSONOrRespond(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Invalid request body",
			Err: err,
		})
		return false
	}
	return true
}

// getBoardOrRespond returns the request's board or writes a 500.
func getBoardOrRespond(c *gin.Context) (*board.Board, bool) {
	b := middleware.GetBoard(c)
	if b == nil {
		util.CallServerError(c, util.APIErrorParams{
			Msg: "Board not available",
			Err: errors.New("board is nil"),
		})
		return nil, false
	}
	return b, true
}

// paramIntOrRespond parses a positive integer path parameter.
func paramIntOrRespond(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		util.CallUserError(c, util.APIErrorParams{
			Msg: fmt.Sprintf("Invalid %s", name),
			Err: fmt.Errorf("%s must be a positive integer", name),
		})
		return 0, false
	}
	return v, true
}

// bedOrRespond resolves the :id bed of the request.
func bedOrRespond(c *gin.Context) (*board.Board, int, bool) {
	b, ok := getBoardOrRespond(c)
	if !ok {
		return nil, 0, false
	}
	id, ok := paramIntOrRespond(c, "id")
	if !ok {
		return nil, 0, false
	}
	if !b.Store.Has(id) {
		util.CallErrorNotFound(c, util.APIErrorParams{
			Msg: "Bed not found",
			Err: fmt.Errorf("%w: %d", bedstore.ErrUnknownBed, id),
		})
		return nil, 0, false
	}
	return b, id, true
}

// confirmed reports whether the caller already agreed to overwrite.
func confirmed(c *gin.Context) bool {
	return c.Query("confirm") == "true"
}

// confirmer turns the confirm query flag into a Confirmer.
func confirmer(c *gin.Context) visitsync.Confirmer {
	return visitsync.Fixed(confirmed(c))
}

// respondBed writes the current view of bed id, or 400 when the operation did
// not apply.
func respondBed(c *gin.Context, b *board.Board, id int, applied bool, msg string) {
	if !applied {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Operation not applicable to bed",
			Err: fmt.Errorf("%s: bed %d unchanged", msg, id),
		})
		return
	}
	v, _ := b.Store.View(id)
	util.CallSuccessOK(c, util.APISuccessParams{Msg: msg, Data: v})
}
