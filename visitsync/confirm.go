package visitsync

import (
	"context"
	"errors"

	"github.com/ariebrainware/ltt-bedboard/util"
)

// ErrConfirmationDeclined is returned when a destructive overwrite was not
// confirmed. Nothing was changed.
var ErrConfirmationDeclined = errors.New("confirmation declined")

// ConfirmKind tells the confirmer what would be overwritten.
type ConfirmKind string

const (
	ConfirmOverwriteBed ConfirmKind = "overwrite_bed"
	ConfirmMoveOntoBed  ConfirmKind = "move_onto_bed"
)

// ConfirmRequest describes a destructive action waiting for a decision.
type ConfirmRequest struct {
	Kind    ConfirmKind
	BedID   int
	VisitID uint
	Message string
}

// Confirmer decides whether a destructive action may proceed. It may block.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, req ConfirmRequest) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	return f(ctx, req)
}

// Fixed returns a Confirmer that always answers ok.
func Fixed(ok bool) Confirmer {
	return ConfirmFunc(func(context.Context, ConfirmRequest) (bool, error) { return ok, nil })
}

// Ask runs c for req. A nil confirmer declines.
func Ask(ctx context.Context, c Confirmer, req ConfirmRequest) error {
	if c == nil {
		return ErrConfirmationDeclined
	}
	ok, err := c.Confirm(ctx, req)
	if err != nil {
		return err
	}
	if !ok {
		util.LogBoardEvent(util.BoardEvent{
			EventType: util.EventConfirmDeclined,
			BedID:     req.BedID,
			Message:   string(req.Kind),
			Details:   map[string]interface{}{"visit_id": req.VisitID},
		})
		return ErrConfirmationDeclined
	}
	return nil
}
