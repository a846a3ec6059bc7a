// Package bedmove moves a running treatment from one bed to another. The
// local table changes first; the two bed rows and the visit's bed pointer are
// then written in one database transaction, and the local move is rolled back
// if that transaction fails.
package bedmove

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariebrainware/ltt-bedboard/bedstore"
	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/ariebrainware/ltt-bedboard/remotesync"
	"github.com/ariebrainware/ltt-bedboard/visitsync"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrRemoteFailed wraps a failed remote transaction. The local move has been
// undone.
var ErrRemoteFailed = errors.New("bed move could not be saved")

// Result is the outcome of a successful move.
type Result struct {
	From  model.Bed    `json:"from"`
	To    model.Bed    `json:"to"`
	Visit *model.Visit `json:"visit,omitempty"`
}

// Mover runs bed moves.
type Mover struct {
	db     *gorm.DB
	store  *bedstore.Store
	remote *remotesync.Bridge
	visits *visitsync.Repository
	logger *zap.Logger
	clock  func() time.Time
}

// New returns a Mover. clock picks the visit date; nil means time.Now.
func New(db *gorm.DB, store *bedstore.Store, remote *remotesync.Bridge, visits *visitsync.Repository, logger *zap.Logger, clock func() time.Time) *Mover {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Mover{
		db:     db,
		store:  store.WithSource(bedstore.SourceMove),
		remote: remote,
		visits: visits,
		logger: logger,
		clock:  clock,
	}
}

// Move carries bed from onto bed to. An ACTIVE destination is only
// overwritten after confirm agrees.
func (m *Mover) Move(ctx context.Context, from, to int, confirm visitsync.Confirmer) (Result, error) {
	err := m.store.CheckMove(from, to)
	if errors.Is(err, bedstore.ErrDestinationBusy) {
		dst, _ := m.store.Get(to)
		if dst.Status == model.BedActive {
			err = visitsync.Ask(ctx, confirm, visitsync.ConfirmRequest{
				Kind:    visitsync.ConfirmMoveOntoBed,
				BedID:   to,
				Message: fmt.Sprintf("bed %d is in use; move bed %d onto it anyway?", to, from),
			})
		} else {
			err = nil
		}
	}
	if err != nil {
		return Result{}, err
	}

	visit, hasVisit, err := m.visits.CurrentForBed(ctx, from, m.clock().Format(model.VisitDateLayout))
	if err != nil {
		return Result{}, err
	}

	var fromAfter, toAfter model.Bed
	var saved model.Visit
	err = m.remote.Serialize(func() error {
		fromBefore, _ := m.store.Get(from)
		toBefore, _ := m.store.Get(to)
		if err := m.store.Move(from, to); err != nil {
			return err
		}
		fromAfter, _ = m.store.Get(from)
		toAfter, _ = m.store.Get(to)

		var fromAt, toAt int64
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			if toAt, err = m.remote.WriteTx(tx, toAfter, model.AllBedFields); err != nil {
				return err
			}
			if fromAt, err = m.remote.WriteTx(tx, fromAfter, model.AllBedFields); err != nil {
				return err
			}
			if hasVisit {
				dest := to
				if saved, err = m.visits.UpdateTx(tx, visit.ID, model.VisitPatch{BedID: &dest}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			m.store.RestoreMove(from, to, fromBefore, toBefore)
			m.logger.Error("bed move rolled back",
				zap.Int("from_bed", from), zap.Int("to_bed", to), zap.Error(err))
			return fmt.Errorf("%w: %v", ErrRemoteFailed, err)
		}
		m.remote.Committed(ctx, toAfter, toAt)
		m.remote.Committed(ctx, fromAfter, fromAt)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{From: fromAfter, To: toAfter}
	if hasVisit {
		m.visits.Announce(ctx, saved)
		res.Visit = &saved
	}
	m.logger.Info("bed moved", zap.Int("from_bed", from), zap.Int("to_bed", to))
	return res, nil
}
