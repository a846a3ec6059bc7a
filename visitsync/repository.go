package visitsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/ariebrainware/ltt-bedboard/remotesync"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrVisitNotFound = errors.New("visit not found")
	ErrInvalidVisit  = errors.New("invalid visit")
)

// VisitOp names a visit change in a VisitEvent.
type VisitOp string

const (
	VisitCreated VisitOp = "created"
	VisitUpdated VisitOp = "updated"
	VisitDeleted VisitOp = "deleted"
)

// VisitEvent announces a committed visit change on the date's channel.
type VisitEvent struct {
	Origin string      `json:"origin"`
	Op     VisitOp     `json:"op"`
	Visit  model.Visit `json:"visit"`
}

// Channel returns the redis channel of visits on date.
func Channel(date string) string {
	return "bedboard:visits:" + date
}

// Repository reads and writes visit rows and announces every change.
type Repository struct {
	db     *gorm.DB
	pub    *remotesync.Publisher
	device string
	logger *zap.Logger
}

// NewRepository returns a Repository. pub may be nil.
func NewRepository(db *gorm.DB, pub *remotesync.Publisher, deviceID string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, pub: pub, device: deviceID, logger: logger}
}

// DB returns the underlying handle.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func validate(v model.Visit) error {
	if strings.TrimSpace(v.PatientName) == "" {
		return fmt.Errorf("%w: patient name is required", ErrInvalidVisit)
	}
	if _, err := time.Parse(model.VisitDateLayout, v.VisitDate); err != nil {
		return fmt.Errorf("%w: visit date must be YYYY-MM-DD", ErrInvalidVisit)
	}
	if v.BedID != nil && *v.BedID <= 0 {
		return fmt.Errorf("%w: bed id must be positive", ErrInvalidVisit)
	}
	return nil
}

// Create inserts v.
func (r *Repository) Create(ctx context.Context, v *model.Visit) error {
	if err := validate(*v); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		return err
	}
	r.announce(ctx, VisitCreated, *v)
	return nil
}

// Get loads visit id.
func (r *Repository) Get(ctx context.Context, id uint) (model.Visit, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *Repository) get(db *gorm.DB, id uint) (model.Visit, error) {
	var v model.Visit
	if err := db.First(&v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Visit{}, ErrVisitNotFound
		}
		return model.Visit{}, err
	}
	return v, nil
}

// ListByDate returns the visits of date in creation order.
func (r *Repository) ListByDate(ctx context.Context, date string) ([]model.Visit, error) {
	var visits []model.Visit
	err := r.db.WithContext(ctx).
		Where("visit_date = ?", date).
		Order("created_at ASC").Order("id ASC").
		Find(&visits).Error
	return visits, err
}

// CurrentForBed returns the latest visit of date assigned to bedID.
func (r *Repository) CurrentForBed(ctx context.Context, bedID int, date string) (model.Visit, bool, error) {
	return r.currentForBed(r.db.WithContext(ctx), bedID, date)
}

func (r *Repository) currentForBed(db *gorm.DB, bedID int, date string) (model.Visit, bool, error) {
	var v model.Visit
	err := db.Where("bed_id = ? AND visit_date = ?", bedID, date).
		Order("created_at DESC").Order("id DESC").
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Visit{}, false, nil
	}
	if err != nil {
		return model.Visit{}, false, err
	}
	return v, true, nil
}

// Update applies patch to visit id and returns the stored result.
func (r *Repository) Update(ctx context.Context, id uint, patch model.VisitPatch) (model.Visit, error) {
	v, err := r.UpdateTx(r.db.WithContext(ctx), id, patch)
	if err != nil {
		return model.Visit{}, err
	}
	r.announce(ctx, VisitUpdated, v)
	return v, nil
}

// UpdateTx applies patch inside tx without announcing it. Call Announce
// after the transaction commits.
func (r *Repository) UpdateTx(tx *gorm.DB, id uint, patch model.VisitPatch) (model.Visit, error) {
	before, err := r.get(tx, id)
	if err != nil {
		return model.Visit{}, err
	}
	after := patch.Apply(before)
	if err := validate(after); err != nil {
		return model.Visit{}, err
	}
	cols := patch.Columns()
	if len(cols) == 0 {
		return before, nil
	}
	if err := tx.Model(&model.Visit{}).Where("id = ?", id).Updates(cols).Error; err != nil {
		return model.Visit{}, err
	}
	return r.get(tx, id)
}

// Delete soft-deletes visit id.
func (r *Repository) Delete(ctx context.Context, id uint) error {
	v, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Delete(&model.Visit{}, id).Error; err != nil {
		return err
	}
	r.announce(ctx, VisitDeleted, v)
	return nil
}

// Announce publishes an updated visit.
func (r *Repository) Announce(ctx context.Context, v model.Visit) {
	r.announce(ctx, VisitUpdated, v)
}

func (r *Repository) announce(ctx context.Context, op VisitOp, v model.Visit) {
	ev := VisitEvent{Origin: r.device, Op: op, Visit: v}
	if err := r.pub.Publish(ctx, Channel(v.VisitDate), ev); err != nil {
		r.logger.Warn("failed to publish visit event", zap.Uint("visit_id", v.ID), zap.Error(err))
	}
}

// Watch calls fn for every visit event of date published by other devices
// until ctx is done.
func (r *Repository) Watch(ctx context.Context, date string, fn func(VisitEvent)) {
	r.pub.Subscribe(ctx, Channel(date), func(payload string) {
		var ev VisitEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			r.logger.Warn("bad visit event", zap.Error(err))
			return
		}
		if ev.Origin == r.device {
			return
		}
		fn(ev)
	})
}
