// Package localcache keeps the last known bed table and visit lists on disk
// so a restarted device can show them before the remote store answers.
package localcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const bedsKey = "beds"

func visitsKey(date string) string {
	return "visits:" + date
}

// Entry is one cached payload.
type Entry struct {
	Key       string         `gorm:"column:cache_key;primaryKey;type:varchar(64)"`
	Value     datatypes.JSON `gorm:"type:json"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli"`
}

func (Entry) TableName() string {
	return "cache_entries"
}

// Cache is a synchronous key-value store: a SQLite file fronted by an
// in-memory copy of every entry read or written.
type Cache struct {
	db     *gorm.DB
	mem    *cache.Cache
	logger *zap.Logger
}

// Open opens or creates the cache file at path.
func Open(path string, log *zap.Logger) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open local cache %s: %w", path, err)
	}
	return New(db, log)
}

// New uses db as the backing store.
func New(db *gorm.DB, log *zap.Logger) (*Cache, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate local cache: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{db: db, mem: cache.New(cache.NoExpiration, 0), logger: log}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (c *Cache) put(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	entry := Entry{Key: key, Value: datatypes.JSON(raw)}
	err = c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	c.mem.Set(key, []byte(raw), cache.NoExpiration)
	return nil
}

func (c *Cache) get(key string, dst interface{}) (bool, error) {
	if raw, ok := c.mem.Get(key); ok {
		return true, json.Unmarshal(raw.([]byte), dst)
	}
	var entry Entry
	err := c.db.Where("cache_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	if err := json.Unmarshal(entry.Value, dst); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	c.mem.Set(key, []byte(entry.Value), cache.NoExpiration)
	return true, nil
}

// SaveBeds stores the bed table, including local timestamps.
func (c *Cache) SaveBeds(beds []model.Bed) error {
	return c.put(bedsKey, beds)
}

// LoadBeds returns the cached bed table. ok is false when nothing was saved.
func (c *Cache) LoadBeds() (beds []model.Bed, ok bool, err error) {
	ok, err = c.get(bedsKey, &beds)
	return beds, ok, err
}

// SaveVisits stores the visit list of date.
func (c *Cache) SaveVisits(date string, visits []model.Visit) error {
	return c.put(visitsKey(date), visits)
}

// LoadVisits returns the cached visit list of date.
func (c *Cache) LoadVisits(date string) (visits []model.Visit, ok bool, err error) {
	ok, err = c.get(visitsKey(date), &visits)
	return visits, ok, err
}

// SavedAt returns when key was last written.
func (c *Cache) SavedAt(key string) (time.Time, bool) {
	var entry Entry
	if err := c.db.Select("updated_at").Where("cache_key = ?", key).First(&entry).Error; err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(entry.UpdatedAt), true
}
