package visitsync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ariebrainware/ltt-bedboard/bedstore"
	"github.com/ariebrainware/ltt-bedboard/catalog"
	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)

const testDate = "2025-03-14"

func setupVisitDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:testdb_visitsync_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Visit{}))
	return db
}

type fixture struct {
	db     *gorm.DB
	store  *bedstore.Store
	bridge *Bridge
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: setupVisitDB(t), now: testNow}
	clock := func() time.Time { return f.now }
	f.store = bedstore.New(10, catalog.Default(), bedstore.WithClock(clock))
	f.bridge = New(Config{
		Repo:  NewRepository(f.db, nil, "dev-a", nil),
		Store: f.store,
		Clock: clock,
	})
	return f
}

// drain runs every queued cascade.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	for {
		select {
		case ch := <-f.bridge.queue:
			require.NoError(t, f.bridge.OnBedChanged(context.Background(), ch.BedID, ch.Fields, ch.Bed, ch.Steps))
		default:
			return
		}
	}
}

func (f *fixture) visit(t *testing.T, name string, bedID *int, code string) model.Visit {
	t.Helper()
	v := model.Visit{VisitDate: testDate, PatientName: name, BedID: bedID, TreatmentName: code}
	require.NoError(t, f.bridge.Repo().Create(context.Background(), &v))
	return v
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }
func hotICT() []model.TreatmentStep {
	return []model.TreatmentStep{
		{ID: "Hot", Name: "Hot Pack", Duration: 600, EnableTimer: true, Color: "red"},
		{ID: "ICT", Name: "ICT", Duration: 600, EnableTimer: true, Color: "blue"},
	}
}
