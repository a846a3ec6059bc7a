package util

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/ariebrainware/ltt-bedboard/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BoardEventType names an auditable board event.
type BoardEventType string

const (
	EventEndpointCall      BoardEventType = "ENDPOINT_CALL"
	EventRemoteIgnored     BoardEventType = "REMOTE_IGNORED"
	EventConfirmDeclined   BoardEventType = "CONFIRM_DECLINED"
	EventOutboundFailure   BoardEventType = "OUTBOUND_FAILURE"
	EventAlarm             BoardEventType = "ALARM"
	EventRateLimitExceeded BoardEventType = "RATE_LIMIT_EXCEEDED"
	EventUnauthorized      BoardEventType = "UNAUTHORIZED_ACCESS"
)

// BoardEvent is one entry for LogBoardEvent.
type BoardEvent struct {
	EventType       BoardEventType
	DeviceID        string
	BedID           int
	IP              string
	Message         string
	LocalTimestamp  int64
	RemoteTimestamp int64
	Details         map[string]interface{}
}

var (
	boardMu     sync.RWMutex
	boardLogger = zap.NewNop()
	boardDB     *gorm.DB
)

// SetBoardLogger sets the zap logger board events are written to.
func SetBoardLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	boardMu.Lock()
	defer boardMu.Unlock()
	boardLogger = l.Named("board-event")
}

// SetBoardLoggerDB sets the DB board events are persisted to. Nil disables
// persistence.
func SetBoardLoggerDB(db *gorm.DB) {
	boardMu.Lock()
	defer boardMu.Unlock()
	boardDB = db
}

// sanitizeLogValue removes newlines and other characters that could break log parsing
func sanitizeLogValue(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\t", " ")
	if len(value) > 200 {
		value = value[:200] + "..."
	}
	return value
}

// LogBoardEvent logs event and persists it when a DB is set. Persistence is
// best-effort and never fails the caller.
func LogBoardEvent(event BoardEvent) {
	boardMu.RLock()
	logger, db := boardLogger, boardDB
	boardMu.RUnlock()

	fields := []zap.Field{
		zap.String("event", string(event.EventType)),
		zap.String("device_id", sanitizeLogValue(event.DeviceID)),
		zap.String("ip", sanitizeLogValue(event.IP)),
	}
	if event.BedID > 0 {
		fields = append(fields, zap.Int("bed_id", event.BedID))
	}
	if event.LocalTimestamp != 0 || event.RemoteTimestamp != 0 {
		fields = append(fields,
			zap.Int64("local_ts", event.LocalTimestamp),
			zap.Int64("remote_ts", event.RemoteTimestamp))
	}
	if len(event.Details) > 0 {
		fields = append(fields, zap.Int("details_count", len(event.Details)))
	}
	logger.Info(sanitizeLogValue(event.Message), fields...)

	if db == nil {
		return
	}
	var details datatypes.JSON
	if event.Details != nil {
		if b, err := json.Marshal(event.Details); err == nil {
			details = datatypes.JSON(b)
		}
	}
	entry := model.BoardEventLog{
		EventType:       string(event.EventType),
		DeviceID:        sanitizeLogValue(event.DeviceID),
		BedID:           event.BedID,
		IP:              sanitizeLogValue(event.IP),
		Message:         sanitizeLogValue(event.Message),
		LocalTimestamp:  event.LocalTimestamp,
		RemoteTimestamp: event.RemoteTimestamp,
		Details:         details,
	}
	if err := db.Create(&entry).Error; err != nil {
		logger.Warn("failed to persist board event", zap.Error(err))
	}
}
