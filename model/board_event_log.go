package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BoardEventLog is a persisted board event: endpoint calls, sync conflicts,
// declined confirmations, outbound failures and alarms.
type BoardEventLog struct {
	gorm.Model
	EventType string `json:"event_type" gorm:"column:event_type;type:varchar(64);index"`
	DeviceID  string `json:"device_id" gorm:"column:device_id;type:varchar(64);index"`
	BedID     int    `json:"bed_id" gorm:"column:bed_id;index"`
	IP        string `json:"ip" gorm:"column:ip;type:varchar(45)"`
	Message   string `json:"message" gorm:"column:message;type:text"`
	// LocalTimestamp and RemoteTimestamp are set for sync conflicts.
	LocalTimestamp  int64          `json:"local_timestamp" gorm:"column:local_timestamp"`
	RemoteTimestamp int64          `json:"remote_timestamp" gorm:"column:remote_timestamp"`
	Details         datatypes.JSON `json:"details" gorm:"column:details;type:json"`
}
