// Package notify turns step timer alarms into user-visible notifications.
package notify

import (
	"context"
	"fmt"

	"github.com/ariebrainware/ltt-bedboard/bedtimer"
	"github.com/ariebrainware/ltt-bedboard/metrics"
	"github.com/ariebrainware/ltt-bedboard/remotesync"
	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlarmChannel carries AlarmMessage payloads for the notification UI.
const AlarmChannel = "bedboard:alarms"

// AlarmMessage is the published form of an alarm.
type AlarmMessage struct {
	ID      string `json:"id"`
	Origin  string `json:"origin"`
	BedID   int    `json:"bed_id"`
	Label   string `json:"label"`
	Target  int64  `json:"target"`
	FiredAt int64  `json:"fired_at"`
}

// Notifier consumes alarms.
type Notifier struct {
	pub     *remotesync.Publisher
	device  string
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(pub *remotesync.Publisher, deviceID string, m *metrics.Metrics, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Notifier{pub: pub, device: deviceID, metrics: m, logger: logger}
}

// Run handles alarms until ctx is done or alarms is closed.
func (n *Notifier) Run(ctx context.Context, alarms <-chan bedtimer.Alarm) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-alarms:
			if !ok {
				return nil
			}
			n.Handle(ctx, a)
		}
	}
}

// Handle emits one alarm and returns the published message.
func (n *Notifier) Handle(ctx context.Context, a bedtimer.Alarm) AlarmMessage {
	msg := AlarmMessage{
		ID:      uuid.NewString(),
		Origin:  n.device,
		BedID:   a.BedID,
		Label:   a.Label,
		Target:  a.Target.UnixMilli(),
		FiredAt: a.At.UnixMilli(),
	}
	n.metrics.Alarms.Inc()
	n.logger.Info("step finished",
		zap.Int("bed_id", a.BedID),
		zap.String("label", a.Label),
		zap.Duration("late", a.At.Sub(a.Target)))
	util.LogBoardEvent(util.BoardEvent{
		EventType: util.EventAlarm,
		DeviceID:  n.device,
		BedID:     a.BedID,
		Message:   fmt.Sprintf("bed %d: %s finished", a.BedID, a.Label),
		Details:   map[string]interface{}{"alarm_id": msg.ID, "target": msg.Target},
	})
	if err := n.pub.Publish(ctx, AlarmChannel, msg); err != nil {
		n.logger.Warn("failed to publish alarm", zap.Int("bed_id", a.BedID), zap.Error(err))
	}
	return msg
}
