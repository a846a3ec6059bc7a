package remotesync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/redis/go-redis/v9"
)

// BedChannel is the redis channel bed change events are published on.
const BedChannel = "bedboard:beds"

// ChangeEvent announces a committed write to the remote store. Row carries
// the written record so subscribers can skip the read back.
type ChangeEvent struct {
	Table     string        `json:"table"`
	Origin    string        `json:"origin"`
	ID        uint          `json:"id"`
	UpdatedAt int64         `json:"updated_at"`
	Row       *model.BedRow `json:"row,omitempty"`
}

// DecodeEvent parses a published payload.
func DecodeEvent(payload string) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if ev.Table != (model.BedRow{}).TableName() {
		return ChangeEvent{}, fmt.Errorf("unexpected table %q", ev.Table)
	}
	return ev, nil
}

// Publisher sends change events. A nil redis client turns it into a no-op.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher wraps rdb, which may be nil.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Enabled reports whether events go anywhere.
func (p *Publisher) Enabled() bool {
	return p != nil && p.rdb != nil
}

// Publish sends payload v as JSON on channel.
func (p *Publisher) Publish(ctx context.Context, channel string, v interface{}) error {
	if !p.Enabled() {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, channel, string(raw)).Err()
}

// Subscribe calls fn with every payload on channel until ctx is done.
func (p *Publisher) Subscribe(ctx context.Context, channel string, fn func(string)) {
	if !p.Enabled() {
		return
	}
	sub := p.rdb.Subscribe(ctx, channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fn(msg.Payload)
		}
	}
}
