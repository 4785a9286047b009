package stream

import (
	"encoding/json"
	"fmt"

	"sentiment-engine/internal/domain"
)

// msTimestampThreshold separates epoch-seconds from epoch-milliseconds.
// Anything above 1e10 is milliseconds.
const msTimestampThreshold = 1e10

// tickMessage is the upstream trade envelope. Some providers wrap trades in
// {"type":"trade","data":[...]}; others send bare tick objects.
type tickMessage struct {
	Type string    `json:"type"`
	Data []rawTick `json:"data"`

	// Bare-object fields
	rawTick
}

type rawTick struct {
	Symbol    string  `json:"s"`
	Price     float64 `json:"p"`
	Volume    float64 `json:"v"`
	Timestamp float64 `json:"t"`
}

// subscribeRequest is sent after connect.
type subscribeRequest struct {
	Action  string `json:"action"`
	Symbols string `json:"symbols"`
}

// ParseTicks parses one upstream message into ticks. Non-trade messages
// (pings, acks) return an empty slice and no error.
func ParseTicks(message []byte) ([]domain.Tick, error) {
	var msg tickMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return nil, fmt.Errorf("parse tick message: %w", err)
	}

	raws := msg.Data
	if len(raws) == 0 {
		if msg.rawTick.Price == 0 && msg.rawTick.Timestamp == 0 {
			return nil, nil
		}
		raws = []rawTick{msg.rawTick}
	}

	ticks := make([]domain.Tick, 0, len(raws))
	for _, r := range raws {
		if r.Price <= 0 || r.Volume < 0 {
			continue
		}
		ticks = append(ticks, domain.Tick{
			Symbol:      r.Symbol,
			Price:       r.Price,
			Volume:      r.Volume,
			TimestampMs: normalizeTimestamp(r.Timestamp),
		})
	}
	return ticks, nil
}

// normalizeTimestamp converts an epoch value in seconds or milliseconds to
// milliseconds.
func normalizeTimestamp(ts float64) int64 {
	if ts > msTimestampThreshold {
		return int64(ts)
	}
	return int64(ts * 1000)
}
