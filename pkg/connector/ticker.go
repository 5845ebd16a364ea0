package connector

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/bft-labs/flowhost/pkg/message"
)

// SequenceKey carries the ticker sequence number of a message.
const SequenceKey = "flowhost.sequence"

// Ticker is a pipeline.Poller that emits Batch messages per poll, each with
// the configured payload and an increasing sequence number.
type Ticker struct {
	payload []byte
	batch   int
	seq     atomic.Int64
}

// NewTicker creates a ticker. A batch below 1 emits one message per poll.
func NewTicker(payload string, batch int) *Ticker {
	if batch < 1 {
		batch = 1
	}
	return &Ticker{payload: []byte(payload), batch: batch}
}

// Poll implements pipeline.Poller.
func (t *Ticker) Poll(ctx context.Context) ([]*message.Message, error) {
	out := make([]*message.Message, 0, t.batch)
	for i := 0; i < t.batch; i++ {
		if err := ctx.Err(); err != nil {
			return out, nil
		}
		m := message.New(append([]byte(nil), t.payload...))
		m.Set(SequenceKey, strconv.FormatInt(t.seq.Add(1), 10))
		out = append(out, m)
	}
	return out, nil
}

// Emitted returns the number of messages emitted so far.
func (t *Ticker) Emitted() int64 {
	return t.seq.Load()
}
