package domain

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LadderReader reads the raw state of one ladder.
type LadderReader interface {
	ReadLadder(ctx context.Context) (RawLadder, error)
}

// VenueQuoter quotes an exact-in swap on an external venue. A nil amount or
// an error means the quote is unavailable.
type VenueQuoter interface {
	QuoteExactIn(ctx context.Context, pool, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
}

// AlertSink delivers a text alert for an event type. Delivery is best effort.
type AlertSink interface {
	Notify(ctx context.Context, event, title, message string) error
}

// OutcomeSink receives every finished cycle. Sinks are write-only: nothing
// they store is ever read back into the monitor.
type OutcomeSink interface {
	Name() string
	Record(ctx context.Context, outcome CycleOutcome) error
}

// BlobWriter stores one archive object under key.
type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}

// StreamMessage is one entry of a capped outcome stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus fans cycle outcomes out to live subscribers and keeps a short
// replayable history. Subscribe accepts glob patterns.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	// StreamRecent returns up to count entries, newest first.
	StreamRecent(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}

// RateLimiter answers whether key may act again within a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Lease is the single-instance lock held for one ladder.
type Lease interface {
	// Refresh extends the lease. It returns ErrLockHeld once another
	// instance owns the key.
	Refresh(ctx context.Context) error
	Release()
}

// LockManager hands out leases. Acquire returns ErrLockHeld when the key is
// taken.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
