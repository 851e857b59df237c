package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrRendezvousTimeout is returned when the expected subscribers never showed up.
var ErrRendezvousTimeout = errors.New("matchmaking: rendezvous timed out")

// SubscriberCounter reports the number of subscribers on a channel.
type SubscriberCounter interface {
	NumSub(ctx context.Context, channel string) (int64, error)
}

// Rendezvous waits until a channel has an exact number of subscribers.
type Rendezvous struct {
	counter  SubscriberCounter
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

// NewRendezvous creates a barrier polling counter at most attempts times,
// delay apart.
//
// Precondition: attempts >= 1; delay >= 0.
func NewRendezvous(counter SubscriberCounter, attempts int, delay time.Duration, logger *zap.Logger) *Rendezvous {
	if attempts < 1 {
		attempts = 1
	}
	return &Rendezvous{counter: counter, attempts: attempts, delay: delay, logger: logger}
}

// EnsureSubscribers reports whether channel reached exactly n subscribers
// within the attempt budget. Broker errors and context cancellation abort
// the wait and are returned.
func (r *Rendezvous) EnsureSubscribers(ctx context.Context, channel string, n int) (bool, error) {
	var last int64
	for attempt := 1; attempt <= r.attempts; attempt++ {
		count, err := r.counter.NumSub(ctx, channel)
		if err != nil {
			return false, fmt.Errorf("counting subscribers on %s: %w", channel, err)
		}
		if count == int64(n) {
			r.logger.Debug("rendezvous complete",
				zap.String("channel", channel),
				zap.Int("attempt", attempt),
			)
			return true, nil
		}
		last = count
		if attempt == r.attempts {
			break
		}
		timer := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
	r.logger.Warn("rendezvous budget exhausted",
		zap.String("channel", channel),
		zap.Int("want", n),
		zap.Int64("have", last),
		zap.Int("attempts", r.attempts),
	)
	return false, nil
}
