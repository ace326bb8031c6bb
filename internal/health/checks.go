package health

import (
	"fmt"
	"time"

	"tradecore/internal/eventqueue"
	"tradecore/internal/executor/live"
)

// QueueDepthCheck fails once the EventQueue backlog exceeds maxDepth,
// signalling the dispatch loop is falling behind its input rate.
func QueueDepthCheck(q *eventqueue.Queue, maxDepth int) Check {
	return func() error {
		if n := q.Len(); n > maxDepth {
			return fmt.Errorf("event queue depth %d exceeds %d", n, maxDepth)
		}
		return nil
	}
}

// ClockSkewCheck fails once the live executor's last observed venue/local
// clock skew exceeds maxSkew.
func ClockSkewCheck(exec *live.Executor, maxSkew time.Duration) Check {
	return func() error {
		skew := time.Duration(exec.LastClockSkewNs()) * time.Nanosecond
		if skew < 0 {
			skew = -skew
		}
		if skew > maxSkew {
			return fmt.Errorf("clock skew %s exceeds %s", skew, maxSkew)
		}
		return nil
	}
}

// VenueConnectivityCheck fails when ping returns an error, intended to wrap
// a VenueAdapter's lightweight connectivity probe (e.g. a REST ping or the
// age of the last received user-stream message).
func VenueConnectivityCheck(ping func() error) Check {
	return func() error {
		if ping == nil {
			return nil
		}
		return ping()
	}
}

// StaleFeedCheck fails once lastEventAge() exceeds maxAge, catching a
// market-data feed that has silently stopped delivering events.
func StaleFeedCheck(lastEventAge func() time.Duration, maxAge time.Duration) Check {
	return func() error {
		if age := lastEventAge(); age > maxAge {
			return fmt.Errorf("no market event received in %s (max %s)", age, maxAge)
		}
		return nil
	}
}
