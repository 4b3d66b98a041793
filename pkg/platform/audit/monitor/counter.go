package monitor

import (
	"context"
	"sync"
	"time"

	auditsync "workspace-audit/pkg/platform/sync"
)

// WindowCounter counts distinct members per key inside a sliding window.
// Members are event IDs, so a redelivered event is only counted once.
type WindowCounter interface {
	// Add records member at the given instant and returns how many members
	// the key holds in (at-window, at].
	Add(ctx context.Context, key, member string, at time.Time, window time.Duration) (int64, error)
	// Suppress marks key for ttl. It returns true only for the caller that set
	// the mark; later callers get false until it expires.
	Suppress(ctx context.Context, key string, at time.Time, ttl time.Duration) (bool, error)
}

// sweepInterval is how much event time passes between sweeps of idle keys.
const sweepInterval = time.Minute

// MemoryCounter is a process-local WindowCounter. For horizontally scaled
// deployments use RedisCounter so every instance shares one window.
// Keys are locked independently so unrelated windows do not contend.
// Windows with no live members and lapsed suppression marks are dropped
// by Sweep, which Add runs at most once per sweepInterval of event time.
type MemoryCounter struct {
	locks      *auditsync.ShardedMutex
	windows    sync.Map // key -> *slidingWindow
	suppressed sync.Map // key -> time.Time

	sweepMu   sync.Mutex
	lastSweep time.Time
}

type slidingWindow struct {
	members map[string]time.Time
	window  time.Duration
}

func (sw *slidingWindow) cleanupExpired(cutoff time.Time) {
	for m, at := range sw.members {
		if !at.After(cutoff) {
			delete(sw.members, m)
		}
	}
}

func (sw *slidingWindow) count(cutoff time.Time) int64 {
	var n int64
	for _, at := range sw.members {
		if at.After(cutoff) {
			n++
		}
	}
	return n
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{locks: auditsync.NewShardedMutex()}
}

func (c *MemoryCounter) Add(_ context.Context, key, member string, at time.Time, window time.Duration) (int64, error) {
	c.locks.Lock(key)
	v, _ := c.windows.LoadOrStore(key, &slidingWindow{members: make(map[string]time.Time)})
	sw := v.(*slidingWindow)
	sw.window = max(sw.window, window)
	cutoff := at.Add(-window)
	sw.cleanupExpired(cutoff)
	if _, seen := sw.members[member]; !seen {
		sw.members[member] = at
	}
	n := sw.count(cutoff)
	c.locks.Unlock(key)

	c.maybeSweep(at)
	return n, nil
}

func (c *MemoryCounter) Suppress(_ context.Context, key string, at time.Time, ttl time.Duration) (bool, error) {
	lockKey := "suppress:" + key
	c.locks.Lock(lockKey)
	defer c.locks.Unlock(lockKey)

	if v, ok := c.suppressed.Load(key); ok && at.Before(v.(time.Time)) {
		return false, nil
	}
	c.suppressed.Store(key, at.Add(ttl))
	return true, nil
}

// Sweep drops every window with no members inside its window as of now and
// every suppression mark that has lapsed.
func (c *MemoryCounter) Sweep(now time.Time) {
	c.windows.Range(func(k, _ any) bool {
		key := k.(string)
		c.locks.Lock(key)
		if v, ok := c.windows.Load(key); ok {
			sw := v.(*slidingWindow)
			sw.cleanupExpired(now.Add(-sw.window))
			if len(sw.members) == 0 {
				c.windows.Delete(key)
			}
		}
		c.locks.Unlock(key)
		return true
	})
	c.suppressed.Range(func(k, _ any) bool {
		key := k.(string)
		lockKey := "suppress:" + key
		c.locks.Lock(lockKey)
		if v, ok := c.suppressed.Load(key); ok && !now.Before(v.(time.Time)) {
			c.suppressed.Delete(key)
		}
		c.locks.Unlock(lockKey)
		return true
	})
}

// Tracked returns how many windows and suppression marks are held.
func (c *MemoryCounter) Tracked() int {
	n := 0
	count := func(any, any) bool { n++; return true }
	c.windows.Range(count)
	c.suppressed.Range(count)
	return n
}

func (c *MemoryCounter) maybeSweep(now time.Time) {
	c.sweepMu.Lock()
	if now.Sub(c.lastSweep) < sweepInterval {
		c.sweepMu.Unlock()
		return
	}
	c.lastSweep = now
	c.sweepMu.Unlock()
	c.Sweep(now)
}

var _ WindowCounter = (*MemoryCounter)(nil)
