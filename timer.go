package reactor

import (
	"math"
	"sort"
	"time"
)

// TimerKey is an opaque handle returned by addTimer; it equals the
// monotonic expiration timestamp (milliseconds) of the entry. The
// sentinel value 0 means "no timer" / "bad key".
type TimerKey uint64

const badTimerKey TimerKey = 0

type timerEntry struct {
	handler Handler // may be nil: a null handler only breaks a Poll wait
	id      int32
}

type timerBucket struct {
	expiration TimerKey
	entries    []timerEntry
}

// timerStore is a sorted map from expiration (ms) to an insertion-ordered
// sequence of timer entries, realized as a slice of buckets kept sorted
// by expiration. Go's standard library has no ordered map; at the scale
// a single reactor's live timer set reaches (tens to low thousands), a
// sorted slice with O(log n) lookup and O(n) insert is the simpler
// choice over importing a third-party ordered-map/skip-list package.
type timerStore struct {
	buckets []timerBucket
	clock   func() int64 // monotonic ms; overridable in tests
}

func newTimerStore() *timerStore {
	return &timerStore{clock: monotonicMillis}
}

// monotonicEpoch anchors monotonicMillis; time.Since reads the runtime's
// monotonic clock reading embedded in both timestamps, so the result is
// immune to wall-clock adjustments (NTP steps, settimeofday).
var monotonicEpoch = time.Now()

func monotonicMillis() int64 {
	return int64(time.Since(monotonicEpoch) / time.Millisecond)
}

func (s *timerStore) count() int {
	n := 0
	for _, b := range s.buckets {
		n += len(b.entries)
	}
	return n
}

func (s *timerStore) bucketIndex(exp TimerKey) int {
	return sort.Search(len(s.buckets), func(i int) bool {
		return s.buckets[i].expiration >= exp
	})
}

// add computes expiration = now + timeoutMs and appends an entry to that
// bucket. If an entry with the same (handler, id) already exists in that
// bucket, it returns badTimerKey instead of creating a duplicate at the
// same tick.
func (s *timerStore) add(timeoutMs int64, handler Handler, id int32) TimerKey {
	if timeoutMs < 0 {
		timeoutMs = 0
	}
	exp := TimerKey(s.clock() + timeoutMs)
	if exp == badTimerKey {
		exp = 1 // never hand back the sentinel as a live key
	}

	idx := s.bucketIndex(exp)
	if idx < len(s.buckets) && s.buckets[idx].expiration == exp {
		for _, e := range s.buckets[idx].entries {
			if e.handler == handler && e.id == id {
				return badTimerKey
			}
		}
		s.buckets[idx].entries = append(s.buckets[idx].entries, timerEntry{handler, id})
		return exp
	}

	bucket := timerBucket{expiration: exp, entries: []timerEntry{{handler, id}}}
	s.buckets = append(s.buckets, timerBucket{})
	copy(s.buckets[idx+1:], s.buckets[idx:])
	s.buckets[idx] = bucket
	return exp
}

// cancel removes the first entry at bucket key matching (handler, id).
// Reports whether an entry was removed.
func (s *timerStore) cancel(key TimerKey, handler Handler, id int32) bool {
	idx := s.bucketIndex(key)
	if idx >= len(s.buckets) || s.buckets[idx].expiration != key {
		return false
	}
	entries := s.buckets[idx].entries
	for i, e := range entries {
		if e.handler == handler && e.id == id {
			s.buckets[idx].entries = append(entries[:i], entries[i+1:]...)
			if len(s.buckets[idx].entries) == 0 {
				s.buckets = append(s.buckets[:idx], s.buckets[idx+1:]...)
			}
			return true
		}
	}
	return false
}

// earliestTimeout returns max(0, firstExpiration-now) if any timer
// exists, else -1.
func (s *timerStore) earliestTimeout() int32 {
	if len(s.buckets) == 0 {
		return -1
	}
	d := int64(s.buckets[0].expiration) - s.clock()
	if d < 0 {
		d = 0
	}
	if d > math.MaxInt32 {
		d = math.MaxInt32
	}
	return int32(d)
}

// processDue splices out every bucket with expiration<=now, removing them
// from the store before invoking any callback so that callbacks may
// freely mutate the store, then invokes OnTimeout on each fired entry
// whose handler is non-nil. Returns the number of entries fired.
func (s *timerStore) processDue() int {
	now := TimerKey(s.clock())
	cut := 0
	for cut < len(s.buckets) && s.buckets[cut].expiration <= now {
		cut++
	}
	if cut == 0 {
		return 0
	}
	due := s.buckets[:cut]
	s.buckets = append([]timerBucket(nil), s.buckets[cut:]...)

	fired := 0
	for _, bucket := range due {
		for _, e := range bucket.entries {
			fired++
			if e.handler != nil {
				e.handler.OnTimeout(e.id)
			}
		}
	}
	return fired
}
