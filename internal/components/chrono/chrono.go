package chrono

import (
	"sync"
	"time"
)

// TimeAPI is the interface that anything depending on the system clock should use.
//
// note: fault injection point
type TimeAPI interface {
	// Now returns the current time in UTC, timestamps are persisted as unix seconds so
	// the zone only matters for display.
	Now() time.Time
	// After sends the current time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

func (StandardTime) Now() time.Time {
	return time.Now().UTC()
}

func (StandardTime) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type fakeTimer struct {
	at time.Time
	ch chan time.Time
}

// FakeTime is a TimeAPI that only moves when told to. Timers from After fire during
// the Advance that reaches them.
type FakeTime struct {
	mu     sync.Mutex
	now    time.Time
	timers []fakeTimer
}

func NewFakeTime(now time.Time) *FakeTime {
	return &FakeTime{now: now}
}

func (f *FakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeTime) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.timers = append(f.timers, fakeTimer{at: f.now.Add(d), ch: ch})
	return ch
}

func (f *FakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)

	pending := f.timers[:0]
	for _, t := range f.timers {
		if t.at.After(f.now) {
			pending = append(pending, t)
			continue
		}
		t.ch <- f.now
	}
	f.timers = pending
}

// Timers is the number of armed timers that have not fired yet.
func (f *FakeTime) Timers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}
