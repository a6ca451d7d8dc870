package guard

import (
	"errors"
	"sync"
	"time"
)

// ErrNoObservations indicates the pool has recorded no price samples at all.
var ErrNoObservations = errors.New("guard: no observations recorded")

const defaultObservationCap = 128

type observation struct {
	timestamp int64
	tick      int64
}

// Observations is an in-process pool oracle backed by a rolling window of
// (timestamp, tick) samples. The dev router records a sample on every swap;
// tests drive it with a fixed clock.
type Observations struct {
	mu      sync.RWMutex
	samples []observation
	cap     int
	now     func() time.Time
}

// NewObservations constructs an empty observation history.
func NewObservations() *Observations {
	return &Observations{cap: defaultObservationCap, now: time.Now}
}

// SetClock overrides the time source, primarily for deterministic testing.
func (o *Observations) SetClock(now func() time.Time) {
	if o == nil || now == nil {
		return
	}
	o.mu.Lock()
	o.now = now
	o.mu.Unlock()
}

// SetSampleCap bounds the stored sample count. Non-positive values reset the
// cap to the default.
func (o *Observations) SetSampleCap(cap int) {
	if o == nil {
		return
	}
	if cap <= 0 {
		cap = defaultObservationCap
	}
	o.mu.Lock()
	o.cap = cap
	o.mu.Unlock()
}

// Record appends a tick sample at the current clock reading. Samples must be
// recorded in non-decreasing time order; out-of-order samples are dropped.
func (o *Observations) Record(tick int64) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	ts := o.now().Unix()
	if n := len(o.samples); n > 0 && o.samples[n-1].timestamp > ts {
		return
	}
	o.samples = append(o.samples, observation{timestamp: ts, tick: tick})
	if len(o.samples) > o.cap {
		o.samples = o.samples[len(o.samples)-o.cap:]
	}
}

// OldestObservationAge returns the age in seconds of the oldest stored sample.
func (o *Observations) OldestObservationAge() (uint64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.samples) == 0 {
		return 0, ErrNoObservations
	}
	age := o.now().Unix() - o.samples[0].timestamp
	if age < 0 {
		age = 0
	}
	return uint64(age), nil
}

// Consult returns the time-weighted mean tick over the trailing window. A zero
// window returns the most recent sample as a spot-equivalent reading.
func (o *Observations) Consult(windowSeconds uint64) (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := len(o.samples)
	if n == 0 {
		return 0, ErrNoObservations
	}
	if windowSeconds == 0 {
		return o.samples[n-1].tick, nil
	}

	end := o.now().Unix()
	start := end - int64(windowSeconds)

	// Each sample's tick is active from its timestamp until the next sample
	// (or until now for the latest). Weight by overlap with [start, end].
	var weightedSum, totalWeight int64
	for i := 0; i < n; i++ {
		activeFrom := o.samples[i].timestamp
		activeTo := end
		if i+1 < n {
			activeTo = o.samples[i+1].timestamp
		}
		if activeFrom < start {
			activeFrom = start
		}
		if activeTo > end {
			activeTo = end
		}
		if activeTo <= activeFrom {
			continue
		}
		weight := activeTo - activeFrom
		weightedSum += o.samples[i].tick * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return o.samples[n-1].tick, nil
	}
	return weightedSum / totalWeight, nil
}
