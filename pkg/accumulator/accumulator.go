package accumulator

import (
	"context"
	"sync"
	"time"
)

// Accumulator counts increments and, every interval, stores the count as a
// sample and starts again from zero. Only the newest samples are kept.
type Accumulator struct {
	mu      sync.RWMutex
	samples []Sample
	acc     int64

	// Samples to store before being discarded.
	// 60 samples with an interval of 1 minute provide an hour of history.
	storedSamples int

	interval time.Duration
}

// Sample is the count accumulated during one interval.
type Sample struct {
	StoredAt time.Time `json:"stored_at"`
	Value    int64     `json:"value"`
}

// NewAccumulator creates an accumulator. This does not automatically call Run.
func NewAccumulator(storedSamples int, interval time.Duration) *Accumulator {
	if storedSamples < 1 {
		storedSamples = 1
	}

	return &Accumulator{
		samples:       make([]Sample, 0, storedSamples),
		storedSamples: storedSamples,
		interval:      interval,
	}
}

// Increment increments the current interval by 1.
func (ac *Accumulator) Increment() {
	ac.IncrementBy(1)
}

// IncrementBy increments the current interval by n.
func (ac *Accumulator) IncrementBy(n int64) {
	ac.mu.Lock()
	ac.acc += n
	ac.mu.Unlock()
}

// Pending returns the count of the interval in progress.
func (ac *Accumulator) Pending() int64 {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	return ac.acc
}

// Samples returns a copy of the stored samples, oldest first.
func (ac *Accumulator) Samples() []Sample {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	return append([]Sample(nil), ac.samples...)
}

// LastSamples returns the newest n samples.
func (ac *Accumulator) LastSamples(n int) []Sample {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	index := len(ac.samples) - n
	if index < 0 {
		index = 0
	}

	return append([]Sample(nil), ac.samples[index:]...)
}

// SamplesSince returns the samples stored after t.
func (ac *Accumulator) SamplesSince(t time.Time) []Sample {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	for index, sample := range ac.samples {
		if sample.StoredAt.After(t) {
			return append([]Sample(nil), ac.samples[index:]...)
		}
	}

	return nil
}

// Sum returns the sum of samples.
func Sum(samples []Sample) int64 {
	acc := int64(0)
	for _, sample := range samples {
		acc += sample.Value
	}

	return acc
}

// RunOnce stores the current count as a sample taken at t.
func (ac *Accumulator) RunOnce(t time.Time) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.samples = append(ac.samples, Sample{StoredAt: t, Value: ac.acc})
	ac.acc = 0

	if len(ac.samples) > ac.storedSamples {
		ac.samples = append(ac.samples[:0], ac.samples[len(ac.samples)-ac.storedSamples:]...)
	}
}

// Run takes a sample every interval until ctx is done.
func (ac *Accumulator) Run(ctx context.Context) {
	t := time.NewTicker(ac.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			ac.RunOnce(now.UTC())
		}
	}
}
