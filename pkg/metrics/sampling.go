package metrics

import (
	"math"
	"sync/atomic"
)

// SamplingObserver forwards roughly rate of the events it sees. Names listed
// in keep always pass through.
type SamplingObserver struct {
	inner       Observer
	sampleEvery uint64
	counter     atomic.Uint64
	keep        map[string]struct{}
}

func NewSamplingObserver(inner Observer, rate float64, keep ...string) *SamplingObserver {
	rate = math.Max(0, math.Min(1, rate))
	var every uint64
	if rate > 0 {
		every = uint64(math.Round(1.0 / rate))
		if every == 0 {
			every = 1
		}
	}
	s := &SamplingObserver{inner: inner, sampleEvery: every, keep: make(map[string]struct{}, len(keep))}
	for _, name := range keep {
		s.keep[name] = struct{}{}
	}
	return s
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if _, ok := s.keep[ev.Name]; ok {
		s.inner.RecordEvent(ev)
		return
	}
	if s.sampleEvery == 0 {
		return
	}
	if s.sampleEvery == 1 || s.counter.Add(1)%s.sampleEvery == 0 {
		s.inner.RecordEvent(ev)
	}
}
