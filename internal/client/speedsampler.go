package client

import (
	"sync"
	"time"
)

// SpeedSampler tracks a sliding window of recent Feed calls and reports an
// average bytes/second rate over that window, used to drive progress UI
// during the download step. Grounded on
// mcpatch-client/src/speed_sampler.rs's SpeedCalculator.
type SpeedSampler struct {
	period time.Duration

	mu     sync.Mutex
	frames []sample
}

type sample struct {
	bytes     int64
	timestamp time.Time
}

// NewSpeedSampler creates a sampler retaining frames for period.
func NewSpeedSampler(period time.Duration) *SpeedSampler {
	return &SpeedSampler{period: period}
}

// Feed records n bytes transferred just now.
func (s *SpeedSampler) Feed(n int) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) > 0 && s.frames[0].timestamp.Equal(now) {
		s.frames[0].bytes += int64(n)
	} else {
		s.frames = append([]sample{{bytes: int64(n), timestamp: now}}, s.frames...)
	}

	cutoff := -1
	for i, f := range s.frames {
		if now.Sub(f.timestamp) > s.period {
			cutoff = i
			break
		}
	}
	if cutoff > 0 {
		s.frames = s.frames[:cutoff]
	}
}

// BytesPerSecond reports the current average rate over the retained window.
func (s *SpeedSampler) BytesPerSecond() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 {
		return 0
	}

	oldest := s.frames[len(s.frames)-1].timestamp
	span := time.Since(oldest)
	if span <= 0 {
		return 0
	}

	var total int64
	for _, f := range s.frames {
		total += f.bytes
	}

	return uint64(float64(total) / span.Seconds())
}
