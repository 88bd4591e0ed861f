package metrics

import (
	"sync"
	"time"

	"github.com/saveenergy/playertester/pkg/player"
	"github.com/saveenergy/playertester/pkg/types"
)

// Store is an in-memory sink that keeps every sample of a run, stamped at
// arrival, plus running per-label aggregates.
type Store struct {
	mu      sync.RWMutex
	samples []types.Sample
	stats   map[types.Label]*labelAgg
	now     func() time.Time
}

type labelAgg struct {
	count int
	sum   float64
	min   float64
	max   float64
	last  float64
}

var _ player.Sink = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		stats: make(map[types.Label]*labelAgg),
		now:   time.Now,
	}
}

func (s *Store) RegisterEvent(label types.Label, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, types.Sample{Label: label, Value: value, At: s.now()})

	agg := s.stats[label]
	if agg == nil {
		s.stats[label] = &labelAgg{count: 1, sum: value, min: value, max: value, last: value}
		return
	}
	agg.count++
	agg.sum += value
	if value < agg.min {
		agg.min = value
	}
	if value > agg.max {
		agg.max = value
	}
	agg.last = value
}

// Samples returns a copy of every recorded sample in arrival order.
func (s *Store) Samples() []types.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Sample(nil), s.samples...)
}

func (s *Store) Count(label types.Label) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if agg := s.stats[label]; agg != nil {
		return agg.count
	}
	return 0
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Summary returns aggregates for every label that received at least one sample.
func (s *Store) Summary() map[types.Label]types.LabelStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.Label]types.LabelStats, len(s.stats))
	for label, agg := range s.stats {
		out[label] = types.LabelStats{
			Count: agg.count,
			Min:   agg.min,
			Max:   agg.max,
			Avg:   agg.sum / float64(agg.count),
			Last:  agg.last,
		}
	}
	return out
}

// Switches counts how many times the value under label changed after its
// first sample. For bitrate labels this is the number of quality switches.
func (s *Store) Switches(label types.Label) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	seen := false
	var last float64
	for _, smp := range s.samples {
		if smp.Label != label {
			continue
		}
		if seen && smp.Value != last {
			n++
		}
		seen = true
		last = smp.Value
	}
	return n
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = nil
	s.stats = make(map[types.Label]*labelAgg)
}
