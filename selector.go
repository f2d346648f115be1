package httpcore

import (
	"context"
	"sync"
)

// EndpointSelector picks one Endpoint from a group's current snapshot for a
// given request attempt.
type EndpointSelector interface {
	Select(group EndpointGroup) (Endpoint, bool)
}

// RoundRobinSelector cycles through a group's endpoints in order, ignoring
// weight. Adapted from the teacher's roundrobin.go, which cycles through
// Resolvers the same way; here it's Endpoints instead of upstream
// resolvers, and Select reads the group's live snapshot instead of a fixed
// slice captured at construction.
type RoundRobinSelector struct {
	mu      sync.Mutex
	current int
}

func NewRoundRobinSelector() *RoundRobinSelector { return &RoundRobinSelector{} }

func (s *RoundRobinSelector) Select(group EndpointGroup) (Endpoint, bool) {
	eps := group.Endpoints()
	if len(eps) == 0 {
		return Endpoint{}, false
	}
	s.mu.Lock()
	i := s.current % len(eps)
	s.current++
	s.mu.Unlock()
	return eps[i], true
}

// WeightedRoundRobinSelector cycles through endpoints proportionally to
// Weight(): an endpoint with twice the weight of another is selected twice
// as often within one pass over the group.
type WeightedRoundRobinSelector struct {
	mu       sync.Mutex
	sequence []int // precomputed index sequence for the last-seen snapshot
	pos      int
	lastLen  int
}

func NewWeightedRoundRobinSelector() *WeightedRoundRobinSelector {
	return &WeightedRoundRobinSelector{}
}

func (s *WeightedRoundRobinSelector) Select(group EndpointGroup) (Endpoint, bool) {
	eps := group.Endpoints()
	if len(eps) == 0 {
		return Endpoint{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sequence) == 0 || s.lastLen != len(eps) {
		s.sequence = weightedSequence(eps)
		s.lastLen = len(eps)
		s.pos = 0
	}
	idx := s.sequence[s.pos%len(s.sequence)]
	s.pos++
	return eps[idx], true
}

// weightedSequence builds a round-robin index sequence where each
// endpoint's index appears proportionally to its weight relative to the
// smallest weight in the set (so a {1000, 2000} pair yields {0, 1, 1}).
func weightedSequence(eps []Endpoint) []int {
	minWeight := eps[0].Weight()
	for _, e := range eps[1:] {
		if w := e.Weight(); w > 0 && w < minWeight {
			minWeight = w
		}
	}
	if minWeight == 0 {
		minWeight = 1
	}
	var seq []int
	for i, e := range eps {
		share := int(e.Weight() / minWeight)
		if share < 1 {
			share = 1
		}
		for j := 0; j < share; j++ {
			seq = append(seq, i)
		}
	}
	return seq
}

// probeResult is one candidate's outcome from a fastest-first race.
type probeResult struct {
	index int
	err   error
}

// FastestFirstSelector races a probe function against every endpoint in
// the group concurrently and returns the first to answer successfully.
// Grounded on the teacher's fastest.go (and fastest-tcp.go, which supplies
// the probe itself -- a raw TCP dial used as a reachability check): this
// generalizes the "race N candidates, return first success" pattern from
// DNS upstreams to Endpoints, with the actual probe left pluggable so
// callers can dial, send a cheap HTTP HEAD, or whatever is representative
// of their workload.
type FastestFirstSelector struct {
	Probe func(ctx context.Context, ep Endpoint) error
}

func NewFastestFirstSelector(probe func(ctx context.Context, ep Endpoint) error) *FastestFirstSelector {
	return &FastestFirstSelector{Probe: probe}
}

func (s *FastestFirstSelector) Select(ctx context.Context, group EndpointGroup) (Endpoint, bool) {
	eps := group.Endpoints()
	if len(eps) == 0 {
		return Endpoint{}, false
	}

	results := make(chan probeResult, len(eps))
	for i, ep := range eps {
		i, ep := i, ep
		go func() {
			err := s.Probe(ctx, ep)
			results <- probeResult{index: i, err: err}
		}()
	}

	var lastErr error
	for i := 0; i < len(eps); i++ {
		res := <-results
		if res.err == nil {
			return eps[res.index], true
		}
		lastErr = res.err
	}
	_ = lastErr
	return Endpoint{}, false
}
