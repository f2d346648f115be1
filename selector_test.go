package httpcore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobinSelectorCyclesInOrder(t *testing.T) {
	a := mustEndpoint(t, "1.1.1.1")
	b := mustEndpoint(t, "2.2.2.2")
	group := NewStaticEndpointGroup(a, b)
	s := NewRoundRobinSelector()

	first, ok := s.Select(group)
	require.True(t, ok)
	second, ok := s.Select(group)
	require.True(t, ok)
	third, ok := s.Select(group)
	require.True(t, ok)

	assert.True(t, first.Equal(a))
	assert.True(t, second.Equal(b))
	assert.True(t, third.Equal(a))
}

func TestRoundRobinSelectorEmptyGroup(t *testing.T) {
	s := NewRoundRobinSelector()
	_, ok := s.Select(NewStaticEndpointGroup())
	assert.False(t, ok)
}

func TestWeightedRoundRobinSelectorProportional(t *testing.T) {
	a := mustEndpoint(t, "1.1.1.1").WithWeight(1000)
	b := mustEndpoint(t, "2.2.2.2").WithWeight(2000)
	group := NewStaticEndpointGroup(a, b)
	s := NewWeightedRoundRobinSelector()

	counts := map[string]int{}
	for i := 0; i < 3; i++ {
		ep, ok := s.Select(group)
		require.True(t, ok)
		ip, _ := ep.IPAddr()
		counts[ip]++
	}

	assert.Equal(t, 1, counts["1.1.1.1"])
	assert.Equal(t, 2, counts["2.2.2.2"])
}

func TestFastestFirstSelectorReturnsFirstSuccess(t *testing.T) {
	a := mustEndpoint(t, "1.1.1.1")
	b := mustEndpoint(t, "2.2.2.2")
	group := NewStaticEndpointGroup(a, b)

	sel := NewFastestFirstSelector(func(ctx context.Context, ep Endpoint) error {
		ip, _ := ep.IPAddr()
		if ip == "2.2.2.2" {
			return errors.New("unreachable")
		}
		return nil
	})

	ep, ok := sel.Select(context.Background(), group)
	require.True(t, ok)
	assert.True(t, ep.Equal(a))
}

func TestFastestFirstSelectorAllFail(t *testing.T) {
	group := NewStaticEndpointGroup(mustEndpoint(t, "1.1.1.1"))
	sel := NewFastestFirstSelector(func(ctx context.Context, ep Endpoint) error {
		return errors.New("unreachable")
	})

	_, ok := sel.Select(context.Background(), group)
	assert.False(t, ok)
}
