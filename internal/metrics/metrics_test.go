package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNextRequestIDIsMonotonicAndStartsAtOne(t *testing.T) {
	g := &IDGenerator{}
	require.EqualValues(t, 1, g.NextRequestID())
	require.EqualValues(t, 2, g.NextRequestID())
	require.EqualValues(t, 3, g.NextRequestID())
}

func TestNextRequestIDIsUniqueUnderConcurrency(t *testing.T) {
	g := &IDGenerator{}
	const n = 1000
	seen := make(chan uint64, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			seen <- g.NextRequestID()
		}()
	}
	wg.Wait()
	close(seen)

	ids := make(map[uint64]bool, n)
	for id := range seen {
		require.False(t, ids[id], "duplicate id %d", id)
		ids[id] = true
	}
	require.Len(t, ids, n)
}

func TestCollectorsRegisterWithoutConflict(t *testing.T) {
	c := NewCollectors()
	reg := prometheus.NewRegistry()
	c.MustRegister(reg)
}
