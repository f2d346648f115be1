package httpcore

import (
	"expvar"
	"fmt"
	"math"
	"sync"
	"time"
)

// Get an *expvar.Int with the given path.
func getVarInt(base, id, name string) *expvar.Int {
	fullname := fmt.Sprintf("httpcore.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Int)
	}
	return expvar.NewInt(fullname)
}

// Get an *expvar.Map with the given path.
func getVarMap(base, id, name string) *expvar.Map {
	fullname := fmt.Sprintf("httpcore.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Map)
	}
	return expvar.NewMap(fullname)
}

// lifespanDistribution tracks the min/max/count of connection lifespans, the
// minimum metric set spec.md §4.5 requires for max_connection_age
// observability.
type lifespanDistribution struct {
	mu    sync.Mutex
	min   time.Duration
	max   time.Duration
	count int64
}

func newLifespanDistribution() *lifespanDistribution {
	return &lifespanDistribution{min: time.Duration(math.MaxInt64)}
}

func (d *lifespanDistribution) observe(lifespan time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if lifespan < d.min {
		d.min = lifespan
	}
	if lifespan > d.max {
		d.max = lifespan
	}
	d.count++
}

func (d *lifespanDistribution) snapshot() (min, max time.Duration, count int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		return 0, 0, 0
	}
	return d.min, d.max, d.count
}
