package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mohammad-safakhou/choir/internal/telemetry"
	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the number of provider calls allowed in flight at once.
const DefaultCapacity = 15

// Gate is a process-wide counting semaphore in front of the completion
// provider. Waiters are admitted in arrival order.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
	waiting  atomic.Int64
	metrics  *telemetry.Metrics
}

// New creates a gate with the given capacity; non-positive means DefaultCapacity.
func New(capacity int64, metrics *telemetry.Metrics) *Gate {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Gate{sem: semaphore.NewWeighted(capacity), capacity: capacity, metrics: metrics}
}

// Permit is one slot of the gate. Release is safe to call more than once.
type Permit struct {
	gate *Gate
	once sync.Once
}

// Release returns the slot to the gate.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.gate.inFlight.Add(-1)
		p.gate.sem.Release(1)
		p.gate.publish()
	})
}

// Acquire waits for a free slot or for ctx to end.
func (g *Gate) Acquire(ctx context.Context) (*Permit, error) {
	g.waiting.Add(1)
	g.publish()
	err := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		g.publish()
		return nil, fmt.Errorf("dispatch acquire: %w", err)
	}
	g.inFlight.Add(1)
	g.publish()
	return &Permit{gate: g}, nil
}

// Do runs fn while holding a permit. The permit is released on every exit
// path, including a panic in fn.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	permit, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer permit.Release()
	return fn(ctx)
}

// Capacity returns the configured slot count.
func (g *Gate) Capacity() int64 { return g.capacity }

// InFlight returns the number of held permits.
func (g *Gate) InFlight() int64 { return g.inFlight.Load() }

// Waiting returns the number of callers blocked in Acquire.
func (g *Gate) Waiting() int64 { return g.waiting.Load() }

func (g *Gate) publish() {
	g.metrics.SetDispatch(g.inFlight.Load(), g.waiting.Load())
}
