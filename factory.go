package simulator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Factory is the set of simulated machines, kept in configuration order.
type Factory struct {
	machines []*Machine
	index    map[string]*Machine
	limit    int // max machines ticking concurrently, <= 0 means one goroutine per machine
}

// NewFactory returns a factory for machines. Machine ids must be unique.
func NewFactory(machines ...*Machine) (*Factory, error) {
	if len(machines) == 0 {
		return nil, fmt.Errorf("%w: factory has no machines", ErrInvalidSpec)
	}
	f := &Factory{index: make(map[string]*Machine, len(machines))}
	for _, m := range machines {
		if _, ok := f.index[m.ID()]; ok {
			return nil, fmt.Errorf("%w: duplicate machine id %q", ErrInvalidSpec, m.ID())
		}
		f.index[m.ID()] = m
		f.machines = append(f.machines, m)
	}
	return f, nil
}

// SetConcurrency bounds the number of machines ticked at the same time.
func (f *Factory) SetConcurrency(n int) {
	f.limit = n
}

// Machines returns the machines in configuration order.
func (f *Factory) Machines() []*Machine {
	return f.machines
}

// Machine looks a machine up by id.
func (f *Factory) Machine(id string) (*Machine, bool) {
	m, ok := f.index[id]
	return m, ok
}

// Tick advances every machine by one step and returns their records in configuration
// order. Machines run in parallel; each only touches its own state and random source.
// The only error returned is the context error when ctx is done before the tick starts.
func (f *Factory) Tick(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]Record, len(f.machines))
	var g errgroup.Group
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}
	for i, m := range f.machines {
		g.Go(func() error {
			records[i] = m.Tick()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
