package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talaria-02/smart-factory-pipeline/anomaly"
)

func newTestFactory(t *testing.T, ids ...string) *Factory {
	t.Helper()
	var machines []*Machine
	for _, id := range ids {
		spec := cncSpec()
		spec.ID = id
		m, err := NewMachine(spec, mustInjector(t, anomaly.DefaultParams()), WithSeed(11), WithClock(fixedClock))
		require.NoError(t, err)
		machines = append(machines, m)
	}
	f, err := NewFactory(machines...)
	require.NoError(t, err)
	return f
}

func TestNewFactoryValidation(t *testing.T) {
	_, err := NewFactory()
	assert.True(t, errors.Is(err, ErrInvalidSpec))

	m, err := NewMachine(cncSpec(), nil)
	require.NoError(t, err)
	_, err = NewFactory(m, m)
	assert.True(t, errors.Is(err, ErrInvalidSpec))
}

func TestFactoryTickKeepsMachineOrder(t *testing.T) {
	ids := []string{"CNC-001", "PRS-001", "CNV-001", "CLR-001", "PWR-001"}
	f := newTestFactory(t, ids...)

	for i := 0; i < 10; i++ {
		records, err := f.Tick(context.Background())
		require.NoError(t, err)
		require.Len(t, records, len(ids))
		for j, rec := range records {
			assert.Equal(t, ids[j], rec.MachineID)
		}
	}

	m, ok := f.Machine("CLR-001")
	require.True(t, ok)
	assert.Equal(t, "CLR-001", m.ID())
	_, ok = f.Machine("XXX-999")
	assert.False(t, ok)
}

func TestFactoryTickIsReproducible(t *testing.T) {
	ids := []string{"A", "B", "C", "D"}
	run := func(limit int) string {
		f := newTestFactory(t, ids...)
		f.SetConcurrency(limit)
		var out []byte
		for i := 0; i < 100; i++ {
			records, err := f.Tick(context.Background())
			require.NoError(t, err)
			data, err := json.Marshal(records)
			require.NoError(t, err)
			out = append(out, data...)
		}
		return string(out)
	}

	assert.Equal(t, run(1), run(0))
}

func TestFactoryTickCancelled(t *testing.T) {
	f := newTestFactory(t, "A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
