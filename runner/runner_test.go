package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	simulator "github.com/talaria-02/smart-factory-pipeline"
	"github.com/talaria-02/smart-factory-pipeline/anomaly"
)

type recordingSink struct {
	mu      sync.Mutex
	records []simulator.Record
}

func (s *recordingSink) Publish(_ context.Context, rec simulator.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func newFactory(t *testing.T, ids ...string) *simulator.Factory {
	t.Helper()
	var machines []*simulator.Machine
	for _, id := range ids {
		spec := simulator.MachineSpec{
			ID:      id,
			Sensors: []simulator.SensorSpec{{Name: "temp", Base: 20, Noise: 1, Min: 0, Max: 100, Alert: 90}},
		}
		m, err := simulator.NewMachine(spec, nil, simulator.WithSeed(1))
		require.NoError(t, err)
		machines = append(machines, m)
	}
	f, err := simulator.NewFactory(machines...)
	require.NoError(t, err)
	return f
}

func TestRunStopsAfterMaxCycles(t *testing.T) {
	sink := &recordingSink{}
	r := New(newFactory(t, "A", "B"), time.Millisecond, nil, sink)
	r.SetMaxCycles(3)

	cycles := r.Run(context.Background())
	assert.Equal(t, 3, cycles)
	require.Len(t, sink.records, 6)
	assert.Equal(t, "A", sink.records[0].MachineID)
	assert.Equal(t, "B", sink.records[1].MachineID)
	assert.Equal(t, int64(0), r.Failures())
}

func TestRunStopsOnCancel(t *testing.T) {
	sink := &recordingSink{}
	r := New(newFactory(t, "A"), 5*time.Millisecond, nil, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	cycles := r.Run(ctx)
	assert.GreaterOrEqual(t, cycles, 1)
	assert.Len(t, sink.records, cycles)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(newFactory(t, "A"), time.Millisecond, nil)
	assert.Equal(t, 0, r.Run(ctx))
}

func TestSinkErrorsDoNotStopTheLoop(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	failing := SinkFunc(func(context.Context, simulator.Record) error {
		return errors.New("broker unavailable")
	})
	sink := &recordingSink{}

	r := New(newFactory(t, "A"), time.Millisecond, zap.New(core), failing, sink)
	r.SetMaxCycles(4)

	assert.Equal(t, 4, r.Run(context.Background()))
	assert.Len(t, sink.records, 4)
	assert.Equal(t, int64(4), r.Failures())
	assert.Equal(t, 4, logs.FilterMessage("sink publish failed").Len())
}

func TestEpisodeHooks(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var seen []anomaly.Episode

	hook := ChainHooks(EpisodeLogger(zap.New(core)), nil, func(ep anomaly.Episode) {
		seen = append(seen, ep)
	})
	hook(anomaly.Episode{ID: uuid.New(), MachineID: "CNC-001", Sensor: "spindle_temp", Duration: 10, Severity: 3})

	require.Len(t, seen, 1)
	entries := logs.FilterMessage("anomaly injected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "CNC-001", fields["machine_id"])
	assert.Equal(t, "spindle_temp", fields["sensor"])
	assert.Equal(t, int64(10), fields["duration"])
}
