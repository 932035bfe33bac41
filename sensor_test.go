package simulator

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 0))
}

func spindleTemp() SensorSpec {
	return SensorSpec{Name: "spindle_temp", Unit: "°C", Base: 45.0, Noise: 2.0, Min: 20, Max: 120, Alert: 80}
}

func mustSensor(t *testing.T, spec SensorSpec) *Sensor {
	t.Helper()
	s, err := NewSensor(spec)
	require.NoError(t, err)
	return s
}

func TestSensorSpecValidation(t *testing.T) {
	testcases := []struct {
		name    string
		spec    SensorSpec
		isError bool
	}{
		{name: "valid", spec: spindleTemp()},
		{name: "empty name", spec: SensorSpec{Base: 1, Max: 2}, isError: true},
		{name: "negative noise", spec: SensorSpec{Name: "a", Base: 1, Noise: -1, Max: 2}, isError: true},
		{name: "min above max", spec: SensorSpec{Name: "a", Base: 1, Min: 3, Max: 2}, isError: true},
		{name: "base below min", spec: SensorSpec{Name: "a", Base: 0, Min: 1, Max: 2}, isError: true},
		{name: "base above max", spec: SensorSpec{Name: "a", Base: 3, Min: 1, Max: 2}, isError: true},
		{name: "nan noise", spec: SensorSpec{Name: "a", Base: 1, Noise: math.NaN(), Max: 2}, isError: true},
		{name: "unknown cycle", spec: SensorSpec{Name: "a", Base: 1, Max: 2, Cycle: "zigzag"}, isError: true},
		{name: "degenerate range", spec: SensorSpec{Name: "a", Base: 1, Min: 1, Max: 1}},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSensor(tc.spec)
			if tc.isError {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidSpec))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUnknownCycleListsShapes(t *testing.T) {
	_, err := NewSensor(SensorSpec{Name: "a", Base: 1, Max: 2, Cycle: "zigzag"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "zigzag")
	assert.ErrorContains(t, err, "triangle")
}

func TestReadStaysWithinRange(t *testing.T) {
	r := newRand()
	s := mustSensor(t, spindleTemp())

	for i := 0; i < 5000; i++ {
		if i%37 == 0 {
			s.Inject(1+r.IntN(20), r.Float64()*10)
		}
		v := s.Read(r).Value
		assert.GreaterOrEqual(t, v, 20.0)
		assert.LessOrEqual(t, v, 120.0)
	}
}

func TestReadClampsExtremeSeverities(t *testing.T) {
	testcases := []struct {
		name     string
		severity float64
		expected float64
	}{
		{name: "huge severity clamps to max", severity: 1000, expected: 120},
		{name: "zero severity clamps to min", severity: 0, expected: 20},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			s := mustSensor(t, spindleTemp())
			s.Inject(3, tc.severity)
			r := newRand()
			for i := 0; i < 3; i++ {
				reading := s.Read(r)
				assert.Equal(t, tc.expected, reading.Value)
				assert.True(t, reading.IsAnomaly)
			}
		})
	}
}

func TestReadRoundsToTwoDecimals(t *testing.T) {
	r := newRand()
	s := mustSensor(t, SensorSpec{Name: "vibration_x", Base: 0.8, Noise: 0.15, Min: 0, Max: 10, Alert: 3})

	for i := 0; i < 500; i++ {
		v := s.Read(r).Value
		assert.InDelta(t, math.Round(v*100), v*100, 1e-6)
	}
}

func TestAlertGating(t *testing.T) {
	testcases := []struct {
		name     string
		alert    float64
		expected bool
	}{
		{name: "positive threshold exceeded", alert: 50, expected: true},
		{name: "zero threshold never alerts", alert: 0, expected: false},
		{name: "negative threshold never alerts", alert: -5, expected: false},
		{name: "threshold above value", alert: 150, expected: false},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			s := mustSensor(t, SensorSpec{Name: "a", Base: 100, Noise: 0, Min: 0, Max: 200, Alert: tc.alert})
			r := newRand()
			for i := 0; i < 20; i++ {
				assert.Equal(t, tc.expected, s.Read(r).ExceedsAlert)
			}
		})
	}
}

func TestAnomalyDuration(t *testing.T) {
	r := newRand()
	s := mustSensor(t, SensorSpec{Name: "a", Base: 10, Noise: 1, Min: 0, Max: 100})
	s.Inject(5, 2.0)

	for i := 0; i < 5; i++ {
		assert.True(t, s.AnomalyActive(), "read %d", i)
		assert.True(t, s.Read(r).IsAnomaly, "read %d", i)
	}
	assert.False(t, s.AnomalyActive())
	assert.False(t, s.Read(r).IsAnomaly)
}

func TestInjectBelowOneTickLastsOneRead(t *testing.T) {
	r := newRand()
	s := mustSensor(t, SensorSpec{Name: "a", Base: 10, Noise: 1, Min: 0, Max: 100})
	s.Inject(0, 2.0)

	assert.True(t, s.Read(r).IsAnomaly)
	assert.False(t, s.Read(r).IsAnomaly)
}

func TestInjectOverridesRunningEpisode(t *testing.T) {
	r := newRand()
	s := mustSensor(t, SensorSpec{Name: "a", Base: 10, Noise: 0, Min: 0, Max: 100})

	s.Inject(5, 2.0)
	assert.Equal(t, 20.0, s.Read(r).Value)
	assert.Equal(t, 20.0, s.Read(r).Value)

	// replaces both severity and the remaining ticks
	s.Inject(2, 5.0)
	assert.Equal(t, 50.0, s.Read(r).Value)
	assert.Equal(t, 50.0, s.Read(r).Value)
	assert.False(t, s.Read(r).IsAnomaly)
}

func TestNormalReadsFollowBase(t *testing.T) {
	r := newRand()
	s := mustSensor(t, SensorSpec{Name: "a", Base: 10, Noise: 0, Min: 0, Max: 100})

	// with no noise only the random walk moves the value
	for i := 0; i < 100; i++ {
		reading := s.Read(r)
		assert.False(t, reading.IsAnomaly)
		assert.InDelta(t, 10.0+s.drift, reading.Value, 0.0051)
	}
	assert.InDelta(t, 0.0, s.drift, 0.5)
}

func TestSpindleTempAnomaly(t *testing.T) {
	r := newRand()
	s := mustSensor(t, spindleTemp())
	s.Inject(10, 3.0)

	for i := 0; i < 10; i++ {
		reading := s.Read(r)
		assert.True(t, reading.IsAnomaly)
		assert.True(t, reading.ExceedsAlert)
		assert.LessOrEqual(t, reading.Value, 120.0)
		assert.Greater(t, reading.Value, 80.0)
		assert.Equal(t, "°C", reading.Unit)
	}
	assert.False(t, s.AnomalyActive())

	// without noise the anomalous target of 135 is always clamped to the maximum
	quiet := spindleTemp()
	quiet.Noise = 0
	s = mustSensor(t, quiet)
	s.Inject(10, 3.0)
	for i := 0; i < 10; i++ {
		assert.Equal(t, 120.0, s.Read(r).Value)
	}
}

func TestEpisodeStateMachine(t *testing.T) {
	var e episode
	_, ok := e.consume()
	assert.False(t, ok)

	e.start(2, 1.5)
	sev, ok := e.consume()
	assert.True(t, ok)
	assert.Equal(t, 1.5, sev)
	assert.True(t, e.active)
	assert.Equal(t, 1, e.remaining)

	_, ok = e.consume()
	assert.True(t, ok)
	assert.False(t, e.active)
	assert.Equal(t, 0, e.remaining)

	_, ok = e.consume()
	assert.False(t, ok)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, round2(1.2349))
	assert.Equal(t, 1.24, round2(1.235001))
	assert.Equal(t, 0.0, round2(-0.001))
	assert.False(t, math.Signbit(round2(-0.001)))
}
