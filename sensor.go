package simulator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/talaria-02/smart-factory-pipeline/mathfuncs"
)

// ErrInvalidSpec is wrapped by every construction error for sensors and machines.
var ErrInvalidSpec = errors.New("invalid spec")

const (
	// DriftSigma is the standard deviation of the per-tick random walk step.
	DriftSigma = 0.01
	// CyclePeriodTicks is the period of the cyclic term, one hour at one tick per second.
	CyclePeriodTicks = 3600.0

	cycleAmplitudeFactor = 0.5 // cycle amplitude relative to the nominal noise
	anomalyNoiseFactor   = 2.0 // noise multiplier while an episode is active
)

// SensorSpec is the immutable configuration of one sensor.
type SensorSpec struct {
	Name  string  `mapstructure:"name" yaml:"name"`
	Unit  string  `mapstructure:"unit" yaml:"unit"`
	Base  float64 `mapstructure:"base" yaml:"base"`   // steady state value
	Noise float64 `mapstructure:"noise" yaml:"noise"` // standard deviation of the normal noise
	Min   float64 `mapstructure:"min" yaml:"min"`
	Max   float64 `mapstructure:"max" yaml:"max"`
	Alert float64 `mapstructure:"alert" yaml:"alert"`           // alert threshold, <= 0 disables alerting
	Cycle string  `mapstructure:"cycle" yaml:"cycle,omitempty"` // name of the cyclic shape, empty for sine
}

// Validate reports whether the sensor configuration can produce realistic output.
func (s SensorSpec) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: sensor name is empty", ErrInvalidSpec)
	case math.IsNaN(s.Base) || math.IsNaN(s.Noise) || math.IsNaN(s.Min) || math.IsNaN(s.Max) || math.IsNaN(s.Alert):
		return fmt.Errorf("%w: sensor %q has a NaN field", ErrInvalidSpec, s.Name)
	case s.Noise < 0:
		return fmt.Errorf("%w: sensor %q noise must be non-negative, got %v", ErrInvalidSpec, s.Name, s.Noise)
	case s.Min > s.Max:
		return fmt.Errorf("%w: sensor %q min %v exceeds max %v", ErrInvalidSpec, s.Name, s.Min, s.Max)
	case s.Base < s.Min || s.Base > s.Max:
		return fmt.Errorf("%w: sensor %q base %v outside [%v, %v]", ErrInvalidSpec, s.Name, s.Base, s.Min, s.Max)
	}
	return nil
}

// Reading is the output of one sensor for one tick.
type Reading struct {
	Value        float64 // rounded to two decimal places
	Unit         string
	IsAnomaly    bool
	ExceedsAlert bool
}

// Sensor generates readings from a base value, a slow random walk, a cyclic term and
// either normal or anomalous noise. A Sensor is not safe for concurrent use: it is owned
// by the goroutine ticking its machine.
type Sensor struct {
	spec  SensorSpec
	cycle mathfuncs.MathsFunction

	// internal state
	drift   float64 // cumulative random walk offset
	tick    int     // number of reads so far, drives the cyclic term
	episode episode
}

// Returns a Sensor for spec, checking for invalid values.
func NewSensor(spec SensorSpec) (*Sensor, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	cycle, err := mathfuncs.GetCycleFunctionFromName(spec.Cycle)
	if err != nil {
		return nil, fmt.Errorf("%w: sensor %q: %v (have %s)", ErrInvalidSpec, spec.Name, err,
			strings.Join(mathfuncs.GetMathsFunctionNames(), ", "))
	}
	return &Sensor{spec: spec, cycle: cycle}, nil
}

// Name returns the sensor name.
func (s *Sensor) Name() string {
	return s.spec.Name
}

// Spec returns the configuration the sensor was built from.
func (s *Sensor) Spec() SensorSpec {
	return s.spec
}

// Inject starts an anomaly episode lasting duration reads at base*severity. A running
// episode is replaced, not extended.
func (s *Sensor) Inject(duration int, severity float64) {
	s.episode.start(duration, severity)
}

// AnomalyActive reports whether the next read will be anomalous.
func (s *Sensor) AnomalyActive() bool {
	return s.episode.active
}

// Read performs one tick of the signal model using r as the randomness source.
func (s *Sensor) Read(r *rand.Rand) Reading {
	s.tick++

	// slow equipment ageing
	s.drift += r.NormFloat64() * DriftSigma
	value := s.spec.Base + s.drift

	// cyclic term, applied whether or not an episode is running
	value += s.cycle(float64(s.tick), s.spec.Noise*cycleAmplitudeFactor, CyclePeriodTicks)

	isAnomaly := false
	if severity, ok := s.episode.consume(); ok {
		// the episode fully determines the anomalous magnitude
		value = s.spec.Base * severity
		value += r.NormFloat64() * s.spec.Noise * anomalyNoiseFactor
		isAnomaly = true
	} else {
		value += r.NormFloat64() * s.spec.Noise
	}

	value = clamp(value, s.spec.Min, s.spec.Max)

	return Reading{
		Value:        round2(value),
		Unit:         s.spec.Unit,
		IsAnomaly:    isAnomaly,
		ExceedsAlert: s.spec.Alert > 0 && value > s.spec.Alert,
	}
}
