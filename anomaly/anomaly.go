package anomaly

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// ErrInvalidParams is wrapped by every validation error returned from this package.
var ErrInvalidParams = errors.New("invalid anomaly parameters")

// IntRange is an inclusive integer range.
type IntRange struct {
	Min int `mapstructure:"min" yaml:"min"`
	Max int `mapstructure:"max" yaml:"max"`
}

// FloatRange is an inclusive real range.
type FloatRange struct {
	Min float64 `mapstructure:"min" yaml:"min"`
	Max float64 `mapstructure:"max" yaml:"max"`
}

// Params are the parameters used to request an anomaly injector. These map onto the fields of Injector.
type Params struct {
	Probability   float64    `mapstructure:"probability" yaml:"probability"`       // probability of an injection in each tick
	DurationRange IntRange   `mapstructure:"duration_range" yaml:"duration_range"` // episode length in ticks, inclusive
	SeverityRange FloatRange `mapstructure:"severity_range" yaml:"severity_range"` // multiplier applied to the sensor base value
	Off           bool       `mapstructure:"off" yaml:"off"`                       // true: injection deactivated
}

// DefaultParams returns 2% per tick, 10-60 tick episodes at 1.5x-4x base.
func DefaultParams() Params {
	return Params{
		Probability:   0.02,
		DurationRange: IntRange{Min: 10, Max: 60},
		SeverityRange: FloatRange{Min: 1.5, Max: 4.0},
	}
}

// Target is anything an episode can be injected into.
type Target interface {
	Name() string
	Inject(duration int, severity float64)
}

// Episode describes one injection.
type Episode struct {
	ID        uuid.UUID
	MachineID string
	Sensor    string
	Duration  int
	Severity  float64
}

// Injector decides, once per tick, whether to start an anomaly episode on one target.
type Injector struct {
	// Setters are provided for private fields below to allow for error checking
	probability float64
	duration    IntRange
	severity    FloatRange
	Off         bool
}

// Returns an Injector pointer with the requested parameters, checking for invalid values.
func NewInjector(params Params) (*Injector, error) {
	injector := &Injector{Off: params.Off}

	if err := injector.SetProbability(params.Probability); err != nil {
		return nil, err
	}
	if err := injector.SetDurationRange(params.DurationRange); err != nil {
		return nil, err
	}
	if err := injector.SetSeverityRange(params.SeverityRange); err != nil {
		return nil, err
	}

	return injector, nil
}

// Step rolls for an injection this tick. If it fires, one target is chosen uniformly and
// receives a duration and severity drawn from the configured ranges. An episode already
// running on that target is replaced.
func (in *Injector) Step(r *rand.Rand, targets []Target) (Episode, bool) {
	if in.Off || len(targets) == 0 {
		return Episode{}, false
	}
	if r.Float64() >= in.probability {
		return Episode{}, false
	}

	target := targets[r.IntN(len(targets))]
	duration := in.duration.Min + r.IntN(in.duration.Max-in.duration.Min+1)
	severity := in.severity.Min + r.Float64()*(in.severity.Max-in.severity.Min)
	target.Inject(duration, severity)

	return Episode{
		ID:       uuid.New(),
		Sensor:   target.Name(),
		Duration: duration,
		Severity: severity,
	}, true
}

// Params returns the parameters the injector is running with.
func (in *Injector) Params() Params {
	return Params{
		Probability:   in.probability,
		DurationRange: in.duration,
		SeverityRange: in.severity,
		Off:           in.Off,
	}
}

// Setters

// Set probability of an injection each tick if 0 <= probability <= 1.
func (in *Injector) SetProbability(probability float64) error {
	if probability < 0 || probability > 1 {
		return fmt.Errorf("%w: probability must be between 0 and 1, got %v", ErrInvalidParams, probability)
	}
	in.probability = probability
	return nil
}

// Sets the episode duration range in ticks. Episodes last at least one tick.
func (in *Injector) SetDurationRange(duration IntRange) error {
	if duration.Min < 1 {
		return fmt.Errorf("%w: duration_range min must be at least 1, got %d", ErrInvalidParams, duration.Min)
	}
	if duration.Min > duration.Max {
		return fmt.Errorf("%w: duration_range min %d exceeds max %d", ErrInvalidParams, duration.Min, duration.Max)
	}
	in.duration = duration
	return nil
}

// Sets the severity multiplier range if 0 <= min <= max.
func (in *Injector) SetSeverityRange(severity FloatRange) error {
	if severity.Min < 0 {
		return fmt.Errorf("%w: severity_range min must be non-negative, got %v", ErrInvalidParams, severity.Min)
	}
	if severity.Min > severity.Max {
		return fmt.Errorf("%w: severity_range min %v exceeds max %v", ErrInvalidParams, severity.Min, severity.Max)
	}
	in.severity = severity
	return nil
}
