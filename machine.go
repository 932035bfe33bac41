package simulator

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/talaria-02/smart-factory-pipeline/anomaly"
)

// MachineSpec is the immutable configuration of one machine.
type MachineSpec struct {
	ID       string          `mapstructure:"id" yaml:"id"`
	Type     string          `mapstructure:"type" yaml:"type"`
	Location string          `mapstructure:"location" yaml:"location"`
	Sensors  []SensorSpec    `mapstructure:"sensors" yaml:"sensors"`
	Anomaly  *anomaly.Params `mapstructure:"anomaly" yaml:"anomaly,omitempty"` // overrides the factory wide injection parameters
}

// Validate checks the machine level fields. Sensor specs are checked by NewSensor.
func (s MachineSpec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: machine id is empty", ErrInvalidSpec)
	}
	if len(s.Sensors) == 0 {
		return fmt.Errorf("%w: machine %q has no sensors", ErrInvalidSpec, s.ID)
	}
	seen := make(map[string]struct{}, len(s.Sensors))
	for _, sensor := range s.Sensors {
		if _, ok := seen[sensor.Name]; ok {
			return fmt.Errorf("%w: machine %q has duplicate sensor %q", ErrInvalidSpec, s.ID, sensor.Name)
		}
		seen[sensor.Name] = struct{}{}
	}
	return nil
}

// Machine owns a set of sensors, injects anomalies into them and aggregates their
// readings into one Record per tick. A Machine and its sensors are single-writer state:
// only the goroutine calling Tick may touch them.
type Machine struct {
	spec     MachineSpec
	injector *anomaly.Injector
	sensors  []*Sensor
	targets  []anomaly.Target // the same sensors, as seen by the injector
	names    []string
	status   Status

	r        *rand.Rand
	now      func() time.Time
	onInject func(anomaly.Episode)
}

// Option customises Machine creation.
type Option func(*Machine)

// WithRand makes the machine draw from r. The machine must be the only user of r.
func WithRand(r *rand.Rand) Option {
	return func(m *Machine) {
		if r != nil {
			m.r = r
		}
	}
}

// WithSeed gives the machine a PCG source seeded from seed and its id, so machines
// sharing a seed still get independent streams.
func WithSeed(seed uint64) Option {
	return func(m *Machine) {
		m.r = rand.New(rand.NewPCG(seed, hashString(m.spec.ID)))
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithInjectHook registers fn to be called with every injected episode. fn runs on the
// goroutine ticking the machine.
func WithInjectHook(fn func(anomaly.Episode)) Option {
	return func(m *Machine) {
		m.onInject = fn
	}
}

// NewMachine builds a machine from spec. The injector decides when anomalies start; a
// nil injector disables injection.
func NewMachine(spec MachineSpec, injector *anomaly.Injector, opts ...Option) (*Machine, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	m := &Machine{
		spec:     spec,
		injector: injector,
		status:   StatusRunning,
		now:      time.Now,
	}
	for _, sensorSpec := range spec.Sensors {
		sensor, err := NewSensor(sensorSpec)
		if err != nil {
			return nil, fmt.Errorf("machine %q: %w", spec.ID, err)
		}
		m.sensors = append(m.sensors, sensor)
		m.targets = append(m.targets, sensor)
		m.names = append(m.names, sensor.Name())
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.r == nil {
		seed := uint64(time.Now().UnixNano())
		m.r = rand.New(rand.NewPCG(seed, hashString(spec.ID)))
	}

	return m, nil
}

// ID returns the machine id.
func (m *Machine) ID() string {
	return m.spec.ID
}

// Spec returns the configuration the machine was built from.
func (m *Machine) Spec() MachineSpec {
	return m.spec
}

// Status returns the status derived on the most recent tick.
func (m *Machine) Status() Status {
	return m.status
}

// Sensor returns the named sensor.
func (m *Machine) Sensor(name string) (*Sensor, bool) {
	for _, s := range m.sensors {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Tick performs one simulation step: at most one anomaly injection, one read of every
// sensor, and a status derived only from this step's readings.
func (m *Machine) Tick() Record {
	if m.injector != nil {
		if ep, ok := m.injector.Step(m.r, m.targets); ok && m.onInject != nil {
			ep.MachineID = m.spec.ID
			m.onInject(ep)
		}
	}

	values := make(map[string]float64, len(m.sensors))
	hasAnomaly, hasAlert := false, false
	for _, sensor := range m.sensors {
		reading := sensor.Read(m.r)
		values[sensor.Name()] = reading.Value
		hasAnomaly = hasAnomaly || reading.IsAnomaly
		hasAlert = hasAlert || reading.ExceedsAlert
	}

	m.status = deriveStatus(hasAlert, hasAnomaly)

	return Record{
		Timestamp:   m.now().UTC(),
		MachineID:   m.spec.ID,
		MachineType: m.spec.Type,
		Location:    m.spec.Location,
		Sensors:     values,
		Status:      m.status,
		HasAnomaly:  hasAnomaly,
		HasAlert:    hasAlert,
		SensorOrder: m.names,
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
