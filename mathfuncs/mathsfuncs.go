package mathfuncs

import (
	"errors"
	"math"
	"sort"

	"github.com/teknico/sigourney/fast"
)

// A mathematical function y=f(t,A,T). Takes amplitude, A, and period, T,
// as inputs and returns the value of the function at time, t.
type MathsFunction func(t, A, T float64) float64

// DefaultCycle is the shape used when a sensor does not name one.
const DefaultCycle = "sine"

// A map between string name and cyclic MathsFunction pairs
var mathsFunctions = map[string]MathsFunction{
	"sine":        Sine,
	"cosine":      cosineWave,
	"square":      squareWave,
	"sawtooth":    sawtoothWave,
	"triangle":    triangleWave,
	"warmup_sine": warmupSine,
	"none":        none,
}

// Returns the names of all registered cycle shapes in sorted order.
func GetMathsFunctionNames() []string {
	names := make([]string, 0, len(mathsFunctions))
	for name := range mathsFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Returns the named cycle function. Defaults to sine if name is empty.
func GetCycleFunctionFromName(name string) (MathsFunction, error) {
	if name == "" {
		name = DefaultCycle
	}
	cycleFunc, ok := mathsFunctions[name]
	if !ok {
		return nil, errors.New("cycle function not found: " + name)
	}

	return cycleFunc, nil
}

// Returns a sine wave y = A*sin(2π * t / PeriodDuration)
// PeriodDuration defines the cycle length in ticks.
func Sine(t, A, PeriodDuration float64) float64 {
	if PeriodDuration <= 0 {
		PeriodDuration = 86400.0 // default to 1 day
	}
	return A * math.Sin(2*math.Pi*t/PeriodDuration)
}

// Returns a cosine wave y=A*cos(2*pi*t/T) where A is the amplitude,
// T is the period, and t is elapsed time.
func cosineWave(t, A, T float64) float64 {
	return A * fast.Sin(2*math.Pi*t/T+math.Pi/2)
}

// Returns a square wave y=A if sin(2*pi*t/T) >= 0, else -A.
// where A is the amplitude, T is the period, and t is elapsed time.
func squareWave(t, A, T float64) float64 {
	if fast.Sin(2*math.Pi*t/T) >= 0 {
		return A
	} else {
		return -A
	}
}

// Returns a sawtooth wave y=(2*A/pi)*atan(tan(pi*t/T)),
// where A is the amplitude, T is the period, and t is elapsed time.
func sawtoothWave(t, A, T float64) float64 {
	return (2 * A / math.Pi) * math.Atan(math.Tan(math.Pi*t/T))
}

// Returns a triangle wave bounded by +/- A with period T.
func triangleWave(t, A, T float64) float64 {
	return (2 * A / math.Pi) * math.Asin(math.Sin(2*math.Pi*t/T))
}

// warmupSine layers a third harmonic at half amplitude over the primary
// cycle, giving a plateau-shaped warm-up pattern.
func warmupSine(t, A, T float64) float64 {
	primary := A * math.Sin(2.0*math.Pi*t/T)
	secondary := 0.5 * A * math.Sin(6.0*math.Pi*t/T)
	return primary + secondary
}

// none disables the cyclic term.
func none(_, _, _ float64) float64 {
	return 0
}
