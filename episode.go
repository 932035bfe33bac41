package simulator

// episode is the anomaly state of a single sensor. The zero value is inactive.
type episode struct {
	active    bool
	remaining int     // reads left in the current episode
	severity  float64 // multiplier applied to the sensor base value
}

// start replaces any running episode. Durations below one tick are raised to one so
// that an injection is always visible in at least one reading.
func (e *episode) start(duration int, severity float64) {
	if duration < 1 {
		duration = 1
	}
	e.active = true
	e.remaining = duration
	e.severity = severity
}

// consume returns the severity for this read and advances the episode by one tick.
// The episode switches off on the same read that uses its last tick.
func (e *episode) consume() (float64, bool) {
	if !e.active {
		return 0, false
	}

	severity := e.severity
	e.remaining--
	if e.remaining <= 0 {
		e.active = false
		e.remaining = 0
	}
	return severity, true
}
