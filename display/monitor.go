package display

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	simulator "github.com/talaria-02/smart-factory-pipeline"
)

const (
	DefaultHistorySize = 120
	MaxMonitorSensors  = 4
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// StatusLabel returns the monitor label for status.
func StatusLabel(status simulator.Status) string {
	switch status {
	case simulator.StatusRunning:
		return "[NORMAL]"
	case simulator.StatusWarning:
		return "[WARNING]"
	case simulator.StatusAnomaly:
		return "[ANOMALY!]"
	default:
		return "[UNKNOWN]"
	}
}

// History keeps a rolling window of readings for a few sensors of one machine.
type History struct {
	mu       sync.Mutex
	machine  simulator.MachineSpec
	sensors  []simulator.SensorSpec
	capacity int
	values   map[string][]float64
	ticks    int
	status   simulator.Status
}

// NewHistory tracks the named sensors of machine. At most four sensors are shown; no
// names means the first four of the machine.
func NewHistory(machine simulator.MachineSpec, names []string, capacity int) (*History, error) {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	if len(names) == 0 {
		for _, s := range machine.Sensors {
			names = append(names, s.Name)
		}
	}
	if len(names) > MaxMonitorSensors {
		names = names[:MaxMonitorSensors]
	}

	h := &History{
		machine:  machine,
		capacity: capacity,
		values:   make(map[string][]float64, len(names)),
		status:   simulator.StatusRunning,
	}
	for _, name := range names {
		spec, ok := findSensor(machine, name)
		if !ok {
			return nil, fmt.Errorf("machine %s has no sensor %q", machine.ID, name)
		}
		h.sensors = append(h.sensors, spec)
	}
	return h, nil
}

func findSensor(machine simulator.MachineSpec, name string) (simulator.SensorSpec, bool) {
	for _, s := range machine.Sensors {
		if s.Name == name {
			return s, true
		}
	}
	return simulator.SensorSpec{}, false
}

func (h *History) Name() string { return "monitor" }

// Publish adds rec to the window. Records of other machines are ignored.
func (h *History) Publish(_ context.Context, rec simulator.Record) error {
	if rec.MachineID != h.machine.ID {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ticks++
	h.status = rec.Status
	for _, s := range h.sensors {
		v, ok := rec.Sensors[s.Name]
		if !ok {
			continue
		}
		window := append(h.values[s.Name], v)
		if len(window) > h.capacity {
			window = window[len(window)-h.capacity:]
		}
		h.values[s.Name] = window
	}
	return nil
}

// Values returns a copy of the window for sensor name, oldest first.
func (h *History) Values(name string) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.values[name]...)
}

// Render writes one frame of the monitor.
func (h *History) Render(w io.Writer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "[LIVE] %s (%s) - Sensor Monitor  t=%ds  %s\n", h.machine.ID, h.machine.Type, h.ticks, StatusLabel(h.status))
	for _, s := range h.sensors {
		window := h.values[s.Name]
		lo, hi := Bounds(window)
		current := "-"
		if len(window) > 0 {
			current = FormatValue(window[len(window)-1])
		}
		fmt.Fprintf(&b, "%-20s %10s %-5s %s", s.Name, current, s.Unit, Sparkline(window, lo, hi))
		if len(window) > 0 {
			fmt.Fprintf(&b, "  min %s max %s", FormatValue(minOf(window)), FormatValue(maxOf(window)))
		}
		if s.Alert > 0 {
			marker := ""
			if len(window) > 0 && window[len(window)-1] > s.Alert {
				marker = " !"
			}
			fmt.Fprintf(&b, "  alert %s%s", FormatValue(s.Alert), marker)
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Bounds returns the plotting range of values: their extent widened by 20%, or by one
// when all values are equal.
func Bounds(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 1
	}
	lo, hi := minOf(values), maxOf(values)
	margin := (hi - lo) * 0.2
	if margin == 0 {
		margin = 1
	}
	return lo - margin, hi + margin
}

// Sparkline draws values scaled into [lo, hi], one rune per value.
func Sparkline(values []float64, lo, hi float64) string {
	if hi <= lo {
		hi = lo + 1
	}
	last := len(sparkRunes) - 1
	out := make([]rune, len(values))
	for i, v := range values {
		idx := int(math.Round((v - lo) / (hi - lo) * float64(last)))
		out[i] = sparkRunes[max(0, min(last, idx))]
	}
	return string(out)
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Min(m, v)
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Max(m, v)
	}
	return m
}
