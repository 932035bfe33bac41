package simulator

import "time"

// Status is the overall state of a machine for one tick.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusWarning Status = "WARNING"
	StatusAnomaly Status = "ANOMALY"
)

// deriveStatus folds the flags of one read cycle into a status. Alerts take priority
// over anomalies.
func deriveStatus(hasAlert, hasAnomaly bool) Status {
	switch {
	case hasAlert:
		return StatusWarning
	case hasAnomaly:
		return StatusAnomaly
	default:
		return StatusRunning
	}
}

// Record is the per-tick output of a machine, and the payload every transport carries.
type Record struct {
	Timestamp   time.Time          `json:"timestamp"`
	MachineID   string             `json:"machine_id"`
	MachineType string             `json:"machine_type"`
	Location    string             `json:"location"`
	Sensors     map[string]float64 `json:"sensors"`
	Status      Status             `json:"status"`
	HasAnomaly  bool               `json:"has_anomaly"`
	HasAlert    bool               `json:"has_alert"`

	// SensorOrder lists the sensor names in configuration order. It is not encoded.
	SensorOrder []string `json:"-"`
}

// OrderedSensors returns the sensor names in configuration order, falling back to the
// sorted keys of Sensors for records decoded from the wire.
func (r Record) OrderedSensors() []string {
	if len(r.SensorOrder) == len(r.Sensors) {
		return r.SensorOrder
	}
	return sortedKeys(r.Sensors)
}
