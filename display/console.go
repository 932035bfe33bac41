// Package display renders factory records for people: console lines, subscriber lines
// and a terminal monitor for one machine.
package display

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	simulator "github.com/talaria-02/smart-factory-pipeline"
)

const summarySensors = 3

// StatusEmoji returns the marker shown in front of a machine on the console.
func StatusEmoji(status simulator.Status) string {
	switch status {
	case simulator.StatusRunning:
		return "🟢"
	case simulator.StatusWarning:
		return "🟡"
	case simulator.StatusAnomaly:
		return "🔴"
	default:
		return "⚪"
	}
}

// Summary formats rec as one console line with the first three sensors.
func Summary(rec simulator.Record) string {
	names := rec.OrderedSensors()
	if len(names) > summarySensors {
		names = names[:summarySensors]
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+FormatValue(rec.Sensors[name]))
	}
	return fmt.Sprintf("[%s] %s %s: %s ...",
		rec.Timestamp.Format("2006-01-02T15:04:05"), StatusEmoji(rec.Status), rec.MachineID, strings.Join(parts, ", "))
}

// FormatValue prints a reading with as few digits as needed.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SubscriberLine formats a record received on topic the way the subscriber prints it.
func SubscriberLine(topic string, rec simulator.Record) string {
	return fmt.Sprintf("[%s] %s - %s", topic, rec.MachineID, rec.Status)
}

// Console is a runner sink writing one summary line per record. The first record of
// every machine is followed by the full JSON document as a sample.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	seen map[string]bool
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w, seen: make(map[string]bool)}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Publish(_ context.Context, rec simulator.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintln(c.w, Summary(rec)); err != nil {
		return err
	}
	if c.seen[rec.MachineID] {
		return nil
	}
	c.seen[rec.MachineID] = true

	sample, err := json.MarshalIndent(rec, "  ", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.w, "\n  📋 Sample record (full JSON):\n  %s\n\n", sample)
	return err
}
