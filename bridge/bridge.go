// Package bridge forwards records received over MQTT to Kafka.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	simulator "github.com/talaria-02/smart-factory-pipeline"
	"github.com/talaria-02/smart-factory-pipeline/kafkabus"
)

var ErrInvalidMessage = errors.New("invalid record message")

// Forwarder is implemented by *kafkabus.Producer.
type Forwarder interface {
	Forward(ctx context.Context, machineID string, status simulator.Status, payload []byte) error
}

// envelope holds the only record fields the bridge routes on. The payload itself is
// forwarded byte for byte.
type envelope struct {
	MachineID string           `json:"machine_id"`
	Status    simulator.Status `json:"status"`
}

type Stats struct {
	Forwarded int64
	Alerts    int64
	Rejected  int64
	Failed    int64
}

type Bridge struct {
	fwd    Forwarder
	logger *zap.Logger

	forwarded atomic.Int64
	alerts    atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
}

func New(fwd Forwarder, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{fwd: fwd, logger: logger}
}

// HandleMessage matches mqttbus.MessageHandler.
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	return b.Handle(context.Background(), topic, payload)
}

// Handle decodes the routing fields of payload and forwards it. Messages that are not
// records are rejected without touching Kafka.
func (b *Bridge) Handle(ctx context.Context, topic string, payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.rejected.Add(1)
		return fmt.Errorf("%w on %s: %v", ErrInvalidMessage, topic, err)
	}
	if env.MachineID == "" {
		b.rejected.Add(1)
		return fmt.Errorf("%w on %s: missing machine_id", ErrInvalidMessage, topic)
	}

	if err := b.fwd.Forward(ctx, env.MachineID, env.Status, payload); err != nil {
		b.failed.Add(1)
		return fmt.Errorf("forward %s: %w", env.MachineID, err)
	}

	b.forwarded.Add(1)
	alert := kafkabus.IsAlert(env.Status)
	if alert {
		b.alerts.Add(1)
	}
	b.logger.Info("forwarded",
		zap.String("machine_id", env.MachineID),
		zap.String("status", string(env.Status)),
		zap.Bool("alert", alert))
	return nil
}

func (b *Bridge) Stats() Stats {
	return Stats{
		Forwarded: b.forwarded.Load(),
		Alerts:    b.alerts.Load(),
		Rejected:  b.rejected.Load(),
		Failed:    b.failed.Load(),
	}
}
