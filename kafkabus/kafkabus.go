// Package kafkabus writes factory records to Kafka, splitting them into a raw topic and
// an alert topic.
package kafkabus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	simulator "github.com/talaria-02/smart-factory-pipeline"
)

// DefaultWriteTimeout bounds each send when no timeout is configured.
const DefaultWriteTimeout = 5 * time.Second

var errNilWriter = errors.New("kafka producer requires a writer")

// Config names the topics a Producer writes to.
type Config struct {
	Brokers      []string
	RawTopic     string
	AlertTopic   string
	WriteTimeout time.Duration
}

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter returns a synchronous writer with no fixed topic; every message names its
// own topic. Messages with the same key land on the same partition.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// IsAlert reports whether records with status also go to the alert topic.
func IsAlert(status simulator.Status) bool {
	return status == simulator.StatusWarning || status == simulator.StatusAnomaly
}

// Producer sends records to the raw topic and, when they are alerts, to the alert topic.
type Producer struct {
	w          MessageWriter
	rawTopic   string
	alertTopic string
	timeout    time.Duration
}

// Returns a Producer writing through w. A zero WriteTimeout uses DefaultWriteTimeout.
func NewProducer(w MessageWriter, cfg Config) (*Producer, error) {
	if w == nil {
		return nil, errNilWriter
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Producer{
		w:          w,
		rawTopic:   cfg.RawTopic,
		alertTopic: cfg.AlertTopic,
		timeout:    cfg.WriteTimeout,
	}, nil
}

func (p *Producer) Name() string { return "kafka" }

// Forward writes payload, keyed by machineID, to the raw topic and to the alert topic
// when status is an alert. The alert write is skipped if the raw write fails.
func (p *Producer) Forward(ctx context.Context, machineID string, status simulator.Status, payload []byte) error {
	if err := p.send(ctx, p.rawTopic, machineID, payload); err != nil {
		return err
	}
	if IsAlert(status) {
		return p.send(ctx, p.alertTopic, machineID, payload)
	}
	return nil
}

// Publish encodes rec and forwards it, so the producer can be used as a runner sink.
func (p *Producer) Publish(ctx context.Context, rec simulator.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return p.Forward(ctx, rec.MachineID, rec.Status, payload)
}

func (p *Producer) send(ctx context.Context, topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: value, Time: time.Now()}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	return nil
}
