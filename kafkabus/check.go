package kafkabus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	CheckMachineID   = "TEST-MK-001"
	CheckStatus      = "CHECK"
	checkGroupPrefix = "checker-group-"
)

// ErrNoMessages is returned when the poll window ends before any message arrives.
var ErrNoMessages = errors.New("no messages received")

type checkMessage struct {
	MachineID string  `json:"machine_id"`
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"` // unix seconds
}

// CheckMessage returns the test payload written by Check.
func CheckMessage(now time.Time) []byte {
	payload, _ := json.Marshal(checkMessage{
		MachineID: CheckMachineID,
		Status:    CheckStatus,
		Timestamp: float64(now.UnixMilli()) / 1000,
	})
	return payload
}

// CheckResult is what a successful smoke check observed.
type CheckResult struct {
	Topic     string
	Partition int
	Offset    int64 // offset the check message was written at
	Received  int   // messages read back in the poll window
	Sample    []byte
}

// Check writes a check message to topic on the leader of partition 0 and then reads the
// topic from the earliest offset with a fresh consumer group for up to poll.
func Check(ctx context.Context, brokers []string, topic string, poll time.Duration, logger *zap.Logger) (CheckResult, error) {
	if len(brokers) == 0 {
		return CheckResult{}, errors.New("no kafka brokers configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	result := CheckResult{Topic: topic}

	offset, err := produceCheck(ctx, brokers[0], topic)
	if err != nil {
		return result, fmt.Errorf("produce check message: %w", err)
	}
	result.Offset = offset
	logger.Info("check message written", zap.String("topic", topic), zap.Int64("offset", offset))

	group := checkGroupPrefix + uuid.NewString()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
	defer reader.Close()

	pollCtx, cancel := context.WithTimeout(ctx, poll)
	defer cancel()
	for {
		msg, err := reader.ReadMessage(pollCtx)
		if err != nil {
			break
		}
		if result.Received == 0 {
			result.Sample = msg.Value
			result.Partition = msg.Partition
		}
		result.Received++
		logger.Debug("message received", zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
	}

	if result.Received == 0 {
		return result, fmt.Errorf("consume %s within %v: %w", topic, poll, ErrNoMessages)
	}
	return result, nil
}

func produceCheck(ctx context.Context, broker, topic string) (int64, error) {
	conn, err := kafka.DialLeader(ctx, "tcp", broker, topic, 0)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(DefaultWriteTimeout)); err != nil {
		return 0, err
	}
	offset, err := conn.ReadLastOffset()
	if err != nil {
		return 0, err
	}
	if _, err := conn.WriteMessages(kafka.Message{Value: CheckMessage(time.Now())}); err != nil {
		return 0, err
	}
	return offset, nil
}
