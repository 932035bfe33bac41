// Package mqttbus publishes factory records to an MQTT broker and subscribes to them.
package mqttbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	simulator "github.com/talaria-02/smart-factory-pipeline"
)

var ErrTimeout = errors.New("mqtt operation timed out")

// Topic returns the topic records of machineID are published on.
func Topic(prefix, machineID string) string {
	return prefix + "/" + machineID + "/sensors"
}

// Filter returns the subscription filter matching every topic under prefix.
func Filter(prefix string) string {
	return prefix + "/#"
}

// MachineFromTopic extracts the machine id from a record topic.
func MachineFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/sensors")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// MessageHandler handles one message. Returned errors are logged.
type MessageHandler func(topic string, payload []byte) error

type Options struct {
	Broker         string
	ClientID       string // empty: a random id with the "factory-" prefix
	QoS            byte
	ConnectTimeout time.Duration
}

// Client wraps a paho client. Subscriptions are remembered and re-established every
// time the connection comes back.
type Client struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	subs map[string]MessageHandler
}

// Connect dials the broker and blocks until connected or the timeout expires.
func Connect(opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ClientID == "" {
		opts.ClientID = "factory-" + uuid.NewString()[:8]
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	c := &Client{
		qos:     opts.QoS,
		timeout: opts.ConnectTimeout,
		logger:  logger,
		subs:    make(map[string]MessageHandler),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(opts.ConnectTimeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})
	c.client = mqtt.NewClient(clientOpts)

	token := c.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
	}
	logger.Info("mqtt connected", zap.String("broker", opts.Broker), zap.String("client_id", opts.ClientID))
	return c, nil
}

// onConnect runs on the first connection and on every reconnect.
func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for filter, handler := range c.subs {
		token := client.Subscribe(filter, c.qos, c.dispatch(handler))
		go func(filter string) {
			if token.WaitTimeout(c.timeout) && token.Error() != nil {
				c.logger.Error("mqtt resubscribe failed", zap.String("filter", filter), zap.Error(token.Error()))
			}
		}(filter)
	}
}

// Subscribe registers handler for filter and subscribes immediately when connected.
func (c *Client) Subscribe(filter string, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[filter] = handler
	c.mu.Unlock()

	if !c.client.IsConnected() {
		return nil
	}
	if err := wait(context.Background(), c.client.Subscribe(filter, c.qos, c.dispatch(handler)), c.timeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	c.logger.Info("mqtt subscribed", zap.String("filter", filter))
	return nil
}

func (c *Client) dispatch(handler MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("mqtt message handling failed", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	}
}

// Publisher returns a record sink publishing through this client.
func (c *Client) Publisher(prefix string) *Publisher {
	return NewPublisher(c.client, prefix, c.qos, c.timeout)
}

// Disconnect closes the connection, waiting briefly for in-flight work.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher publishes every record as JSON on the topic of its machine.
type Publisher struct {
	pub     publisher
	prefix  string
	qos     byte
	timeout time.Duration
}

func NewPublisher(pub publisher, prefix string, qos byte, timeout time.Duration) *Publisher {
	return &Publisher{pub: pub, prefix: prefix, qos: qos, timeout: timeout}
}

func (p *Publisher) Name() string { return "mqtt" }

// Publish sends rec and waits for the broker acknowledgement required by the QoS.
func (p *Publisher) Publish(ctx context.Context, rec simulator.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	topic := Topic(p.prefix, rec.MachineID)
	if err := wait(ctx, p.pub.Publish(topic, p.qos, false, payload), p.timeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// wait blocks until token completes, ctx is done or timeout expires.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
