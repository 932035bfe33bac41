package mqttbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	simulator "github.com/talaria-02/smart-factory-pipeline"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	sent  []published
	token func() mqtt.Token
}

func (f *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.sent = append(f.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return f.token()
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func testRecord() simulator.Record {
	return simulator.Record{
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		MachineID:   "CNC-001",
		MachineType: "CNC_LATHE",
		Location:    "A동 1라인",
		Sensors:     map[string]float64{"spindle_temp": 45.12},
		Status:      simulator.StatusRunning,
	}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "factory/CNC-001/sensors", Topic("factory", "CNC-001"))
	assert.Equal(t, "factory/#", Filter("factory"))

	testcases := []struct {
		topic string
		id    string
		ok    bool
	}{
		{"factory/CNC-001/sensors", "CNC-001", true},
		{"factory/CNC-001/status", "", false},
		{"other/CNC-001/sensors", "", false},
		{"factory//sensors", "", false},
		{"factory/a/b/sensors", "", false},
	}
	for _, tc := range testcases {
		id, ok := MachineFromTopic("factory", tc.topic)
		assert.Equal(t, tc.ok, ok, tc.topic)
		assert.Equal(t, tc.id, id, tc.topic)
	}
}

func TestPublisherPublish(t *testing.T) {
	fake := &fakePublisher{token: func() mqtt.Token { return completedToken(nil) }}
	p := NewPublisher(fake, "factory", 1, time.Second)

	require.NoError(t, p.Publish(context.Background(), testRecord()))
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "factory/CNC-001/sensors", fake.sent[0].topic)
	assert.Equal(t, byte(1), fake.sent[0].qos)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(fake.sent[0].payload, &decoded))
	assert.Equal(t, "CNC-001", decoded["machine_id"])
	assert.Equal(t, "A동 1라인", decoded["location"])
	assert.Contains(t, string(fake.sent[0].payload), "A동 1라인")
}

func TestPublisherErrors(t *testing.T) {
	brokerErr := errors.New("not connected")

	testcases := []struct {
		name  string
		token func() mqtt.Token
		ctx   func() context.Context
		err   error
	}{
		{
			name:  "broker error",
			token: func() mqtt.Token { return completedToken(brokerErr) },
			ctx:   context.Background,
			err:   brokerErr,
		},
		{
			name:  "timeout",
			token: func() mqtt.Token { return pendingToken() },
			ctx:   context.Background,
			err:   ErrTimeout,
		},
		{
			name:  "cancelled",
			token: func() mqtt.Token { return pendingToken() },
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			err: context.Canceled,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPublisher(&fakePublisher{token: tc.token}, "factory", 0, 20*time.Millisecond)
			err := p.Publish(tc.ctx(), testRecord())
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestDispatchLogsHandlerErrors(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := &Client{logger: zap.New(core), subs: map[string]MessageHandler{}}

	var got []string
	handler := c.dispatch(func(topic string, payload []byte) error {
		got = append(got, topic)
		if string(payload) == "bad" {
			return errors.New("invalid payload")
		}
		return nil
	})

	handler(nil, fakeMessage{topic: "factory/A/sensors", payload: []byte("{}")})
	handler(nil, fakeMessage{topic: "factory/B/sensors", payload: []byte("bad")})

	assert.Equal(t, []string{"factory/A/sensors", "factory/B/sensors"}, got)
	assert.Equal(t, 1, logs.FilterMessage("mqtt message handling failed").Len())
}
