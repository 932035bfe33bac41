// Package config loads the factory layout and the transport settings from YAML, with
// environment overrides applied on top.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"

	simulator "github.com/talaria-02/smart-factory-pipeline"
	"github.com/talaria-02/smart-factory-pipeline/anomaly"
)

//go:embed factory.yaml
var defaultYAML []byte

// ErrInvalidConfig is wrapped by every validation and override error.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the factory layout and the settings of every transport.
type Config struct {
	Simulation SimulationConfig        `mapstructure:"simulation"`
	Anomaly    anomaly.Params          `mapstructure:"anomaly"`
	Machines   []simulator.MachineSpec `mapstructure:"machines"`
	MQTT       MQTTConfig              `mapstructure:"mqtt"`
	Kafka      KafkaConfig             `mapstructure:"kafka"`
	Redis      RedisConfig             `mapstructure:"redis"`
	HTTP       HTTPConfig              `mapstructure:"http"`
	Log        LogConfig               `mapstructure:"log"`
}

// SimulationConfig sets the clock and the randomness of a run.
type SimulationConfig struct {
	Interval    time.Duration `mapstructure:"interval"`    // time between ticks
	Seed        *uint64       `mapstructure:"seed"`        // nil: seeded from the clock
	Concurrency int           `mapstructure:"concurrency"` // machines ticked at once, 0 for all
}

// MQTTConfig locates the broker records are published to.
type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"` // empty: generated per process
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	QoS            byte          `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// KafkaConfig holds the brokers and topics used by the bridge and the smoke check.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	RawTopic     string        `mapstructure:"raw_topic"`
	AlertTopic   string        `mapstructure:"alert_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig enables the optional stream fan-out.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// HTTPConfig enables the snapshot API and metrics endpoint.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Default returns the settings used for every key a file leaves out. It has no
// machines; those come from the embedded layout or a user file.
func Default() Config {
	return Config{
		Simulation: SimulationConfig{Interval: time.Second},
		Anomaly:    anomaly.DefaultParams(),
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			TopicPrefix:    "factory",
			ConnectTimeout: 10 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"127.0.0.1:9094"},
			RawTopic:     "sensor-raw",
			AlertTopic:   "sensor-alert",
			WriteTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{Addr: "localhost:6379", Stream: "factory:records", MaxLen: 10000},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Log:   LogConfig{Level: "info", Format: "console"},
	}
}

// FromEnv loads a .env file when present, then the config file named by path or by
// FACTORY_CONFIG, applies environment overrides and validates the result.
func FromEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv("FACTORY_CONFIG")
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the file at path, or the embedded default layout when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(defaultYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML data on top of Default. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var raw map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	tree, _ := normalize(raw).(map[string]interface{})

	cfg := Default()
	if err := decode(tree, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.decodeOverrides(tree); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeOverrides re-decodes every per-machine anomaly block on top of the factory wide
// parameters, so an override only needs the keys it changes.
func (c *Config) decodeOverrides(tree map[string]interface{}) error {
	entries, _ := tree["machines"].([]interface{})
	for i, entry := range entries {
		m, _ := entry.(map[string]interface{})
		override, ok := m["anomaly"]
		if !ok || i >= len(c.Machines) {
			continue
		}
		params, err := anomaly.DecodeParams(override, c.Anomaly)
		if err != nil {
			return fmt.Errorf("machine %q anomaly: %w", c.Machines[i].ID, err)
		}
		c.Machines[i].Anomaly = &params
	}
	return nil
}

func decode(input interface{}, result interface{}) error {
	decoderConfig := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			anomaly.GetDecodeHook(),
		),
		ErrorUnused: true,
		ZeroFields:  true, // lists in a file replace the defaults instead of merging into them
		Result:      result,
	}
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// secondsToDurationHookFunc reads bare numbers as seconds, so interval: 0.5 works.
func secondsToDurationHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != durationType {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		}
		return data, nil
	}
}

// normalize converts the map[interface{}]interface{} values produced by yaml.v2 into
// map[string]interface{} all the way down.
func normalize(v interface{}) interface{} {
	switch v := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case []interface{}:
		for i, val := range v {
			v[i] = normalize(val)
		}
		return v
	default:
		return v
	}
}

// ApplyEnv overrides settings from the environment. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("MQTT_BROKER"); ok && v != "" {
		c.MQTT.Broker = v
	}
	if v, ok := lookup("MQTT_CLIENT_ID"); ok && v != "" {
		c.MQTT.ClientID = v
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitAndTrim(v, ",")
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v, ok := lookup("HTTP_ADDR"); ok && v != "" {
		c.HTTP.Addr = v
		c.HTTP.Enabled = true
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup("SIMULATION_INTERVAL"); ok && v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return fmt.Errorf("%w: SIMULATION_INTERVAL: %v", ErrInvalidConfig, err)
		}
		c.Simulation.Interval = d
	}
	if v, ok := lookup("SIMULATION_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: SIMULATION_SEED: %v", ErrInvalidConfig, err)
		}
		c.Simulation.Seed = &seed
	}
	return nil
}

// parseInterval accepts a Go duration ("500ms") or a number of seconds ("0.5").
func parseInterval(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the settings that are not owned by the simulation engine. Machine and
// sensor specs are validated when Factory builds them.
func (c *Config) Validate() error {
	if c.Simulation.Interval <= 0 {
		return fmt.Errorf("%w: simulation interval must be positive, got %v", ErrInvalidConfig, c.Simulation.Interval)
	}
	if len(c.Machines) == 0 {
		return fmt.Errorf("%w: no machines configured", ErrInvalidConfig)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt qos must be 0, 1 or 2, got %d", ErrInvalidConfig, c.MQTT.QoS)
	}
	if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "#+") {
		return fmt.Errorf("%w: invalid mqtt topic prefix %q", ErrInvalidConfig, c.MQTT.TopicPrefix)
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: kafka brokers are required", ErrInvalidConfig)
	}
	if c.Kafka.RawTopic == "" || c.Kafka.AlertTopic == "" {
		return fmt.Errorf("%w: kafka raw and alert topics are required", ErrInvalidConfig)
	}
	if c.Redis.Enabled && c.Redis.Stream == "" {
		return fmt.Errorf("%w: redis stream name is required", ErrInvalidConfig)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log format must be json or console, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// Factory builds the simulated factory. Each machine gets its own injector and, when a
// seed is configured, a random stream derived from the seed and its id.
func (c *Config) Factory(opts ...simulator.Option) (*simulator.Factory, error) {
	machines := make([]*simulator.Machine, 0, len(c.Machines))
	for _, spec := range c.Machines {
		params := c.Anomaly
		if spec.Anomaly != nil {
			params = *spec.Anomaly
		}
		injector, err := anomaly.NewInjector(params)
		if err != nil {
			return nil, fmt.Errorf("machine %q: %w", spec.ID, err)
		}

		machineOpts := make([]simulator.Option, 0, len(opts)+1)
		if c.Simulation.Seed != nil {
			machineOpts = append(machineOpts, simulator.WithSeed(*c.Simulation.Seed))
		}
		machineOpts = append(machineOpts, opts...)

		m, err := simulator.NewMachine(spec, injector, machineOpts...)
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}

	factory, err := simulator.NewFactory(machines...)
	if err != nil {
		return nil, err
	}
	factory.SetConcurrency(c.Simulation.Concurrency)
	return factory, nil
}
