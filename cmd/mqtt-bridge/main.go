// Command mqtt-bridge subscribes to factory records on MQTT and forwards them to Kafka.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/talaria-02/smart-factory-pipeline/bridge"
	"github.com/talaria-02/smart-factory-pipeline/config"
	"github.com/talaria-02/smart-factory-pipeline/kafkabus"
	"github.com/talaria-02/smart-factory-pipeline/logging"
	"github.com/talaria-02/smart-factory-pipeline/mqttbus"
)

func main() {
	configPath := flag.String("config", "", "factory config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "mqtt-bridge:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.FromEnv(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "mqtt-bridge")
	if err != nil {
		return err
	}
	defer logger.Sync()

	writer := kafkabus.NewWriter(cfg.Kafka.Brokers)
	defer writer.Close()
	producer, err := kafkabus.NewProducer(writer, kafkabus.Config{
		RawTopic:     cfg.Kafka.RawTopic,
		AlertTopic:   cfg.Kafka.AlertTopic,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	})
	if err != nil {
		return err
	}
	b := bridge.New(producer, logger)

	clientID := cfg.MQTT.ClientID
	if clientID != "" {
		clientID += "-bridge"
	}
	client, err := mqttbus.Connect(mqttbus.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       clientID,
		QoS:            cfg.MQTT.QoS,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	filter := mqttbus.Filter(cfg.MQTT.TopicPrefix)
	if err := client.Subscribe(filter, b.HandleMessage); err != nil {
		return err
	}
	logger.Info("bridge running",
		zap.String("filter", filter),
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.String("raw_topic", cfg.Kafka.RawTopic),
		zap.String("alert_topic", cfg.Kafka.AlertTopic))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	stats := b.Stats()
	logger.Info("bridge stopped",
		zap.Int64("forwarded", stats.Forwarded),
		zap.Int64("alerts", stats.Alerts),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("failed", stats.Failed))
	return nil
}
