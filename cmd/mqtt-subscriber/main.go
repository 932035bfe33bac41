// Command mqtt-subscriber prints the machine and status of every record on the broker.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	simulator "github.com/talaria-02/smart-factory-pipeline"
	"github.com/talaria-02/smart-factory-pipeline/config"
	"github.com/talaria-02/smart-factory-pipeline/display"
	"github.com/talaria-02/smart-factory-pipeline/logging"
	"github.com/talaria-02/smart-factory-pipeline/mqttbus"
)

func main() {
	configPath := flag.String("config", "", "factory config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "mqtt-subscriber:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.FromEnv(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "mqtt-subscriber")
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := mqttbus.Connect(mqttbus.Options{
		Broker:         cfg.MQTT.Broker,
		QoS:            cfg.MQTT.QoS,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	filter := mqttbus.Filter(cfg.MQTT.TopicPrefix)
	err = client.Subscribe(filter, func(topic string, payload []byte) error {
		var rec simulator.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return err
		}
		fmt.Println(display.SubscriberLine(topic, rec))
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("Subscribed to %s (Ctrl+C to stop)\n", filter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
