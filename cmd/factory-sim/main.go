// Command factory-sim runs the simulated factory and publishes its records.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	simulator "github.com/talaria-02/smart-factory-pipeline"
	"github.com/talaria-02/smart-factory-pipeline/config"
	"github.com/talaria-02/smart-factory-pipeline/display"
	"github.com/talaria-02/smart-factory-pipeline/httpapi"
	"github.com/talaria-02/smart-factory-pipeline/kafkabus"
	"github.com/talaria-02/smart-factory-pipeline/logging"
	"github.com/talaria-02/smart-factory-pipeline/metrics"
	"github.com/talaria-02/smart-factory-pipeline/mqttbus"
	"github.com/talaria-02/smart-factory-pipeline/runner"
	"github.com/talaria-02/smart-factory-pipeline/streams"
)

func main() {
	configPath := flag.String("config", "", "factory config file (default: FACTORY_CONFIG or the built-in layout)")
	cycles := flag.Int("cycles", 0, "stop after this many cycles, 0 runs until interrupted")
	useMQTT := flag.Bool("mqtt", true, "publish records to the MQTT broker")
	useKafka := flag.Bool("kafka", false, "also write records straight to Kafka")
	quiet := flag.Bool("quiet", false, "do not print records to stdout")
	flag.Parse()

	if err := run(*configPath, *cycles, *useMQTT, *useKafka, *quiet); err != nil {
		fmt.Fprintln(os.Stderr, "factory-sim:", err)
		os.Exit(1)
	}
}

func run(configPath string, cycles int, useMQTT, useKafka, quiet bool) error {
	cfg, err := config.FromEnv(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "factory-sim")
	if err != nil {
		return err
	}
	defer logger.Sync()

	recorder := metrics.NewRecorder()
	factory, err := cfg.Factory(simulator.WithInjectHook(
		runner.ChainHooks(runner.EpisodeLogger(logger), recorder.ObserveEpisode),
	))
	if err != nil {
		return err
	}

	printBanner(cfg, factory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := []runner.Sink{recorder}
	if !quiet {
		sinks = append(sinks, display.NewConsole(os.Stdout))
	}

	if useMQTT {
		client, err := mqttbus.Connect(mqttbus.Options{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			QoS:            cfg.MQTT.QoS,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		}, logger)
		if err != nil {
			return err
		}
		defer client.Disconnect()
		sinks = append(sinks, client.Publisher(cfg.MQTT.TopicPrefix))
	}

	if useKafka {
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
		sinks = append(sinks, producer)
	}

	if cfg.Redis.Enabled {
		client, err := streams.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		sinks = append(sinks, streams.NewPublisher(client, cfg.Redis.Stream, cfg.Redis.MaxLen))
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		store := httpapi.NewStore()
		sinks = append(sinks, store)
		router := httpapi.NewRouter(httpapi.Dependencies{Store: store, Metrics: recorder, Logger: logger})
		g.Go(func() error {
			return httpapi.Serve(ctx, cfg.HTTP.Addr, router, logger)
		})
	}

	r := runner.New(factory, cfg.Simulation.Interval, logger, sinks...)
	r.SetMaxCycles(cycles)

	var completed int
	g.Go(func() error {
		completed = r.Run(ctx)
		stop()
		return nil
	})

	err = g.Wait()
	fmt.Printf("\n⏹ Simulator stopped after %d cycles\n", completed)
	logger.Info("simulator stopped", zap.Int("cycles", completed), zap.Int64("sink_failures", r.Failures()))
	return err
}

func printBanner(cfg *config.Config, factory *simulator.Factory) {
	line := strings.Repeat("=", 60)
	fmt.Println(line)
	fmt.Println("🏭 Smart Factory Sensor Simulator")
	fmt.Printf("   Machines: %d\n", len(factory.Machines()))
	fmt.Printf("   Interval: %v\n", cfg.Simulation.Interval)
	fmt.Println(line)
	fmt.Println()
	for _, m := range factory.Machines() {
		fmt.Printf("  ✅ %s (%s) ready\n", m.ID(), m.Spec().Type)
	}
	fmt.Println()
	fmt.Println("▶ Generating data... (Ctrl+C to stop)")
	fmt.Println(strings.Repeat("-", 60))
}
