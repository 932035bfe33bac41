// Command sensor-monitor simulates one machine locally and draws its sensors in the
// terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	simulator "github.com/talaria-02/smart-factory-pipeline"
	"github.com/talaria-02/smart-factory-pipeline/config"
	"github.com/talaria-02/smart-factory-pipeline/display"
	"github.com/talaria-02/smart-factory-pipeline/logging"
	"github.com/talaria-02/smart-factory-pipeline/runner"
)

const clearScreen = "\033[H\033[2J"

func main() {
	configPath := flag.String("config", "", "factory config file")
	machineID := flag.String("machine", "CNC-001", "machine to monitor")
	sensors := flag.String("sensors", "spindle_temp,vibration_x,spindle_rpm,power_consumption", "comma separated sensors, at most four")
	history := flag.Int("history", display.DefaultHistorySize, "samples kept per sensor")
	flag.Parse()

	if err := run(*configPath, *machineID, *sensors, *history); err != nil {
		fmt.Fprintln(os.Stderr, "sensor-monitor:", err)
		os.Exit(1)
	}
}

func run(configPath, machineID, sensorList string, historySize int) error {
	cfg, err := config.FromEnv(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "sensor-monitor")
	if err != nil {
		return err
	}
	defer logger.Sync()

	var spec *simulator.MachineSpec
	for i := range cfg.Machines {
		if cfg.Machines[i].ID == machineID {
			spec = &cfg.Machines[i]
		}
	}
	if spec == nil {
		return fmt.Errorf("machine %q is not configured", machineID)
	}
	cfg.Machines = []simulator.MachineSpec{*spec}

	var names []string
	for _, name := range strings.Split(sensorList, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	h, err := display.NewHistory(*spec, names, historySize)
	if err != nil {
		return err
	}

	factory, err := cfg.Factory(simulator.WithInjectHook(runner.EpisodeLogger(logger)))
	if err != nil {
		return err
	}

	draw := runner.SinkFunc(func(_ context.Context, _ simulator.Record) error {
		fmt.Print(clearScreen)
		return h.Render(os.Stdout)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("[LIVE] %s monitoring started (Ctrl+C to stop)\n", machineID)
	runner.New(factory, cfg.Simulation.Interval, logger, h, draw).Run(ctx)
	return nil
}
