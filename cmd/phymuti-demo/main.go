// Command phymuti-demo drives a single temperature_sensor device
// through the full device/memory/monitor/rule loop: it creates one
// instance, attaches a write watchpoint and a high-temperature rule to
// its current-temperature register, then steps the temperature upward
// once per tick for -ticks ticks, stopping early only on SIGINT/SIGTERM
// or a failed register write. Crossing the alarm threshold does not end
// the run.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	phymuti "github.com/phymuti/phymuti-go"
	"github.com/phymuti/phymuti-go/examples/tempsensor"
	"github.com/phymuti/phymuti-go/internal/logging"
)

func main() {
	var (
		ticks   = flag.Int("ticks", 10, "number of temperature steps to simulate")
		step    = flag.Float64("step", 2.0, "degrees to add per tick")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	sys := phymuti.NewSystem()

	if err := sys.Devices.RegisterClass("temperature_sensor", tempsensor.Ops(), nil); err != nil {
		logger.Error("failed to register device class", "error", err)
		os.Exit(1)
	}

	deviceID, err := sys.Devices.CreateInstance("temperature_sensor", "room_temp", nil)
	if err != nil {
		logger.Error("failed to create device instance", "error", err)
		os.Exit(1)
	}
	defer sys.Devices.DestroyInstance(deviceID)

	regionID, err := sys.Memory.Find(deviceID, "reg")
	if err != nil {
		logger.Error("failed to find sensor register region", "error", err)
		os.Exit(1)
	}

	actionID, err := sys.Actions.CreateCallback(alarmCallback, nil)
	if err != nil {
		logger.Error("failed to create alarm action", "error", err)
		os.Exit(1)
	}

	wpID, err := sys.Monitor.Add(regionID, tempsensor.RegCurrent, 4, phymuti.WatchWrite, 0)
	if err != nil {
		logger.Error("failed to add watchpoint", "error", err)
		os.Exit(1)
	}
	if err := sys.Monitor.BindAction(wpID, actionID); err != nil {
		logger.Error("failed to bind watchpoint action", "error", err)
		os.Exit(1)
	}

	ruleID, err := sys.Rules.Create("high_temp_rule")
	if err != nil {
		logger.Error("failed to create rule", "error", err)
		os.Exit(1)
	}
	if err := sys.Rules.SetCondition(ruleID, tempsensor.HighTempCondition, nil); err != nil {
		logger.Error("failed to set rule condition", "error", err)
		os.Exit(1)
	}
	if err := sys.Rules.AddAction(ruleID, actionID); err != nil {
		logger.Error("failed to add rule action", "error", err)
		os.Exit(1)
	}
	if err := sys.Rules.Enable(ruleID); err != nil {
		logger.Error("failed to enable rule", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("PhyMuTi temperature sensor demo")
	logger.Info("simulation starting", "ticks", *ticks, "step", *step)

	temp := float32(25.0)
	for i := 0; i < *ticks; i++ {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			return
		default:
		}

		temp += float32(*step)
		fmt.Printf("setting temperature to %.1f°C\n", temp)

		if err := sys.Memory.WriteU32(regionID, tempsensor.RegCurrent, math.Float32bits(temp)); err != nil {
			logger.Error("failed to write temperature", "error", err)
			break
		}
		if err := sys.Rules.Evaluate(ruleID, phymuti.AccessContext{
			Region:  regionID,
			Address: tempsensor.RegCurrent,
			Size:    4,
			Value:   uint64(math.Float32bits(temp)),
			Kind:    phymuti.AccessWrite,
		}); err != nil {
			logger.Error("rule evaluation failed", "error", err)
		}

		time.Sleep(200 * time.Millisecond)
	}

	snap := sys.Metrics.Snapshot()
	fmt.Printf("\nwrites=%d watchpoint_fires=%d rule_fires=%d\n",
		snap.WriteAccesses, snap.WatchpointFires, snap.RuleFires)
}

func alarmCallback(ctx phymuti.AccessContext, userData any) error {
	fmt.Printf("temperature alarm: %.1f°C\n", tempsensor.CurrentTempFromContext(ctx))
	return nil
}
