// Bitaxe core: a Bitcoin ASIC mining appliance firmware core.
// Copyright (C) 2026  Axeforge contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Command bitaxed is the mining-core daemon: it owns a world.World,
// opens the ASIC's serial link, and runs every task goroutine until
// told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/axeforge/bitaxe-core/internal/asic/serial"
	"github.com/axeforge/bitaxe-core/internal/config"
	"github.com/axeforge/bitaxe-core/internal/diag"
	"github.com/axeforge/bitaxe-core/internal/logging"
	"github.com/axeforge/bitaxe-core/internal/power"
	"github.com/axeforge/bitaxe-core/internal/power/autotune"
	v1 "github.com/axeforge/bitaxe-core/internal/stratum/v1"
	v2 "github.com/axeforge/bitaxe-core/internal/stratum/v2"
	"github.com/axeforge/bitaxe-core/internal/world"
)

var (
	chip      = flag.String("chip", "bm1370", "ASIC chip family: bm1397, bm1366, bm1368, bm1370")
	model     = flag.String("model", "max", "device model for autotune presets: max, ultra, supra, gamma")
	stratum   = flag.String("stratum", "v1", "pool protocol: v1 or v2")
	asicCount = flag.Int("asic-count", 1, "number of ASICs on the chain")

	serialPath = flag.String("serial", "/dev/ttyUSB0", "serial device path (empty uses the first USB ASIC bridge found)")
	baud       = flag.Int("baud", 115200, "initial UART baud rate")

	poolURL   = flag.String("pool-url", "", "primary pool host:port or stratum+tcp:// URL")
	poolPort  = flag.Uint("pool-port", 3333, "primary pool port")
	poolUser  = flag.String("pool-user", "", "primary pool worker name")
	poolPass  = flag.String("pool-pass", "x", "primary pool password")
	poolTLS   = flag.Bool("pool-tls", false, "use TLS for the primary pool")
	fbURL     = flag.String("fallback-pool-url", "", "fallback pool host")
	fbPort    = flag.Uint("fallback-pool-port", 3333, "fallback pool port")
	fbUser    = flag.String("fallback-pool-user", "", "fallback pool worker name")
	fbPass    = flag.String("fallback-pool-pass", "x", "fallback pool password")
	sv2Authority = flag.String("sv2-authority-pubkey", "", "base58check SV2 pool authority public key")

	minFreq = flag.Uint("min-freq-mhz", 400, "minimum ASIC clock, MHz")
	maxFreq = flag.Uint("max-freq-mhz", 650, "maximum ASIC clock, MHz")
	minVolt = flag.Uint("min-voltage-mv", 1000, "minimum core voltage, mV")
	maxVolt = flag.Uint("max-voltage-mv", 1300, "maximum core voltage, mV")
	maxPowerW = flag.Float64("max-power-w", 25, "maximum board power draw, W")

	configPath = flag.String("config", "", "path to a persistent YAML config file (empty keeps config in memory only)")
	logPath    = flag.String("log", "", "path to a rotating log file (empty logs to stderr only)")
	socketPath = flag.String("diag-socket", "/tmp/bitaxed.sock", "diagnostic socket path for cmd/bitaxe-monitor")
)

func main() {
	flag.Parse()

	loggers, closeLog := buildLoggers(*logPath)
	defer closeLog()

	store, err := buildStore(*configPath)
	if err != nil {
		log.Fatalf("bitaxed: config store: %v", err)
	}

	port, err := openSerial(*serialPath, *baud)
	if err != nil {
		log.Fatalf("bitaxed: serial port: %v", err)
	}
	defer port.Close()

	board, err := buildBoard()
	if err != nil {
		log.Fatalf("bitaxed: board config: %v", err)
	}

	collab := buildCollaborators()

	w, err := world.New(board, port, store, loggers, collab)
	if err != nil {
		log.Fatalf("bitaxed: world.New: %v", err)
	}

	diagServer := diag.NewServer(*socketPath, w)
	go func() {
		if err := diagServer.Serve(time.Second); err != nil {
			loggers.Message(logging.CategorySystem, btclog.LevelWarn, "diagnostic socket stopped: %v", err)
		}
	}()
	defer diagServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		loggers.Message(logging.CategorySystem, btclog.LevelInfo, "shutting down")
		cancel()
	}()

	if err := w.Run(ctx); err != nil {
		loggers.Message(logging.CategorySystem, btclog.LevelError, "world exited: %v", err)
		os.Exit(1)
	}
}

func buildLoggers(path string) (*logging.Loggers, func()) {
	if path == "" {
		return logging.New(os.Stderr, btclog.LevelInfo), func() {}
	}

	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0700)
	}
	r, err := rotator.New(path, 10*1024, false, 3)
	if err != nil {
		log.Fatalf("bitaxed: log rotator: %v", err)
	}
	return logging.New(r, btclog.LevelInfo), func() { r.Close() }
}

func buildStore(path string) (config.Store, error) {
	if path == "" {
		return config.NewMemStore(), nil
	}
	return config.LoadFileStore(path)
}

func openSerial(path string, baudRate int) (serial.Port, error) {
	if path == "" {
		return serial.OpenUSBPort()
	}
	return serial.OpenUARTPort(path, baudRate)
}

func buildBoard() (world.BoardConfig, error) {
	var chipFamily world.ChipFamily
	switch *chip {
	case "bm1397":
		chipFamily = world.ChipBM1397
	case "bm1366":
		chipFamily = world.ChipBM1366
	case "bm1368":
		chipFamily = world.ChipBM1368
	case "bm1370":
		chipFamily = world.ChipBM1370
	default:
		return world.BoardConfig{}, fmt.Errorf("unknown chip family %q", *chip)
	}

	var deviceModel autotune.DeviceModel
	switch *model {
	case "max":
		deviceModel = autotune.DeviceMax
	case "ultra":
		deviceModel = autotune.DeviceUltra
	case "supra":
		deviceModel = autotune.DeviceSupra
	case "gamma":
		deviceModel = autotune.DeviceGamma
	default:
		return world.BoardConfig{}, fmt.Errorf("unknown device model %q", *model)
	}

	var stratumVersion world.StratumVersion
	switch *stratum {
	case "v1":
		stratumVersion = world.StratumV1
	case "v2":
		stratumVersion = world.StratumV2
	default:
		return world.BoardConfig{}, fmt.Errorf("unknown stratum version %q", *stratum)
	}

	return world.BoardConfig{
		Chip:         chipFamily,
		DeviceModel:  deviceModel,
		AsicCount:    *asicCount,
		Stratum:      stratumVersion,
		MinFreqMHz:   uint16(*minFreq),
		MaxFreqMHz:   uint16(*maxFreq),
		MinVoltageMV: uint16(*minVolt),
		MaxVoltageMV: uint16(*maxVolt),
		MaxPowerW:    *maxPowerW,
	}, nil
}

func buildCollaborators() world.Collaborators {
	return world.Collaborators{
		Rail:     power.NullSensors{},
		Thermal:  power.NullSensors{},
		Fan:      power.NullSensors{},
		PMIC:     power.NullSensors{},
		AsicRail: power.NullSensors{},
		Reboot:   func() { os.Exit(1) },

		PrimaryPool: v1.PoolConfig{
			URL: *poolURL, Port: uint16(*poolPort), User: *poolUser, Pass: *poolPass, TLS: *poolTLS,
		},
		FallbackPool: v1.PoolConfig{
			URL: *fbURL, Port: uint16(*fbPort), User: *fbUser, Pass: *fbPass,
		},
		PrimaryV2: v2.PoolConfig{
			URL: *poolURL, Port: uint16(*poolPort), User: *poolUser, AuthorityPubkey: *sv2Authority,
		},
	}
}
