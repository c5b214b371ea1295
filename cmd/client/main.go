package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FlowrPro/Essence.io-frontend/internal/config"
	"github.com/FlowrPro/Essence.io-frontend/internal/diagnostics"
	"github.com/FlowrPro/Essence.io-frontend/internal/input"
	"github.com/FlowrPro/Essence.io-frontend/internal/logging"
	"github.com/FlowrPro/Essence.io-frontend/internal/network"
	"github.com/FlowrPro/Essence.io-frontend/internal/replay"
	"github.com/FlowrPro/Essence.io-frontend/internal/session"
	"github.com/FlowrPro/Essence.io-frontend/internal/world"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config (defaults to $ESSENCE_CONFIG)")
		serverURL  = flag.String("url", "", "Server URL, overrides config (ws://, wss:// or kcp://)")
		playerName = flag.String("name", "bot", "Player name sent with join")
		fps        = flag.Int("fps", session.DefaultFPS, "Simulation frames per second")
		dumpPath   = flag.String("dump", "", "Print a replay journal and exit")
	)
	flag.Parse()

	if *dumpPath != "" {
		if err := dumpJournal(*dumpPath, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "dump failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, *serverURL, *playerName, *fps); err != nil {
		fmt.Fprintf(os.Stderr, "essence client: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, serverURL, playerName string, fps int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.Network.ServerURL = serverURL
	}

	logging.LogDir = cfg.Logging.Dir
	if err := logging.InitDefaultLogger("client"); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.CloseDefaultLogger()

	defer logging.GetLoggerManager().CloseAll()

	netLogger := logging.GetNetworkLogger()
	gameLogger := logging.GetGameLogger()
	diagLogger := logging.GetDiagnosticsLogger()

	level := logging.ParseLevel(cfg.Logging.Level)
	logging.SetDefaultLevel(level, logging.DEBUG)
	logging.GetLoggerManager().SetAllLevels(level, logging.DEBUG)

	if !cfg.InterpolationActive() {
		logging.Warn("Interpolation buffer capacity %d < 2: remote players will snap", cfg.Interpolation.BufferCapacity)
	}

	var dialOpts []network.DialOption
	if cfg.Replay.Path != "" {
		journal, err := replay.Open(cfg.Replay.Path)
		if err != nil {
			return err
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logging.Error("Failed to close replay journal: %v", err)
			}
			logging.Info("Replay journal %s: %d frames", cfg.Replay.Path, journal.Records())
		}()
		dialOpts = append(dialOpts, network.WithRecorder(journal))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Network.ConnectTimeout())
	conn, err := network.Dial(dialCtx, &cfg.Network, netLogger, dialOpts...)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctrl := world.NewController(world.SettingsFromConfig(cfg), gameLogger)
	sess := session.New(conn, ctrl, input.NewWander(time.Now().UnixNano(), 0.02), gameLogger)

	if cfg.Diagnostics.ListenAddr != "" {
		diag := diagnostics.NewServer(diagnostics.Config{ListenAddr: cfg.Diagnostics.ListenAddr},
			diagnostics.StatsFunc(func() any { return sess.Report() }),
			diagLogger)
		if err := diag.Start(); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := diag.Shutdown(ctx); err != nil {
				logging.Warn("Diagnostics shutdown: %v", err)
			}
		}()
	}

	logging.Info("Connected to %s as %q (session %s)", cfg.Network.ServerURL, playerName, conn.ID())
	sess.Join(playerName)

	err = sess.Run(ctx, fps)
	logging.Info("Session finished after %d frames", sess.Frames())
	return err
}

func dumpJournal(path string, out io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, err := replay.NewReader(file)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		at := time.UnixMilli(rec.At).Format("15:04:05.000")
		if len(rec.Frame) > 0 {
			fmt.Fprintf(out, "%s %-3s %s\n", at, rec.Dir, rec.Frame)
		} else {
			fmt.Fprintf(out, "%s %-3s raw %x\n", at, rec.Dir, rec.Raw)
		}
	}
}
