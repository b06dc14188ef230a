package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/san-kum/aeropid/internal/config"
	"github.com/san-kum/aeropid/internal/datalog"
	"github.com/san-kum/aeropid/internal/engine"
	"github.com/san-kum/aeropid/internal/hub"
	"github.com/san-kum/aeropid/internal/server"
	"github.com/san-kum/aeropid/internal/system"
	"github.com/san-kum/aeropid/internal/tui"
)

const version = "0.3.0"

var (
	configFile string
	listenAddr string
	tickMs     int
	maxPoints  int
	seed       int64
	reference  float64
	kp         float64
	ki         float64
	kd         float64
	dataLog    bool
	watchURL   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aeropid",
		Short: "aeropendulum simulation and control server",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the simulation server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	serveCmd.Flags().StringVar(&listenAddr, "listen", config.DefaultListenAddr, "listen address")
	serveCmd.Flags().IntVar(&tickMs, "tick", config.DefaultTickMs, "simulation tick period (ms)")
	serveCmd.Flags().IntVar(&maxPoints, "points", config.DefaultMaxPoints, "history capacity")
	serveCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = time-based)")
	serveCmd.Flags().Float64Var(&reference, "target", config.DefaultReference, "initial target angle")
	serveCmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "pid kp")
	serveCmd.Flags().Float64Var(&ki, "ki", config.DefaultKi, "pid ki")
	serveCmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "pid kd")
	serveCmd.Flags().BoolVar(&dataLog, "datalog", false, "append periodic CSV snapshots")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "live terminal view of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(watchURL)
		},
	}
	watchCmd.Flags().StringVar(&watchURL, "url", "ws://localhost:8080/ws", "server websocket url")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aeropid %s\n", version)
		},
	}

	rootCmd.AddCommand(serveCmd, watchCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	core := system.New(system.Options{
		Reference: cfg.Reference,
		Kp:        cfg.PID.Kp,
		Ki:        cfg.PID.Ki,
		Kd:        cfg.PID.Kd,
		MaxPoints: cfg.MaxPoints,
		Seed:      cfg.Seed,
	})

	h := hub.New(core, cfg.HeartbeatPeriod())
	eng, err := engine.New(core, h, cfg.TickPeriod())
	if err != nil {
		return err
	}
	srv := server.New(cfg, core, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Printf("received shutdown signal")
		cancel()
	}()

	if cfg.DataLog.Enabled {
		dl := datalog.New(cfg.DataLog.Dir, cfg.DataLog.Interval, core)
		if err := dl.Start(); err != nil {
			return fmt.Errorf("datalog: %w", err)
		}
		defer dl.Stop()
	}

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("engine: %v", err)
		}
	}()

	log.Printf("aeropid %s, tick %v, history %d points", version, cfg.TickPeriod(), cfg.MaxPoints)
	return srv.Run(ctx)
}

func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// explicit flags override the file
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.ListenAddr = listenAddr
	}
	if flags.Changed("tick") {
		cfg.TickMs = tickMs
	}
	if flags.Changed("points") {
		cfg.MaxPoints = maxPoints
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("target") {
		cfg.Reference = reference
	}
	if flags.Changed("kp") {
		cfg.PID.Kp = kp
	}
	if flags.Changed("ki") {
		cfg.PID.Ki = ki
	}
	if flags.Changed("kd") {
		cfg.PID.Kd = kd
	}
	if flags.Changed("datalog") {
		cfg.DataLog.Enabled = dataLog
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
