// Command gdbstubd serves the GDB Remote Serial Protocol over TCP against
// an in-process reference target simulator. Flags mirror the teacher
// emulator's own: RAM/flash size, log level, and the GDB listen address,
// reworked onto spf13/cobra + spf13/viper per internal/config.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dmi391/gdbstub/internal/config"
	"github.com/dmi391/gdbstub/internal/dispatch"
	"github.com/dmi391/gdbstub/internal/metrics"
	"github.com/dmi391/gdbstub/internal/session"
	"github.com/dmi391/gdbstub/internal/target"
)

func main() {
	var (
		ramKB   int
		flashKB int
	)

	root := &cobra.Command{
		Use:   "gdbstubd [firmware]",
		Short: "GDB remote serial protocol server",
		Long: `gdbstubd listens for a GDB "target remote" connection and drives an
in-process simulator in response: register/memory access, breakpoints,
single-step, and continue. An optional firmware image argument is loaded
into simulated flash at address 0 before the listener starts.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, ramKB, flashKB)
		},
	}

	root.Flags().IntVar(&ramKB, "ram", 32, "RAM size in kB")
	root.Flags().IntVar(&flashKB, "flash", 256, "flash size in kB")
	config.BindFlags(root.Flags())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string, ramKB, flashKB int) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	log.SetLevel(level)
	entry := logrus.NewEntry(log)

	sim := target.NewSimulator(flashKB*1024, ramKB*1024, cfg.Loop)
	if len(args) == 1 {
		image, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading firmware image: %w", err)
		}
		if err := sim.LoadFirmware(image); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, entry)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	defer ln.Close()
	entry.WithField("addr", cfg.ListenAddr).Info("gdbstubd listening")

	sessCfg := session.Config{PacketSize: cfg.PacketSize}
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		// One connection is served at a time, matching the teacher's own
		// GDB server loop: a single simulator instance cannot meaningfully
		// answer two concurrent debug sessions.
		disp := dispatch.New(sim, cfg.PacketSize, m, entry)
		if err := session.Serve(conn, disp, sessCfg, m, entry); err != nil {
			entry.WithError(err).Warn("session ended with error")
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.WithField("addr", addr).Info("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics server stopped")
	}
}
