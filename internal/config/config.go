// Package config resolves the process-wide configuration value spec.md §9
// requires in place of module-level constants: listen address, negotiated
// packet size, log level, and the demo program selector. Precedence follows
// marmos91-dittofs's pkg/config layering — flags over environment over an
// optional file over defaults — built on spf13/viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved, immutable configuration threaded explicitly into
// the listener and every session (spec.md §3 "Config").
type Config struct {
	ListenAddr string
	PacketSize int
	LogLevel   string
	// Loop selects the simulator's free-running demo program over its
	// default halt-on-entry program (the "-l/--loop" argument spec.md §6
	// names as part of the target collaborator's surface).
	Loop bool
	// MetricsAddr, when non-empty, serves /metrics on this address.
	MetricsAddr string
}

// MinPacketSize is the smallest packet size this server will advertise
// (spec.md §3: "PacketSize ... hex-advertised maximum, >= 4096").
const MinPacketSize = 4096

const envPrefix = "GDBSTUB"

// BindFlags registers this package's flags on fs, to be parsed by the
// caller (cmd/gdbstubd wires this to a cobra.Command's pflag.FlagSet).
func BindFlags(fs *pflag.FlagSet) {
	fs.String("listen", "localhost:1234", "address to listen for GDB connections on")
	fs.Int("packet-size", MinPacketSize, "maximum framed packet size advertised via qSupported")
	fs.String("log-level", "info", "log level: trace, debug, info, warn, error")
	fs.BoolP("loop", "l", false, "run the simulator's free-running demo program instead of halting on entry")
	fs.String("metrics-addr", "", "address to serve /metrics on (empty disables the metrics server)")
	fs.String("config", "", "path to an optional YAML configuration file")
}

// Load resolves a Config from fs (already parsed by the caller), layering
// flags over GDBSTUB_*-prefixed environment variables over an optional
// config file over defaults.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{
		ListenAddr:  v.GetString("listen"),
		PacketSize:  v.GetInt("packet-size"),
		LogLevel:    v.GetString("log-level"),
		Loop:        v.GetBool("loop"),
		MetricsAddr: v.GetString("metrics-addr"),
	}
	if cfg.PacketSize < MinPacketSize {
		return nil, fmt.Errorf("config: packet-size %d is below the minimum of %d", cfg.PacketSize, MinPacketSize)
	}
	return cfg, nil
}
