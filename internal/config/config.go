// Package config loads the server's settings from a flat YAML file, with
// environment variable overrides (GRAPHSERVER_ prefix) via viper's native
// precedence order. No command-line flags are bound to settings.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

// Settings is the flat set of recognised options affecting the core. Fields
// absent from the config file fall back to the defaults applied before
// Unmarshal runs.
type Settings struct {
	SpringStrength       float32 `mapstructure:"spring_strength"`
	RepulsionStrength    float32 `mapstructure:"repulsion_strength"`
	Damping              float32 `mapstructure:"damping"`
	MaxVelocity          float32 `mapstructure:"max_velocity"`
	MaxRepulsionDistance float32 `mapstructure:"max_repulsion_distance"`
	ViewportBounds       float32 `mapstructure:"viewport_bounds"`
	EnableBounds         bool    `mapstructure:"enable_bounds"`
	BoundaryDamping      float32 `mapstructure:"boundary_damping"`

	MinUpdateRate   float64 `mapstructure:"min_update_rate"`
	MaxUpdateRate   float64 `mapstructure:"max_update_rate"`
	MotionThreshold float32 `mapstructure:"motion_threshold"`
	MotionDamping   float64 `mapstructure:"motion_damping"`

	CompressionEnabled   bool `mapstructure:"compression_enabled"`
	CompressionThreshold int  `mapstructure:"compression_threshold"`

	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval"`
	HeartbeatTimeoutSeconds  int `mapstructure:"heartbeat_timeout"`
	MaxMessageSize           int `mapstructure:"max_message_size"`
	MaxViolations            int `mapstructure:"max_violations"`

	// OverrideRateLimitHz and OverrideBurst bound how often a session's
	// ingress override frames are applied, independent of send rate.
	OverrideRateLimitHz float64 `mapstructure:"override_rate_limit_hz"`
	OverrideBurst       int     `mapstructure:"override_burst"`

	// Transport settings, not in the core's original settings enumeration
	// but required to stand the process up.
	ListenAddr           string `mapstructure:"listen_addr"`
	MetricsAddr          string `mapstructure:"metrics_addr"`
	GraphPath            string `mapstructure:"graph_path"`
	SpeechPath           string `mapstructure:"speech_path"`
	LogLevel             string `mapstructure:"log_level"`
	AcceleratorModule    string `mapstructure:"accelerator_module"`
	ShutdownGraceSeconds int    `mapstructure:"shutdown_grace"`
	Seed                 uint64 `mapstructure:"seed"`

	// GraphSeedPath optionally names a JSON file describing the initial
	// graph snapshot for standalone operation without a live ingestion
	// pipeline wired up. Empty means use the built-in demo graph.
	GraphSeedPath string `mapstructure:"graph_seed_path"`
}

// Defaults returns the settings applied before a config file is read, so
// any subset of fields may be overridden.
func Defaults() Settings {
	d := simproto.DefaultSimulationParams()
	return Settings{
		SpringStrength:       d.SpringStrength,
		RepulsionStrength:    d.RepulsionStrength,
		Damping:              d.Damping,
		MaxVelocity:          d.MaxVelocity,
		MaxRepulsionDistance: d.MaxRepulsionDistance,
		ViewportBounds:       d.ViewportBounds,
		EnableBounds:         d.EnableBounds,
		BoundaryDamping:      d.BoundaryDamping,

		MinUpdateRate:   5,
		MaxUpdateRate:   60,
		MotionThreshold: 0.05,
		MotionDamping:   0.9,

		CompressionEnabled:   true,
		CompressionThreshold: 1024,

		HeartbeatIntervalSeconds: 10,
		HeartbeatTimeoutSeconds:  600,
		MaxMessageSize:           8192,
		MaxViolations:            5,
		OverrideRateLimitHz:      60,
		OverrideBurst:            30,

		ListenAddr:           ":8080",
		MetricsAddr:          ":9090",
		GraphPath:            "/wss",
		SpeechPath:           "/ws/speech",
		LogLevel:             "info",
		AcceleratorModule:    "",
		ShutdownGraceSeconds: 2,
		Seed:                 1,
		GraphSeedPath:        "",
	}
}

// Load reads path (a YAML file) into Settings, starting from Defaults.
// Unrecognised keys in the file are ignored by the core, per the settings
// contract.
func Load(path string) (*Settings, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	vp.SetEnvPrefix("graphserver")
	vp.AutomaticEnv()

	defaults := Defaults()
	setDefaults(vp, defaults)

	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	settings := defaults
	if err := vp.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return &settings, nil
}

func setDefaults(vp *viper.Viper, d Settings) {
	vp.SetDefault("spring_strength", d.SpringStrength)
	vp.SetDefault("repulsion_strength", d.RepulsionStrength)
	vp.SetDefault("damping", d.Damping)
	vp.SetDefault("max_velocity", d.MaxVelocity)
	vp.SetDefault("max_repulsion_distance", d.MaxRepulsionDistance)
	vp.SetDefault("viewport_bounds", d.ViewportBounds)
	vp.SetDefault("enable_bounds", d.EnableBounds)
	vp.SetDefault("boundary_damping", d.BoundaryDamping)
	vp.SetDefault("min_update_rate", d.MinUpdateRate)
	vp.SetDefault("max_update_rate", d.MaxUpdateRate)
	vp.SetDefault("motion_threshold", d.MotionThreshold)
	vp.SetDefault("motion_damping", d.MotionDamping)
	vp.SetDefault("compression_enabled", d.CompressionEnabled)
	vp.SetDefault("compression_threshold", d.CompressionThreshold)
	vp.SetDefault("heartbeat_interval", d.HeartbeatIntervalSeconds)
	vp.SetDefault("heartbeat_timeout", d.HeartbeatTimeoutSeconds)
	vp.SetDefault("max_message_size", d.MaxMessageSize)
	vp.SetDefault("max_violations", d.MaxViolations)
	vp.SetDefault("override_rate_limit_hz", d.OverrideRateLimitHz)
	vp.SetDefault("override_burst", d.OverrideBurst)
	vp.SetDefault("listen_addr", d.ListenAddr)
	vp.SetDefault("metrics_addr", d.MetricsAddr)
	vp.SetDefault("graph_path", d.GraphPath)
	vp.SetDefault("speech_path", d.SpeechPath)
	vp.SetDefault("log_level", d.LogLevel)
	vp.SetDefault("accelerator_module", d.AcceleratorModule)
	vp.SetDefault("shutdown_grace", d.ShutdownGraceSeconds)
	vp.SetDefault("seed", d.Seed)
	vp.SetDefault("graph_seed_path", d.GraphSeedPath)
}

// SimulationParams projects the physics-relevant fields into the
// Integrator's parameter struct.
func (s Settings) SimulationParams() simproto.SimulationParams {
	p := simproto.DefaultSimulationParams()
	p.SpringStrength = s.SpringStrength
	p.RepulsionStrength = s.RepulsionStrength
	p.Damping = s.Damping
	p.MaxVelocity = s.MaxVelocity
	p.MaxRepulsionDistance = s.MaxRepulsionDistance
	p.ViewportBounds = s.ViewportBounds
	p.EnableBounds = s.EnableBounds
	p.BoundaryDamping = s.BoundaryDamping
	return p
}

// HeartbeatInterval returns the configured heartbeat cadence as a Duration.
func (s Settings) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalSeconds) * time.Second
}

// HeartbeatTimeout returns the configured heartbeat timeout as a Duration.
func (s Settings) HeartbeatTimeout() time.Duration {
	return time.Duration(s.HeartbeatTimeoutSeconds) * time.Second
}

// ShutdownGrace returns the configured shutdown drain window as a Duration.
func (s Settings) ShutdownGrace() time.Duration {
	return time.Duration(s.ShutdownGraceSeconds) * time.Second
}
