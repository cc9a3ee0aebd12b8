// Package config provides configuration management for the DMX output core.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lacylights/dmxcore/pkg/artnet"
)

// TransportKind selects how a universe's frames reach the wire.
type TransportKind string

const (
	// TransportBroadcast sends frames to the LAN broadcast address.
	TransportBroadcast TransportKind = "broadcast"
	// TransportUnicast sends frames to a single configured IPv4 address.
	TransportUnicast TransportKind = "unicast"
)

// UniverseConfig describes one configured DMX output.
type UniverseConfig struct {
	Subnet       uint8
	Universe     uint8
	Transport    TransportKind
	UnicastAddr  string // only meaningful when Transport == TransportUnicast
	NeedsRefresh bool
}

// Config holds all configuration values for the output core.
type Config struct {
	// Universes to drive. Defaults to a single subnet 0 / universe 0
	// broadcasting on the LAN when unset.
	Universes []UniverseConfig

	// Timing
	CadenceMs              int // §6 default 25
	FadeStepMs             int // §6 default 10
	RefreshMs              int // §6 default 1000 when NeedsRefresh
	MaxConsecutiveSendErrs int // §6 default 20

	// Adaptive transmission (SPEC_FULL §4 item 1)
	IdleRateHz       int
	HighRateDuration time.Duration

	// Art-Net
	ArtNetEnabled bool
	ArtNetPort    int
	ArtNetBroadcastAddr string

	// Clock
	DefaultBPM float64

	// Drift telemetry (SPEC_FULL §4 item 6)
	DriftThresholdMs int
	DriftThrottleMs  int

	// Persistence (internal/persistence collaborator only)
	DatabaseURL string

	// HTTP debug surface (health check + read-only live frame/event stream)
	Port       int
	CORSOrigin string

	// Process
	Env string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		CadenceMs:              getEnvInt("CADENCE_MS", 25),
		FadeStepMs:             getEnvInt("FADE_STEP_MS", 10),
		RefreshMs:              getEnvInt("REFRESH_MS", 1000),
		MaxConsecutiveSendErrs: getEnvInt("MAX_CONSECUTIVE_SEND_ERRORS", 20),

		IdleRateHz:       getEnvInt("DMX_IDLE_RATE_HZ", 1),
		HighRateDuration: time.Duration(getEnvInt("DMX_HIGH_RATE_DURATION_MS", 2000)) * time.Millisecond,

		ArtNetEnabled:       getEnvBool("ARTNET_ENABLED", true),
		ArtNetPort:          getEnvInt("ARTNET_PORT", artnet.DefaultPort),
		ArtNetBroadcastAddr: getEnv("ARTNET_BROADCAST", "255.255.255.255"),

		DefaultBPM: getEnvFloat("CLOCK_DEFAULT_BPM", 120),

		DriftThresholdMs: getEnvInt("DMX_DRIFT_THRESHOLD_MS", 50),
		DriftThrottleMs:  getEnvInt("DMX_DRIFT_THROTTLE_MS", 5000),

		DatabaseURL: getEnv("DATABASE_URL", "file:./dmxcore.db"),

		Port:       getEnvInt("PORT", 8080),
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		Env: getEnv("ENV", "development"),
	}

	cfg.Universes = universesFromEnv()
	return cfg
}

// universesFromEnv parses UNIVERSES="subnet:universe[:unicastIP], ..." or
// falls back to a single broadcast universe at 0.0.
func universesFromEnv() []UniverseConfig {
	raw := os.Getenv("UNIVERSES")
	if raw == "" {
		return []UniverseConfig{{Subnet: 0, Universe: 0, Transport: TransportBroadcast, NeedsRefresh: true}}
	}

	var universes []UniverseConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 {
			continue
		}
		subnet, err1 := strconv.Atoi(parts[0])
		universe, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}

		uc := UniverseConfig{
			Subnet:       uint8(subnet),
			Universe:     uint8(universe),
			Transport:    TransportBroadcast,
			NeedsRefresh: true,
		}
		if len(parts) >= 3 && parts[2] != "" {
			uc.Transport = TransportUnicast
			uc.UnicastAddr = parts[2]
		}
		universes = append(universes, uc)
	}

	if len(universes) == 0 {
		return []UniverseConfig{{Subnet: 0, Universe: 0, Transport: TransportBroadcast, NeedsRefresh: true}}
	}
	return universes
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// String renders the universe config for log banners.
func (u UniverseConfig) String() string {
	if u.Transport == TransportUnicast {
		return fmt.Sprintf("%d.%d->unicast(%s)", u.Subnet, u.Universe, u.UnicastAddr)
	}
	return fmt.Sprintf("%d.%d->broadcast", u.Subnet, u.Universe)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
