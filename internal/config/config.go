package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/Huddle/internal/recovery"
)

var ErrInvalid = errors.New("invalid config")

type SignalConfig struct {
	SendBuffer         int           `mapstructure:"send_buffer"`
	CreateRoomLimit    int           `mapstructure:"create_room_limit"`
	CreateRoomInterval time.Duration `mapstructure:"create_room_interval"`
}

type RecoveryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// Controller turns the recovery section into controller settings.
func (r RecoveryConfig) Controller() recovery.Config {
	return recovery.Config{
		MaxRetries: r.MaxRetries,
		Backoff:    recovery.Exponential(r.BaseDelay, r.MaxDelay),
	}
}

type EngineConfig struct {
	Kind               string `mapstructure:"kind"`
	NumWorkers         int    `mapstructure:"num_workers"`
	WorkerBin          string `mapstructure:"worker_bin"`
	ListenIP           string `mapstructure:"listen_ip"`
	AnnouncedAddress   string `mapstructure:"announced_address"`
	MaxIncomingBitrate uint32 `mapstructure:"max_incoming_bitrate"`
}

const (
	EngineMemory    = "memory"
	EngineMediasoup = "mediasoup"
)

type Config struct {
	Mode               string         `mapstructure:"mode"`
	Port               int            `mapstructure:"port"`
	StaticPath         string         `mapstructure:"static_path"`
	ReadLimit          int64          `mapstructure:"read_limit"`
	PingPeriod         time.Duration  `mapstructure:"ping_period"`
	Secret             string         `mapstructure:"secret"`
	LogLevel           string         `mapstructure:"log_level"`
	RouterReadyTimeout time.Duration  `mapstructure:"router_ready_timeout"`
	Signal             SignalConfig   `mapstructure:"signal"`
	Recovery           RecoveryConfig `mapstructure:"recovery"`
	Engine             EngineConfig   `mapstructure:"engine"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "huddle-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("router_ready_timeout", "5s")

	v.SetDefault("signal.send_buffer", 64)
	v.SetDefault("signal.create_room_limit", 5)
	v.SetDefault("signal.create_room_interval", "1m")

	v.SetDefault("recovery.max_retries", recovery.DefaultMaxRetries)
	v.SetDefault("recovery.base_delay", "500ms")
	v.SetDefault("recovery.max_delay", "8s")

	v.SetDefault("engine.kind", EngineMemory)
	v.SetDefault("engine.num_workers", 1)
	v.SetDefault("engine.worker_bin", "")
	v.SetDefault("engine.listen_ip", "0.0.0.0")
	v.SetDefault("engine.announced_address", "")
	v.SetDefault("engine.max_incoming_bitrate", 1500000)
}

// Load reads config/config.<CONFIG_ENV>.yaml. HUDDLE_* environment
// variables override file values (HUDDLE_ENGINE_KIND for engine.kind).
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("engine", cfg.Engine.Kind).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	case c.PingPeriod <= 0:
		return fmt.Errorf("%w: ping_period must be positive", ErrInvalid)
	case c.RouterReadyTimeout <= 0:
		return fmt.Errorf("%w: router_ready_timeout must be positive", ErrInvalid)
	case c.Signal.SendBuffer <= 0:
		return fmt.Errorf("%w: signal.send_buffer must be positive", ErrInvalid)
	case c.Signal.CreateRoomLimit <= 0:
		return fmt.Errorf("%w: signal.create_room_limit must be positive", ErrInvalid)
	case c.Recovery.MaxRetries < 0:
		return fmt.Errorf("%w: recovery.max_retries must not be negative", ErrInvalid)
	case c.Recovery.BaseDelay < 0 || c.Recovery.MaxDelay < c.Recovery.BaseDelay:
		return fmt.Errorf("%w: recovery delays", ErrInvalid)
	case c.Engine.NumWorkers <= 0:
		return fmt.Errorf("%w: engine.num_workers must be positive", ErrInvalid)
	}
	switch c.Engine.Kind {
	case EngineMemory:
	case EngineMediasoup:
		if c.Engine.WorkerBin == "" {
			return fmt.Errorf("%w: engine.worker_bin is required for mediasoup", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: engine.kind %q", ErrInvalid, c.Engine.Kind)
	}
	return nil
}
