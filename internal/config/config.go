package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	HTTPPort int    `mapstructure:"http_port"`

	SignalURL     string `mapstructure:"signal_url"`
	ParticipantID string `mapstructure:"participant_id"`
	DisplayName   string `mapstructure:"display_name"`
	Role          string `mapstructure:"role"`

	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	ReconnectMin time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax time.Duration `mapstructure:"reconnect_max"`

	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	StunURLs           []string      `mapstructure:"stun_urls"`
	CaptureAddr        string        `mapstructure:"capture_addr"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("http_port", 8090)
	v.SetDefault("signal_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("display_name", "guest")
	v.SetDefault("role", "player")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("reconnect_min", "250ms")
	v.SetDefault("reconnect_max", "4s")
	v.SetDefault("negotiation_timeout", "15s")
	v.SetDefault("stun_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("capture_addr", "127.0.0.1:40000")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ParticipantID == "" {
		cfg.ParticipantID = uuid.NewString()
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("http_port", cfg.HTTPPort).
		Str("participant_id", cfg.ParticipantID).
		Msg("configuration ready")
	return &cfg, nil
}
