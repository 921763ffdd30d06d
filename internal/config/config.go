package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	// CookieSecure marks the session cookie Secure; enable only behind TLS.
	CookieSecure bool `mapstructure:"cookie_secure"`

	ReadLimit        int64         `mapstructure:"read_limit"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	SendBuffer       int           `mapstructure:"send_buffer"`
	Subprotocol      string        `mapstructure:"subprotocol"`
	WSPath           string        `mapstructure:"ws_path"`
	ConnectLimit     int           `mapstructure:"connect_limit"`
	ConnectInterval  time.Duration `mapstructure:"connect_interval"`

	PeerHost string `mapstructure:"peer_host"`
	Secure   bool   `mapstructure:"secure"`

	TickPeriod       time.Duration `mapstructure:"tick_period"`
	ProbeProbability float64       `mapstructure:"probe_probability"`
	QueueLimit       int           `mapstructure:"queue_limit"`
	OverflowPolicy   string        `mapstructure:"overflow_policy"`
	TickerSize       int           `mapstructure:"ticker_size"`

	// Server-side exchange, which answers and probes like the demo server.
	ServerAnswerRule       string  `mapstructure:"server_answer_rule"`
	ServerProbeProbability float64 `mapstructure:"server_probe_probability"`
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of defaults. Environment
// variables prefixed PINGPONG_ and flags in fs (may be nil) override the file.
func Load(fs *pflag.FlagSet) (*Config, error) {
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
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "pingpong")
	v.SetDefault("cookie_secure", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("subprotocol", "pingpong")
	v.SetDefault("ws_path", "/ws_socket")
	v.SetDefault("connect_limit", 20)
	v.SetDefault("connect_interval", "1m")
	v.SetDefault("peer_host", "localhost:8080")
	v.SetDefault("secure", false)
	v.SetDefault("tick_period", "100ms")
	v.SetDefault("probe_probability", 0.05)
	v.SetDefault("queue_limit", 1024)
	v.SetDefault("overflow_policy", "drop_oldest")
	v.SetDefault("ticker_size", 10)
	v.SetDefault("server_answer_rule", "all")
	v.SetDefault("server_probe_probability", 0.02)

	v.SetEnvPrefix("PINGPONG")
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Dur("tick_period", cfg.TickPeriod).Msg("config ready")
	return &cfg, nil
}
