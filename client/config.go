package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/luster/internal/protocol"
	socket "github.com/luciancaetano/luster/internal/websocket"
)

// Reconnect strategies.
const (
	StrategyExponential = "exponential"
	StrategyConstant    = "constant"
)

// Config holds the settings of a Session. Every field can be set from the
// environment with LoadConfig.
type Config struct {
	// Token authenticates both the events stream and API calls.
	Token string `env:"LUSTER_TOKEN"`
	// Bot selects the bot token header for API calls; false sends the
	// token as a user session token.
	Bot bool `env:"LUSTER_BOT" envDefault:"true"`

	APIURL        string `env:"LUSTER_API_URL" envDefault:"https://api.revolt.chat"`
	FileServerURL string `env:"LUSTER_FILE_SERVER_URL" envDefault:"https://autumn.revolt.chat"`
	// WebsocketURL is the events endpoint. When empty it is discovered
	// from the API node on the first Connect.
	WebsocketURL string `env:"LUSTER_WS_URL"`
	// Format is the wire encoding: json or msgpack.
	Format string `env:"LUSTER_FORMAT" envDefault:"json"`

	HandshakeTimeout  time.Duration `env:"LUSTER_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	HeartbeatInterval time.Duration `env:"LUSTER_HEARTBEAT_INTERVAL" envDefault:"20s"`
	HeartbeatTimeout  time.Duration `env:"LUSTER_HEARTBEAT_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"LUSTER_WRITE_TIMEOUT" envDefault:"10s"`
	// CloseTimeout bounds the shutdown Run performs when its context ends.
	CloseTimeout time.Duration `env:"LUSTER_CLOSE_TIMEOUT" envDefault:"5s"`

	Reconnect ReconnectConfig `envPrefix:"LUSTER_RECONNECT_"`

	// SendRate limits outbound frames per second; zero disables the limit.
	SendRate  float64 `env:"LUSTER_SEND_RATE" envDefault:"10"`
	SendBurst int     `env:"LUSTER_SEND_BURST" envDefault:"20"`
	// APIRate limits API requests per second; zero disables the limit.
	APIRate  float64 `env:"LUSTER_API_RATE" envDefault:"0"`
	APIBurst int     `env:"LUSTER_API_BURST" envDefault:"1"`
}

// ReconnectConfig selects the delay between reconnect attempts.
type ReconnectConfig struct {
	// Strategy is exponential or constant. A constant strategy waits
	// InitialDelay every time.
	Strategy     string        `env:"STRATEGY" envDefault:"exponential"`
	InitialDelay time.Duration `env:"INITIAL_DELAY" envDefault:"500ms"`
	MaxDelay     time.Duration `env:"MAX_DELAY" envDefault:"60s"`
	Multiplier   float64       `env:"MULTIPLIER" envDefault:"1.5"`
}

// DefaultConfig returns the default configuration for token.
func DefaultConfig(token string) Config {
	var cfg Config
	// An empty environment leaves only the envDefault values.
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("client: invalid configuration defaults: %v", err))
	}
	cfg.Token = token
	return cfg
}

// LoadConfig reads the configuration from LUSTER_* environment variables,
// falling back to the defaults, and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("client: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Token == "" {
		return errors.New("client: token is required")
	}
	if _, err := protocol.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if c.SendRate < 0 || c.APIRate < 0 {
		return errors.New("client: rate limits must not be negative")
	}
	if c.CloseTimeout <= 0 {
		return errors.New("client: close timeout must be positive")
	}
	return c.Reconnect.validate()
}

func (r ReconnectConfig) validate() error {
	switch r.Strategy {
	case StrategyExponential:
		if r.Multiplier < 1 {
			return fmt.Errorf("client: reconnect multiplier %v is below 1", r.Multiplier)
		}
	case StrategyConstant:
	default:
		return fmt.Errorf("client: unknown reconnect strategy %q", r.Strategy)
	}
	if r.InitialDelay <= 0 {
		return errors.New("client: reconnect initial delay must be positive")
	}
	return nil
}

// policy returns a constructor for fresh reconnect policies.
func (r ReconnectConfig) policy() func() backoff.BackOff {
	if r.Strategy == StrategyConstant {
		return func() backoff.BackOff { return backoff.NewConstantBackOff(r.InitialDelay) }
	}
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = r.InitialDelay
		if r.MaxDelay > 0 {
			b.MaxInterval = r.MaxDelay
		}
		b.Multiplier = r.Multiplier
		b.Reset()
		return b
	}
}

func (c Config) sendLimit() *socket.RateLimitConfig {
	if c.SendRate <= 0 {
		return socket.NoRateLimit()
	}
	return &socket.RateLimitConfig{
		FramesPerSecond: rate.Limit(c.SendRate),
		Burst:           max(c.SendBurst, 1),
		Enabled:         true,
	}
}

func rateLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return 0
	}
	return rate.Limit(perSecond)
}
