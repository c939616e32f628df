package services

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "24h" parse.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the service configuration for the auction daemon.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Postgres PostgresConfig `yaml:"postgres"`
	Auction  AuctionConfig  `yaml:"auction"`
}

// HTTPConfig contains the HTTP server settings.
type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// AuctionConfig contains the auction house deployment settings. Amounts are
// decimal strings; percentages are scaled to the engine precision.
type AuctionConfig struct {
	Owner           string   `yaml:"owner"`
	FeeReceiver     string   `yaml:"fee_receiver"`
	EscrowAccount   string   `yaml:"escrow_account"`
	PaymentSymbol   string   `yaml:"payment_symbol"`
	FeePercent      uint64   `yaml:"fee_percent"`
	ReservePrice    string   `yaml:"reserve_price"`
	MinIncrementPct uint64   `yaml:"min_increment_pct"`
	Duration        Duration `yaml:"duration"`
	TimeBuffer      Duration `yaml:"time_buffer"`
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
			DrainTimeout: Duration(5 * time.Second),
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "auctions",
		},
		Auction: AuctionConfig{
			PaymentSymbol: "SQUID",
			EscrowAccount: "auction-escrow",
		},
	}
}

// LoadConfig reads a YAML configuration file, filling unset fields from the
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
