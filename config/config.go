package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultOwner is the admin address written into a freshly generated config.
// Operators are expected to replace it before running against real value.
const DefaultOwner = "0x00000000000000000000000000000000000000a1"

type Config struct {
	DataDir     string     `toml:"DataDir"`
	Environment string     `toml:"Environment"`
	Ledger      Ledger     `toml:"ledger"`
	Reputation  Reputation `toml:"reputation"`
	Storage     Storage    `toml:"storage"`
	Logging     Logging    `toml:"logging"`
	Metrics     Metrics    `toml:"metrics"`
	EventLog    EventLog   `toml:"eventlog"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by the defaults, which are written out for the operator to edit.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	// Tier tables replace the defaults wholesale rather than merging by index.
	cfg.Reputation.Tiers = nil
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	if len(cfg.Reputation.Tiers) == 0 {
		cfg.Reputation.Tiers = DefaultTiers()
	}
	cfg.applyPathDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:     "./agentlend-data",
		Environment: "local",
		Ledger: Ledger{
			Owner:           DefaultOwner,
			TokenSymbol:     "USDC",
			MinDurationDays: 7,
			MaxDurationDays: 365,
			MaxActiveLoans:  10,
			PlatformFeeBps:  100,
		},
		Reputation: Reputation{
			InitialScore:   100,
			DefaultPenalty: 100,
			LatePenalty:    0,
			BonusBase:      10,
			BonusMax:       50,
			BonusStepUnits: 100,
			Tiers:          DefaultTiers(),
		},
		Storage: Storage{Backend: "leveldb"},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Metrics:  Metrics{ListenAddress: ":9464"},
		EventLog: EventLog{Enabled: true},
	}
}

// DefaultTiers returns the production tier table in config form.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "UNRATED", MinScore: 0, CreditLimit: "1000", InterestRateBps: 1500, CollateralPct: 100},
		{Name: "SUBPRIME", MinScore: 500, CreditLimit: "5000", InterestRateBps: 1200, CollateralPct: 50},
		{Name: "STANDARD", MinScore: 670, CreditLimit: "20000", InterestRateBps: 800, CollateralPct: 25},
		{Name: "PRIME", MinScore: 800, CreditLimit: "50000", InterestRateBps: 500, CollateralPct: 0},
	}
}

func (c *Config) applyPathDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./agentlend-data"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "state")
	}
	if strings.TrimSpace(c.EventLog.Path) == "" {
		c.EventLog.Path = filepath.Join(c.DataDir, "events.db")
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyPathDefaults()
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
