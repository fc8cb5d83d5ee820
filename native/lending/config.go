package lending

import "fmt"

// MaxPlatformFeeBps caps the platform fee at 5% of interest.
const MaxPlatformFeeBps = 500

// Config captures the runtime configuration for the lending ledger.
type Config struct {
	MinDurationDays uint64 `toml:"MinDurationDays"`
	MaxDurationDays uint64 `toml:"MaxDurationDays"`
	MaxActiveLoans  uint64 `toml:"MaxActiveLoans"`
	PlatformFeeBps  uint64 `toml:"PlatformFeeBps"`
}

// DefaultConfig returns the production ledger configuration.
func DefaultConfig() Config {
	return Config{
		MinDurationDays: 7,
		MaxDurationDays: 365,
		MaxActiveLoans:  10,
		PlatformFeeBps:  100,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.MinDurationDays == 0 {
		return fmt.Errorf("lending: MinDurationDays must be at least 1")
	}
	if c.MaxDurationDays < c.MinDurationDays {
		return fmt.Errorf("lending: MaxDurationDays %d below MinDurationDays %d", c.MaxDurationDays, c.MinDurationDays)
	}
	if c.MaxActiveLoans == 0 {
		return fmt.Errorf("lending: MaxActiveLoans must be at least 1")
	}
	if c.PlatformFeeBps > MaxPlatformFeeBps {
		return fmt.Errorf("lending: PlatformFeeBps %d exceeds cap %d", c.PlatformFeeBps, MaxPlatformFeeBps)
	}
	return nil
}
