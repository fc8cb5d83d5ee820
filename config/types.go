package config

// Ledger configures the pool and loan ledger.
type Ledger struct {
	// Owner is the hex address allowed to administer the ledger and mint
	// the local settlement token.
	Owner string `toml:"Owner"`
	// ModuleAddress holds pooled value. Empty derives it from the token
	// symbol.
	ModuleAddress   string `toml:"ModuleAddress"`
	TokenSymbol     string `toml:"TokenSymbol"`
	MinDurationDays uint64 `toml:"MinDurationDays"`
	MaxDurationDays uint64 `toml:"MaxDurationDays"`
	MaxActiveLoans  uint64 `toml:"MaxActiveLoans"`
	PlatformFeeBps  uint64 `toml:"PlatformFeeBps"`
}

// Reputation configures scoring. Amounts are whole-token decimal strings.
type Reputation struct {
	InitialScore   uint64 `toml:"InitialScore"`
	DefaultPenalty uint64 `toml:"DefaultPenalty"`
	LatePenalty    uint64 `toml:"LatePenalty"`
	BonusBase      uint64 `toml:"BonusBase"`
	BonusMax       uint64 `toml:"BonusMax"`
	BonusStepUnits uint64 `toml:"BonusStepUnits"`
	Tiers          []Tier `toml:"tiers"`
}

type Tier struct {
	Name            string `toml:"Name"`
	MinScore        uint64 `toml:"MinScore"`
	CreditLimit     string `toml:"CreditLimit"`
	InterestRateBps uint64 `toml:"InterestRateBps"`
	CollateralPct   uint64 `toml:"CollateralPct"`
}

// Storage selects the state backend: leveldb, bolt or memory.
type Storage struct {
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// Logging configures the structured logger. An empty File logs to stdout.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

type Metrics struct {
	ListenAddress string `toml:"ListenAddress"`
}

// EventLog configures the sqlite event archive.
type EventLog struct {
	Enabled bool   `toml:"Enabled"`
	Path    string `toml:"Path"`
}
