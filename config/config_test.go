package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"agentlend/native/bank"
	"agentlend/native/reputation"
)

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "agentlend.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.Ledger.MaxActiveLoans != 10 || cfg.Ledger.PlatformFeeBps != 100 {
		t.Fatalf("unexpected ledger defaults: %+v", cfg.Ledger)
	}
	if cfg.Storage.Path != filepath.Join(cfg.DataDir, "state") {
		t.Fatalf("unexpected storage path: %s", cfg.Storage.Path)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if len(reloaded.Reputation.Tiers) != 4 {
		t.Fatalf("expected 4 tiers after reload, got %d", len(reloaded.Reputation.Tiers))
	}
	if reloaded.Ledger.Owner != DefaultOwner {
		t.Fatalf("unexpected owner: %s", reloaded.Ledger.Owner)
	}
}

func TestLoadParsesLedgerSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentlend.toml")
	contents := `DataDir = "/var/lib/agentlend"
Environment = "staging"

[ledger]
Owner = "0x00000000000000000000000000000000000000b2"
TokenSymbol = "USDC"
MinDurationDays = 1
MaxDurationDays = 180
MaxActiveLoans = 5
PlatformFeeBps = 250

[reputation]
InitialScore = 100
DefaultPenalty = 120
LatePenalty = 20
BonusBase = 5
BonusMax = 40
BonusStepUnits = 50

[[reputation.tiers]]
Name = "UNRATED"
MinScore = 0
CreditLimit = "250.5"
InterestRateBps = 1800
CollateralPct = 100

[[reputation.tiers]]
Name = "PRIME"
MinScore = 700
CreditLimit = "10000"
InterestRateBps = 600
CollateralPct = 10

[storage]
Backend = "bolt"

[logging]
Level = "debug"
File = "/var/log/agentlend.log"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	lendingCfg := cfg.LendingConfig()
	if lendingCfg.MinDurationDays != 1 || lendingCfg.MaxDurationDays != 180 || lendingCfg.MaxActiveLoans != 5 {
		t.Fatalf("unexpected lending config: %+v", lendingCfg)
	}
	if cfg.Storage.Path != "/var/lib/agentlend/state" {
		t.Fatalf("unexpected storage path: %s", cfg.Storage.Path)
	}
	if cfg.EventLog.Path != "/var/lib/agentlend/events.db" {
		t.Fatalf("unexpected event log path: %s", cfg.EventLog.Path)
	}

	params, err := cfg.ReputationParams()
	if err != nil {
		t.Fatalf("reputation params: %v", err)
	}
	if len(params.Tiers) != 2 {
		t.Fatalf("expected configured tiers to replace defaults, got %d", len(params.Tiers))
	}
	if params.Tiers[1].Tier != reputation.TierPrime {
		t.Fatalf("unexpected tier: %s", params.Tiers[1].Tier)
	}
	if want := "250500000"; params.Tiers[0].CreditLimit.String() != want {
		t.Fatalf("unexpected credit limit: %s", params.Tiers[0].CreditLimit)
	}
	if params.LatePenalty != 20 || params.Bonus.StepUnits != 50 {
		t.Fatalf("unexpected scoring params: %+v", params)
	}

	owner, err := cfg.OwnerAddress()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != common.HexToAddress("0x00000000000000000000000000000000000000b2") {
		t.Fatalf("unexpected owner: %s", owner.Hex())
	}
	module, err := cfg.ModuleAddress()
	if err != nil {
		t.Fatalf("module address: %v", err)
	}
	if module != bank.ModuleAddress("lending/USDC") {
		t.Fatalf("unexpected module address: %s", module.Hex())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentlend.toml")
	if err := os.WriteFile(path, []byte("ListenAddress = \":6001\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"fee above cap", func(c *Config) { c.Ledger.PlatformFeeBps = 501 }, "PlatformFeeBps"},
		{"inverted durations", func(c *Config) { c.Ledger.MinDurationDays = 30; c.Ledger.MaxDurationDays = 7 }, "MaxDurationDays"},
		{"no concurrency", func(c *Config) { c.Ledger.MaxActiveLoans = 0 }, "MaxActiveLoans"},
		{"soft default penalty", func(c *Config) { c.Reputation.DefaultPenalty = 49 }, "DefaultPenalty"},
		{"zero owner", func(c *Config) { c.Ledger.Owner = "0x0000000000000000000000000000000000000000" }, "Owner"},
		{"bad owner", func(c *Config) { c.Ledger.Owner = "alice" }, "Owner"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "backend"},
		{"unknown level", func(c *Config) { c.Logging.Level = "trace" }, "level"},
		{"bad tier name", func(c *Config) { c.Reputation.Tiers[0].Name = "GOLD" }, "tier"},
		{"bad credit limit", func(c *Config) { c.Reputation.Tiers[0].CreditLimit = "-1" }, "CreditLimit"},
		{"non monotone tiers", func(c *Config) { c.Reputation.Tiers[3].InterestRateBps = 2000 }, "rate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
