package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"agentlend/native/bank"
	"agentlend/native/lending"
	"agentlend/native/reputation"
)

// MinDefaultPenalty is the smallest score penalty a default may carry.
const MinDefaultPenalty = 50

var storageBackends = map[string]struct{}{"leveldb": {}, "bolt": {}, "memory": {}}

var logLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if _, err := c.OwnerAddress(); err != nil {
		return err
	}
	if _, err := c.ModuleAddress(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Ledger.TokenSymbol) == "" {
		return fmt.Errorf("ledger: TokenSymbol must not be empty")
	}
	if err := c.LendingConfig().Validate(); err != nil {
		return err
	}
	if c.Reputation.DefaultPenalty < MinDefaultPenalty {
		return fmt.Errorf("reputation: DefaultPenalty %d below minimum %d", c.Reputation.DefaultPenalty, MinDefaultPenalty)
	}
	params, err := c.ReputationParams()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if _, ok := storageBackends[strings.ToLower(c.Storage.Backend)]; !ok {
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if _, ok := logLevels[strings.ToLower(c.Logging.Level)]; !ok {
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	return nil
}

// OwnerAddress parses the ledger owner.
func (c *Config) OwnerAddress() (common.Address, error) {
	owner := strings.TrimSpace(c.Ledger.Owner)
	if !common.IsHexAddress(owner) {
		return common.Address{}, fmt.Errorf("ledger: invalid Owner %q", c.Ledger.Owner)
	}
	addr := common.HexToAddress(owner)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("ledger: Owner must not be zero")
	}
	return addr, nil
}

// ModuleAddress returns the custody address of the ledger.
func (c *Config) ModuleAddress() (common.Address, error) {
	raw := strings.TrimSpace(c.Ledger.ModuleAddress)
	if raw == "" {
		return bank.ModuleAddress("lending/" + c.Ledger.TokenSymbol), nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("ledger: invalid ModuleAddress %q", raw)
	}
	return common.HexToAddress(raw), nil
}

// LendingConfig converts the ledger section into engine configuration.
func (c *Config) LendingConfig() lending.Config {
	return lending.Config{
		MinDurationDays: c.Ledger.MinDurationDays,
		MaxDurationDays: c.Ledger.MaxDurationDays,
		MaxActiveLoans:  c.Ledger.MaxActiveLoans,
		PlatformFeeBps:  c.Ledger.PlatformFeeBps,
	}
}

// ReputationParams converts the reputation section into engine parameters.
func (c *Config) ReputationParams() (reputation.Params, error) {
	r := c.Reputation
	params := reputation.Params{
		InitialScore:   r.InitialScore,
		DefaultPenalty: r.DefaultPenalty,
		LatePenalty:    r.LatePenalty,
		Bonus: reputation.BonusCurve{
			Base:      r.BonusBase,
			Max:       r.BonusMax,
			StepUnits: r.BonusStepUnits,
		},
	}
	for i, tier := range r.Tiers {
		name, err := reputation.ParseTier(tier.Name)
		if err != nil {
			return params, fmt.Errorf("reputation.tiers[%d]: %w", i, err)
		}
		limit, err := bank.ParseAmount(tier.CreditLimit)
		if err != nil {
			return params, fmt.Errorf("reputation.tiers[%d].CreditLimit: %w", i, err)
		}
		params.Tiers = append(params.Tiers, reputation.TierBand{
			Tier:            name,
			MinScore:        tier.MinScore,
			CreditLimit:     limit,
			InterestRateBps: tier.InterestRateBps,
			CollateralPct:   tier.CollateralPct,
		})
	}
	return params, nil
}
