package reputation

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// MaxScore is the upper bound of the reputation scale.
	MaxScore uint64 = 1000
	// DefaultInitialScore is assigned to newly initialised agents.
	DefaultInitialScore uint64 = 100
)

var (
	// ErrAlreadyInitialized is returned when initialising an agent twice.
	ErrAlreadyInitialized = errors.New("reputation: agent already initialized")
	// ErrAgentNotRegistered is returned when the identity provider does not
	// know the agent or reports it inactive.
	ErrAgentNotRegistered = errors.New("reputation: agent not registered")
	// ErrNotInitialized is returned when a write targets an agent without a
	// reputation record.
	ErrNotInitialized = errors.New("reputation: agent not initialized")
	// ErrUnauthorized is returned when a writer other than the ledger calls a
	// restricted operation.
	ErrUnauthorized = errors.New("reputation: caller is not the ledger")
	// ErrExceedsCreditLimit is returned when a reservation would push the
	// agent's aggregate exposure over its credit limit.
	ErrExceedsCreditLimit = errors.New("reputation: exceeds credit limit")
	// ErrInvalidPrincipal is returned for nil or negative principal values.
	ErrInvalidPrincipal = errors.New("reputation: principal must not be negative")
)

// Record captures the reputation state of a single agent.
type Record struct {
	AgentID        uint64
	Score          uint64
	LoansCompleted uint64
	LoansDefaulted uint64
	// TotalBorrowed is the principal sum of the agent's active loans.
	TotalBorrowed *big.Int
	Initialized   bool
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	clone := r
	if r.TotalBorrowed != nil {
		clone.TotalBorrowed = new(big.Int).Set(r.TotalBorrowed)
	} else {
		clone.TotalBorrowed = big.NewInt(0)
	}
	return clone
}

// Tier partitions the score range into credit bands.
type Tier uint8

const (
	TierUnrated Tier = iota
	TierSubprime
	TierStandard
	TierPrime
)

func (t Tier) String() string {
	switch t {
	case TierUnrated:
		return "UNRATED"
	case TierSubprime:
		return "SUBPRIME"
	case TierStandard:
		return "STANDARD"
	case TierPrime:
		return "PRIME"
	default:
		return fmt.Sprintf("Tier(%d)", uint8(t))
	}
}

// ParseTier resolves a tier name case-insensitively.
func ParseTier(name string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "UNRATED":
		return TierUnrated, nil
	case "SUBPRIME":
		return TierSubprime, nil
	case "STANDARD":
		return TierStandard, nil
	case "PRIME":
		return TierPrime, nil
	default:
		return 0, fmt.Errorf("reputation: unknown tier %q", name)
	}
}

// Terms are the credit terms derived from a score at a point in time.
type Terms struct {
	Tier            Tier
	CreditLimit     *big.Int
	InterestRateBps uint64
	CollateralPct   uint64
}

// Params groups the tunable scoring parameters.
type Params struct {
	InitialScore uint64
	// DefaultPenalty is subtracted from the score on every default.
	DefaultPenalty uint64
	// LatePenalty is subtracted when a loan is repaid after its end time.
	LatePenalty uint64
	Bonus       BonusCurve
	Tiers       TierTable
}

// DefaultParams returns the production scoring parameters.
func DefaultParams() Params {
	return Params{
		InitialScore:   DefaultInitialScore,
		DefaultPenalty: 100,
		LatePenalty:    0,
		Bonus:          DefaultBonusCurve(),
		Tiers:          DefaultTierTable(),
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.InitialScore > MaxScore {
		return fmt.Errorf("reputation: initial score %d above max %d", p.InitialScore, MaxScore)
	}
	if p.DefaultPenalty == 0 {
		return fmt.Errorf("reputation: default penalty must be positive")
	}
	if p.LatePenalty > p.DefaultPenalty {
		return fmt.Errorf("reputation: late penalty %d exceeds default penalty %d", p.LatePenalty, p.DefaultPenalty)
	}
	if err := p.Bonus.Validate(); err != nil {
		return err
	}
	return p.Tiers.Validate()
}
