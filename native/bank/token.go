package bank

import (
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"agentlend/core/state"
)

var (
	ErrInvalidAmount          = errors.New("bank: amount must be positive")
	ErrInsufficientBalance    = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance  = errors.New("bank: insufficient allowance")
	ErrZeroAddress            = errors.New("bank: zero address")
	ErrBalanceOverflow        = errors.New("bank: balance overflow")
	ErrMintAuthorityViolation = errors.New("bank: caller is not the mint authority")
)

// Token is a fungible six-decimal token ledger with ERC-20 style allowances.
// Balances are tracked as 256-bit unsigned integers and every arithmetic step
// is overflow checked; a failing call leaves all balances untouched.
type Token struct {
	mu         sync.RWMutex
	symbol     string
	authority  common.Address
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
	supply     *uint256.Int
}

// NewToken creates an empty token whose supply can only be minted by
// authority.
func NewToken(symbol string, authority common.Address) *Token {
	return &Token{
		symbol:     symbol,
		authority:  authority,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
		supply:     new(uint256.Int),
	}
}

// Symbol returns the token ticker.
func (t *Token) Symbol() string { return t.symbol }

// Authority returns the mint authority.
func (t *Token) Authority() common.Address { return t.authority }

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return v, nil
}

func (t *Token) balance(addr common.Address) *uint256.Int {
	if bal, ok := t.balances[addr]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (t *Token) setBalance(addr common.Address, v *uint256.Int) {
	if v.IsZero() {
		delete(t.balances, addr)
		return
	}
	t.balances[addr] = v
}

// Mint credits amount to the recipient.
func (t *Token) Mint(caller, to common.Address, amount *big.Int) error {
	if caller != t.authority {
		return ErrMintAuthorityViolation
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	v, err := toUint256(amount)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	supply, overflow := new(uint256.Int).AddOverflow(t.supply, v)
	if overflow {
		return ErrBalanceOverflow
	}
	bal, overflow := new(uint256.Int).AddOverflow(t.balance(to), v)
	if overflow {
		return ErrBalanceOverflow
	}
	t.supply = supply
	t.setBalance(to, bal)
	return nil
}

// Transfer moves amount from the caller to the recipient.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	v, err := toUint256(amount)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, v)
}

func (t *Token) move(from, to common.Address, v *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBal := t.balance(from)
	if fromBal.Lt(v) {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBal, overflow := new(uint256.Int).AddOverflow(t.balance(to), v)
	if overflow {
		return ErrBalanceOverflow
	}
	t.setBalance(from, new(uint256.Int).Sub(fromBal, v))
	t.setBalance(to, toBal)
	return nil
}

// Approve sets the amount spender may pull from owner. A zero amount clears
// the allowance.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrBalanceOverflow
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	spenders := t.allowances[owner]
	if v.IsZero() {
		if spenders != nil {
			delete(spenders, spender)
		}
		return nil
	}
	if spenders == nil {
		spenders = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = spenders
	}
	spenders[spender] = v
	return nil
}

// Allowance returns the remaining amount spender may pull from owner.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.allowances[owner][spender]; ok {
		return v.ToBig()
	}
	return big.NewInt(0)
}

// TransferFrom pulls amount from owner to the recipient on behalf of spender,
// consuming allowance.
func (t *Token) TransferFrom(spender, owner, to common.Address, amount *big.Int) error {
	v, err := toUint256(amount)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	allowed := new(uint256.Int)
	if current, ok := t.allowances[owner][spender]; ok {
		allowed = current
	}
	if allowed.Lt(v) {
		return ErrInsufficientAllowance
	}
	if err := t.move(owner, to, v); err != nil {
		return err
	}
	remaining := new(uint256.Int).Sub(allowed, v)
	if remaining.IsZero() {
		delete(t.allowances[owner], spender)
	} else {
		t.allowances[owner][spender] = remaining
	}
	return nil
}

// BalanceOf returns the balance held by addr.
func (t *Token) BalanceOf(addr common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balance(addr).ToBig()
}

// TotalSupply returns the minted supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supply.ToBig()
}

type storedBalance struct {
	Addr   common.Address
	Amount *big.Int
}

type storedAllowance struct {
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

type storedToken struct {
	Symbol     string
	Authority  common.Address
	Supply     *big.Int
	Balances   []storedBalance
	Allowances []storedAllowance
}

func tokenKey(symbol string) []byte {
	return []byte("bank/token/" + symbol)
}

// Save stages the token state into the state manager.
func (t *Token) Save(m *state.Manager) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stored := storedToken{Symbol: t.symbol, Authority: t.authority, Supply: t.supply.ToBig()}
	for addr, bal := range t.balances {
		stored.Balances = append(stored.Balances, storedBalance{Addr: addr, Amount: bal.ToBig()})
	}
	sort.Slice(stored.Balances, func(i, j int) bool {
		return stored.Balances[i].Addr.Cmp(stored.Balances[j].Addr) < 0
	})
	for owner, spenders := range t.allowances {
		for spender, v := range spenders {
			stored.Allowances = append(stored.Allowances, storedAllowance{Owner: owner, Spender: spender, Amount: v.ToBig()})
		}
	}
	sort.Slice(stored.Allowances, func(i, j int) bool {
		a, b := stored.Allowances[i], stored.Allowances[j]
		if c := a.Owner.Cmp(b.Owner); c != 0 {
			return c < 0
		}
		return a.Spender.Cmp(b.Spender) < 0
	})
	return m.KVPut(tokenKey(t.symbol), &stored)
}

// Load restores the token state persisted under the token symbol, if any.
func (t *Token) Load(m *state.Manager) error {
	var stored storedToken
	ok, err := m.KVGet(tokenKey(t.symbol), &stored)
	if err != nil || !ok {
		return err
	}
	supply := new(uint256.Int)
	if stored.Supply != nil {
		var overflow bool
		if supply, overflow = uint256.FromBig(stored.Supply); overflow {
			return ErrBalanceOverflow
		}
	}
	balances := make(map[common.Address]*uint256.Int, len(stored.Balances))
	for _, b := range stored.Balances {
		v, overflow := uint256.FromBig(b.Amount)
		if overflow {
			return ErrBalanceOverflow
		}
		balances[b.Addr] = v
	}
	allowances := make(map[common.Address]map[common.Address]*uint256.Int)
	for _, a := range stored.Allowances {
		v, overflow := uint256.FromBig(a.Amount)
		if overflow {
			return ErrBalanceOverflow
		}
		if allowances[a.Owner] == nil {
			allowances[a.Owner] = make(map[common.Address]*uint256.Int)
		}
		allowances[a.Owner][a.Spender] = v
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.authority = stored.Authority
	t.supply = supply
	t.balances = balances
	t.allowances = allowances
	return nil
}
