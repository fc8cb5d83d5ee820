package lending

import (
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"agentlend/core/events"
	"agentlend/core/identity"
	"agentlend/native/bank"
	"agentlend/native/reputation"
)

var (
	ledgerOwner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	moduleAddr   = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	borrowerAddr = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	lenderA      = common.HexToAddress("0x000000000000000000000000000000000000001a")
	lenderB      = common.HexToAddress("0x000000000000000000000000000000000000001b")
	outsider     = common.HexToAddress("0x00000000000000000000000000000000000000ee")

	startTime = time.Unix(1_700_000_000, 0)
)

type harness struct {
	t        *testing.T
	engine   *Engine
	registry *identity.Registry
	rep      *reputation.Engine
	token    *bank.Token
	custody  Custody
	recorder *events.Recorder
	agentID  uint64
	now      time.Time
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	params  reputation.Params
	cfg     Config
	custody func(*bank.Channel) Custody
}

func withReputationParams(p reputation.Params) harnessOption {
	return func(c *harnessConfig) { c.params = p }
}

func withCustody(wrap func(*bank.Channel) Custody) harnessOption {
	return func(c *harnessConfig) { c.custody = wrap }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{params: reputation.DefaultParams(), cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &harness{t: t, now: startTime, recorder: &events.Recorder{}}
	h.registry = identity.NewRegistry()
	agentID, err := h.registry.Register(borrowerAddr)
	require.NoError(t, err)
	h.agentID = agentID

	h.rep = reputation.NewEngine(h.registry, cfg.params)
	h.rep.SetLedger(moduleAddr)

	h.token = bank.NewToken("USDC", ledgerOwner)
	channel := bank.NewChannel(h.token, moduleAddr)
	h.custody = channel
	if cfg.custody != nil {
		h.custody = cfg.custody(channel)
	}

	h.engine = NewEngine(ledgerOwner, moduleAddr, cfg.cfg)
	h.engine.SetIdentity(h.registry)
	h.engine.SetReputation(h.rep)
	h.engine.SetCustody(h.custody)
	h.engine.SetEmitter(h.recorder)
	h.engine.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.engine.SetNowFunc(func() time.Time { return h.now })
	return h
}

func usdc(whole int64) *big.Int { return bank.Units(whole) }

// fund mints whole tokens to addr and approves the ledger to pull them.
func (h *harness) fund(addr common.Address, whole int64) {
	h.t.Helper()
	require.NoError(h.t, h.token.Mint(ledgerOwner, addr, usdc(whole)))
	require.NoError(h.t, h.token.Approve(addr, moduleAddr, usdc(1_000_000)))
}

func (h *harness) balance(addr common.Address) *big.Int {
	return h.token.BalanceOf(addr)
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

// openPool creates the borrower's pool and seeds it from the given lenders.
func (h *harness) openPool(deposits map[common.Address]int64) {
	h.t.Helper()
	require.NoError(h.t, h.engine.CreatePool(borrowerAddr, h.agentID))
	for _, lender := range []common.Address{lenderA, lenderB} {
		amount, ok := deposits[lender]
		if !ok {
			continue
		}
		h.fund(lender, amount)
		require.NoError(h.t, h.engine.SupplyLiquidity(lender, h.agentID, usdc(amount)))
	}
}

func (h *harness) pool() *Pool {
	h.t.Helper()
	pool, ok := h.engine.GetAgentPool(h.agentID)
	require.True(h.t, ok)
	return pool
}

func (h *harness) position(lender common.Address) *LenderPosition {
	h.t.Helper()
	pos, ok := h.engine.GetLenderPosition(h.agentID, lender)
	require.True(h.t, ok)
	return pos
}

func (h *harness) requireConserved() {
	h.t.Helper()
	pool := h.pool()
	sum := new(big.Int).Add(pool.AvailableLiquidity, pool.TotalLoaned)
	require.Equal(h.t, 0, sum.Cmp(pool.TotalLiquidity), "total %s available %s loaned %s",
		pool.TotalLiquidity, pool.AvailableLiquidity, pool.TotalLoaned)
}

func requireAmount(t *testing.T, want, got *big.Int) {
	t.Helper()
	require.Equal(t, 0, want.Cmp(got), "want %s got %s", want, got)
}

// flakyCustody fails the next transfer out once armed.
type flakyCustody struct {
	*bank.Channel
	failNextOut bool
}

func (f *flakyCustody) TransferOut(to common.Address, amount *big.Int) error {
	if f.failNextOut {
		f.failNextOut = false
		return bank.ErrInsufficientBalance
	}
	return f.Channel.TransferOut(to, amount)
}

// switchableCustody behaves like leakyCustody while leak is set.
type switchableCustody struct {
	*bank.Channel
	leak *bool
}

func (s *switchableCustody) BalanceOf(addr common.Address) *big.Int {
	if *s.leak && addr == moduleAddr {
		return big.NewInt(0)
	}
	return s.Channel.BalanceOf(addr)
}

// leakyCustody under-reports the ledger's own balance.
type leakyCustody struct {
	*bank.Channel
}

func (l leakyCustody) BalanceOf(addr common.Address) *big.Int {
	if addr == moduleAddr {
		return big.NewInt(0)
	}
	return l.Channel.BalanceOf(addr)
}
