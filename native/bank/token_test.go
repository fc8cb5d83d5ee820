package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"agentlend/core/state"
	"agentlend/storage"
)

var (
	minter    = common.HexToAddress("0x1000")
	alice     = common.HexToAddress("0xA11CE")
	custodian = common.HexToAddress("0xC0FFEE")
)

func TestTokenMintAndTransfer(t *testing.T) {
	token := NewToken("USDC", minter)

	require.True(t, errors.Is(token.Mint(alice, alice, Units(1)), ErrMintAuthorityViolation))
	require.NoError(t, token.Mint(minter, alice, Units(100)))
	require.Equal(t, 0, token.TotalSupply().Cmp(Units(100)))

	require.True(t, errors.Is(token.Transfer(alice, custodian, Units(101)), ErrInsufficientBalance))
	require.True(t, errors.Is(token.Transfer(alice, custodian, big.NewInt(0)), ErrInvalidAmount))
	require.NoError(t, token.Transfer(alice, custodian, Units(40)))

	require.Equal(t, 0, token.BalanceOf(alice).Cmp(Units(60)))
	require.Equal(t, 0, token.BalanceOf(custodian).Cmp(Units(40)))
}

func TestChannelRequiresAllowance(t *testing.T) {
	token := NewToken("USDC", minter)
	require.NoError(t, token.Mint(minter, alice, Units(50)))
	channel := NewChannel(token, custodian)

	err := channel.TransferIn(alice, Units(10))
	require.True(t, errors.Is(err, ErrInsufficientAllowance))
	require.Equal(t, 0, channel.BalanceOf(alice).Cmp(Units(50)))

	require.NoError(t, token.Approve(alice, custodian, Units(20)))
	require.NoError(t, channel.TransferIn(alice, Units(10)))
	require.Equal(t, 0, token.Allowance(alice, custodian).Cmp(Units(10)))
	require.Equal(t, 0, channel.BalanceOf(custodian).Cmp(Units(10)))

	require.True(t, errors.Is(channel.TransferOut(alice, Units(11)), ErrInsufficientBalance))
	require.NoError(t, channel.TransferOut(alice, Units(10)))
	require.Equal(t, 0, channel.BalanceOf(alice).Cmp(Units(50)))
	require.Zero(t, channel.BalanceOf(custodian).Sign())
}

func TestTokenPersistence(t *testing.T) {
	db := storage.NewMemDB()
	manager := state.NewManager(db)

	token := NewToken("USDC", minter)
	require.NoError(t, token.Mint(minter, alice, Units(7)))
	require.NoError(t, token.Approve(alice, custodian, Units(3)))
	require.NoError(t, token.Save(manager))
	require.NoError(t, manager.Commit())

	restored := NewToken("USDC", common.Address{})
	require.NoError(t, restored.Load(state.NewManager(db)))
	require.Equal(t, minter, restored.Authority())
	require.Equal(t, 0, restored.BalanceOf(alice).Cmp(Units(7)))
	require.Equal(t, 0, restored.Allowance(alice, custodian).Cmp(Units(3)))
	require.Equal(t, 0, restored.TotalSupply().Cmp(Units(7)))
}

func TestTokenLoadRejectsOverflowingSupply(t *testing.T) {
	db := storage.NewMemDB()
	manager := state.NewManager(db)
	tooLarge := new(big.Int).Lsh(big.NewInt(1), 256)
	require.NoError(t, manager.KVPut(tokenKey("USDC"), &storedToken{
		Symbol:    "USDC",
		Authority: minter,
		Supply:    tooLarge,
		Balances:  []storedBalance{{Addr: alice, Amount: Units(1)}},
	}))
	require.NoError(t, manager.Commit())

	token := NewToken("USDC", minter)
	require.NoError(t, token.Mint(minter, alice, Units(5)))
	err := token.Load(state.NewManager(db))
	require.True(t, errors.Is(err, ErrBalanceOverflow))
	require.Equal(t, 0, token.TotalSupply().Cmp(Units(5)))
	require.Equal(t, 0, token.BalanceOf(alice).Cmp(Units(5)))
}

func TestParseAndFormatAmount(t *testing.T) {
	v, err := ParseAmount("12.5")
	require.NoError(t, err)
	require.Equal(t, "12500000", v.String())
	require.Equal(t, "12.500000", FormatAmount(v))

	v, err = ParseAmount("0.000001")
	require.NoError(t, err)
	require.Equal(t, int64(1), v.Int64())

	_, err = ParseAmount("0.0000001")
	require.Error(t, err)
	_, err = ParseAmount("-1")
	require.Error(t, err)
	_, err = ParseAmount("abc")
	require.Error(t, err)

	require.Equal(t, "0.000000", FormatAmount(nil))
}

func TestModuleAddressIsDeterministic(t *testing.T) {
	a := ModuleAddress("lending/USDC")
	require.Equal(t, a, ModuleAddress("lending/USDC"))
	require.NotEqual(t, a, ModuleAddress("lending/DAI"))
	require.NotEqual(t, common.Address{}, a)
}
