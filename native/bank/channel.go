package bank

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Channel binds a Token to a custodian account. It is the custody transfer
// primitive used by the lending ledger: TransferIn pulls from a party using
// the allowance granted to the custodian, TransferOut pays from the
// custodian's own balance.
type Channel struct {
	token     *Token
	custodian common.Address
}

// NewChannel returns a channel that moves value in and out of custodian.
func NewChannel(token *Token, custodian common.Address) *Channel {
	return &Channel{token: token, custodian: custodian}
}

// Custodian returns the address holding pooled value.
func (c *Channel) Custodian() common.Address { return c.custodian }

// TransferIn pulls amount from the supplied party into custody.
func (c *Channel) TransferIn(from common.Address, amount *big.Int) error {
	return c.token.TransferFrom(c.custodian, from, c.custodian, amount)
}

// TransferOut pays amount from custody to the recipient.
func (c *Channel) TransferOut(to common.Address, amount *big.Int) error {
	return c.token.Transfer(c.custodian, to, amount)
}

// BalanceOf returns the token balance of addr.
func (c *Channel) BalanceOf(addr common.Address) *big.Int {
	return c.token.BalanceOf(addr)
}

// ModuleAddress derives a deterministic custody address for a named module.
// No private key exists for it.
func ModuleAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("module/" + name))[12:])
}
