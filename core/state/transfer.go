package state

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrInsufficientBalance is returned when a debit exceeds the account balance.
var ErrInsufficientBalance = errors.New("state: insufficient balance")

// Transfer moves amount of symbol between two accounts.
func (m *Manager) Transfer(from, to []byte, symbol string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	fromBal, err := m.Balance(from, symbol)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, normalizeSymbol(symbol), fromBal.Dec(), amount.Dec())
	}
	if bytes.Equal(from, to) {
		return nil
	}
	toBal, err := m.Balance(to, symbol)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return fmt.Errorf("state: balance overflow for %s", normalizeSymbol(symbol))
	}
	if err := m.SetBalance(from, symbol, new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.SetBalance(to, symbol, next)
}

// Mint credits amount of symbol to addr.
func (m *Manager) Mint(addr []byte, symbol string, amount *uint256.Int) error {
	bal, err := m.Balance(addr, symbol)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("state: balance overflow for %s", normalizeSymbol(symbol))
	}
	return m.SetBalance(addr, symbol, next)
}
