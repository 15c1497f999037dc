package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	errNilState = errors.New("token ledger: state not configured")

	// ErrInvalidAmount rejects nil or negative transfer amounts.
	ErrInvalidAmount = errors.New("token ledger: invalid amount")
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("token ledger: insufficient balance")
	// ErrInvalidAddress rejects empty addresses.
	ErrInvalidAddress = errors.New("token ledger: invalid address")
)

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger is a minimal fungible token backed by key-value state. The pool and
// vault engines use one ledger per asset (base token, derivative, stablecoin).
type Ledger struct {
	symbol string
	state  ledgerState
}

// NewLedger creates a ledger for the given symbol. All keys are namespaced by
// the lowercased symbol so multiple assets can share a database.
func NewLedger(symbol string) *Ledger {
	return &Ledger{symbol: strings.ToLower(strings.TrimSpace(symbol))}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// Symbol returns the ledger's asset symbol.
func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) balanceKey(addr string) []byte {
	return []byte(fmt.Sprintf("token/%s/balance/%s", l.symbol, addr))
}

func (l *Ledger) supplyKey() []byte {
	return []byte(fmt.Sprintf("token/%s/supply", l.symbol))
}

// BalanceOf returns the balance of addr, zero when the account is unknown.
func (l *Ledger) BalanceOf(addr string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	addr = normalize(addr)
	if addr == "" {
		return nil, ErrInvalidAddress
	}
	return l.loadAmount(l.balanceKey(addr))
}

// TotalSupply returns the total minted supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.loadAmount(l.supplyKey())
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	from, to = normalize(from), normalize(to)
	if from == "" || to == "" {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	return l.credit(to, amount)
}

// Mint creates amount new units on the recipient's balance.
func (l *Ledger) Mint(to string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	to = normalize(to)
	if to == "" {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := l.credit(to, amount); err != nil {
		return err
	}
	supply, err := l.loadAmount(l.supplyKey())
	if err != nil {
		return err
	}
	return l.state.KVPut(l.supplyKey(), new(big.Int).Add(supply, amount))
}

// Burn destroys amount units from the holder's balance.
func (l *Ledger) Burn(from string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	from = normalize(from)
	if from == "" {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	supply, err := l.loadAmount(l.supplyKey())
	if err != nil {
		return err
	}
	if supply.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return l.state.KVPut(l.supplyKey(), new(big.Int).Sub(supply, amount))
}

func (l *Ledger) credit(addr string, amount *big.Int) error {
	balance, err := l.loadAmount(l.balanceKey(addr))
	if err != nil {
		return err
	}
	return l.state.KVPut(l.balanceKey(addr), new(big.Int).Add(balance, amount))
}

func (l *Ledger) debit(addr string, amount *big.Int) error {
	balance, err := l.loadAmount(l.balanceKey(addr))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return l.state.KVPut(l.balanceKey(addr), new(big.Int).Sub(balance, amount))
}

func (l *Ledger) loadAmount(key []byte) (*big.Int, error) {
	var value big.Int
	ok, err := l.state.KVGet(key, &value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &value, nil
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
