package token

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrZeroAddress indicates a transfer or approval involved the zero address.
	ErrZeroAddress = errors.New("token: zero address")
	// ErrZeroAmount indicates an operation was supplied a nil or negative amount.
	ErrZeroAmount = errors.New("token: amount must be positive")
	// ErrInsufficientBalance indicates the debited account cannot cover the amount.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAllowance indicates the spender's allowance cannot cover the amount.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	// ErrNotBurnable indicates a burn was attempted on a token without burn support.
	ErrNotBurnable = errors.New("token: not burnable")
)

// State exposes the key-value access the ledger needs.
type State interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

// Ledger tracks balances, allowances, and supply for one fungible token. Two
// instances back the system: the primary token (burnable) and the secondary
// token swapped through the router.
type Ledger struct {
	symbol   string
	address  common.Address
	state    State
	burnable bool
}

// NewLedger constructs a ledger for the given symbol. The address identifies
// the token when quoting or routing swaps.
func NewLedger(symbol string, address common.Address, state State, burnable bool) (*Ledger, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return nil, errors.New("token: symbol required")
	}
	if address == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if state == nil {
		return nil, errors.New("token: state not configured")
	}
	return &Ledger{symbol: trimmed, address: address, state: state, burnable: burnable}, nil
}

// Symbol returns the canonical token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Address returns the token identity used by the guard and router.
func (l *Ledger) Address() common.Address { return l.address }

// BalanceOf returns the balance of the account, zero when untouched.
func (l *Ledger) BalanceOf(account common.Address) (*big.Int, error) {
	return l.loadAmount(balanceKey(l.symbol, account))
}

// TotalSupply returns the outstanding supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	return l.loadAmount(supplyKey(l.symbol))
}

// Allowance returns the amount spender may draw from owner.
func (l *Ledger) Allowance(owner, spender common.Address) (*big.Int, error) {
	return l.loadAmount(allowanceKey(l.symbol, owner, spender))
}

// Mint credits newly created supply to the account. Used for genesis funding
// and by the dev pool; the exchange flows themselves never mint the primary
// token.
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.storeAmount(supplyKey(l.symbol), supply.Add(supply, amount)); err != nil {
		return err
	}
	return l.credit(to, amount)
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	return l.credit(to, amount)
}

// Approve sets the spender's allowance over the owner's balance to exactly amount.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrZeroAmount
	}
	return l.storeAmount(allowanceKey(l.symbol, owner, spender), amount)
}

// IncreaseAllowance raises the spender's allowance by amount.
func (l *Ledger) IncreaseAllowance(owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	current, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	return l.Approve(owner, spender, current.Add(current, amount))
}

// DecreaseAllowance lowers the spender's allowance by amount.
func (l *Ledger) DecreaseAllowance(owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	current, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	return l.Approve(owner, spender, current.Sub(current, amount))
}

// TransferFrom moves amount from the owner to the recipient on behalf of the
// spender, consuming allowance.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.Transfer(from, to, amount); err != nil {
		return err
	}
	return l.Approve(from, spender, allowance.Sub(allowance, amount))
}

// Burn permanently destroys amount from the holder's balance, reducing supply.
func (l *Ledger) Burn(holder common.Address, amount *big.Int) error {
	if !l.burnable {
		return ErrNotBurnable
	}
	if holder == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := l.debit(holder, amount); err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if supply.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return l.storeAmount(supplyKey(l.symbol), supply.Sub(supply, amount))
}

// BurnFrom destroys amount from the account on behalf of the spender,
// consuming allowance first.
func (l *Ledger) BurnFrom(spender, account common.Address, amount *big.Int) error {
	if !l.burnable {
		return ErrNotBurnable
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance, err := l.Allowance(account, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.Burn(account, amount); err != nil {
		return err
	}
	return l.Approve(account, spender, allowance.Sub(allowance, amount))
}

func (l *Ledger) loadAmount(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := l.state.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

func (l *Ledger) storeAmount(key []byte, amount *big.Int) error {
	return l.state.KVPut(key, amount)
}

func (l *Ledger) credit(account common.Address, amount *big.Int) error {
	balance, err := l.BalanceOf(account)
	if err != nil {
		return err
	}
	return l.storeAmount(balanceKey(l.symbol, account), balance.Add(balance, amount))
}

func (l *Ledger) debit(account common.Address, amount *big.Int) error {
	balance, err := l.BalanceOf(account)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return l.storeAmount(balanceKey(l.symbol, account), balance.Sub(balance, amount))
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return nil
}
