package fees

import (
	"errors"
	"math/big"
)

var (
	// ErrInvalidSchedule indicates the unit price does not exceed the burn fee,
	// which would make deposits pay out nothing or less.
	ErrInvalidSchedule = errors.New("fees: unit price must exceed unit burn fee")
	// ErrZeroValue indicates a schedule component was zero or negative.
	ErrZeroValue = errors.New("fees: schedule values must be positive")
)

// Default schedule applied when configuration does not override it. The price
// is what the bank charges or pays per unit; the burn fee is destroyed on
// every deposit, withdrawal, and mint.
const (
	DefaultUnitPrice   = 100000
	DefaultUnitBurnFee = 3000
)

// Schedule fixes the per-unit price and burn fee shared by the bank and mint
// ledgers. Both values are immutable once constructed.
type Schedule struct {
	unitPrice   *big.Int
	unitBurnFee *big.Int
}

// NewSchedule validates and constructs a fee schedule.
func NewSchedule(unitPrice, unitBurnFee *big.Int) (Schedule, error) {
	if unitPrice == nil || unitBurnFee == nil || unitPrice.Sign() <= 0 || unitBurnFee.Sign() <= 0 {
		return Schedule{}, ErrZeroValue
	}
	if unitPrice.Cmp(unitBurnFee) <= 0 {
		return Schedule{}, ErrInvalidSchedule
	}
	return Schedule{
		unitPrice:   new(big.Int).Set(unitPrice),
		unitBurnFee: new(big.Int).Set(unitBurnFee),
	}, nil
}

// DefaultSchedule returns the built-in schedule.
func DefaultSchedule() Schedule {
	schedule, err := NewSchedule(big.NewInt(DefaultUnitPrice), big.NewInt(DefaultUnitBurnFee))
	if err != nil {
		panic(err)
	}
	return schedule
}

// UnitPrice returns a copy of the per-unit price.
func (s Schedule) UnitPrice() *big.Int { return new(big.Int).Set(s.unitPrice) }

// UnitBurnFee returns a copy of the per-unit burn fee.
func (s Schedule) UnitBurnFee() *big.Int { return new(big.Int).Set(s.unitBurnFee) }

// BurnFee returns n*unitBurnFee, the amount destroyed for a batch of n units.
func (s Schedule) BurnFee(n uint64) *big.Int {
	return new(big.Int).Mul(s.unitBurnFee, new(big.Int).SetUint64(n))
}

// DepositPayout returns n*unitPrice - n*unitBurnFee, the amount paid to a
// depositor for a batch of n units.
func (s Schedule) DepositPayout(n uint64) *big.Int {
	payout := new(big.Int).Mul(s.unitPrice, new(big.Int).SetUint64(n))
	return payout.Sub(payout, s.BurnFee(n))
}

// WithdrawCharge returns n*unitPrice + n*unitBurnFee, the amount collected
// from a withdrawer for a batch of n units.
func (s Schedule) WithdrawCharge(n uint64) *big.Int {
	charge := new(big.Int).Mul(s.unitPrice, new(big.Int).SetUint64(n))
	return charge.Add(charge, s.BurnFee(n))
}

// MintSums returns the bank and burn portions for minting n units: the bank
// portion is forwarded to the bank's balance, the burn portion is destroyed.
func (s Schedule) MintSums(n uint64) (bank *big.Int, burn *big.Int) {
	bank = new(big.Int).Mul(s.unitPrice, new(big.Int).SetUint64(n))
	burn = s.BurnFee(n)
	return bank, burn
}
