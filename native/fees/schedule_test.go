package fees

import (
	"errors"
	"math/big"
	"testing"
)

func TestNewScheduleRejectsInvalid(t *testing.T) {
	if _, err := NewSchedule(big.NewInt(0), big.NewInt(1)); !errors.Is(err, ErrZeroValue) {
		t.Fatalf("zero price: expected ErrZeroValue, got %v", err)
	}
	if _, err := NewSchedule(big.NewInt(10), big.NewInt(0)); !errors.Is(err, ErrZeroValue) {
		t.Fatalf("zero fee: expected ErrZeroValue, got %v", err)
	}
	if _, err := NewSchedule(big.NewInt(10), big.NewInt(10)); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("price == fee: expected ErrInvalidSchedule, got %v", err)
	}
	if _, err := NewSchedule(big.NewInt(5), big.NewInt(10)); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("price < fee: expected ErrInvalidSchedule, got %v", err)
	}
}

func TestScheduleSplits(t *testing.T) {
	schedule, err := NewSchedule(big.NewInt(100000), big.NewInt(3000))
	if err != nil {
		t.Fatalf("new schedule: %v", err)
	}

	// Two units deposited by the sole owner: payout 2*100000 - 2*3000, burn 6000.
	if got := schedule.DepositPayout(2); got.Cmp(big.NewInt(194000)) != 0 {
		t.Fatalf("deposit payout: got %s, want 194000", got)
	}
	if got := schedule.BurnFee(2); got.Cmp(big.NewInt(6000)) != 0 {
		t.Fatalf("burn fee: got %s, want 6000", got)
	}
	if got := schedule.WithdrawCharge(2); got.Cmp(big.NewInt(206000)) != 0 {
		t.Fatalf("withdraw charge: got %s, want 206000", got)
	}

	bank, burn := schedule.MintSums(3)
	if bank.Cmp(big.NewInt(300000)) != 0 {
		t.Fatalf("mint bank sum: got %s, want 300000", bank)
	}
	if burn.Cmp(big.NewInt(9000)) != 0 {
		t.Fatalf("mint burn sum: got %s, want 9000", burn)
	}
}

func TestRoundTripCostsTwoBurnFees(t *testing.T) {
	schedule := DefaultSchedule()
	n := uint64(5)

	payout := schedule.DepositPayout(n)
	charge := schedule.WithdrawCharge(n)

	net := new(big.Int).Sub(charge, payout)
	twoFees := new(big.Int).Mul(schedule.BurnFee(n), big.NewInt(2))
	if net.Cmp(twoFees) != 0 {
		t.Fatalf("round trip cost: got %s, want %s", net, twoFees)
	}
}

func TestScheduleCopiesValues(t *testing.T) {
	price := big.NewInt(100)
	fee := big.NewInt(10)
	schedule, err := NewSchedule(price, fee)
	if err != nil {
		t.Fatalf("new schedule: %v", err)
	}
	price.SetInt64(1)
	fee.SetInt64(1)
	if schedule.UnitPrice().Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unit price aliased caller value")
	}
	if schedule.UnitBurnFee().Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unit burn fee aliased caller value")
	}
}
