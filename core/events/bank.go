package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nftbank/core/types"
)

const (
	// TypeBankActivated is emitted once when the bank is switched on and bound
	// to its collection.
	TypeBankActivated = "bank.activated"
	// TypeBankDeposited is emitted whenever a batch of units enters bank custody.
	TypeBankDeposited = "bank.deposited"
	// TypeBankWithdrawn is emitted whenever a batch of units leaves bank custody.
	TypeBankWithdrawn = "bank.withdrawn"
)

// BankActivated marks the one-way activation of the bank.
type BankActivated struct {
	Collection common.Address
}

func (BankActivated) EventType() string { return TypeBankActivated }

func (e BankActivated) Event() *types.Event {
	return &types.Event{
		Type: TypeBankActivated,
		Attributes: map[string]string{
			"collection": e.Collection.Hex(),
		},
	}
}

// BankDeposited captures a completed deposit batch.
type BankDeposited struct {
	Account common.Address
	UnitIDs []uint64
	Payout  *big.Int
	Burned  *big.Int
}

func (BankDeposited) EventType() string { return TypeBankDeposited }

func (e BankDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeBankDeposited,
		Attributes: map[string]string{
			"account": e.Account.Hex(),
			"unitIds": joinIDs(e.UnitIDs),
			"payout":  bigString(e.Payout),
			"burned":  bigString(e.Burned),
		},
	}
}

// BankWithdrawn captures a completed withdrawal batch.
type BankWithdrawn struct {
	Account common.Address
	UnitIDs []uint64
	Charged *big.Int
	Burned  *big.Int
}

func (BankWithdrawn) EventType() string { return TypeBankWithdrawn }

func (e BankWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeBankWithdrawn,
		Attributes: map[string]string{
			"account": e.Account.Hex(),
			"unitIds": joinIDs(e.UnitIDs),
			"charged": bigString(e.Charged),
			"burned":  bigString(e.Burned),
		},
	}
}

func joinIDs(ids []uint64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
