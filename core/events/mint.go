package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"nftbank/core/types"
)

const (
	// TypeMintSettled is emitted whenever a mint completes and units are issued.
	TypeMintSettled = "mint.settled"
	// TypeSaleUpdated is emitted when the admin flips the sale state.
	TypeSaleUpdated = "mint.saleUpdated"
)

// MintSettled captures a completed mint.
type MintSettled struct {
	Recipient common.Address
	Amount    uint64
	BankSum   *big.Int
	Burned    *big.Int
}

func (MintSettled) EventType() string { return TypeMintSettled }

func (e MintSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeMintSettled,
		Attributes: map[string]string{
			"recipient": e.Recipient.Hex(),
			"amount":    strconv.FormatUint(e.Amount, 10),
			"bankSum":   bigString(e.BankSum),
			"burned":    bigString(e.Burned),
		},
	}
}

// SaleUpdated reports the new sale flag.
type SaleUpdated struct {
	Active bool
}

func (SaleUpdated) EventType() string { return TypeSaleUpdated }

func (e SaleUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleUpdated,
		Attributes: map[string]string{
			"active": strconv.FormatBool(e.Active),
		},
	}
}
