package events

import (
	"github.com/ethereum/go-ethereum/common"

	"nftbank/core/types"
)

const (
	// TypeOwnerTransferStarted is emitted when the current owner nominates a successor.
	TypeOwnerTransferStarted = "owner.transferStarted"
	// TypeOwnerTransferAccepted is emitted when the nominated owner accepts.
	TypeOwnerTransferAccepted = "owner.transferAccepted"
)

// OwnerTransferStarted records the pending handover.
type OwnerTransferStarted struct {
	Current common.Address
	Pending common.Address
}

func (OwnerTransferStarted) EventType() string { return TypeOwnerTransferStarted }

func (e OwnerTransferStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnerTransferStarted,
		Attributes: map[string]string{
			"current": e.Current.Hex(),
			"pending": e.Pending.Hex(),
		},
	}
}

// OwnerTransferAccepted records the completed handover.
type OwnerTransferAccepted struct {
	Previous common.Address
	Owner    common.Address
}

func (OwnerTransferAccepted) EventType() string { return TypeOwnerTransferAccepted }

func (e OwnerTransferAccepted) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnerTransferAccepted,
		Attributes: map[string]string{
			"previous": e.Previous.Hex(),
			"owner":    e.Owner.Hex(),
		},
	}
}
