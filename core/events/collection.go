package events

import (
	"strconv"

	"nftbank/core/types"
)

const (
	// TypeSupplyCut is emitted when the admin lowers the collection supply cap.
	TypeSupplyCut = "collection.supplyCut"
	// TypeContractURIUpdated is emitted when the collection-level metadata URI changes.
	TypeContractURIUpdated = "collection.contractURIUpdated"
	// TypeBatchMetadataUpdate is emitted when the base URI changes, invalidating
	// cached metadata for the inclusive identifier range.
	TypeBatchMetadataUpdate = "collection.metadataUpdated"
)

// SupplyCut reports the new, lower supply cap.
type SupplyCut struct {
	NewMaxSupply uint64
}

func (SupplyCut) EventType() string { return TypeSupplyCut }

func (e SupplyCut) Event() *types.Event {
	return &types.Event{
		Type: TypeSupplyCut,
		Attributes: map[string]string{
			"newMaxSupply": strconv.FormatUint(e.NewMaxSupply, 10),
		},
	}
}

// ContractURIUpdated signals that observers should refetch the contract URI.
type ContractURIUpdated struct{}

func (ContractURIUpdated) EventType() string { return TypeContractURIUpdated }

func (e ContractURIUpdated) Event() *types.Event {
	return &types.Event{Type: TypeContractURIUpdated, Attributes: map[string]string{}}
}

// BatchMetadataUpdate signals that token metadata changed for a range of units.
type BatchMetadataUpdate struct {
	FromID uint64
	ToID   uint64
}

func (BatchMetadataUpdate) EventType() string { return TypeBatchMetadataUpdate }

func (e BatchMetadataUpdate) Event() *types.Event {
	return &types.Event{
		Type: TypeBatchMetadataUpdate,
		Attributes: map[string]string{
			"fromId": strconv.FormatUint(e.FromID, 10),
			"toId":   strconv.FormatUint(e.ToID, 10),
		},
	}
}
