package collection

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"nftbank/core/events"
)

var (
	// ErrZeroAddress indicates a transfer or mint targeted the zero address.
	ErrZeroAddress = errors.New("collection: zero address")
	// ErrZeroInput indicates a zero count or identifier where one is meaningless.
	ErrZeroInput = errors.New("collection: zero input")
	// ErrUnknownUnit indicates the identifier has never been issued.
	ErrUnknownUnit = errors.New("collection: unknown unit")
	// ErrUnauthorized indicates the declared owner does not hold the unit, or a
	// transfer was rejected by the registered hook.
	ErrUnauthorized = errors.New("collection: unauthorized")
	// ErrLimitExceeded indicates issuance would breach the supply cap.
	ErrLimitExceeded = errors.New("collection: supply cap exceeded")
	// ErrProhibited indicates an illegal cap change: raising the cap, or cutting
	// it below what is already issued.
	ErrProhibited = errors.New("collection: prohibited")
)

// State exposes the key-value access the registry needs.
type State interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

// TransferHook is invoked before every transfer and mint. The operator is the
// module (or account) that initiated the movement; from is the zero address on
// mint. Returning an error aborts the transfer.
type TransferHook func(operator, from, to common.Address, id uint64) error

// Registry tracks collectible unit ownership with sequential identifiers
// starting at one. A single pre-transfer hook may be registered to veto
// movements; the mint ledger uses it to keep laundered units out of the bank.
type Registry struct {
	state   State
	emitter events.Emitter
	hook    TransferHook
}

// NewRegistry constructs a registry over the supplied state. The supply cap is
// persisted on first use.
func NewRegistry(state State, maxSupply uint64) (*Registry, error) {
	if state == nil {
		return nil, errors.New("collection: state not configured")
	}
	if maxSupply == 0 {
		return nil, ErrZeroInput
	}
	r := &Registry{state: state, emitter: events.NoopEmitter{}}
	ok, err := state.KVGet(maxSupplyKey(), nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := state.KVPut(maxSupplyKey(), maxSupply); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetTransferHook registers the pre-transfer hook.
func (r *Registry) SetTransferHook(hook TransferHook) { r.hook = hook }

// TotalIssued returns how many units have ever been minted.
func (r *Registry) TotalIssued() (uint64, error) {
	var issued uint64
	if _, err := r.state.KVGet(issuedKey(), &issued); err != nil {
		return 0, err
	}
	return issued, nil
}

// MaxSupply returns the current supply cap.
func (r *Registry) MaxSupply() (uint64, error) {
	var cap uint64
	ok, err := r.state.KVGet(maxSupplyKey(), &cap)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("collection: supply cap not initialised")
	}
	return cap, nil
}

// OwnerOf returns the current owner of the unit.
func (r *Registry) OwnerOf(id uint64) (common.Address, error) {
	if id == 0 {
		return common.Address{}, ErrZeroInput
	}
	var owner common.Address
	ok, err := r.state.KVGet(ownerKey(id), &owner)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, ErrUnknownUnit
	}
	return owner, nil
}

// BalanceOf returns how many units the account currently holds.
func (r *Registry) BalanceOf(account common.Address) (uint64, error) {
	var count uint64
	if _, err := r.state.KVGet(holdingsKey(account), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Mint issues count new sequential units to the recipient, invoking the hook
// for each. Returns the issued identifiers.
func (r *Registry) Mint(operator, to common.Address, count uint64) ([]uint64, error) {
	if to == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if count == 0 {
		return nil, ErrZeroInput
	}
	issued, err := r.TotalIssued()
	if err != nil {
		return nil, err
	}
	cap, err := r.MaxSupply()
	if err != nil {
		return nil, err
	}
	if issued+count > cap {
		return nil, ErrLimitExceeded
	}
	ids := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		id := issued + i + 1
		if err := r.runHook(operator, common.Address{}, to, id); err != nil {
			return nil, err
		}
		if err := r.state.KVPut(ownerKey(id), to); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := r.state.KVPut(issuedKey(), issued+count); err != nil {
		return nil, err
	}
	if err := r.adjustHoldings(to, int64(count)); err != nil {
		return nil, err
	}
	return ids, nil
}

// SafeTransfer moves a unit from one account to another. Ownership is
// re-verified here, per unit, so a batch cannot move a unit whose owner
// changed after the caller declared it.
func (r *Registry) SafeTransfer(operator, from, to common.Address, id uint64) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	owner, err := r.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("%w: unit %d not owned by %s", ErrUnauthorized, id, from.Hex())
	}
	if err := r.runHook(operator, from, to, id); err != nil {
		return err
	}
	if err := r.state.KVPut(ownerKey(id), to); err != nil {
		return err
	}
	if err := r.adjustHoldings(from, -1); err != nil {
		return err
	}
	return r.adjustHoldings(to, 1)
}

// CutSupply lowers the supply cap. Raising the cap or cutting below the
// already-issued count is prohibited.
func (r *Registry) CutSupply(newMax uint64) error {
	if newMax == 0 {
		return ErrZeroInput
	}
	cap, err := r.MaxSupply()
	if err != nil {
		return err
	}
	issued, err := r.TotalIssued()
	if err != nil {
		return err
	}
	if newMax >= cap || newMax < issued {
		return ErrProhibited
	}
	if err := r.state.KVPut(maxSupplyKey(), newMax); err != nil {
		return err
	}
	r.emit(events.SupplyCut{NewMaxSupply: newMax})
	return nil
}

// SetBaseURI updates the metadata base and signals observers to refresh every
// issued unit.
func (r *Registry) SetBaseURI(uri string) error {
	if uri == "" {
		return ErrZeroInput
	}
	if err := r.state.KVPut(baseURIKey(), uri); err != nil {
		return err
	}
	issued, err := r.TotalIssued()
	if err != nil {
		return err
	}
	if issued > 0 {
		r.emit(events.BatchMetadataUpdate{FromID: 1, ToID: issued})
	}
	return nil
}

// SetContractURI updates the collection-level metadata URI.
func (r *Registry) SetContractURI(uri string) error {
	if uri == "" {
		return ErrZeroInput
	}
	if err := r.state.KVPut(contractURIKey(), uri); err != nil {
		return err
	}
	r.emit(events.ContractURIUpdated{})
	return nil
}

// TokenURI renders the metadata URI for an issued unit.
func (r *Registry) TokenURI(id uint64) (string, error) {
	if _, err := r.OwnerOf(id); err != nil {
		return "", err
	}
	var base string
	ok, err := r.state.KVGet(baseURIKey(), &base)
	if err != nil {
		return "", err
	}
	if !ok || base == "" {
		return "", nil
	}
	return base + strconv.FormatUint(id, 10), nil
}

// ContractURI returns the collection-level metadata URI.
func (r *Registry) ContractURI() (string, error) {
	var uri string
	if _, err := r.state.KVGet(contractURIKey(), &uri); err != nil {
		return "", err
	}
	return uri, nil
}

func (r *Registry) runHook(operator, from, to common.Address, id uint64) error {
	if r.hook == nil {
		return nil
	}
	return r.hook(operator, from, to, id)
}

func (r *Registry) adjustHoldings(account common.Address, delta int64) error {
	count, err := r.BalanceOf(account)
	if err != nil {
		return err
	}
	next := int64(count) + delta
	if next < 0 {
		return fmt.Errorf("%w: holdings underflow for %s", ErrUnauthorized, account.Hex())
	}
	return r.state.KVPut(holdingsKey(account), uint64(next))
}

func (r *Registry) emit(event events.Event) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(event)
}
