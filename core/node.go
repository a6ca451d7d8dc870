package core

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"nftbank/core/events"
	"nftbank/core/state"
	"nftbank/native/bank"
	"nftbank/native/collection"
	nativecommon "nftbank/native/common"
	"nftbank/native/guard"
	"nftbank/native/mint"
	"nftbank/native/token"
)

var (
	// ErrNotOwner indicates a privileged operation from a non-owner account.
	ErrNotOwner = errors.New("node: caller is not the owner")
	// ErrNotPendingOwner indicates an accept from an account that was never nominated.
	ErrNotPendingOwner = errors.New("node: caller is not the pending owner")
	// ErrZeroAddress indicates a zero address where one is meaningless.
	ErrZeroAddress = errors.New("node: zero address")
)

func ownerKey() []byte        { return []byte("node/owner") }
func pendingOwnerKey() []byte { return []byte("node/pendingOwner") }

// Node hosts the engines and serialises every public entry point: each call
// runs to completion under the node mutex, and a failure unwinds all state
// written during the call through the journal.
type Node struct {
	mu sync.RWMutex

	kv        *state.KV
	bank      *bank.Engine
	mint      *mint.Engine
	guard     *guard.Guard
	registry  *collection.Registry
	primary   *token.Ledger
	secondary *token.Ledger
	scope     *nativecommon.CallScope
	emitter   events.Emitter
}

// Config collects the collaborators a node hosts.
type Config struct {
	KV        *state.KV
	Bank      *bank.Engine
	Mint      *mint.Engine
	Guard     *guard.Guard
	Registry  *collection.Registry
	Primary   *token.Ledger
	Secondary *token.Ledger
	Scope     *nativecommon.CallScope
	Emitter   events.Emitter
	Owner     common.Address
}

// NewNode wires a node, seeding the owner account on first boot.
func NewNode(cfg Config) (*Node, error) {
	if cfg.KV == nil || cfg.Bank == nil || cfg.Mint == nil || cfg.Guard == nil || cfg.Registry == nil {
		return nil, errors.New("node: missing collaborator")
	}
	if cfg.Primary == nil || cfg.Secondary == nil {
		return nil, errors.New("node: token ledgers not configured")
	}
	if cfg.Scope == nil {
		cfg.Scope = &nativecommon.CallScope{}
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.NoopEmitter{}
	}
	n := &Node{
		kv:        cfg.KV,
		bank:      cfg.Bank,
		mint:      cfg.Mint,
		guard:     cfg.Guard,
		registry:  cfg.Registry,
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		scope:     cfg.Scope,
		emitter:   cfg.Emitter,
	}
	ok, err := cfg.KV.KVGet(ownerKey(), nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		if cfg.Owner == (common.Address{}) {
			return nil, ErrZeroAddress
		}
		if err := cfg.KV.KVPut(ownerKey(), cfg.Owner); err != nil {
			return nil, err
		}
	}
	cfg.KV.DiscardJournal()
	return n, nil
}

// execute runs fn as one atomic unit of work: all state writes are unwound
// when fn fails.
func (n *Node) execute(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	snapshot := n.kv.Snapshot()
	if err := fn(); err != nil {
		if revertErr := n.kv.RevertToSnapshot(snapshot); revertErr != nil {
			return errors.Join(err, revertErr)
		}
		return err
	}
	n.kv.DiscardJournal()
	return nil
}

// view runs fn under the read lock. Entry points write to the database before
// a failure is repaired by the journal, so every query must serialise against
// in-flight mutations or it can observe state that is about to be reverted.
func (n *Node) view(fn func() error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return fn()
}

// --- user-facing entry points ---

// Deposit places the caller's units into bank custody for the price minus fee.
func (n *Node) Deposit(caller common.Address, unitIDs []uint64) error {
	return n.execute(func() error {
		return n.bank.Deposit(caller, unitIDs)
	})
}

// WithdrawDirect redeems units from custody against primary-token payment.
func (n *Node) WithdrawDirect(caller common.Address, unitIDs []uint64) error {
	return n.execute(func() error {
		return n.bank.WithdrawDirect(caller, unitIDs)
	})
}

// WithdrawWithSecondary redeems units from custody, paying in the secondary
// token through the guarded swap path.
func (n *Node) WithdrawWithSecondary(caller common.Address, unitIDs []uint64, maxSecondary *big.Int, deadline int64) error {
	return n.execute(func() error {
		return n.bank.WithdrawWithSecondary(caller, unitIDs, maxSecondary, deadline)
	})
}

// MintDirect issues new units against primary-token payment.
func (n *Node) MintDirect(caller common.Address, amount uint64) ([]uint64, error) {
	var ids []uint64
	err := n.execute(func() error {
		var innerErr error
		ids, innerErr = n.mint.MintDirect(caller, amount)
		return innerErr
	})
	return ids, err
}

// MintWithSecondary issues new units, paying in the secondary token through
// the guarded swap path.
func (n *Node) MintWithSecondary(caller common.Address, amount uint64, maxSecondary *big.Int, deadline int64) ([]uint64, error) {
	var ids []uint64
	err := n.execute(func() error {
		var innerErr error
		ids, innerErr = n.mint.MintWithSecondary(caller, amount, maxSecondary, deadline)
		return innerErr
	})
	return ids, err
}

// --- administrative surface (owner only) ---

// ActivateBank switches the bank on and binds the collection address.
func (n *Node) ActivateBank(caller, collectionAddr common.Address) error {
	return n.execute(func() error {
		if err := n.requireOwner(caller); err != nil {
			return err
		}
		return n.bank.Activate(collectionAddr)
	})
}

// SetMaxPerTransaction updates the bank batch-size cap.
func (n *Node) SetMaxPerTransaction(caller common.Address, max uint64) error {
	return n.execute(func() error {
		if err := n.requireOwner(caller); err != nil {
			return err
		}
		return n.bank.SetMaxPerTransaction(max)
	})
}

// SetLookbackSeconds updates the guard's TWAP window.
func (n *Node) SetLookbackSeconds(caller common.Address, seconds uint64) error {
	return n.execute(func() error {
		if err := n.requireOwner(caller); err != nil {
			return err
		}
		return n.guard.SetLookbackSeconds(seconds)
	})
}

// SetDeviationBps updates the guard's allowed deviation.
func (n *Node) SetDeviationBps(caller common.Address, bps uint64) error {
	return n.execute(func() error {
		if err := n.requireOwner(caller); err != nil {
			return err
		}
		return n.guard.SetDeviationBps(bps)
	})
}

// FlipSaleState toggles minting and reports the new state.
func (n *Node) FlipSaleState(caller common.Address) (bool, error) {
	var active bool
	err := n.execute(func() error {
		if err := n.requireOwner(caller); err != nil {
			return err
		}
		var innerErr error
		active, innerErr = n.mint.FlipSaleState()
		return innerErr
	})
	return active, err
}

// CutSupply lowers the collection supply cap.
func (n *Node) CutSupply(caller common.Address, newMax uint64) error {
	return n.execute(func() error {
		if err := n.requireOwner(caller); err != nil {
			return err
		}
		return n.registry.CutSupply(newMax)
	})
}

// SetBaseURI updates the collection metadata base.
func (n *Node) SetBaseURI(caller common.Address, uri string) error {
	return n.execute(func() error {
		if err := n.requireOwner(caller); err != nil {
			return err
		}
		return n.registry.SetBaseURI(uri)
	})
}

// SetContractURI updates the collection-level metadata URI.
func (n *Node) SetContractURI(caller common.Address, uri string) error {
	return n.execute(func() error {
		if err := n.requireOwner(caller); err != nil {
			return err
		}
		return n.registry.SetContractURI(uri)
	})
}

// TransferOwnership nominates a new owner. The handover completes only when
// the nominee accepts.
func (n *Node) TransferOwnership(caller, newOwner common.Address) error {
	return n.execute(func() error {
		if err := n.requireOwner(caller); err != nil {
			return err
		}
		if newOwner == (common.Address{}) {
			return ErrZeroAddress
		}
		if err := n.kv.KVPut(pendingOwnerKey(), newOwner); err != nil {
			return err
		}
		n.emitter.Emit(events.OwnerTransferStarted{Current: caller, Pending: newOwner})
		return nil
	})
}

// AcceptOwnership completes a pending handover.
func (n *Node) AcceptOwnership(caller common.Address) error {
	return n.execute(func() error {
		var pending common.Address
		ok, err := n.kv.KVGet(pendingOwnerKey(), &pending)
		if err != nil {
			return err
		}
		if !ok || pending != caller {
			return ErrNotPendingOwner
		}
		previous, err := n.owner()
		if err != nil {
			return err
		}
		if err := n.kv.KVPut(ownerKey(), caller); err != nil {
			return err
		}
		if err := n.kv.KVDelete(pendingOwnerKey()); err != nil {
			return err
		}
		n.emitter.Emit(events.OwnerTransferAccepted{Previous: previous, Owner: caller})
		return nil
	})
}

// --- queries ---
//
// Each query reads its whole snapshot under the read lock so observers never
// see the intermediate writes of a mutation that is still in flight (or about
// to be reverted).

// BankInfo is a consistent snapshot of the bank's public state.
type BankInfo struct {
	Address           common.Address
	Active            bool
	Collection        common.Address
	MaxPerTransaction uint64
	CustodyUnits      uint64
	Treasury          *big.Int
}

// MintInfo is a consistent snapshot of the sale state and supply figures.
type MintInfo struct {
	SaleActive bool
	Issued     uint64
	MaxSupply  uint64
}

// GuardParams is a consistent snapshot of the price-guard configuration.
type GuardParams struct {
	LookbackSeconds uint64
	DeviationBps    uint64
}

// CollectionInfo is a consistent snapshot of the collection's supply and
// metadata state.
type CollectionInfo struct {
	Issued      uint64
	MaxSupply   uint64
	ContractURI string
}

// Balances is a consistent snapshot of one account's holdings.
type Balances struct {
	Primary   *big.Int
	Secondary *big.Int
	Units     uint64
}

// Owner returns the current owner account.
func (n *Node) Owner() (common.Address, error) {
	var owner common.Address
	err := n.view(func() error {
		var innerErr error
		owner, innerErr = n.owner()
		return innerErr
	})
	if err != nil {
		return common.Address{}, err
	}
	return owner, nil
}

// BankInfo reports the bank's configuration, custody, and treasury state.
func (n *Node) BankInfo() (BankInfo, error) {
	var info BankInfo
	err := n.view(func() error {
		info.Address = n.bank.Address()
		var innerErr error
		if info.Active, innerErr = n.bank.Active(); innerErr != nil {
			return innerErr
		}
		if info.Collection, innerErr = n.bank.Collection(); innerErr != nil {
			return innerErr
		}
		if info.MaxPerTransaction, innerErr = n.bank.MaxPerTransaction(); innerErr != nil {
			return innerErr
		}
		if info.CustodyUnits, innerErr = n.registry.BalanceOf(info.Address); innerErr != nil {
			return innerErr
		}
		info.Treasury, innerErr = n.primary.BalanceOf(info.Address)
		return innerErr
	})
	if err != nil {
		return BankInfo{}, err
	}
	return info, nil
}

// MintInfo reports the sale state alongside the supply figures.
func (n *Node) MintInfo() (MintInfo, error) {
	var info MintInfo
	err := n.view(func() error {
		var innerErr error
		if info.SaleActive, innerErr = n.mint.SaleActive(); innerErr != nil {
			return innerErr
		}
		if info.Issued, innerErr = n.registry.TotalIssued(); innerErr != nil {
			return innerErr
		}
		info.MaxSupply, innerErr = n.registry.MaxSupply()
		return innerErr
	})
	if err != nil {
		return MintInfo{}, err
	}
	return info, nil
}

// GuardParams reports the TWAP guard configuration.
func (n *Node) GuardParams() (GuardParams, error) {
	var params GuardParams
	err := n.view(func() error {
		var innerErr error
		if params.LookbackSeconds, innerErr = n.guard.LookbackSeconds(); innerErr != nil {
			return innerErr
		}
		params.DeviationBps, innerErr = n.guard.DeviationBps()
		return innerErr
	})
	if err != nil {
		return GuardParams{}, err
	}
	return params, nil
}

// CollectionInfo reports supply and metadata state for the collection.
func (n *Node) CollectionInfo() (CollectionInfo, error) {
	var info CollectionInfo
	err := n.view(func() error {
		var innerErr error
		if info.Issued, innerErr = n.registry.TotalIssued(); innerErr != nil {
			return innerErr
		}
		if info.MaxSupply, innerErr = n.registry.MaxSupply(); innerErr != nil {
			return innerErr
		}
		info.ContractURI, innerErr = n.registry.ContractURI()
		return innerErr
	})
	if err != nil {
		return CollectionInfo{}, err
	}
	return info, nil
}

// TokenURI renders the metadata URI for an issued unit.
func (n *Node) TokenURI(id uint64) (string, error) {
	var uri string
	err := n.view(func() error {
		var innerErr error
		uri, innerErr = n.registry.TokenURI(id)
		return innerErr
	})
	if err != nil {
		return "", err
	}
	return uri, nil
}

// Balances reports the account's fungible and unit holdings.
func (n *Node) Balances(account common.Address) (Balances, error) {
	var balances Balances
	err := n.view(func() error {
		var innerErr error
		if balances.Primary, innerErr = n.primary.BalanceOf(account); innerErr != nil {
			return innerErr
		}
		if balances.Secondary, innerErr = n.secondary.BalanceOf(account); innerErr != nil {
			return innerErr
		}
		balances.Units, innerErr = n.registry.BalanceOf(account)
		return innerErr
	})
	if err != nil {
		return Balances{}, err
	}
	return balances, nil
}

// owner reads the owner account. Callers must hold the node lock.
func (n *Node) owner() (common.Address, error) {
	var owner common.Address
	if _, err := n.kv.KVGet(ownerKey(), &owner); err != nil {
		return common.Address{}, err
	}
	return owner, nil
}

func (n *Node) requireOwner(caller common.Address) error {
	owner, err := n.owner()
	if err != nil {
		return err
	}
	if caller != owner {
		return ErrNotOwner
	}
	return nil
}
