package mint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"nftbank/core/events"
	"nftbank/native/collection"
	nativecommon "nftbank/native/common"
	"nftbank/native/fees"
	"nftbank/native/swap"
	"nftbank/native/token"
)

var (
	// ErrInactive indicates the sale is currently switched off.
	ErrInactive = errors.New("mint: sale not active")
	// ErrZeroInput indicates a zero mint amount.
	ErrZeroInput = errors.New("mint: zero input")
	// ErrLimitExceeded indicates the mint would breach the supply cap.
	ErrLimitExceeded = errors.New("mint: supply cap exceeded")
	// ErrUnauthorized indicates a disallowed transfer path into the bank.
	ErrUnauthorized = errors.New("mint: unauthorized transfer to bank")
)

func saleKey() []byte { return []byte("mint/saleActive") }

// State exposes the key-value access the engine needs.
type State interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

// Engine issues new collectible units against primary-token payment, routing
// the price portion to the bank and destroying the fee portion.
type Engine struct {
	state     State
	registry  *collection.Registry
	primary   *token.Ledger
	secondary *token.Ledger
	executor  *swap.Executor
	schedule  fees.Schedule
	emitter   events.Emitter
	guard     nativecommon.ReentrancyGuard
	scope     *nativecommon.CallScope
	self      common.Address
	bank      common.Address
}

// NewEngine constructs a mint engine bound to the bank's custody account.
func NewEngine(state State, registry *collection.Registry, primary, secondary *token.Ledger, schedule fees.Schedule, self, bank common.Address) (*Engine, error) {
	if state == nil {
		return nil, errors.New("mint: state not configured")
	}
	if registry == nil {
		return nil, errors.New("mint: collection registry not configured")
	}
	if primary == nil {
		return nil, errors.New("mint: primary ledger not configured")
	}
	if self == (common.Address{}) || bank == (common.Address{}) {
		return nil, errors.New("mint: zero address")
	}
	return &Engine{
		state:     state,
		registry:  registry,
		primary:   primary,
		secondary: secondary,
		schedule:  schedule,
		emitter:   events.NoopEmitter{},
		self:      self,
		bank:      bank,
	}, nil
}

// SetExecutor wires the swap executor used by secondary-token mints.
func (e *Engine) SetExecutor(executor *swap.Executor) { e.executor = executor }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetCallScope wires the shared call-depth tracker.
func (e *Engine) SetCallScope(scope *nativecommon.CallScope) { e.scope = scope }

// Address returns the module account holding swap custody.
func (e *Engine) Address() common.Address { return e.self }

// SaleActive reports whether minting is currently enabled.
func (e *Engine) SaleActive() (bool, error) {
	var active bool
	if _, err := e.state.KVGet(saleKey(), &active); err != nil {
		return false, err
	}
	return active, nil
}

// FlipSaleState toggles the sale flag and reports the new state.
func (e *Engine) FlipSaleState() (bool, error) {
	active, err := e.SaleActive()
	if err != nil {
		return false, err
	}
	next := !active
	if err := e.state.KVPut(saleKey(), next); err != nil {
		return false, err
	}
	e.emit(events.SaleUpdated{Active: next})
	return next, nil
}

// BankTransferGuard is the collection pre-transfer hook keeping laundered
// units out of the bank: movements into bank custody must either be made by
// the bank itself or originate from a direct top-level action.
func (e *Engine) BankTransferGuard(operator, from, to common.Address, id uint64) error {
	if to != e.bank {
		return nil
	}
	if operator == e.bank {
		return nil
	}
	if e.scope != nil && !e.scope.TopLevel() {
		return fmt.Errorf("%w: unit %d", ErrUnauthorized, id)
	}
	return nil
}

// MintDirect issues amount units to the caller against direct primary-token
// payment: the price portion moves to the bank, the fee portion is burned
// from the caller's balance.
func (e *Engine) MintDirect(caller common.Address, amount uint64) ([]uint64, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()
	exitScope := e.scope.Enter()
	defer exitScope()

	if err := e.checkMint(amount); err != nil {
		return nil, err
	}
	bankSum, burnSum := e.schedule.MintSums(amount)
	if err := e.primary.Transfer(caller, e.bank, bankSum); err != nil {
		return nil, err
	}
	if err := e.primary.Burn(caller, burnSum); err != nil {
		return nil, err
	}
	ids, err := e.registry.Mint(e.self, caller, amount)
	if err != nil {
		return nil, err
	}
	e.emit(events.MintSettled{Recipient: caller, Amount: amount, BankSum: bankSum, Burned: burnSum})
	return ids, nil
}

// MintWithSecondary issues amount units to the caller, sourcing the payment
// by swapping the caller's secondary token for exactly price plus fee. Units
// are issued only after the payment is secured.
func (e *Engine) MintWithSecondary(caller common.Address, amount uint64, maxSecondary *big.Int, deadline int64) ([]uint64, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()
	exitScope := e.scope.Enter()
	defer exitScope()

	if e.executor == nil || e.secondary == nil {
		return nil, errors.New("mint: secondary token mints not configured")
	}
	if err := e.checkMint(amount); err != nil {
		return nil, err
	}
	if maxSecondary == nil || maxSecondary.Sign() <= 0 {
		return nil, ErrZeroInput
	}
	bankSum, burnSum := e.schedule.MintSums(amount)
	total := new(big.Int).Add(bankSum, burnSum)
	if err := e.secondary.Transfer(caller, e.self, maxSecondary); err != nil {
		return nil, err
	}
	if _, err := e.executor.SwapForExactOutput(caller, e.self, maxSecondary, total, deadline); err != nil {
		return nil, err
	}
	if err := e.primary.Transfer(e.self, e.bank, bankSum); err != nil {
		return nil, err
	}
	if err := e.primary.Burn(e.self, burnSum); err != nil {
		return nil, err
	}
	ids, err := e.registry.Mint(e.self, caller, amount)
	if err != nil {
		return nil, err
	}
	e.emit(events.MintSettled{Recipient: caller, Amount: amount, BankSum: bankSum, Burned: burnSum})
	return ids, nil
}

func (e *Engine) checkMint(amount uint64) error {
	active, err := e.SaleActive()
	if err != nil {
		return err
	}
	if !active {
		return ErrInactive
	}
	if amount == 0 {
		return ErrZeroInput
	}
	issued, err := e.registry.TotalIssued()
	if err != nil {
		return err
	}
	maxSupply, err := e.registry.MaxSupply()
	if err != nil {
		return err
	}
	if issued+amount > maxSupply {
		return ErrLimitExceeded
	}
	return nil
}

func (e *Engine) emit(event events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}
