package bank

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
	// ErrInactive indicates the bank has not been activated yet.
	ErrInactive = errors.New("bank: not active")
	// ErrProhibited indicates an illegal one-time transition, e.g. re-activation.
	ErrProhibited = errors.New("bank: prohibited")
	// ErrLimitExceeded indicates the batch exceeds the per-transaction cap.
	ErrLimitExceeded = errors.New("bank: max per transaction exceeded")
	// ErrZeroInput indicates an empty batch or a zero configuration value.
	ErrZeroInput = errors.New("bank: zero input")
	// ErrZeroAddress indicates a zero address where one is meaningless.
	ErrZeroAddress = errors.New("bank: zero address")
	// ErrUnauthorized indicates a unit in the batch is not owned by the caller
	// (on deposit) or not held in bank custody (on withdrawal).
	ErrUnauthorized = errors.New("bank: unauthorized")
)

// State exposes the key-value access the engine needs.
type State interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

// Engine holds deposited collectible units and settles the price/fee split on
// every deposit and withdrawal. Custody lives on the engine's own account.
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
}

// NewEngine constructs a bank engine. The executor may be nil when secondary
// token withdrawals are not offered.
func NewEngine(state State, registry *collection.Registry, primary, secondary *token.Ledger, schedule fees.Schedule, self common.Address, maxPerTransaction uint64) (*Engine, error) {
	if state == nil {
		return nil, errors.New("bank: state not configured")
	}
	if registry == nil {
		return nil, errors.New("bank: collection registry not configured")
	}
	if primary == nil {
		return nil, errors.New("bank: primary ledger not configured")
	}
	if self == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if maxPerTransaction == 0 {
		return nil, ErrZeroInput
	}
	e := &Engine{
		state:     state,
		registry:  registry,
		primary:   primary,
		secondary: secondary,
		schedule:  schedule,
		emitter:   events.NoopEmitter{},
		self:      self,
	}
	ok, err := state.KVGet(maxPerTxKey(), nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := state.KVPut(maxPerTxKey(), maxPerTransaction); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SetExecutor wires the swap executor used by secondary-token withdrawals.
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

// Address returns the custody account.
func (e *Engine) Address() common.Address { return e.self }

// Active reports whether the bank has been switched on.
func (e *Engine) Active() (bool, error) {
	var active bool
	if _, err := e.state.KVGet(activeKey(), &active); err != nil {
		return false, err
	}
	return active, nil
}

// Collection returns the bound collection address, zero before activation.
func (e *Engine) Collection() (common.Address, error) {
	var addr common.Address
	if _, err := e.state.KVGet(collectionKey(), &addr); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// MaxPerTransaction returns the batch-size cap.
func (e *Engine) MaxPerTransaction() (uint64, error) {
	var max uint64
	if _, err := e.state.KVGet(maxPerTxKey(), &max); err != nil {
		return 0, err
	}
	return max, nil
}

// Activate switches the bank on and binds the collection address. The
// transition is one-way: a second call fails regardless of the address.
func (e *Engine) Activate(collectionAddr common.Address) error {
	if collectionAddr == (common.Address{}) {
		return ErrZeroAddress
	}
	active, err := e.Active()
	if err != nil {
		return err
	}
	if active {
		return fmt.Errorf("%w: already active", ErrProhibited)
	}
	if err := e.state.KVPut(collectionKey(), collectionAddr); err != nil {
		return err
	}
	if err := e.state.KVPut(activeKey(), true); err != nil {
		return err
	}
	e.emit(events.BankActivated{Collection: collectionAddr})
	return nil
}

// SetMaxPerTransaction updates the batch-size cap. Zero is rejected.
func (e *Engine) SetMaxPerTransaction(max uint64) error {
	if max == 0 {
		return ErrZeroInput
	}
	return e.state.KVPut(maxPerTxKey(), max)
}

// Deposit takes custody of the caller's units and pays out the price minus
// the burn fee, destroying the fee portion from the bank's own balance.
func (e *Engine) Deposit(caller common.Address, unitIDs []uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	exitScope := e.scope.Enter()
	defer exitScope()

	if err := e.checkBatch(unitIDs); err != nil {
		return err
	}
	// The whole batch must be owned by the caller before anything moves.
	for _, id := range unitIDs {
		owner, err := e.registry.OwnerOf(id)
		if err != nil {
			return err
		}
		if owner != caller {
			return fmt.Errorf("%w: unit %d not owned by depositor", ErrUnauthorized, id)
		}
	}
	// Ownership is re-verified per unit inside SafeTransfer, so a unit that
	// changed hands mid-batch aborts the deposit.
	for _, id := range unitIDs {
		if err := e.registry.SafeTransfer(e.self, caller, e.self, id); err != nil {
			return err
		}
	}
	n := uint64(len(unitIDs))
	burnFee := e.schedule.BurnFee(n)
	payout := e.schedule.DepositPayout(n)
	if err := e.primary.Burn(e.self, burnFee); err != nil {
		return err
	}
	if err := e.primary.Transfer(e.self, caller, payout); err != nil {
		return err
	}
	e.emit(events.BankDeposited{Account: caller, UnitIDs: unitIDs, Payout: payout, Burned: burnFee})
	return nil
}

// WithdrawDirect releases units from custody against a direct primary-token
// payment of price plus burn fee.
func (e *Engine) WithdrawDirect(caller common.Address, unitIDs []uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	exitScope := e.scope.Enter()
	defer exitScope()

	if err := e.checkWithdrawal(unitIDs); err != nil {
		return err
	}
	n := uint64(len(unitIDs))
	charge := e.schedule.WithdrawCharge(n)
	if err := e.primary.Transfer(caller, e.self, charge); err != nil {
		return err
	}
	return e.settleWithdrawal(caller, unitIDs, charge)
}

// WithdrawWithSecondary releases units from custody, sourcing the payment by
// swapping the caller's secondary token for exactly the charge. Unused
// secondary token is refunded by the executor.
func (e *Engine) WithdrawWithSecondary(caller common.Address, unitIDs []uint64, maxSecondary *big.Int, deadline int64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	exitScope := e.scope.Enter()
	defer exitScope()

	if e.executor == nil || e.secondary == nil {
		return errors.New("bank: secondary token withdrawals not configured")
	}
	if err := e.checkWithdrawal(unitIDs); err != nil {
		return err
	}
	if maxSecondary == nil || maxSecondary.Sign() <= 0 {
		return ErrZeroInput
	}
	n := uint64(len(unitIDs))
	charge := e.schedule.WithdrawCharge(n)
	// Stage the input in custody, then swap for exactly the charge. Payment is
	// secured before any unit leaves custody.
	if err := e.secondary.Transfer(caller, e.self, maxSecondary); err != nil {
		return err
	}
	if _, err := e.executor.SwapForExactOutput(caller, e.self, maxSecondary, charge, deadline); err != nil {
		return err
	}
	return e.settleWithdrawal(caller, unitIDs, charge)
}

func (e *Engine) settleWithdrawal(caller common.Address, unitIDs []uint64, charge *big.Int) error {
	burnFee := e.schedule.BurnFee(uint64(len(unitIDs)))
	if err := e.primary.Burn(e.self, burnFee); err != nil {
		return err
	}
	for _, id := range unitIDs {
		if err := e.registry.SafeTransfer(e.self, e.self, caller, id); err != nil {
			return err
		}
	}
	e.emit(events.BankWithdrawn{Account: caller, UnitIDs: unitIDs, Charged: charge, Burned: burnFee})
	return nil
}

func (e *Engine) checkBatch(unitIDs []uint64) error {
	active, err := e.Active()
	if err != nil {
		return err
	}
	if !active {
		return ErrInactive
	}
	if len(unitIDs) == 0 {
		return ErrZeroInput
	}
	max, err := e.MaxPerTransaction()
	if err != nil {
		return err
	}
	if uint64(len(unitIDs)) > max {
		return ErrLimitExceeded
	}
	return nil
}

func (e *Engine) checkWithdrawal(unitIDs []uint64) error {
	if err := e.checkBatch(unitIDs); err != nil {
		return err
	}
	for _, id := range unitIDs {
		owner, err := e.registry.OwnerOf(id)
		if err != nil {
			return err
		}
		if owner != e.self {
			return fmt.Errorf("%w: unit %d not in bank custody", ErrUnauthorized, id)
		}
	}
	return nil
}

func (e *Engine) emit(event events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}
