package swap

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"nftbank/native/guard"
	"nftbank/native/token"
)

// Errors surfaced by the router. They propagate untouched through the executor
// so a failed swap reverts the entire enclosing entry point.
var (
	// ErrDeadlineExpired indicates the swap deadline elapsed before execution.
	ErrDeadlineExpired = errors.New("swap: deadline expired")
	// ErrInsufficientLiquidity indicates the pool cannot produce the exact output.
	ErrInsufficientLiquidity = errors.New("swap: insufficient liquidity")
	// ErrExcessiveInput indicates the required input exceeds the caller maximum.
	ErrExcessiveInput = errors.New("swap: required input exceeds maximum")
)

// ExactOutputParams describes one exact-output swap request. The value exists
// only for the duration of a single call and is never persisted.
type ExactOutputParams struct {
	TokenIn         common.Address
	TokenOut        common.Address
	Fee             uint32
	Payer           common.Address
	Recipient       common.Address
	Deadline        int64
	AmountOut       *big.Int
	AmountInMaximum *big.Int
}

// Router executes exact-output swaps. It pulls up to AmountInMaximum of the
// input token from the payer's granted allowance and credits AmountOut of the
// output token to the recipient, returning the input actually consumed.
type Router interface {
	Address() common.Address
	SwapExactOutput(params ExactOutputParams) (*big.Int, error)
}

// Executor performs oracle-guarded exact-output swaps of the secondary token
// for the primary token on behalf of one module. The module's custody account
// holds the input before the call and receives nothing itself: output lands on
// the configured beneficiary and unspent input returns to the original caller.
type Executor struct {
	guard     *guard.Guard
	router    Router
	primary   *token.Ledger
	secondary *token.Ledger
	custody   common.Address
	poolFee   uint32
}

// NewExecutor wires an executor for the module holding custody.
func NewExecutor(g *guard.Guard, router Router, primary, secondary *token.Ledger, custody common.Address, poolFee uint32) (*Executor, error) {
	if g == nil {
		return nil, errors.New("swap: guard not configured")
	}
	if router == nil {
		return nil, errors.New("swap: router not configured")
	}
	if primary == nil || secondary == nil {
		return nil, errors.New("swap: token ledgers not configured")
	}
	if custody == (common.Address{}) {
		return nil, errors.New("swap: custody address required")
	}
	return &Executor{
		guard:     g,
		router:    router,
		primary:   primary,
		secondary: secondary,
		custody:   custody,
		poolFee:   poolFee,
	}, nil
}

// SwapForExactOutput swaps the secondary token held in custody for exactly
// exactAmountOut of the primary token, credited to the beneficiary.
//
// Precondition: the caller has already moved maxAmountIn of the secondary
// token into the custody account. After a successful call the router's
// allowance over custody is back to its pre-call value and any unspent input
// has been refunded to the caller.
func (e *Executor) SwapForExactOutput(caller, beneficiary common.Address, maxAmountIn, exactAmountOut *big.Int, deadline int64) (*big.Int, error) {
	if err := e.guard.CheckBounded(e.secondary.Address(), e.primary.Address(), maxAmountIn, exactAmountOut); err != nil {
		return nil, err
	}
	if err := e.secondary.Approve(e.custody, e.router.Address(), maxAmountIn); err != nil {
		return nil, err
	}
	amountIn, err := e.router.SwapExactOutput(ExactOutputParams{
		TokenIn:         e.secondary.Address(),
		TokenOut:        e.primary.Address(),
		Fee:             e.poolFee,
		Payer:           e.custody,
		Recipient:       beneficiary,
		Deadline:        deadline,
		AmountOut:       new(big.Int).Set(exactAmountOut),
		AmountInMaximum: new(big.Int).Set(maxAmountIn),
	})
	if err != nil {
		return nil, err
	}
	// Refund unspent input and drop the matching allowance so no residual
	// approval survives the call.
	if amountIn.Cmp(maxAmountIn) < 0 {
		unspent := new(big.Int).Sub(maxAmountIn, amountIn)
		if err := e.secondary.Transfer(e.custody, caller, unspent); err != nil {
			return nil, err
		}
		if err := e.secondary.DecreaseAllowance(e.custody, e.router.Address(), unspent); err != nil {
			return nil, err
		}
	}
	return amountIn, nil
}
