package swap

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftbank/native/guard"
	"nftbank/native/token"
)

const feePipsDenominator = 1_000_000

// PoolRouter is an in-process reference router. It prices exact-output swaps
// at the pool's spot tick plus the pool fee, pulls the input from the payer's
// allowance, and serves the output from its own reserve account. Each executed
// swap records a fresh observation so the TWAP history keeps moving.
type PoolRouter struct {
	address      common.Address
	primary      *token.Ledger
	secondary    *token.Ledger
	observations *guard.Observations
	now          func() time.Time
}

// NewPoolRouter constructs a router serving the primary/secondary pair. The
// router address doubles as its reserve account and must be funded with
// primary-token liquidity before swaps can settle.
func NewPoolRouter(address common.Address, primary, secondary *token.Ledger, observations *guard.Observations) (*PoolRouter, error) {
	if address == (common.Address{}) {
		return nil, errors.New("swap: router address required")
	}
	if primary == nil || secondary == nil {
		return nil, errors.New("swap: token ledgers not configured")
	}
	if observations == nil {
		return nil, errors.New("swap: observations not configured")
	}
	return &PoolRouter{
		address:      address,
		primary:      primary,
		secondary:    secondary,
		observations: observations,
		now:          time.Now,
	}, nil
}

// SetClock overrides the time source, primarily for deterministic testing.
func (r *PoolRouter) SetClock(now func() time.Time) {
	if r == nil || now == nil {
		return
	}
	r.now = now
}

// Address returns the router's reserve account.
func (r *PoolRouter) Address() common.Address { return r.address }

// SwapExactOutput implements Router against the in-process ledgers.
func (r *PoolRouter) SwapExactOutput(params ExactOutputParams) (*big.Int, error) {
	if params.Deadline > 0 && r.now().Unix() > params.Deadline {
		return nil, ErrDeadlineExpired
	}
	if params.AmountOut == nil || params.AmountOut.Sign() <= 0 {
		return nil, errors.New("swap: amount out required")
	}
	reserve, err := r.primary.BalanceOf(r.address)
	if err != nil {
		return nil, err
	}
	if reserve.Cmp(params.AmountOut) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	spot, err := r.observations.Consult(0)
	if err != nil {
		return nil, err
	}
	quote, err := guard.QuoteAtTick(spot, params.AmountOut, params.TokenOut, params.TokenIn)
	if err != nil {
		return nil, err
	}
	// Apply the pool fee as an input markup, rounding up against the trader.
	amountIn := new(big.Int).Mul(quote, big.NewInt(feePipsDenominator+int64(params.Fee)))
	amountIn.Add(amountIn, big.NewInt(feePipsDenominator-1))
	amountIn.Div(amountIn, big.NewInt(feePipsDenominator))

	if params.AmountInMaximum != nil && amountIn.Cmp(params.AmountInMaximum) > 0 {
		return nil, ErrExcessiveInput
	}
	if err := r.secondary.TransferFrom(r.address, params.Payer, r.address, amountIn); err != nil {
		return nil, err
	}
	if err := r.primary.Transfer(r.address, params.Recipient, params.AmountOut); err != nil {
		return nil, err
	}
	// The observation history lives in memory outside the state journal, so
	// this sample survives if the enclosing call later reverts. It re-records
	// the spot tick the swap was already priced at, so only the timestamp of
	// the history moves.
	r.observations.Record(spot)
	return amountIn, nil
}
