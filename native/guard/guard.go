package guard

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrPriceDeviationExceeded indicates the caller's input tolerance is
	// insufficient relative to the oracle-implied price.
	ErrPriceDeviationExceeded = errors.New("guard: price deviation exceeded")
	// ErrZeroInput indicates a config value was zero where zero is meaningless.
	ErrZeroInput = errors.New("guard: zero input")
	// ErrDeviationOutOfRange indicates a deviation above 10000 basis points.
	ErrDeviationOutOfRange = errors.New("guard: deviation must not exceed 10000 bps")
)

const bpsDenominator = 10000

// PoolOracle exposes the price history of the pool backing the swap pair.
type PoolOracle interface {
	// OldestObservationAge returns the age in seconds of the oldest observation
	// the pool still holds.
	OldestObservationAge() (uint64, error)
	// Consult returns the arithmetic-mean tick over the trailing window. A zero
	// window must return a spot-equivalent reading.
	Consult(windowSeconds uint64) (int64, error)
}

// State exposes the key-value access the guard needs for its configuration.
type State interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

func lookbackKey() []byte  { return []byte("guard/lookbackSeconds") }
func deviationKey() []byte { return []byte("guard/deviationBps") }

// Guard bounds swap inputs against a time-weighted mean price consulted from
// the pool oracle. It performs no writes outside its own configuration.
type Guard struct {
	state State
	pool  PoolOracle
}

// NewGuard constructs a guard, seeding configuration defaults when the state
// holds none yet.
func NewGuard(state State, pool PoolOracle, lookbackSeconds, deviationBps uint64) (*Guard, error) {
	if state == nil {
		return nil, errors.New("guard: state not configured")
	}
	if pool == nil {
		return nil, errors.New("guard: pool oracle not configured")
	}
	g := &Guard{state: state, pool: pool}
	ok, err := state.KVGet(lookbackKey(), nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := g.SetLookbackSeconds(lookbackSeconds); err != nil {
			return nil, err
		}
		if err := g.SetDeviationBps(deviationBps); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// LookbackSeconds returns the configured TWAP window.
func (g *Guard) LookbackSeconds() (uint64, error) {
	var lookback uint64
	if _, err := g.state.KVGet(lookbackKey(), &lookback); err != nil {
		return 0, err
	}
	return lookback, nil
}

// DeviationBps returns the allowed deviation in basis points.
func (g *Guard) DeviationBps() (uint64, error) {
	var deviation uint64
	if _, err := g.state.KVGet(deviationKey(), &deviation); err != nil {
		return 0, err
	}
	return deviation, nil
}

// SetLookbackSeconds updates the TWAP window. Zero is rejected.
func (g *Guard) SetLookbackSeconds(seconds uint64) error {
	if seconds == 0 {
		return ErrZeroInput
	}
	return g.state.KVPut(lookbackKey(), seconds)
}

// SetDeviationBps updates the allowed deviation. Zero and values above 10000
// basis points are rejected.
func (g *Guard) SetDeviationBps(bps uint64) error {
	if bps == 0 {
		return ErrZeroInput
	}
	if bps > bpsDenominator {
		return ErrDeviationOutOfRange
	}
	return g.state.KVPut(deviationKey(), bps)
}

// CheckBounded rejects the swap when the oracle-implied input for producing
// exactAmountOut exceeds maxAmountIn padded by the allowed deviation. The
// check is one-sided: it bounds how far the implied price may exceed the
// caller's tolerance, never the reverse.
func (g *Guard) CheckBounded(tokenIn, tokenOut common.Address, maxAmountIn, exactAmountOut *big.Int) error {
	if maxAmountIn == nil || maxAmountIn.Sign() <= 0 || exactAmountOut == nil || exactAmountOut.Sign() <= 0 {
		return ErrZeroInput
	}
	lookback, err := g.LookbackSeconds()
	if err != nil {
		return err
	}
	oldest, err := g.pool.OldestObservationAge()
	if err != nil {
		return err
	}
	// Degrade gracefully when the pool history is shorter than the window.
	if oldest < lookback {
		lookback = oldest
	}
	meanTick, err := g.pool.Consult(lookback)
	if err != nil {
		return err
	}
	impliedIn, err := QuoteAtTick(meanTick, exactAmountOut, tokenOut, tokenIn)
	if err != nil {
		return err
	}
	deviation, err := g.DeviationBps()
	if err != nil {
		return err
	}
	upperBound := new(big.Int).Mul(maxAmountIn, big.NewInt(bpsDenominator+int64(deviation)))
	upperBound.Div(upperBound, big.NewInt(bpsDenominator))
	if upperBound.Cmp(impliedIn) < 0 {
		return ErrPriceDeviationExceeded
	}
	return nil
}
