package guard

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Tick bounds of the pool's fixed-point price representation. A tick is the
// base-1.0001 logarithm of the token1/token0 price.
const (
	MinTick int64 = -887272
	MaxTick int64 = 887272
)

// ErrTickOutOfRange indicates the consulted tick falls outside the pool's
// representable price range.
var ErrTickOutOfRange = errors.New("guard: tick out of range")

var sqrtRatioMultipliers = []string{
	"0xfffcb933bd6fad37aa2d162d1a594001",
	"0xfff97272373d413259a46990580e213a",
	"0xfff2e50f5f656932ef12357cf3c7fdcc",
	"0xffe5caca7e10e4e61c3624eaa0941cd0",
	"0xffcb9843d60f6159c9db58835c926644",
	"0xff973b41fa98c081472e6896dfb254c0",
	"0xff2ea16466c96a3843ec78b326b52861",
	"0xfe5dee046a99a2a811c461f1969c3053",
	"0xfcbe86c7900a88aedcffc83b479aa3a4",
	"0xf987a7253ac413176f2b074cf7815e54",
	"0xf3392b0822b70005940c7a398e4b70f3",
	"0xe7159475a2c29b7443b29c7fa6e889d9",
	"0xd097f3bdfd2022b8845ad8f792aa5825",
	"0xa9f746462d870fdf8a65dc1f90e061e5",
	"0x70d869a156d2a1b890bb3df62baf32f7",
	"0x31be135f97d08fd981231505542fcfa6",
	"0x9aa508b5b7a84e1c677de54f3e99bc9",
	"0x5d6af8dedb81196699c329225ee604",
	"0x2216e584f5fa1ea926041bedfe98",
	"0x48a170391f7dc42444e8fa2",
}

var (
	sqrtRatioSeedEven = uint256.MustFromHex("0x100000000000000000000000000000000")
	ratioX192Shift    = new(big.Int).Lsh(big.NewInt(1), 192)
)

// SqrtRatioAtTick computes sqrt(1.0001^tick) as a Q64.96 fixed-point value.
// The arithmetic is carried out modulo 2^256, matching the pool's own
// representation exactly.
func SqrtRatioAtTick(tick int64) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfRange
	}
	absTick := uint64(tick)
	if tick < 0 {
		absTick = uint64(-tick)
	}

	ratio := new(uint256.Int).Set(sqrtRatioSeedEven)
	if absTick&1 != 0 {
		ratio = uint256.MustFromHex(sqrtRatioMultipliers[0])
	}
	for i := 1; i < len(sqrtRatioMultipliers); i++ {
		if absTick&(1<<uint(i)) != 0 {
			mult := uint256.MustFromHex(sqrtRatioMultipliers[i])
			ratio.Rsh(ratio.Mul(ratio, mult), 128)
		}
	}
	if tick > 0 {
		max := new(uint256.Int).Not(new(uint256.Int))
		ratio.Div(max, ratio)
	}

	// Round up from Q128.128 to Q64.96.
	remainder := new(uint256.Int).And(ratio, uint256.NewInt((1<<32)-1))
	ratio.Rsh(ratio, 32)
	if !remainder.IsZero() {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// QuoteAtTick converts baseAmount of baseToken into the equivalent amount of
// quoteToken at the supplied tick. Token ordering follows the pool convention:
// the numerically lower address is token0. Division floors, matching the pool.
func QuoteAtTick(tick int64, baseAmount *big.Int, baseToken, quoteToken common.Address) (*big.Int, error) {
	if baseAmount == nil || baseAmount.Sign() < 0 {
		return nil, errors.New("guard: base amount required")
	}
	sqrtRatio, err := SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	ratioX192 := new(big.Int).Mul(sqrtRatio.ToBig(), sqrtRatio.ToBig())

	quote := new(big.Int)
	if baseTokenIsToken0(baseToken, quoteToken) {
		quote.Mul(ratioX192, baseAmount)
		quote.Div(quote, ratioX192Shift)
	} else {
		quote.Mul(ratioX192Shift, baseAmount)
		quote.Div(quote, ratioX192)
	}
	return quote, nil
}

func baseTokenIsToken0(baseToken, quoteToken common.Address) bool {
	return baseToken.Cmp(quoteToken) < 0
}
