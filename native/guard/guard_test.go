package guard

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

type mockState struct {
	kv map[string][]byte
}

func newMockState() *mockState {
	return &mockState{kv: make(map[string][]byte)}
}

func (m *mockState) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockState) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

type stubOracle struct {
	age       uint64
	tick      int64
	consulted uint64
}

func (s *stubOracle) OldestObservationAge() (uint64, error) { return s.age, nil }

func (s *stubOracle) Consult(window uint64) (int64, error) {
	s.consulted = window
	return s.tick, nil
}

func newTestGuard(t *testing.T, oracle PoolOracle, lookback, deviation uint64) *Guard {
	t.Helper()
	g, err := NewGuard(newMockState(), oracle, lookback, deviation)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	return g
}

func TestCheckBoundedRejectionBoundary(t *testing.T) {
	// Tick zero makes the implied input equal the exact output, so the
	// boundary is easy to pin down: with 500 bps allowed and an implied input
	// of 100000, 95238 fails (floor(95238*10500/10000)=99999) and 95239 passes.
	oracle := &stubOracle{age: 600, tick: 0}
	g := newTestGuard(t, oracle, 300, 500)

	out := big.NewInt(100000)
	err := g.CheckBounded(token1, token0, big.NewInt(95238), out)
	if !errors.Is(err, ErrPriceDeviationExceeded) {
		t.Fatalf("below boundary: expected ErrPriceDeviationExceeded, got %v", err)
	}
	if err := g.CheckBounded(token1, token0, big.NewInt(95239), out); err != nil {
		t.Fatalf("at boundary: %v", err)
	}
	if err := g.CheckBounded(token1, token0, big.NewInt(100000), out); err != nil {
		t.Fatalf("at implied input: %v", err)
	}
}

func TestCheckBoundedClampsLookbackToHistory(t *testing.T) {
	oracle := &stubOracle{age: 120, tick: 0}
	g := newTestGuard(t, oracle, 300, 1000)

	if err := g.CheckBounded(token1, token0, big.NewInt(1000), big.NewInt(1000)); err != nil {
		t.Fatalf("check: %v", err)
	}
	if oracle.consulted != 120 {
		t.Fatalf("expected lookback clamped to 120, consulted %d", oracle.consulted)
	}

	oracle.age = 600
	if err := g.CheckBounded(token1, token0, big.NewInt(1000), big.NewInt(1000)); err != nil {
		t.Fatalf("check: %v", err)
	}
	if oracle.consulted != 300 {
		t.Fatalf("expected configured lookback 300, consulted %d", oracle.consulted)
	}
}

func TestCheckBoundedRejectsZeroInputs(t *testing.T) {
	g := newTestGuard(t, &stubOracle{age: 60}, 300, 500)
	if err := g.CheckBounded(token1, token0, big.NewInt(0), big.NewInt(1)); !errors.Is(err, ErrZeroInput) {
		t.Fatalf("zero max in: expected ErrZeroInput, got %v", err)
	}
	if err := g.CheckBounded(token1, token0, big.NewInt(1), nil); !errors.Is(err, ErrZeroInput) {
		t.Fatalf("nil out: expected ErrZeroInput, got %v", err)
	}
}

func TestSetterValidation(t *testing.T) {
	g := newTestGuard(t, &stubOracle{}, 300, 500)

	if err := g.SetLookbackSeconds(0); !errors.Is(err, ErrZeroInput) {
		t.Fatalf("zero lookback: expected ErrZeroInput, got %v", err)
	}
	if err := g.SetDeviationBps(0); !errors.Is(err, ErrZeroInput) {
		t.Fatalf("zero deviation: expected ErrZeroInput, got %v", err)
	}
	if err := g.SetDeviationBps(10001); !errors.Is(err, ErrDeviationOutOfRange) {
		t.Fatalf("oversized deviation: expected ErrDeviationOutOfRange, got %v", err)
	}
	if err := g.SetDeviationBps(10000); err != nil {
		t.Fatalf("10000 bps should be accepted: %v", err)
	}

	lookback, err := g.LookbackSeconds()
	if err != nil || lookback != 300 {
		t.Fatalf("lookback: got %d err %v", lookback, err)
	}
}

func TestObservationsTWAP(t *testing.T) {
	obs := NewObservations()
	current := time.Unix(1_700_000_000, 0)
	obs.SetClock(func() time.Time { return current })

	obs.Record(100)
	current = current.Add(30 * time.Second)
	obs.Record(200)
	current = current.Add(30 * time.Second)

	// Over 60s: tick 100 active for 30s, tick 200 active for 30s.
	mean, err := obs.Consult(60)
	if err != nil {
		t.Fatalf("consult: %v", err)
	}
	if mean != 150 {
		t.Fatalf("mean tick: got %d, want 150", mean)
	}

	spot, err := obs.Consult(0)
	if err != nil {
		t.Fatalf("spot: %v", err)
	}
	if spot != 200 {
		t.Fatalf("spot tick: got %d, want 200", spot)
	}

	age, err := obs.OldestObservationAge()
	if err != nil {
		t.Fatalf("age: %v", err)
	}
	if age != 60 {
		t.Fatalf("age: got %d, want 60", age)
	}
}

func TestObservationsEmpty(t *testing.T) {
	obs := NewObservations()
	if _, err := obs.Consult(60); !errors.Is(err, ErrNoObservations) {
		t.Fatalf("expected ErrNoObservations, got %v", err)
	}
	if _, err := obs.OldestObservationAge(); !errors.Is(err, ErrNoObservations) {
		t.Fatalf("expected ErrNoObservations, got %v", err)
	}
}

func TestObservationsCapEviction(t *testing.T) {
	obs := NewObservations()
	obs.SetSampleCap(4)
	current := time.Unix(1_700_000_000, 0)
	obs.SetClock(func() time.Time { return current })

	for i := 0; i < 10; i++ {
		obs.Record(int64(i))
		current = current.Add(time.Second)
	}
	age, err := obs.OldestObservationAge()
	if err != nil {
		t.Fatalf("age: %v", err)
	}
	if age != 4 {
		t.Fatalf("age after eviction: got %d, want 4", age)
	}
}
