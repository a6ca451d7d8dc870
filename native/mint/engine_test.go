package mint

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"nftbank/core/events"
	"nftbank/native/collection"
	nativecommon "nftbank/native/common"
	"nftbank/native/fees"
	"nftbank/native/guard"
	"nftbank/native/swap"
	"nftbank/native/token"
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

var (
	primaryAddr   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	secondaryAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
	routerAddr    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	bankAddr      = common.HexToAddress("0x4000000000000000000000000000000000000004")
	mintAddr      = common.HexToAddress("0x7000000000000000000000000000000000000007")
	buyer         = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fixture struct {
	state     *mockState
	primary   *token.Ledger
	secondary *token.Ledger
	registry  *collection.Registry
	engine    *Engine
	scope     *nativecommon.CallScope
	clock     time.Time
}

func newFixture(t *testing.T, maxSupply uint64) *fixture {
	t.Helper()
	f := &fixture{state: newMockState(), scope: &nativecommon.CallScope{}, clock: time.Unix(1_700_000_000, 0)}
	var err error
	f.primary, err = token.NewLedger("COIN", primaryAddr, f.state, true)
	if err != nil {
		t.Fatalf("primary ledger: %v", err)
	}
	f.secondary, err = token.NewLedger("SCOIN", secondaryAddr, f.state, false)
	if err != nil {
		t.Fatalf("secondary ledger: %v", err)
	}
	f.registry, err = collection.NewRegistry(f.state, maxSupply)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	f.engine, err = NewEngine(f.state, f.registry, f.primary, f.secondary, fees.DefaultSchedule(), mintAddr, bankAddr)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	f.engine.SetCallScope(f.scope)
	f.registry.SetTransferHook(f.engine.BankTransferGuard)

	observations := guard.NewObservations()
	observations.SetClock(func() time.Time { return f.clock })
	observations.Record(0)
	f.clock = f.clock.Add(10 * time.Minute)

	g, err := guard.NewGuard(f.state, observations, 300, 500)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	router, err := swap.NewPoolRouter(routerAddr, f.primary, f.secondary, observations)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	router.SetClock(func() time.Time { return f.clock })
	executor, err := swap.NewExecutor(g, router, f.primary, f.secondary, mintAddr, 3000)
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	f.engine.SetExecutor(executor)

	if err := f.primary.Mint(routerAddr, big.NewInt(10_000_000)); err != nil {
		t.Fatalf("fund router: %v", err)
	}
	return f
}

func (f *fixture) openSale(t *testing.T) {
	t.Helper()
	active, err := f.engine.FlipSaleState()
	if err != nil || !active {
		t.Fatalf("flip sale: active=%v err=%v", active, err)
	}
}

func TestMintDirectSplitsPayment(t *testing.T) {
	f := newFixture(t, 100)
	f.openSale(t)
	if err := f.primary.Mint(buyer, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	supplyBefore, err := f.primary.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}

	ids, err := f.engine.MintDirect(buyer, 3)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids: %v", ids)
	}

	bankBalance, err := f.primary.BalanceOf(bankAddr)
	if err != nil {
		t.Fatalf("bank balance: %v", err)
	}
	if bankBalance.Cmp(big.NewInt(300_000)) != 0 {
		t.Fatalf("bank sum: got %s, want 300000", bankBalance)
	}
	buyerBalance, err := f.primary.BalanceOf(buyer)
	if err != nil {
		t.Fatalf("buyer balance: %v", err)
	}
	// 1000000 - 300000 bank sum - 9000 burned.
	if buyerBalance.Cmp(big.NewInt(691_000)) != 0 {
		t.Fatalf("buyer balance: got %s, want 691000", buyerBalance)
	}
	supplyAfter, err := f.primary.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	burned := new(big.Int).Sub(supplyBefore, supplyAfter)
	if burned.Cmp(big.NewInt(9_000)) != 0 {
		t.Fatalf("burned: got %s, want 9000", burned)
	}
	owner, err := f.registry.OwnerOf(ids[0])
	if err != nil || owner != buyer {
		t.Fatalf("owner: %s err %v", owner.Hex(), err)
	}
}

func TestMintRequiresActiveSale(t *testing.T) {
	f := newFixture(t, 100)
	if _, err := f.engine.MintDirect(buyer, 1); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestMintRejectsZeroAmount(t *testing.T) {
	f := newFixture(t, 100)
	f.openSale(t)
	if _, err := f.engine.MintDirect(buyer, 0); !errors.Is(err, ErrZeroInput) {
		t.Fatalf("expected ErrZeroInput, got %v", err)
	}
}

func TestMintEnforcesSupplyCap(t *testing.T) {
	f := newFixture(t, 5)
	f.openSale(t)
	if err := f.primary.Mint(buyer, big.NewInt(10_000_000)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	if _, err := f.engine.MintDirect(buyer, 4); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.engine.MintDirect(buyer, 2); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestMintWithSecondarySecuresPaymentFirst(t *testing.T) {
	f := newFixture(t, 100)
	f.openSale(t)
	if err := f.secondary.Mint(buyer, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}

	// Two units: bank 200000, burn 6000, total 206000; the pool charges
	// 206618 at spot 1:1 with the 3000-pip fee.
	maxSecondary := big.NewInt(215_000)
	ids, err := f.engine.MintWithSecondary(buyer, 2, maxSecondary, f.clock.Unix()+60)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids: %v", ids)
	}

	balance, err := f.secondary.BalanceOf(buyer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	spent := new(big.Int).Sub(big.NewInt(1_000_000), balance)
	if spent.Cmp(big.NewInt(206_618)) != 0 {
		t.Fatalf("spent: got %s, want 206618", spent)
	}
	bankBalance, err := f.primary.BalanceOf(bankAddr)
	if err != nil {
		t.Fatalf("bank balance: %v", err)
	}
	if bankBalance.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("bank sum: got %s, want 200000", bankBalance)
	}
	allowance, err := f.secondary.Allowance(mintAddr, routerAddr)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if allowance.Sign() != 0 {
		t.Fatalf("residual allowance: %s", allowance)
	}
	// The module account keeps nothing for itself.
	residual, err := f.primary.BalanceOf(mintAddr)
	if err != nil {
		t.Fatalf("module balance: %v", err)
	}
	if residual.Sign() != 0 {
		t.Fatalf("module retained %s primary", residual)
	}
}

func TestMintWithSecondaryGuardRejection(t *testing.T) {
	f := newFixture(t, 100)
	f.openSale(t)
	if err := f.secondary.Mint(buyer, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	// Implied input for 206000 out is 206000; far below the tolerance band.
	_, err := f.engine.MintWithSecondary(buyer, 2, big.NewInt(150_000), f.clock.Unix()+60)
	if !errors.Is(err, guard.ErrPriceDeviationExceeded) {
		t.Fatalf("expected ErrPriceDeviationExceeded, got %v", err)
	}
}

func TestFlipSaleStateToggles(t *testing.T) {
	f := newFixture(t, 100)
	var captured []events.Event
	f.engine.SetEmitter(emitterFunc(func(ev events.Event) { captured = append(captured, ev) }))

	active, err := f.engine.FlipSaleState()
	if err != nil || !active {
		t.Fatalf("first flip: active=%v err=%v", active, err)
	}
	active, err = f.engine.FlipSaleState()
	if err != nil || active {
		t.Fatalf("second flip: active=%v err=%v", active, err)
	}
	if len(captured) != 2 || captured[0].EventType() != events.TypeSaleUpdated {
		t.Fatalf("expected two saleUpdated events, got %+v", captured)
	}
}

func TestBankTransferGuardBlocksNestedTransfers(t *testing.T) {
	f := newFixture(t, 100)
	ids, err := f.registry.Mint(buyer, buyer, 1)
	if err != nil {
		t.Fatalf("mint unit: %v", err)
	}

	// A top-level transfer into the bank is allowed.
	release := f.scope.Enter()
	if err := f.registry.SafeTransfer(buyer, buyer, bankAddr, ids[0]); err != nil {
		t.Fatalf("top-level transfer: %v", err)
	}
	release()

	ids2, err := f.registry.Mint(buyer, buyer, 1)
	if err != nil {
		t.Fatalf("mint unit: %v", err)
	}
	// A nested transfer from inside another module call is rejected.
	outer := f.scope.Enter()
	inner := f.scope.Enter()
	err = f.registry.SafeTransfer(buyer, buyer, bankAddr, ids2[0])
	inner()
	outer()
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	// The bank itself may always move units into custody.
	outer = f.scope.Enter()
	inner = f.scope.Enter()
	err = f.registry.SafeTransfer(bankAddr, buyer, bankAddr, ids2[0])
	inner()
	outer()
	if err != nil {
		t.Fatalf("bank-operated transfer: %v", err)
	}
}

type emitterFunc func(events.Event)

func (f emitterFunc) Emit(ev events.Event) { f(ev) }
