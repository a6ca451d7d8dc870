package core

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftbank/core/state"
	"nftbank/native/bank"
	"nftbank/native/collection"
	nativecommon "nftbank/native/common"
	"nftbank/native/fees"
	"nftbank/native/guard"
	"nftbank/native/mint"
	"nftbank/native/swap"
	"nftbank/native/token"
	"nftbank/storage"
)

var (
	primaryAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	secondaryAddr  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	routerAddr     = common.HexToAddress("0x3000000000000000000000000000000000000003")
	bankAddr       = common.HexToAddress("0x4000000000000000000000000000000000000004")
	mintAddr       = common.HexToAddress("0x7000000000000000000000000000000000000007")
	collectionAddr = common.HexToAddress("0x6000000000000000000000000000000000000006")
	admin          = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	user           = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stranger       = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type harness struct {
	node     *Node
	kv       *state.KV
	primary  *token.Ledger
	registry *collection.Registry
	clock    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{clock: time.Unix(1_700_000_000, 0)}
	h.kv = state.NewKV(storage.NewMemDB())

	var err error
	h.primary, err = token.NewLedger("COIN", primaryAddr, h.kv, true)
	if err != nil {
		t.Fatalf("primary: %v", err)
	}
	secondary, err := token.NewLedger("SCOIN", secondaryAddr, h.kv, false)
	if err != nil {
		t.Fatalf("secondary: %v", err)
	}
	h.registry, err = collection.NewRegistry(h.kv, 10_000)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	observations := guard.NewObservations()
	observations.SetClock(func() time.Time { return h.clock })
	observations.Record(0)
	h.clock = h.clock.Add(10 * time.Minute)

	g, err := guard.NewGuard(h.kv, observations, 300, 500)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	router, err := swap.NewPoolRouter(routerAddr, h.primary, secondary, observations)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	router.SetClock(func() time.Time { return h.clock })

	scope := &nativecommon.CallScope{}
	schedule := fees.DefaultSchedule()

	bankEngine, err := bank.NewEngine(h.kv, h.registry, h.primary, secondary, schedule, bankAddr, 50)
	if err != nil {
		t.Fatalf("bank: %v", err)
	}
	bankEngine.SetCallScope(scope)
	bankExecutor, err := swap.NewExecutor(g, router, h.primary, secondary, bankAddr, 3000)
	if err != nil {
		t.Fatalf("bank executor: %v", err)
	}
	bankEngine.SetExecutor(bankExecutor)

	mintEngine, err := mint.NewEngine(h.kv, h.registry, h.primary, secondary, schedule, mintAddr, bankAddr)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	mintEngine.SetCallScope(scope)
	mintExecutor, err := swap.NewExecutor(g, router, h.primary, secondary, mintAddr, 3000)
	if err != nil {
		t.Fatalf("mint executor: %v", err)
	}
	mintEngine.SetExecutor(mintExecutor)
	h.registry.SetTransferHook(mintEngine.BankTransferGuard)

	h.node, err = NewNode(Config{
		KV:        h.kv,
		Bank:      bankEngine,
		Mint:      mintEngine,
		Guard:     g,
		Registry:  h.registry,
		Primary:   h.primary,
		Secondary: secondary,
		Scope:     scope,
		Owner:     admin,
	})
	if err != nil {
		t.Fatalf("node: %v", err)
	}

	if err := h.primary.Mint(routerAddr, big.NewInt(10_000_000)); err != nil {
		t.Fatalf("fund router: %v", err)
	}
	h.kv.DiscardJournal()
	return h
}

func TestAdminSurfaceIsOwnerGated(t *testing.T) {
	h := newHarness(t)

	if err := h.node.ActivateBank(stranger, collectionAddr); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := h.node.ActivateBank(admin, collectionAddr); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := h.node.ActivateBank(admin, collectionAddr); !errors.Is(err, bank.ErrProhibited) {
		t.Fatalf("expected ErrProhibited on re-activation, got %v", err)
	}
	if err := h.node.SetDeviationBps(admin, 10001); !errors.Is(err, guard.ErrDeviationOutOfRange) {
		t.Fatalf("expected ErrDeviationOutOfRange, got %v", err)
	}
}

func TestTwoPhaseOwnershipHandover(t *testing.T) {
	h := newHarness(t)

	if err := h.node.TransferOwnership(admin, stranger); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	// Until acceptance the old owner stays in charge.
	if err := h.node.SetMaxPerTransaction(stranger, 10); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("nominee should not be owner yet, got %v", err)
	}
	if err := h.node.AcceptOwnership(user); !errors.Is(err, ErrNotPendingOwner) {
		t.Fatalf("expected ErrNotPendingOwner, got %v", err)
	}
	if err := h.node.AcceptOwnership(stranger); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := h.node.SetMaxPerTransaction(stranger, 10); err != nil {
		t.Fatalf("new owner rejected: %v", err)
	}
	if err := h.node.SetMaxPerTransaction(admin, 10); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("old owner should be deposed, got %v", err)
	}
}

func TestFailedCallLeavesNoPartialState(t *testing.T) {
	h := newHarness(t)
	if err := h.node.ActivateBank(admin, collectionAddr); err != nil {
		t.Fatalf("activate: %v", err)
	}
	ids, err := h.registry.Mint(user, user, 2)
	if err != nil {
		t.Fatalf("mint units: %v", err)
	}
	h.kv.DiscardJournal()

	// The bank treasury is empty, so the deposit fails after the units have
	// already been journaled into custody; everything must roll back.
	err = h.node.Deposit(user, ids)
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	for _, id := range ids {
		owner, err := h.registry.OwnerOf(id)
		if err != nil {
			t.Fatalf("owner of %d: %v", id, err)
		}
		if owner != user {
			t.Fatalf("unit %d stuck in custody after revert", id)
		}
	}
	balance, err := h.primary.BalanceOf(user)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("user received funds from a reverted call: %s", balance)
	}
}

func TestQueriesNeverObserveRevertedState(t *testing.T) {
	h := newHarness(t)
	if err := h.node.ActivateBank(admin, collectionAddr); err != nil {
		t.Fatalf("activate: %v", err)
	}
	ids, err := h.registry.Mint(user, user, 2)
	if err != nil {
		t.Fatalf("mint units: %v", err)
	}
	h.kv.DiscardJournal()

	// Each deposit writes the units into custody before failing against the
	// empty treasury. Readers serialise against the in-flight call, so they
	// must only ever see the rolled-back state.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if err := h.node.Deposit(user, ids); !errors.Is(err, token.ErrInsufficientBalance) {
				t.Errorf("deposit %d: expected ErrInsufficientBalance, got %v", i, err)
				return
			}
		}
	}()
	for {
		select {
		case <-done:
			return
		default:
		}
		info, err := h.node.BankInfo()
		if err != nil {
			t.Fatalf("bank info: %v", err)
		}
		if info.CustodyUnits != 0 {
			t.Fatalf("observed %d custody units from a reverted call", info.CustodyUnits)
		}
		balances, err := h.node.Balances(user)
		if err != nil {
			t.Fatalf("balances: %v", err)
		}
		if balances.Units != 2 || balances.Primary.Sign() != 0 {
			t.Fatalf("observed reverted holdings: units %d primary %s", balances.Units, balances.Primary)
		}
	}
}

func TestMintDepositWithdrawFlow(t *testing.T) {
	h := newHarness(t)
	if err := h.node.ActivateBank(admin, collectionAddr); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := h.node.FlipSaleState(admin); err != nil {
		t.Fatalf("open sale: %v", err)
	}
	if err := h.primary.Mint(user, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund user: %v", err)
	}
	h.kv.DiscardJournal()

	ids, err := h.node.MintDirect(user, 2)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := h.node.Deposit(user, ids); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.node.WithdrawDirect(user, ids); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	owner, err := h.registry.OwnerOf(ids[0])
	if err != nil || owner != user {
		t.Fatalf("owner after round trip: %s err %v", owner.Hex(), err)
	}
}
