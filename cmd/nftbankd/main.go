package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftbank/config"
	"nftbank/core"
	"nftbank/core/state"
	"nftbank/explorer"
	"nftbank/native/bank"
	"nftbank/native/collection"
	nativecommon "nftbank/native/common"
	"nftbank/native/fees"
	"nftbank/native/guard"
	"nftbank/native/mint"
	"nftbank/native/swap"
	"nftbank/native/token"
	"nftbank/observability/logging"
	"nftbank/rpc"
	"nftbank/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: keep all state in memory instead of the data directory")
	flag.Parse()

	logger := logging.Setup("nftbankd")

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		db, err = storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("Failed to open database", slog.Any("error", err))
			os.Exit(1)
		}
	}
	defer db.Close()

	index, err := explorer.Open(cfg.EventIndex, logger)
	if err != nil {
		logger.Error("Failed to open event index", slog.Any("error", err))
		os.Exit(1)
	}
	defer index.Close()

	node, err := buildNode(cfg, db, index)
	if err != nil {
		logger.Error("Failed to assemble node", slog.Any("error", err))
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Method(http.MethodPost, "/", rpc.NewServer(node, index))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting JSON-RPC server", slog.String("address", cfg.RPCAddress))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// buildNode wires the ledgers, registry, guard, router, and engines over the
// shared journaled state, then applies the genesis allocations on first boot.
func buildNode(cfg *config.Config, db storage.Database, index *explorer.Index) (*core.Node, error) {
	kv := state.NewKV(db)

	primary, err := token.NewLedger("COIN", config.Address(cfg.PrimaryToken), kv, true)
	if err != nil {
		return nil, fmt.Errorf("primary ledger: %w", err)
	}
	secondary, err := token.NewLedger("SCOIN", config.Address(cfg.SecondaryToken), kv, false)
	if err != nil {
		return nil, fmt.Errorf("secondary ledger: %w", err)
	}
	registry, err := collection.NewRegistry(kv, cfg.MaxSupply)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	registry.SetEmitter(index)

	observations := guard.NewObservations()
	// Seed the pool at par so the first guarded swap has a reference tick.
	observations.Record(0)

	priceGuard, err := guard.NewGuard(kv, observations, cfg.LookbackSeconds, cfg.AllowedDeviationBps)
	if err != nil {
		return nil, fmt.Errorf("guard: %w", err)
	}
	poolRouter, err := swap.NewPoolRouter(config.Address(cfg.RouterAddress), primary, secondary, observations)
	if err != nil {
		return nil, fmt.Errorf("pool router: %w", err)
	}

	scope := &nativecommon.CallScope{}
	schedule := fees.DefaultSchedule()

	bankAddr := config.Address(cfg.BankAddress)
	bankEngine, err := bank.NewEngine(kv, registry, primary, secondary, schedule, bankAddr, cfg.MaxPerTransaction)
	if err != nil {
		return nil, fmt.Errorf("bank engine: %w", err)
	}
	bankEngine.SetCallScope(scope)
	bankEngine.SetEmitter(index)
	bankExecutor, err := swap.NewExecutor(priceGuard, poolRouter, primary, secondary, bankAddr, uint32(cfg.PoolFeePips))
	if err != nil {
		return nil, fmt.Errorf("bank executor: %w", err)
	}
	bankEngine.SetExecutor(bankExecutor)

	mintAddr := config.Address(cfg.MintAddress)
	mintEngine, err := mint.NewEngine(kv, registry, primary, secondary, schedule, mintAddr, bankAddr)
	if err != nil {
		return nil, fmt.Errorf("mint engine: %w", err)
	}
	mintEngine.SetCallScope(scope)
	mintEngine.SetEmitter(index)
	mintExecutor, err := swap.NewExecutor(priceGuard, poolRouter, primary, secondary, mintAddr, uint32(cfg.PoolFeePips))
	if err != nil {
		return nil, fmt.Errorf("mint executor: %w", err)
	}
	mintEngine.SetExecutor(mintExecutor)
	registry.SetTransferHook(mintEngine.BankTransferGuard)

	node, err := core.NewNode(core.Config{
		KV:        kv,
		Bank:      bankEngine,
		Mint:      mintEngine,
		Guard:     priceGuard,
		Registry:  registry,
		Primary:   primary,
		Secondary: secondary,
		Scope:     scope,
		Emitter:   index,
		Owner:     config.Address(cfg.Owner),
	})
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}

	if err := applyGenesis(kv, primary, secondary, cfg); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	return node, nil
}

func genesisAppliedKey() []byte { return []byte("node/genesisApplied") }

// applyGenesis mints the configured balances exactly once. Primary allocations
// fund the bank treasury and the router's pool liquidity; secondary allocations
// give accounts something to swap through the guarded paths.
func applyGenesis(kv *state.KV, primary, secondary *token.Ledger, cfg *config.Config) error {
	var applied bool
	ok, err := kv.KVGet(genesisAppliedKey(), &applied)
	if err != nil {
		return err
	}
	if ok && applied {
		kv.DiscardJournal()
		return nil
	}
	if err := mintBalances(primary, cfg.GenesisBalances); err != nil {
		return err
	}
	if err := mintBalances(secondary, cfg.GenesisSecondaryBalances); err != nil {
		return err
	}
	if err := kv.KVPut(genesisAppliedKey(), true); err != nil {
		return err
	}
	kv.DiscardJournal()
	return nil
}

func mintBalances(ledger *token.Ledger, balances map[string]string) error {
	for account, balance := range balances {
		amount, ok := new(big.Int).SetString(balance, 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("invalid genesis balance for %s: %q", account, balance)
		}
		if err := ledger.Mint(config.Address(account), amount); err != nil {
			return err
		}
	}
	return nil
}
