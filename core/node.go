package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"bondchain/core/events"
	"bondchain/core/state"
	"bondchain/core/types"
	"bondchain/crypto"
	"bondchain/native/bond"
	nativecommon "bondchain/native/common"
	"bondchain/native/oracle"
	"bondchain/native/registry"
	"bondchain/native/vault"
	"bondchain/observability"
	"bondchain/storage"
)

var (
	// ErrNotAdmin rejects node-level admin operations from any other caller.
	ErrNotAdmin = errors.New("node: caller is not the admin")
	// ErrMintAmountZero rejects zero-amount token mints.
	ErrMintAmountZero = errors.New("node: mint amount is zero")
	// ErrTokenUnknown is returned when a token operation names an
	// unregistered symbol.
	ErrTokenUnknown = errors.New("node: token not registered")
)

var genesisAppliedKey = []byte("bondchain/genesis-applied")

// GenesisToken seeds one transferable asset into the token ledger.
type GenesisToken struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// GenesisBond seeds one bond instrument into the bond token ledger.
type GenesisBond struct {
	Symbol         string
	Name           string
	Underlying     string
	ExpirationTime uint64
}

// GenesisFeed seeds one operator-driven price feed into the oracle.
type GenesisFeed struct {
	Symbol      string
	Asset       string
	Description string
}

// Genesis is the full first-boot seed. It is applied once; subsequent boots
// with the same data directory skip it.
type Genesis struct {
	Tokens   []GenesisToken
	Bonds    []GenesisBond
	Feeds    []GenesisFeed
	MaxBonds uint64
}

// Node owns the database and wires the native modules together for each call.
// Every state-changing entry point runs against a write overlay that commits
// only when the whole call succeeds, so partial effects never reach the
// database. Calls are serialized.
type Node struct {
	mu    sync.Mutex
	db    storage.Database
	log   *slog.Logger
	admin crypto.Address

	pauses  *nativecommon.Pauses
	oracle  *oracle.Adapter
	sources map[string]*oracle.ManualSource

	controller crypto.Address
	now        func() time.Time

	eventsMu sync.RWMutex
	events   []types.Event
}

func NewNode(db storage.Database, admin crypto.Address, log *slog.Logger) *Node {
	if log == nil {
		log = slog.Default()
	}
	n := &Node{
		db:         db,
		log:        log,
		admin:      admin,
		pauses:     nativecommon.NewPauses(),
		sources:    make(map[string]*oracle.ManualSource),
		controller: crypto.ModuleAddress("bond"),
		now:        time.Now,
	}
	n.oracle = oracle.NewAdapter(admin, nodeEmitter{node: n})
	return n
}

// Admin returns the node's policy admin identity.
func (n *Node) Admin() crypto.Address { return n.admin }

// SetTimeSource overrides the clock used for bond maturity checks.
func (n *Node) SetTimeSource(now func() time.Time) {
	if n == nil || now == nil {
		return
	}
	n.now = now
}

// SetModulePaused toggles the circuit breaker for a native module.
func (n *Node) SetModulePaused(caller crypto.Address, module string, paused bool) error {
	if !caller.Equal(n.admin) {
		return ErrNotAdmin
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pauses.SetPaused(module, paused)
	n.log.Info("module pause toggled", "module", module, "paused", paused)
	return nil
}

// PauseModules marks the named modules paused without an admin check. Used at
// boot to honor the configured pause set.
func (n *Node) PauseModules(modules []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, module := range modules {
		n.pauses.SetPaused(module, true)
	}
}

// nodeEmitter publishes events straight to the node's log. It backs the
// oracle adapter, whose feed table lives outside the state overlay.
type nodeEmitter struct {
	node *Node
}

func (e nodeEmitter) Emit(event events.Event) {
	if e.node == nil || event == nil {
		return
	}
	e.node.publish([]events.Event{event})
}

func (n *Node) publish(emitted []events.Event) {
	if len(emitted) == 0 {
		return
	}
	n.eventsMu.Lock()
	defer n.eventsMu.Unlock()
	for _, event := range emitted {
		if flat := event.Event(); flat != nil {
			n.events = append(n.events, *flat)
		}
	}
}

// Events returns a copy of the committed event log, newest last.
func (n *Node) Events() []types.Event {
	n.eventsMu.RLock()
	defer n.eventsMu.RUnlock()
	out := make([]types.Event, len(n.events))
	copy(out, n.events)
	return out
}

// modules is the per-call wiring of the native engines over one state manager.
type modules struct {
	manager  *state.Manager
	registry *registry.Registry
	vaults   *vault.Engine
	ledger   *bond.Ledger
	bonds    *bond.Controller
}

func (n *Node) buildModules(manager *state.Manager, emitter events.Emitter) *modules {
	reg := registry.New(n.admin, emitter)
	reg.SetState(manager)

	ledger := bond.NewLedger(n.controller)
	ledger.SetState(manager)
	ledger.SetEmitter(emitter)

	engine := vault.NewEngine(reg, n.oracle, ledger)
	engine.SetState(manager)
	engine.SetEmitter(emitter)
	engine.SetPauses(n.pauses)
	engine.SetController(n.controller)

	ctrl := bond.NewController(reg, engine, ledger)
	ctrl.SetState(manager)
	ctrl.SetEmitter(emitter)
	ctrl.SetPauses(n.pauses)
	ctrl.SetTimeSource(n.now)

	return &modules{
		manager:  manager,
		registry: reg,
		vaults:   engine,
		ledger:   ledger,
		bonds:    ctrl,
	}
}

// write runs fn against an overlay and commits only on success. Events emitted
// during the call reach observers only after the commit.
func (n *Node) write(module, operation string, fn func(*modules) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	overlay := storage.NewOverlay(n.db)
	recorder := events.NewRecorder()
	env := n.buildModules(state.NewManager(overlay), recorder)

	err := fn(env)
	observability.LedgerMetrics().RecordOperation(module, operation, err)
	if err != nil {
		overlay.Discard()
		n.log.Debug("operation rejected", "module", module, "operation", operation, "error", err.Error())
		return err
	}
	if err := overlay.Commit(); err != nil {
		return fmt.Errorf("commit %s.%s: %w", module, operation, err)
	}
	n.publish(recorder.Events())
	return nil
}

// read runs fn against the database directly; nothing may be written.
func (n *Node) read(fn func(*modules) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.buildModules(state.NewManager(n.db), events.NoopEmitter{}))
}

// ApplyGenesis seeds tokens, bond instruments, feeds, and the vault limit on
// first boot. It is a no-op when the data directory was already seeded.
func (n *Node) ApplyGenesis(genesis Genesis) error {
	applied, err := n.db.Get(genesisAppliedKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if len(applied) > 0 {
		return nil
	}

	err = n.write("node", "applyGenesis", func(env *modules) error {
		for _, token := range genesis.Tokens {
			if err := env.manager.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
				return err
			}
		}
		for _, seed := range genesis.Bonds {
			token, err := bond.NewToken(seed.Symbol, seed.Name, seed.Underlying, genesisDecimals(genesis.Tokens, seed.Underlying), seed.ExpirationTime, n.now())
			if err != nil {
				return fmt.Errorf("genesis bond %s: %w", seed.Symbol, err)
			}
			if err := env.ledger.Register(token); err != nil {
				return fmt.Errorf("genesis bond %s: %w", seed.Symbol, err)
			}
		}
		if genesis.MaxBonds > 0 {
			if err := env.manager.RegistryPutMaxBonds(genesis.MaxBonds); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, feed := range genesis.Feeds {
		if _, err := n.registerFeed(n.admin, feed.Symbol, feed.Asset, feed.Description); err != nil {
			return fmt.Errorf("genesis feed %s: %w", feed.Symbol, err)
		}
	}

	if err := n.db.Put(genesisAppliedKey, []byte{1}); err != nil {
		return err
	}
	n.log.Info("genesis applied",
		"tokens", len(genesis.Tokens),
		"bonds", len(genesis.Bonds),
		"feeds", len(genesis.Feeds))
	return nil
}

func genesisDecimals(tokens []GenesisToken, symbol string) uint8 {
	normalized := registry.NormalizeSymbol(symbol)
	for _, token := range tokens {
		if registry.NormalizeSymbol(token.Symbol) == normalized {
			return token.Decimals
		}
	}
	return 0
}

// --- token ledger ---

// MintToken credits amount of a registered token to an account. Admin only;
// this is how collateral and underlying balances enter the ledger.
func (n *Node) MintToken(caller crypto.Address, symbol string, account crypto.Address, amount *big.Int) error {
	return n.write("node", "mintToken", func(env *modules) error {
		if !caller.Equal(n.admin) {
			return ErrNotAdmin
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrMintAmountZero
		}
		normalized := registry.NormalizeSymbol(symbol)
		meta, err := env.manager.Token(normalized)
		if err != nil {
			return err
		}
		if meta == nil {
			return ErrTokenUnknown
		}
		target, err := env.manager.GetAccount(account)
		if err != nil {
			return err
		}
		target.SetBalance(normalized, new(big.Int).Add(target.Balance(normalized), amount))
		return env.manager.PutAccount(account, target)
	})
}

// GetAccount returns the ledger record for an address.
func (n *Node) GetAccount(addr crypto.Address) (*types.Account, error) {
	var account *types.Account
	err := n.read(func(env *modules) error {
		loaded, err := env.manager.GetAccount(addr)
		if err != nil {
			return err
		}
		account = loaded
		return nil
	})
	return account, err
}

// TokenList returns the registered token symbols.
func (n *Node) TokenList() ([]string, error) {
	var list []string
	err := n.read(func(env *modules) error {
		loaded, err := env.manager.TokenList()
		if err != nil {
			return err
		}
		list = loaded
		return nil
	})
	return list, err
}

// --- policy registry ---

func (n *Node) ListCollateral(caller crypto.Address, symbol string) error {
	return n.write("registry", "listCollateral", func(env *modules) error {
		return env.registry.ListCollateral(caller, symbol)
	})
}

func (n *Node) ListBond(caller crypto.Address, id string, acceptedCollateral []string) error {
	return n.write("registry", "listBond", func(env *modules) error {
		return env.registry.ListBond(caller, id, acceptedCollateral)
	})
}

func (n *Node) SetCollateralizationRatio(caller crypto.Address, id string, ratio *big.Int) error {
	return n.write("registry", "setCollateralizationRatio", func(env *modules) error {
		return env.registry.SetCollateralizationRatio(caller, id, ratio)
	})
}

func (n *Node) SetLiquidationIncentive(caller crypto.Address, id string, incentive *big.Int) error {
	return n.write("registry", "setLiquidationIncentive", func(env *modules) error {
		return env.registry.SetLiquidationIncentive(caller, id, incentive)
	})
}

func (n *Node) SetDebtCeiling(caller crypto.Address, id string, ceiling *big.Int) error {
	return n.write("registry", "setDebtCeiling", func(env *modules) error {
		return env.registry.SetDebtCeiling(caller, id, ceiling)
	})
}

func (n *Node) SetBorrowAllowed(caller crypto.Address, id string, allowed bool) error {
	return n.write("registry", "setBorrowAllowed", func(env *modules) error {
		return env.registry.SetBorrowAllowed(caller, id, allowed)
	})
}

func (n *Node) SetDepositCollateralAllowed(caller crypto.Address, id string, allowed bool) error {
	return n.write("registry", "setDepositCollateralAllowed", func(env *modules) error {
		return env.registry.SetDepositCollateralAllowed(caller, id, allowed)
	})
}

func (n *Node) SetLiquidateBorrowAllowed(caller crypto.Address, id string, allowed bool) error {
	return n.write("registry", "setLiquidateBorrowAllowed", func(env *modules) error {
		return env.registry.SetLiquidateBorrowAllowed(caller, id, allowed)
	})
}

func (n *Node) SetRepayBorrowAllowed(caller crypto.Address, id string, allowed bool) error {
	return n.write("registry", "setRepayBorrowAllowed", func(env *modules) error {
		return env.registry.SetRepayBorrowAllowed(caller, id, allowed)
	})
}

func (n *Node) SetMaxBonds(caller crypto.Address, limit uint64) error {
	return n.write("registry", "setMaxBonds", func(env *modules) error {
		return env.registry.SetMaxBonds(caller, limit)
	})
}

func (n *Node) GetBondPolicy(id string) (registry.Bond, error) {
	var policy registry.Bond
	err := n.read(func(env *modules) error {
		loaded, err := env.registry.GetBond(id)
		if err != nil {
			return err
		}
		policy = loaded
		return nil
	})
	return policy, err
}

func (n *Node) GetCollateralPolicy(symbol string) (registry.Collateral, error) {
	var policy registry.Collateral
	err := n.read(func(env *modules) error {
		loaded, err := env.registry.GetCollateral(symbol)
		if err != nil {
			return err
		}
		policy = loaded
		return nil
	})
	return policy, err
}

func (n *Node) CollateralList() ([]string, error) {
	var list []string
	err := n.read(func(env *modules) error {
		loaded, err := env.registry.CollateralList()
		if err != nil {
			return err
		}
		list = loaded
		return nil
	})
	return list, err
}

func (n *Node) BondList() ([]string, error) {
	var list []string
	err := n.read(func(env *modules) error {
		loaded, err := env.registry.BondList()
		if err != nil {
			return err
		}
		list = loaded
		return nil
	})
	return list, err
}

func (n *Node) MaxBonds() (uint64, error) {
	var limit uint64
	err := n.read(func(env *modules) error {
		loaded, err := env.registry.MaxBonds()
		if err != nil {
			return err
		}
		limit = loaded
		return nil
	})
	return limit, err
}

// --- oracle ---

// SetFeed registers an operator-driven price feed for symbol. Prices arrive
// through SubmitPrice.
func (n *Node) SetFeed(caller crypto.Address, symbol, asset, description string) error {
	_, err := n.registerFeed(caller, symbol, asset, description)
	return err
}

func (n *Node) registerFeed(caller crypto.Address, symbol, asset, description string) (*oracle.ManualSource, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	source := oracle.NewManualSource()
	if err := n.oracle.SetFeed(caller, symbol, asset, description, source); err != nil {
		return nil, err
	}
	n.sources[registry.NormalizeSymbol(symbol)] = source
	return source, nil
}

func (n *Node) DeleteFeed(caller crypto.Address, symbol string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.oracle.DeleteFeed(caller, symbol); err != nil {
		return err
	}
	delete(n.sources, registry.NormalizeSymbol(symbol))
	return nil
}

// SubmitPrice records the latest 8-decimal price for a registered feed.
func (n *Node) SubmitPrice(caller crypto.Address, symbol string, price *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !caller.Equal(n.admin) {
		return oracle.ErrNotAdmin
	}
	source, ok := n.sources[registry.NormalizeSymbol(symbol)]
	if !ok {
		return oracle.ErrFeedNotSet
	}
	source.SubmitPrice(price)
	return nil
}

// GetAdjustedPrice returns the 18-decimal mantissa price for symbol.
func (n *Node) GetAdjustedPrice(symbol string) (*big.Int, error) {
	return n.oracle.GetAdjustedPrice(symbol)
}

func (n *Node) GetFeed(symbol string) oracle.Feed {
	return n.oracle.GetFeed(symbol)
}

func (n *Node) FeedSymbols() []string {
	return n.oracle.Symbols()
}

// --- vault ledger ---

func (n *Node) OpenVault(caller crypto.Address, bondID string) error {
	return n.write("vault", "open", func(env *modules) error {
		return env.vaults.OpenVault(caller, bondID)
	})
}

func (n *Node) DepositCollateral(caller crypto.Address, bondID, asset string, amount *big.Int) error {
	return n.write("vault", "depositCollateral", func(env *modules) error {
		return env.vaults.DepositCollateral(caller, bondID, asset, amount)
	})
}

func (n *Node) WithdrawCollateral(caller crypto.Address, bondID string, amount *big.Int) error {
	return n.write("vault", "withdrawCollateral", func(env *modules) error {
		return env.vaults.WithdrawCollateral(caller, bondID, amount)
	})
}

func (n *Node) LockCollateral(caller crypto.Address, bondID string, amount *big.Int) error {
	return n.write("vault", "lockCollateral", func(env *modules) error {
		return env.vaults.LockCollateral(caller, bondID, amount)
	})
}

func (n *Node) FreeCollateral(caller crypto.Address, bondID string, amount *big.Int) error {
	return n.write("vault", "freeCollateral", func(env *modules) error {
		return env.vaults.FreeCollateral(caller, bondID, amount)
	})
}

func (n *Node) GetVault(bondID string, account crypto.Address) (*vault.Vault, error) {
	var v *vault.Vault
	err := n.read(func(env *modules) error {
		loaded, err := env.vaults.GetVault(bondID, account)
		if err != nil {
			return err
		}
		v = loaded
		return nil
	})
	return v, err
}

func (n *Node) VaultList(account crypto.Address) ([]string, error) {
	var list []string
	err := n.read(func(env *modules) error {
		loaded, err := env.vaults.VaultList(account)
		if err != nil {
			return err
		}
		list = loaded
		return nil
	})
	return list, err
}

func (n *Node) GetHypotheticalCollateralizationRatio(bondID string, account crypto.Address, locked, debt *big.Int) (*big.Int, error) {
	var ratio *big.Int
	err := n.read(func(env *modules) error {
		computed, err := env.vaults.GetHypotheticalCollateralizationRatio(bondID, account, locked, debt)
		if err != nil {
			return err
		}
		ratio = computed
		return nil
	})
	return ratio, err
}

func (n *Node) GetClutchableCollateral(bondID, asset string, repayAmount *big.Int) (*big.Int, error) {
	var clutchable *big.Int
	err := n.read(func(env *modules) error {
		computed, err := env.vaults.GetClutchableCollateral(bondID, asset, repayAmount)
		if err != nil {
			return err
		}
		clutchable = computed
		return nil
	})
	return clutchable, err
}

func (n *Node) IsAccountUnderwater(bondID string, account crypto.Address) (bool, error) {
	var underwater bool
	err := n.read(func(env *modules) error {
		computed, err := env.vaults.IsAccountUnderwater(bondID, account)
		if err != nil {
			return err
		}
		underwater = computed
		return nil
	})
	return underwater, err
}

// --- bond controller and token ledger ---

func (n *Node) Borrow(caller crypto.Address, bondID string, amount *big.Int) error {
	return n.write("bond", "borrow", func(env *modules) error {
		return env.bonds.Borrow(caller, bondID, amount)
	})
}

func (n *Node) RepayBorrow(caller crypto.Address, bondID string, amount *big.Int) error {
	return n.write("bond", "repayBorrow", func(env *modules) error {
		return env.bonds.RepayBorrow(caller, bondID, amount)
	})
}

func (n *Node) RepayBorrowBehalf(caller crypto.Address, bondID string, borrower crypto.Address, amount *big.Int) error {
	return n.write("bond", "repayBorrowBehalf", func(env *modules) error {
		return env.bonds.RepayBorrowBehalf(caller, bondID, borrower, amount)
	})
}

func (n *Node) LiquidateBorrow(caller crypto.Address, bondID string, borrower crypto.Address, repayAmount *big.Int) error {
	return n.write("bond", "liquidateBorrow", func(env *modules) error {
		return env.bonds.LiquidateBorrow(caller, bondID, borrower, repayAmount)
	})
}

func (n *Node) TransferBond(caller crypto.Address, bondID string, to crypto.Address, amount *big.Int) error {
	return n.write("bond", "transfer", func(env *modules) error {
		return env.ledger.Transfer(caller, bondID, to, amount)
	})
}

func (n *Node) BondToken(id string) (*bond.Token, error) {
	var token *bond.Token
	err := n.read(func(env *modules) error {
		loaded, err := env.ledger.Token(id)
		if err != nil {
			return err
		}
		token = loaded
		return nil
	})
	return token, err
}

func (n *Node) BondTokens() ([]string, error) {
	var list []string
	err := n.read(func(env *modules) error {
		loaded, err := env.ledger.Tokens()
		if err != nil {
			return err
		}
		list = loaded
		return nil
	})
	return list, err
}

func (n *Node) BondBalanceOf(id string, holder crypto.Address) (*big.Int, error) {
	var balance *big.Int
	err := n.read(func(env *modules) error {
		loaded, err := env.ledger.BalanceOf(id, holder)
		if err != nil {
			return err
		}
		balance = loaded
		return nil
	})
	return balance, err
}

func (n *Node) BondTotalSupply(id string) (*big.Int, error) {
	var supply *big.Int
	err := n.read(func(env *modules) error {
		loaded, err := env.ledger.TotalSupply(id)
		if err != nil {
			return err
		}
		supply = loaded
		return nil
	})
	return supply, err
}

func (n *Node) BondTotalDebt(id string) (*big.Int, error) {
	var debt *big.Int
	err := n.read(func(env *modules) error {
		loaded, err := env.bonds.TotalDebt(id)
		if err != nil {
			return err
		}
		debt = loaded
		return nil
	})
	return debt, err
}
