package bond

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"bondchain/core/types"
	"bondchain/crypto"
	"bondchain/native/registry"
	"bondchain/native/vault"
)

// memState is a combined in-memory backing store for the vault engine, the
// bond ledger, and the controller's aggregate debt table.
type memState struct {
	vaults    map[string]*vault.Vault
	lists     map[string][]string
	accounts  map[string]*types.Account
	tokens    map[string]*Token
	supplies  map[string]*big.Int
	totalDebt map[string]*big.Int
}

func newMemState() *memState {
	return &memState{
		vaults:    make(map[string]*vault.Vault),
		lists:     make(map[string][]string),
		accounts:  make(map[string]*types.Account),
		tokens:    make(map[string]*Token),
		supplies:  make(map[string]*big.Int),
		totalDebt: make(map[string]*big.Int),
	}
}

func vaultKey(bond string, addr crypto.Address) string {
	return bond + "|" + addr.String()
}

func (m *memState) VaultGet(bond string, addr crypto.Address) (*vault.Vault, error) {
	return m.vaults[vaultKey(bond, addr)].Clone(), nil
}

func (m *memState) VaultPut(bond string, addr crypto.Address, v *vault.Vault) error {
	m.vaults[vaultKey(bond, addr)] = v.Clone()
	return nil
}

func (m *memState) VaultList(addr crypto.Address) ([]string, error) {
	return append([]string(nil), m.lists[addr.String()]...), nil
}

func (m *memState) VaultPutList(addr crypto.Address, bonds []string) error {
	m.lists[addr.String()] = append([]string(nil), bonds...)
	return nil
}

func (m *memState) GetAccount(addr crypto.Address) (*types.Account, error) {
	if account, ok := m.accounts[addr.String()]; ok {
		return account, nil
	}
	return &types.Account{}, nil
}

func (m *memState) PutAccount(addr crypto.Address, account *types.Account) error {
	m.accounts[addr.String()] = account
	return nil
}

func (m *memState) BondTokenGet(id string) (*Token, error) { return m.tokens[id], nil }

func (m *memState) BondTokenPut(token *Token) error {
	m.tokens[token.Symbol] = token
	return nil
}

func (m *memState) BondTokenList() ([]string, error) {
	out := make([]string, 0, len(m.tokens))
	for id := range m.tokens {
		out = append(out, id)
	}
	return out, nil
}

func (m *memState) BondSupply(id string) (*big.Int, error) { return m.supplies[id], nil }

func (m *memState) BondPutSupply(id string, supply *big.Int) error {
	m.supplies[id] = new(big.Int).Set(supply)
	return nil
}

func (m *memState) BondTotalDebt(id string) (*big.Int, error) { return m.totalDebt[id], nil }

func (m *memState) BondPutTotalDebt(id string, debt *big.Int) error {
	m.totalDebt[id] = new(big.Int).Set(debt)
	return nil
}

type fakePolicy struct {
	bonds      map[string]registry.Bond
	collateral map[string]registry.Collateral
}

func (f *fakePolicy) GetBond(id string) (registry.Bond, error) {
	return f.bonds[id], nil
}

func (f *fakePolicy) GetCollateral(symbol string) (registry.Collateral, error) {
	return f.collateral[symbol], nil
}

func (f *fakePolicy) MaxBonds() (uint64, error) { return 0, nil }

func (f *fakePolicy) flagRead(id string, read func(registry.Bond) bool) (bool, error) {
	entry, ok := f.bonds[id]
	if !ok || !entry.Listed {
		return false, registry.ErrBondNotListed
	}
	return read(entry), nil
}

func (f *fakePolicy) GetBorrowAllowed(id string) (bool, error) {
	return f.flagRead(id, func(b registry.Bond) bool { return b.BorrowAllowed })
}

func (f *fakePolicy) GetRepayBorrowAllowed(id string) (bool, error) {
	return f.flagRead(id, func(b registry.Bond) bool { return b.RepayBorrowAllowed })
}

func (f *fakePolicy) GetLiquidateBorrowAllowed(id string) (bool, error) {
	return f.flagRead(id, func(b registry.Bond) bool { return b.LiquidateBorrowAllowed })
}

type fakePrices map[string]*big.Int

func (f fakePrices) GetAdjustedPrice(symbol string) (*big.Int, error) {
	price, ok := f[symbol]
	if !ok {
		return nil, errors.New("no price")
	}
	return price, nil
}

func makeAddress(b byte) crypto.Address {
	buf := make([]byte, 20)
	for i := range buf {
		buf[i] = b
	}
	return crypto.NewAddress(crypto.BondPrefix, buf)
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

const testBond = "BUSD-DEC26"

var testEpoch = time.Unix(1_700_000_000, 0)

type fixture struct {
	controller *Controller
	ledger     *Ledger
	vaults     *vault.Engine
	policy     *fakePolicy
	prices     fakePrices
	state      *memState
	clock      time.Time
}

// newFixture wires the full borrow path: a listed BUSD-DEC26 bond over
// 18-decimal WETH collateral at $100, USDC underlying at $1, 150% required
// ratio, 110% liquidation incentive, and a 1M debt ceiling.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := newMemState()
	policy := &fakePolicy{
		bonds: map[string]registry.Bond{
			testBond: {
				ID:                       testBond,
				Listed:                   true,
				CollateralizationRatio:   new(big.Int).Div(wad(3), big.NewInt(2)),
				LiquidationIncentive:     new(big.Int).Div(wad(11), big.NewInt(10)),
				DebtCeiling:              wad(1_000_000),
				BorrowAllowed:            true,
				DepositCollateralAllowed: true,
				RepayBorrowAllowed:       true,
				LiquidateBorrowAllowed:   true,
				AcceptedCollateral:       []string{"WETH"},
			},
		},
		collateral: map[string]registry.Collateral{
			"WETH": {Symbol: "WETH", Listed: true, Decimals: 18, PrecisionScalar: big.NewInt(1)},
		},
	}
	prices := fakePrices{"WETH": wad(100), "USDC": wad(1)}

	controllerAddr := crypto.ModuleAddress(moduleName)
	ledger := NewLedger(controllerAddr)
	ledger.SetState(state)

	engine := vault.NewEngine(policy, prices, ledger)
	engine.SetState(state)
	engine.SetController(controllerAddr)

	controller := NewController(policy, engine, ledger)
	controller.SetState(state)

	f := &fixture{
		controller: controller,
		ledger:     ledger,
		vaults:     engine,
		policy:     policy,
		prices:     prices,
		state:      state,
		clock:      testEpoch,
	}
	controller.SetTimeSource(func() time.Time { return f.clock })

	token, err := NewToken(testBond, "Bond USDC Dec 2026", "USDC", 6, uint64(testEpoch.Unix())+365*86_400, testEpoch)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if err := ledger.Register(token); err != nil {
		t.Fatalf("register token: %v", err)
	}
	return f
}

func (f *fixture) fund(t *testing.T, addr crypto.Address, symbol string, amount *big.Int) {
	t.Helper()
	account, err := f.state.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	account.SetBalance(symbol, amount)
	if err := f.state.PutAccount(addr, account); err != nil {
		t.Fatalf("put account: %v", err)
	}
}

// collateralize opens a vault and locks amount WETH for addr.
func (f *fixture) collateralize(t *testing.T, addr crypto.Address, amount *big.Int) {
	t.Helper()
	if err := f.vaults.OpenVault(addr, testBond); err != nil {
		t.Fatalf("open vault: %v", err)
	}
	f.fund(t, addr, "WETH", amount)
	if err := f.vaults.DepositCollateral(addr, testBond, "WETH", amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.vaults.LockCollateral(addr, testBond, amount); err != nil {
		t.Fatalf("lock: %v", err)
	}
}

func (f *fixture) setFlag(flag string, allowed bool) {
	entry := f.policy.bonds[testBond]
	switch flag {
	case registry.FlagBorrowAllowed:
		entry.BorrowAllowed = allowed
	case registry.FlagRepayBorrowAllowed:
		entry.RepayBorrowAllowed = allowed
	case registry.FlagLiquidateBorrowAllowed:
		entry.LiquidateBorrowAllowed = allowed
	}
	f.policy.bonds[testBond] = entry
}

func TestBorrowGuards(t *testing.T) {
	f := newFixture(t)
	borrower := makeAddress(0x10)

	if err := f.controller.Borrow(borrower, "GHOST", wad(1)); !errors.Is(err, registry.ErrBondNotListed) {
		t.Fatalf("expected ErrBondNotListed, got %v", err)
	}

	f.setFlag(registry.FlagBorrowAllowed, false)
	if err := f.controller.Borrow(borrower, testBond, wad(1)); !errors.Is(err, ErrBorrowNotAllowed) {
		t.Fatalf("expected ErrBorrowNotAllowed, got %v", err)
	}
	f.setFlag(registry.FlagBorrowAllowed, true)

	f.clock = testEpoch.Add(366 * 24 * time.Hour)
	if err := f.controller.Borrow(borrower, testBond, wad(1)); !errors.Is(err, ErrBondMatured) {
		t.Fatalf("expected ErrBondMatured, got %v", err)
	}
	f.clock = testEpoch

	if err := f.controller.Borrow(borrower, testBond, big.NewInt(0)); !errors.Is(err, ErrBorrowZero) {
		t.Fatalf("expected ErrBorrowZero, got %v", err)
	}

	if err := f.controller.Borrow(borrower, testBond, wad(2_000_000)); !errors.Is(err, ErrBorrowDebtCeilingOverflow) {
		t.Fatalf("expected ErrBorrowDebtCeilingOverflow, got %v", err)
	}

	if err := f.controller.Borrow(borrower, testBond, wad(1)); !errors.Is(err, vault.ErrVaultNotOpen) {
		t.Fatalf("expected ErrVaultNotOpen, got %v", err)
	}

	// 1 WETH = $100 locked supports at most $66 debt at 150%.
	f.collateralize(t, borrower, wad(1))
	if err := f.controller.Borrow(borrower, testBond, wad(80)); !errors.Is(err, vault.ErrBelowCollateralizationRatio) {
		t.Fatalf("expected ErrBelowCollateralizationRatio, got %v", err)
	}
}

func TestBorrowMintsAndRecordsDebt(t *testing.T) {
	f := newFixture(t)
	borrower := makeAddress(0x10)
	f.collateralize(t, borrower, wad(10))

	if err := f.controller.Borrow(borrower, testBond, wad(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	balance, err := f.ledger.BalanceOf(testBond, borrower)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(wad(500)) != 0 {
		t.Fatalf("expected 500 bond tokens, got %s", balance)
	}
	supply, err := f.ledger.TotalSupply(testBond)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(wad(500)) != 0 {
		t.Fatalf("expected supply 500, got %s", supply)
	}
	vlt, err := f.vaults.GetVault(testBond, borrower)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if vlt.Debt.Cmp(wad(500)) != 0 {
		t.Fatalf("expected debt 500, got %s", vlt.Debt)
	}
	totalDebt, err := f.controller.TotalDebt(testBond)
	if err != nil {
		t.Fatalf("total debt: %v", err)
	}
	if totalDebt.Cmp(wad(500)) != 0 {
		t.Fatalf("expected total debt 500, got %s", totalDebt)
	}
}

func TestRepayBorrow(t *testing.T) {
	f := newFixture(t)
	borrower := makeAddress(0x10)
	f.collateralize(t, borrower, wad(10))
	if err := f.controller.Borrow(borrower, testBond, wad(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	f.setFlag(registry.FlagRepayBorrowAllowed, false)
	if err := f.controller.RepayBorrow(borrower, testBond, wad(100)); !errors.Is(err, ErrRepayBorrowNotAllowed) {
		t.Fatalf("expected ErrRepayBorrowNotAllowed, got %v", err)
	}
	f.setFlag(registry.FlagRepayBorrowAllowed, true)

	if err := f.controller.RepayBorrow(borrower, testBond, big.NewInt(0)); !errors.Is(err, ErrRepayBorrowZero) {
		t.Fatalf("expected ErrRepayBorrowZero, got %v", err)
	}
	if err := f.controller.RepayBorrow(borrower, testBond, wad(600)); !errors.Is(err, ErrRepayBorrowInsufficientDebt) {
		t.Fatalf("expected ErrRepayBorrowInsufficientDebt, got %v", err)
	}

	if err := f.controller.RepayBorrow(borrower, testBond, wad(200)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	vlt, err := f.vaults.GetVault(testBond, borrower)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if vlt.Debt.Cmp(wad(300)) != 0 {
		t.Fatalf("expected debt 300, got %s", vlt.Debt)
	}
	balance, err := f.ledger.BalanceOf(testBond, borrower)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(wad(300)) != 0 {
		t.Fatalf("expected balance 300, got %s", balance)
	}
}

func TestRepayBorrowBehalf(t *testing.T) {
	f := newFixture(t)
	borrower := makeAddress(0x10)
	payer := makeAddress(0x20)
	f.collateralize(t, borrower, wad(10))
	if err := f.controller.Borrow(borrower, testBond, wad(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Payer has no bond tokens yet.
	if err := f.controller.RepayBorrowBehalf(payer, testBond, borrower, wad(100)); !errors.Is(err, ErrRepayBorrowInsufficientBalance) {
		t.Fatalf("expected ErrRepayBorrowInsufficientBalance, got %v", err)
	}

	if err := f.ledger.Transfer(borrower, testBond, payer, wad(100)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := f.controller.RepayBorrowBehalf(payer, testBond, borrower, wad(100)); err != nil {
		t.Fatalf("repay behalf: %v", err)
	}
	vlt, err := f.vaults.GetVault(testBond, borrower)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if vlt.Debt.Cmp(wad(400)) != 0 {
		t.Fatalf("expected debt 400, got %s", vlt.Debt)
	}
	payerBalance, err := f.ledger.BalanceOf(testBond, payer)
	if err != nil {
		t.Fatalf("payer balance: %v", err)
	}
	if payerBalance.Sign() != 0 {
		t.Fatalf("payer tokens must be burned, got %s", payerBalance)
	}
}

func TestLiquidateBorrowGuards(t *testing.T) {
	f := newFixture(t)
	borrower := makeAddress(0x10)
	liquidator := makeAddress(0x20)
	f.collateralize(t, borrower, wad(10))
	if err := f.controller.Borrow(borrower, testBond, wad(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	f.setFlag(registry.FlagLiquidateBorrowAllowed, false)
	if err := f.controller.LiquidateBorrow(liquidator, testBond, borrower, wad(50)); !errors.Is(err, ErrLiquidateBorrowNotAllowed) {
		t.Fatalf("expected ErrLiquidateBorrowNotAllowed, got %v", err)
	}
	f.setFlag(registry.FlagLiquidateBorrowAllowed, true)

	if err := f.controller.LiquidateBorrow(borrower, testBond, borrower, wad(50)); !errors.Is(err, ErrLiquidateBorrowSelf) {
		t.Fatalf("expected ErrLiquidateBorrowSelf, got %v", err)
	}
	if err := f.controller.LiquidateBorrow(liquidator, testBond, borrower, big.NewInt(0)); !errors.Is(err, ErrLiquidateBorrowZero) {
		t.Fatalf("expected ErrLiquidateBorrowZero, got %v", err)
	}
	// Vault is at 200% against a 150% requirement and the bond has not
	// matured: not eligible.
	if err := f.controller.LiquidateBorrow(liquidator, testBond, borrower, wad(50)); !errors.Is(err, ErrAccountNotUnderwater) {
		t.Fatalf("expected ErrAccountNotUnderwater, got %v", err)
	}
}

func TestLiquidateBorrowConservation(t *testing.T) {
	f := newFixture(t)
	borrower := makeAddress(0x10)
	liquidator := makeAddress(0x20)
	f.collateralize(t, borrower, wad(10))
	if err := f.controller.Borrow(borrower, testBond, wad(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// Give the liquidator bond tokens to repay with.
	if err := f.ledger.Transfer(borrower, testBond, liquidator, wad(100)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	// Crash WETH from $100 to $50: ratio drops to 100% < 150%.
	f.prices["WETH"] = wad(50)

	repay := wad(50)
	// clutchable = 50 * 1.10 * $1 / $50 = 1.1 WETH.
	wantClutch := new(big.Int).Div(wad(11), big.NewInt(10))

	clutchable, err := f.vaults.GetClutchableCollateral(testBond, "WETH", repay)
	if err != nil {
		t.Fatalf("clutchable: %v", err)
	}
	if clutchable.Cmp(wantClutch) != 0 {
		t.Fatalf("expected clutchable %s, got %s", wantClutch, clutchable)
	}

	vaultBefore, err := f.vaults.GetVault(testBond, borrower)
	if err != nil {
		t.Fatalf("vault before: %v", err)
	}
	supplyBefore, err := f.ledger.TotalSupply(testBond)
	if err != nil {
		t.Fatalf("supply before: %v", err)
	}

	if err := f.controller.LiquidateBorrow(liquidator, testBond, borrower, repay); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	vaultAfter, err := f.vaults.GetVault(testBond, borrower)
	if err != nil {
		t.Fatalf("vault after: %v", err)
	}
	// Joint invariant: debt falls by exactly the repay amount, locked
	// collateral falls by exactly the clutched amount, and the liquidator
	// gains exactly that collateral. Nothing is created or destroyed.
	if diff := new(big.Int).Sub(vaultBefore.Debt, vaultAfter.Debt); diff.Cmp(repay) != 0 {
		t.Fatalf("debt delta: expected %s, got %s", repay, diff)
	}
	if diff := new(big.Int).Sub(vaultBefore.LockedCollateral, vaultAfter.LockedCollateral); diff.Cmp(wantClutch) != 0 {
		t.Fatalf("locked delta: expected %s, got %s", wantClutch, diff)
	}
	liquidatorAccount, err := f.state.GetAccount(liquidator)
	if err != nil {
		t.Fatalf("liquidator account: %v", err)
	}
	if got := liquidatorAccount.Balance("WETH"); got.Cmp(wantClutch) != 0 {
		t.Fatalf("liquidator collateral: expected %s, got %s", wantClutch, got)
	}
	// The repaid bond tokens are burned from the liquidator.
	liquidatorBonds, err := f.ledger.BalanceOf(testBond, liquidator)
	if err != nil {
		t.Fatalf("liquidator bonds: %v", err)
	}
	if liquidatorBonds.Cmp(wad(50)) != 0 {
		t.Fatalf("expected 50 bond tokens left, got %s", liquidatorBonds)
	}
	supplyAfter, err := f.ledger.TotalSupply(testBond)
	if err != nil {
		t.Fatalf("supply after: %v", err)
	}
	if diff := new(big.Int).Sub(supplyBefore, supplyAfter); diff.Cmp(repay) != 0 {
		t.Fatalf("supply delta: expected %s, got %s", repay, diff)
	}
}

func TestLiquidateBorrowAfterMaturity(t *testing.T) {
	f := newFixture(t)
	borrower := makeAddress(0x10)
	liquidator := makeAddress(0x20)
	f.collateralize(t, borrower, wad(10))
	if err := f.controller.Borrow(borrower, testBond, wad(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := f.ledger.Transfer(borrower, testBond, liquidator, wad(100)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	// Healthy vault, but the bond matured: liquidation opens up.
	f.clock = testEpoch.Add(366 * 24 * time.Hour)
	if err := f.controller.LiquidateBorrow(liquidator, testBond, borrower, wad(50)); err != nil {
		t.Fatalf("liquidate after maturity: %v", err)
	}
}

func TestMintBurnRestricted(t *testing.T) {
	f := newFixture(t)
	outsider := makeAddress(0x30)

	if err := f.ledger.Mint(outsider, testBond, outsider, wad(1)); !errors.Is(err, ErrMintNotAuthorized) {
		t.Fatalf("expected ErrMintNotAuthorized, got %v", err)
	}
	if err := f.ledger.Burn(outsider, testBond, outsider, wad(1)); !errors.Is(err, ErrBurnNotAuthorized) {
		t.Fatalf("expected ErrBurnNotAuthorized, got %v", err)
	}
}
