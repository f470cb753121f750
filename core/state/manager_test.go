package state

import (
	"math/big"
	"testing"

	"bondchain/crypto"
	"bondchain/native/bond"
	"bondchain/native/registry"
	"bondchain/native/vault"
	"bondchain/storage"
)

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func makeAddress(b byte) crypto.Address {
	var raw [20]byte
	for i := range raw {
		raw[i] = b
	}
	return crypto.NewAddress(crypto.BondPrefix, raw[:])
}

func TestRegisterTokenRoundTrip(t *testing.T) {
	manager := newTestManager()
	if err := manager.RegisterToken(" weth ", "Wrapped Ether", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	meta, err := manager.Token("WETH")
	if err != nil {
		t.Fatalf("load token: %v", err)
	}
	if meta == nil {
		t.Fatalf("expected token metadata")
	}
	if meta.Symbol != "WETH" || meta.Name != "Wrapped Ether" || meta.Decimals != 18 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	decimals, ok, err := manager.TokenDecimals("weth")
	if err != nil || !ok || decimals != 18 {
		t.Fatalf("token decimals: %d %v %v", decimals, ok, err)
	}
	if err := manager.RegisterToken("WETH", "Wrapped Ether", 18); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestRegisterTokenRejectsEmptyFields(t *testing.T) {
	manager := newTestManager()
	if err := manager.RegisterToken("  ", "Name", 6); err == nil {
		t.Fatalf("expected empty symbol to fail")
	}
	if err := manager.RegisterToken("USDC", "  ", 6); err == nil {
		t.Fatalf("expected empty name to fail")
	}
}

func TestTokenListSorted(t *testing.T) {
	manager := newTestManager()
	for _, symbol := range []string{"WETH", "USDC", "WBTC"} {
		if err := manager.RegisterToken(symbol, symbol, 18); err != nil {
			t.Fatalf("register %s: %v", symbol, err)
		}
	}
	list, err := manager.TokenList()
	if err != nil {
		t.Fatalf("token list: %v", err)
	}
	want := []string{"USDC", "WBTC", "WETH"}
	if len(list) != len(want) {
		t.Fatalf("unexpected list: %v", list)
	}
	for i := range want {
		if list[i] != want[i] {
			t.Fatalf("unexpected list order: %v", list)
		}
	}
}

func TestAccountRoundTripDropsZeroBalances(t *testing.T) {
	manager := newTestManager()
	addr := makeAddress(0x01)

	account, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("load absent account: %v", err)
	}
	if account.Nonce != 0 || len(account.Balances) != 0 {
		t.Fatalf("expected empty account, got %+v", account)
	}

	account.Nonce = 7
	account.Balances["WETH"] = big.NewInt(100)
	account.Balances["USDC"] = big.NewInt(0)
	account.Balances["WBTC"] = nil
	if err := manager.PutAccount(addr, account); err != nil {
		t.Fatalf("store account: %v", err)
	}

	loaded, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if loaded.Nonce != 7 {
		t.Fatalf("unexpected nonce: %d", loaded.Nonce)
	}
	if len(loaded.Balances) != 1 {
		t.Fatalf("expected zero balances dropped, got %+v", loaded.Balances)
	}
	if loaded.Balances["WETH"].Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected balance: %s", loaded.Balances["WETH"])
	}
}

func TestPutAccountNilWritesEmptyRecord(t *testing.T) {
	manager := newTestManager()
	addr := makeAddress(0x02)
	if err := manager.PutAccount(addr, nil); err != nil {
		t.Fatalf("store nil account: %v", err)
	}
	loaded, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if loaded.Nonce != 0 || len(loaded.Balances) != 0 {
		t.Fatalf("expected empty account, got %+v", loaded)
	}
}

func TestCollateralRoundTrip(t *testing.T) {
	manager := newTestManager()
	entry := &registry.Collateral{
		Symbol:          "WBTC",
		Listed:          true,
		Decimals:        8,
		PrecisionScalar: registry.PrecisionScalar(8),
	}
	if err := manager.RegistryPutCollateral(entry); err != nil {
		t.Fatalf("store collateral: %v", err)
	}
	loaded, err := manager.RegistryGetCollateral("WBTC")
	if err != nil {
		t.Fatalf("load collateral: %v", err)
	}
	if loaded == nil || !loaded.Listed || loaded.Decimals != 8 {
		t.Fatalf("unexpected entry: %+v", loaded)
	}
	if loaded.PrecisionScalar.Cmp(new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil)) != 0 {
		t.Fatalf("unexpected precision scalar: %s", loaded.PrecisionScalar)
	}
	list, err := manager.RegistryCollateralList()
	if err != nil || len(list) != 1 || list[0] != "WBTC" {
		t.Fatalf("unexpected collateral list: %v %v", list, err)
	}
	absent, err := manager.RegistryGetCollateral("WETH")
	if err != nil || absent != nil {
		t.Fatalf("expected absent collateral, got %+v %v", absent, err)
	}
}

func TestBondPolicyRoundTrip(t *testing.T) {
	manager := newTestManager()
	entry := &registry.Bond{
		ID:                       "BUSD-DEC26",
		Listed:                   true,
		CollateralizationRatio:   big.NewInt(1_500_000_000_000_000_000),
		DebtCeiling:              big.NewInt(1_000_000),
		LiquidationIncentive:     big.NewInt(1_100_000_000_000_000_000),
		BorrowAllowed:            true,
		DepositCollateralAllowed: true,
		AcceptedCollateral:       []string{"WBTC", "WETH"},
	}
	if err := manager.RegistryPutBond(entry); err != nil {
		t.Fatalf("store bond policy: %v", err)
	}
	loaded, err := manager.RegistryGetBond("BUSD-DEC26")
	if err != nil {
		t.Fatalf("load bond policy: %v", err)
	}
	if loaded == nil || !loaded.Listed || !loaded.BorrowAllowed || loaded.RepayBorrowAllowed {
		t.Fatalf("unexpected entry: %+v", loaded)
	}
	if loaded.CollateralizationRatio.Cmp(entry.CollateralizationRatio) != 0 {
		t.Fatalf("unexpected ratio: %s", loaded.CollateralizationRatio)
	}
	if len(loaded.AcceptedCollateral) != 2 || loaded.AcceptedCollateral[0] != "WBTC" {
		t.Fatalf("unexpected accepted collateral: %v", loaded.AcceptedCollateral)
	}
	list, err := manager.RegistryBondList()
	if err != nil || len(list) != 1 || list[0] != "BUSD-DEC26" {
		t.Fatalf("unexpected bond list: %v %v", list, err)
	}
}

func TestMaxBondsDefaultsToZero(t *testing.T) {
	manager := newTestManager()
	limit, err := manager.RegistryMaxBonds()
	if err != nil || limit != 0 {
		t.Fatalf("unexpected default limit: %d %v", limit, err)
	}
	if err := manager.RegistryPutMaxBonds(10); err != nil {
		t.Fatalf("store limit: %v", err)
	}
	limit, err = manager.RegistryMaxBonds()
	if err != nil || limit != 10 {
		t.Fatalf("unexpected limit: %d %v", limit, err)
	}
}

func TestVaultRoundTrip(t *testing.T) {
	manager := newTestManager()
	addr := makeAddress(0x03)

	absent, err := manager.VaultGet("BUSD-DEC26", addr)
	if err != nil || absent != nil {
		t.Fatalf("expected absent vault, got %+v %v", absent, err)
	}

	stored := &vault.Vault{
		Bond:             "BUSD-DEC26",
		Open:             true,
		CollateralAsset:  "WETH",
		FreeCollateral:   big.NewInt(25),
		LockedCollateral: big.NewInt(75),
	}
	if err := manager.VaultPut("BUSD-DEC26", addr, stored); err != nil {
		t.Fatalf("store vault: %v", err)
	}

	loaded, err := manager.VaultGet("BUSD-DEC26", addr)
	if err != nil {
		t.Fatalf("load vault: %v", err)
	}
	if loaded == nil || !loaded.Open || loaded.CollateralAsset != "WETH" {
		t.Fatalf("unexpected vault: %+v", loaded)
	}
	if loaded.FreeCollateral.Cmp(big.NewInt(25)) != 0 || loaded.LockedCollateral.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("unexpected collateral: %+v", loaded)
	}
	if loaded.Debt.Sign() != 0 {
		t.Fatalf("nil debt should read back zero, got %s", loaded.Debt)
	}

	if err := manager.VaultPutList(addr, []string{"BUSD-DEC26"}); err != nil {
		t.Fatalf("store vault list: %v", err)
	}
	list, err := manager.VaultList(addr)
	if err != nil || len(list) != 1 || list[0] != "BUSD-DEC26" {
		t.Fatalf("unexpected vault list: %v %v", list, err)
	}

	other, err := manager.VaultList(makeAddress(0x04))
	if err != nil || len(other) != 0 {
		t.Fatalf("expected empty list for other address: %v %v", other, err)
	}
}

func TestBondTokenRoundTrip(t *testing.T) {
	manager := newTestManager()
	token := &bond.Token{
		Symbol:                    "BUSD-DEC26",
		Name:                      "BUSD December 2026",
		Decimals:                  18,
		Underlying:                "USDC",
		UnderlyingDecimals:        6,
		UnderlyingPrecisionScalar: registry.PrecisionScalar(6),
		ExpirationTime:            1798761600,
	}
	if err := manager.BondTokenPut(token); err != nil {
		t.Fatalf("store bond token: %v", err)
	}
	loaded, err := manager.BondTokenGet("BUSD-DEC26")
	if err != nil {
		t.Fatalf("load bond token: %v", err)
	}
	if loaded == nil || loaded.Underlying != "USDC" || loaded.ExpirationTime != 1798761600 {
		t.Fatalf("unexpected token: %+v", loaded)
	}
	exists, err := manager.BondTokenExists("BUSD-DEC26")
	if err != nil || !exists {
		t.Fatalf("expected token to exist: %v %v", exists, err)
	}
	exists, err = manager.BondTokenExists("BUSD-JUN27")
	if err != nil || exists {
		t.Fatalf("expected token to be absent: %v %v", exists, err)
	}
	list, err := manager.BondTokenList()
	if err != nil || len(list) != 1 || list[0] != "BUSD-DEC26" {
		t.Fatalf("unexpected bond token list: %v %v", list, err)
	}
}

func TestBondSupplyAndDebtRoundTrip(t *testing.T) {
	manager := newTestManager()

	supply, err := manager.BondSupply("BUSD-DEC26")
	if err != nil || supply != nil {
		t.Fatalf("expected nil supply, got %v %v", supply, err)
	}
	if err := manager.BondPutSupply("BUSD-DEC26", big.NewInt(500)); err != nil {
		t.Fatalf("store supply: %v", err)
	}
	supply, err = manager.BondSupply("BUSD-DEC26")
	if err != nil || supply.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected supply: %v %v", supply, err)
	}

	debt, err := manager.BondTotalDebt("BUSD-DEC26")
	if err != nil || debt != nil {
		t.Fatalf("expected nil debt, got %v %v", debt, err)
	}
	if err := manager.BondPutTotalDebt("BUSD-DEC26", big.NewInt(500)); err != nil {
		t.Fatalf("store debt: %v", err)
	}
	debt, err = manager.BondTotalDebt("BUSD-DEC26")
	if err != nil || debt.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected debt: %v %v", debt, err)
	}
}
