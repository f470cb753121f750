package vault

import (
	"errors"
	"math/big"

	"bondchain/core/events"
	"bondchain/core/types"
	"bondchain/crypto"
	nativecommon "bondchain/native/common"
	"bondchain/native/registry"
)

var (
	errNilState = errors.New("vault: state not configured")

	// ErrVaultNotOpen is returned for any operation against an unopened
	// vault.
	ErrVaultNotOpen = errors.New("vault: vault not open")
	// ErrMaxBonds rejects opening more vaults than the policy limit.
	ErrMaxBonds = errors.New("vault: max open vaults reached")
	// ErrDepositCollateralZero rejects zero-amount deposits.
	ErrDepositCollateralZero = errors.New("vault: deposit amount is zero")
	// ErrDepositCollateralNotAllowed is returned when the bond's deposit
	// flag is off.
	ErrDepositCollateralNotAllowed = errors.New("vault: collateral deposits not allowed")
	// ErrUnauthorizedCollateral rejects assets outside the bond's accepted
	// collateral set.
	ErrUnauthorizedCollateral = errors.New("vault: collateral not accepted by bond")
	// ErrWrongCollateral rejects deposits of a different asset while the
	// vault still holds its fixed collateral.
	ErrWrongCollateral = errors.New("vault: vault holds a different collateral asset")
	// ErrInsufficientBalance is returned when the caller's token balance
	// cannot cover the deposit.
	ErrInsufficientBalance = errors.New("vault: insufficient token balance")
	// ErrLockCollateralZero rejects zero-amount locks.
	ErrLockCollateralZero = errors.New("vault: lock amount is zero")
	// ErrFreeCollateralZero rejects zero-amount frees.
	ErrFreeCollateralZero = errors.New("vault: free amount is zero")
	// ErrWithdrawCollateralZero rejects zero-amount withdrawals.
	ErrWithdrawCollateralZero = errors.New("vault: withdraw amount is zero")
	// ErrInsufficientFreeCollateral is returned when free collateral cannot
	// cover a lock or withdrawal.
	ErrInsufficientFreeCollateral = errors.New("vault: insufficient free collateral")
	// ErrInsufficientLockedCollateral is returned when locked collateral
	// cannot cover a free or clutch.
	ErrInsufficientLockedCollateral = errors.New("vault: insufficient locked collateral")
	// ErrBelowCollateralizationRatio is returned when an operation would
	// leave the vault below the bond's required ratio.
	ErrBelowCollateralizationRatio = errors.New("vault: below collateralization ratio")
	// ErrRatioDebtZero is returned when a hypothetical ratio is requested
	// with zero debt; the ratio is undefined.
	ErrRatioDebtZero = errors.New("vault: collateralization ratio undefined for zero debt")
	// ErrClutchableZero rejects clutchable-collateral queries for a zero
	// repay amount.
	ErrClutchableZero = errors.New("vault: repay amount is zero")
	// ErrNotController rejects restricted effects invoked by anything
	// other than the bond controller.
	ErrNotController = errors.New("vault: caller is not the bond controller")
)

const moduleName = "vault"

// State is the narrow persistence surface the engine needs: the vault table,
// the per-account vault index, and the token balance ledger.
type State interface {
	VaultGet(bond string, addr crypto.Address) (*Vault, error)
	VaultPut(bond string, addr crypto.Address, vault *Vault) error
	VaultList(addr crypto.Address) ([]string, error)
	VaultPutList(addr crypto.Address, bonds []string) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Policy is the registry surface consulted for permissions and parameters.
type Policy interface {
	GetBond(id string) (registry.Bond, error)
	GetCollateral(symbol string) (registry.Collateral, error)
	MaxBonds() (uint64, error)
}

// PriceSource yields 18-decimal mantissa prices.
type PriceSource interface {
	GetAdjustedPrice(symbol string) (*big.Int, error)
}

// Instruments resolves bond token metadata the solvency math needs.
type Instruments interface {
	UnderlyingSymbol(bond string) (string, error)
}

// Engine owns the vault ledger: per-(bond, account) collateral and debt
// accounting plus the solvency arithmetic. Debt mutation and collateral
// clutching are reserved to the bond controller.
type Engine struct {
	state       State
	policy      Policy
	prices      PriceSource
	instruments Instruments
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	treasury    crypto.Address
	controller  crypto.Address
}

func NewEngine(policy Policy, prices PriceSource, instruments Instruments) *Engine {
	return &Engine{
		policy:      policy,
		prices:      prices,
		instruments: instruments,
		emitter:     events.NoopEmitter{},
		treasury:    crypto.ModuleAddress(moduleName),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter swaps the event sink. A nil emitter silences events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetController fixes the address whose calls may mutate debt and clutch
// collateral.
func (e *Engine) SetController(controller crypto.Address) {
	if e == nil {
		return
	}
	e.controller = controller
}

// Treasury returns the module account holding deposited collateral.
func (e *Engine) Treasury() crypto.Address { return e.treasury }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) loadVault(bond string, addr crypto.Address) (*Vault, error) {
	vault, err := e.state.VaultGet(bond, addr)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, nil
	}
	vault.normalize()
	return vault, nil
}

func (e *Engine) loadOpenVault(bond string, addr crypto.Address) (*Vault, error) {
	vault, err := e.loadVault(bond, addr)
	if err != nil {
		return nil, err
	}
	if vault == nil || !vault.Open {
		return nil, ErrVaultNotOpen
	}
	return vault, nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	account, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &types.Account{}
	}
	return account, nil
}

// transfer moves amount of symbol between ledger accounts, failing with
// ErrInsufficientBalance when the source cannot cover it.
func (e *Engine) transfer(from, to crypto.Address, symbol string, amount *big.Int) error {
	sender, err := e.loadAccount(from)
	if err != nil {
		return err
	}
	balance := sender.Balance(symbol)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	sender.SetBalance(symbol, new(big.Int).Sub(balance, amount))
	if err := e.state.PutAccount(from, sender); err != nil {
		return err
	}
	receiver, err := e.loadAccount(to)
	if err != nil {
		return err
	}
	receiver.SetBalance(symbol, new(big.Int).Add(receiver.Balance(symbol), amount))
	return e.state.PutAccount(to, receiver)
}

// OpenVault creates the caller's vault for bond. Opening an already-open
// vault is a no-op; vaults are never destroyed.
func (e *Engine) OpenVault(caller crypto.Address, bond string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	bond = registry.NormalizeSymbol(bond)
	entry, err := e.policy.GetBond(bond)
	if err != nil {
		return err
	}
	if !entry.Listed {
		return registry.ErrBondNotListed
	}
	existing, err := e.loadVault(bond, caller)
	if err != nil {
		return err
	}
	if existing != nil && existing.Open {
		return nil
	}
	open, err := e.state.VaultList(caller)
	if err != nil {
		return err
	}
	limit, err := e.policy.MaxBonds()
	if err != nil {
		return err
	}
	if limit > 0 && uint64(len(open)) >= limit {
		return ErrMaxBonds
	}
	vault := &Vault{Bond: bond, Open: true}
	vault.normalize()
	if err := e.state.VaultPut(bond, caller, vault); err != nil {
		return err
	}
	if err := e.state.VaultPutList(caller, append(open, bond)); err != nil {
		return err
	}
	e.emitter.Emit(events.OpenVault{Account: addressArray(caller), Bond: bond})
	return nil
}

// DepositCollateral pulls amount of asset from the caller into the module
// treasury and credits the vault's free collateral. The vault accepts exactly
// one collateral asset while it holds a nonzero balance.
func (e *Engine) DepositCollateral(caller crypto.Address, bond, asset string, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	bond = registry.NormalizeSymbol(bond)
	asset = registry.NormalizeSymbol(asset)
	vault, err := e.loadOpenVault(bond, caller)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrDepositCollateralZero
	}
	entry, err := e.policy.GetBond(bond)
	if err != nil {
		return err
	}
	if !entry.Listed {
		return registry.ErrBondNotListed
	}
	if !entry.DepositCollateralAllowed {
		return ErrDepositCollateralNotAllowed
	}
	// Membership in the accepted set is checked before the fixed-asset
	// guard, so an unknown asset never reads as "wrong collateral".
	if !entry.AcceptsCollateral(asset) {
		return ErrUnauthorizedCollateral
	}
	if vault.CollateralAsset != "" && vault.CollateralAsset != asset && vault.TotalCollateral().Sign() > 0 {
		return ErrWrongCollateral
	}
	if err := e.transfer(caller, e.treasury, asset, amount); err != nil {
		return err
	}
	vault.CollateralAsset = asset
	vault.FreeCollateral = new(big.Int).Add(vault.FreeCollateral, amount)
	if err := e.state.VaultPut(bond, caller, vault); err != nil {
		return err
	}
	e.emitter.Emit(events.DepositCollateral{
		Bond:    bond,
		Account: addressArray(caller),
		Asset:   asset,
		Amount:  amount,
	})
	return nil
}

// LockCollateral moves amount from free to locked collateral.
func (e *Engine) LockCollateral(caller crypto.Address, bond string, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	bond = registry.NormalizeSymbol(bond)
	vault, err := e.loadOpenVault(bond, caller)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrLockCollateralZero
	}
	if vault.FreeCollateral.Cmp(amount) < 0 {
		return ErrInsufficientFreeCollateral
	}
	vault.FreeCollateral = new(big.Int).Sub(vault.FreeCollateral, amount)
	vault.LockedCollateral = new(big.Int).Add(vault.LockedCollateral, amount)
	if err := e.state.VaultPut(bond, caller, vault); err != nil {
		return err
	}
	e.emitter.Emit(events.LockCollateral{
		Bond:    bond,
		Account: addressArray(caller),
		Asset:   vault.CollateralAsset,
		Amount:  amount,
	})
	return nil
}

// FreeCollateral moves amount from locked back to free collateral. With
// outstanding debt, the remaining locked collateral must keep the vault at or
// above the bond's required ratio.
func (e *Engine) FreeCollateral(caller crypto.Address, bond string, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	bond = registry.NormalizeSymbol(bond)
	vault, err := e.loadOpenVault(bond, caller)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrFreeCollateralZero
	}
	if vault.LockedCollateral.Cmp(amount) < 0 {
		return ErrInsufficientLockedCollateral
	}
	if vault.Debt.Sign() > 0 {
		remaining := new(big.Int).Sub(vault.LockedCollateral, amount)
		if err := e.requireRatio(bond, caller, vault, remaining, vault.Debt); err != nil {
			return err
		}
	}
	vault.LockedCollateral = new(big.Int).Sub(vault.LockedCollateral, amount)
	vault.FreeCollateral = new(big.Int).Add(vault.FreeCollateral, amount)
	if err := e.state.VaultPut(bond, caller, vault); err != nil {
		return err
	}
	e.emitter.Emit(events.FreeCollateral{
		Bond:    bond,
		Account: addressArray(caller),
		Asset:   vault.CollateralAsset,
		Amount:  amount,
	})
	return nil
}

// WithdrawCollateral returns amount of free collateral to the caller.
func (e *Engine) WithdrawCollateral(caller crypto.Address, bond string, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	bond = registry.NormalizeSymbol(bond)
	vault, err := e.loadOpenVault(bond, caller)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrWithdrawCollateralZero
	}
	if vault.FreeCollateral.Cmp(amount) < 0 {
		return ErrInsufficientFreeCollateral
	}
	asset := vault.CollateralAsset
	vault.FreeCollateral = new(big.Int).Sub(vault.FreeCollateral, amount)
	if err := e.state.VaultPut(bond, caller, vault); err != nil {
		return err
	}
	if err := e.transfer(e.treasury, caller, asset, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.WithdrawCollateral{
		Bond:    bond,
		Account: addressArray(caller),
		Asset:   asset,
		Amount:  amount,
	})
	return nil
}

// GetVault returns a copy of the stored vault, or nil when never opened.
func (e *Engine) GetVault(bond string, account crypto.Address) (*Vault, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	vault, err := e.loadVault(registry.NormalizeSymbol(bond), account)
	if err != nil {
		return nil, err
	}
	return vault.Clone(), nil
}

// GetVaultLockedCollateral returns the vault's locked collateral, zero when
// the vault was never opened.
func (e *Engine) GetVaultLockedCollateral(bond string, account crypto.Address) (*big.Int, error) {
	vault, err := e.GetVault(bond, account)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return big.NewInt(0), nil
	}
	return vault.LockedCollateral, nil
}

// VaultList returns the bonds for which the account holds an open vault.
func (e *Engine) VaultList(account crypto.Address) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.VaultList(account)
}

func (e *Engine) requireRatio(bond string, account crypto.Address, vault *Vault, locked, debt *big.Int) error {
	entry, err := e.policy.GetBond(bond)
	if err != nil {
		return err
	}
	ratio, err := e.hypotheticalRatio(bond, vault, locked, debt)
	if err != nil {
		return err
	}
	required := entry.CollateralizationRatio
	if required == nil {
		required = big.NewInt(0)
	}
	if ratio.Cmp(required) < 0 {
		return ErrBelowCollateralizationRatio
	}
	return nil
}

// GetHypotheticalCollateralizationRatio computes the vault's ratio as if it
// held lockedCollateral against debt. The result is an 18-decimal mantissa
// where 1e18 is 100%.
func (e *Engine) GetHypotheticalCollateralizationRatio(bond string, account crypto.Address, lockedCollateral, debt *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	bond = registry.NormalizeSymbol(bond)
	vault, err := e.loadOpenVault(bond, account)
	if err != nil {
		return nil, err
	}
	return e.hypotheticalRatio(bond, vault, lockedCollateral, debt)
}

func (e *Engine) hypotheticalRatio(bond string, vault *Vault, lockedCollateral, debt *big.Int) (*big.Int, error) {
	if isZero(lockedCollateral) {
		return big.NewInt(0), nil
	}
	if isZero(debt) {
		return nil, ErrRatioDebtZero
	}
	collateral, err := e.policy.GetCollateral(vault.CollateralAsset)
	if err != nil {
		return nil, err
	}
	if !collateral.Listed {
		return nil, registry.ErrCollateralNotListed
	}
	collateralPrice, err := e.prices.GetAdjustedPrice(vault.CollateralAsset)
	if err != nil {
		return nil, err
	}
	underlying, err := e.instruments.UnderlyingSymbol(bond)
	if err != nil {
		return nil, err
	}
	underlyingPrice, err := e.prices.GetAdjustedPrice(underlying)
	if err != nil {
		return nil, err
	}
	collateralValue := mulMantissa(normalizeAmount(lockedCollateral, collateral.PrecisionScalar), collateralPrice)
	debtValue := mulMantissa(debt, underlyingPrice)
	return divMantissa(collateralValue, debtValue), nil
}

// GetClutchableCollateral computes the collateral a liquidator may seize for
// repaying repayAmount of the bond's debt, inclusive of the liquidation
// incentive. The result is in the collateral asset's native decimals.
func (e *Engine) GetClutchableCollateral(bond, asset string, repayAmount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return nil, ErrClutchableZero
	}
	bond = registry.NormalizeSymbol(bond)
	asset = registry.NormalizeSymbol(asset)
	entry, err := e.policy.GetBond(bond)
	if err != nil {
		return nil, err
	}
	if isZero(entry.LiquidationIncentive) {
		return big.NewInt(0), nil
	}
	collateral, err := e.policy.GetCollateral(asset)
	if err != nil {
		return nil, err
	}
	if !collateral.Listed {
		return nil, registry.ErrCollateralNotListed
	}
	underlying, err := e.instruments.UnderlyingSymbol(bond)
	if err != nil {
		return nil, err
	}
	underlyingPrice, err := e.prices.GetAdjustedPrice(underlying)
	if err != nil {
		return nil, err
	}
	collateralPrice, err := e.prices.GetAdjustedPrice(asset)
	if err != nil {
		return nil, err
	}
	clutchable := mulMantissa(repayAmount, entry.LiquidationIncentive)
	clutchable = mulMantissa(clutchable, underlyingPrice)
	clutchable = divMantissa(clutchable, collateralPrice)
	return denormalizeAmount(clutchable, collateral.PrecisionScalar), nil
}

// IsAccountUnderwater reports whether the vault's current ratio sits below
// the bond's required ratio. Unopened vaults and debt-free vaults are never
// underwater.
func (e *Engine) IsAccountUnderwater(bond string, account crypto.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	bond = registry.NormalizeSymbol(bond)
	vault, err := e.loadVault(bond, account)
	if err != nil {
		return false, err
	}
	if vault == nil || !vault.Open || vault.Debt.Sign() == 0 {
		return false, nil
	}
	entry, err := e.policy.GetBond(bond)
	if err != nil {
		return false, err
	}
	ratio, err := e.hypotheticalRatio(bond, vault, vault.LockedCollateral, vault.Debt)
	if err != nil {
		return false, err
	}
	required := entry.CollateralizationRatio
	if required == nil {
		return false, nil
	}
	return ratio.Cmp(required) < 0, nil
}

// SetVaultDebt overwrites the vault's debt. Reserved to the bond controller;
// the controller performs every solvency check before calling.
func (e *Engine) SetVaultDebt(caller crypto.Address, bond string, account crypto.Address, debt *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !caller.Equal(e.controller) {
		return ErrNotController
	}
	bond = registry.NormalizeSymbol(bond)
	vault, err := e.loadOpenVault(bond, account)
	if err != nil {
		return err
	}
	if debt == nil || debt.Sign() < 0 {
		debt = big.NewInt(0)
	}
	vault.Debt = new(big.Int).Set(debt)
	return e.state.VaultPut(bond, account, vault)
}

// ClutchCollateral seizes clutchable units of the borrower's locked
// collateral and credits them to the liquidator. Reserved to the bond
// controller as part of liquidation.
func (e *Engine) ClutchCollateral(caller crypto.Address, bond string, liquidator, borrower crypto.Address, clutchable *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !caller.Equal(e.controller) {
		return ErrNotController
	}
	bond = registry.NormalizeSymbol(bond)
	vault, err := e.loadOpenVault(bond, borrower)
	if err != nil {
		return err
	}
	if clutchable == nil {
		clutchable = big.NewInt(0)
	}
	if vault.LockedCollateral.Cmp(clutchable) < 0 {
		return ErrInsufficientLockedCollateral
	}
	asset := vault.CollateralAsset
	vault.LockedCollateral = new(big.Int).Sub(vault.LockedCollateral, clutchable)
	if err := e.state.VaultPut(bond, borrower, vault); err != nil {
		return err
	}
	if clutchable.Sign() > 0 {
		if err := e.transfer(e.treasury, liquidator, asset, clutchable); err != nil {
			return err
		}
	}
	e.emitter.Emit(events.ClutchCollateral{
		Bond:       bond,
		Liquidator: addressArray(liquidator),
		Borrower:   addressArray(borrower),
		Asset:      asset,
		Clutched:   clutchable,
	})
	return nil
}

func addressArray(addr crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out
}
