package bond

import (
	"errors"
	"math/big"
	"time"

	"bondchain/core/events"
	"bondchain/crypto"
	nativecommon "bondchain/native/common"
	"bondchain/native/registry"
	"bondchain/native/vault"
)

var (
	errNilDeps = errors.New("bond: controller dependencies not configured")

	// ErrBorrowNotAllowed is returned when the bond's borrow flag is off.
	ErrBorrowNotAllowed = errors.New("bond: borrowing not allowed")
	// ErrBorrowZero rejects zero-amount borrows.
	ErrBorrowZero = errors.New("bond: borrow amount is zero")
	// ErrBondMatured rejects borrowing against an expired bond.
	ErrBondMatured = errors.New("bond: bond has matured")
	// ErrBorrowDebtCeilingOverflow is returned when a borrow would push the
	// bond's aggregate debt past its ceiling.
	ErrBorrowDebtCeilingOverflow = errors.New("bond: debt ceiling overflow")
	// ErrRepayBorrowNotAllowed is returned when the bond's repay flag is
	// off.
	ErrRepayBorrowNotAllowed = errors.New("bond: repaying not allowed")
	// ErrRepayBorrowZero rejects zero-amount repayments.
	ErrRepayBorrowZero = errors.New("bond: repay amount is zero")
	// ErrRepayBorrowInsufficientBalance is returned when the payer holds
	// fewer bond tokens than the repay amount.
	ErrRepayBorrowInsufficientBalance = errors.New("bond: insufficient bond balance to repay")
	// ErrRepayBorrowInsufficientDebt is returned when the repay amount
	// exceeds the borrower's outstanding debt.
	ErrRepayBorrowInsufficientDebt = errors.New("bond: repay amount exceeds debt")
	// ErrLiquidateBorrowNotAllowed is returned when the bond's liquidate
	// flag is off.
	ErrLiquidateBorrowNotAllowed = errors.New("bond: liquidating not allowed")
	// ErrLiquidateBorrowZero rejects zero-amount liquidations.
	ErrLiquidateBorrowZero = errors.New("bond: liquidate amount is zero")
	// ErrLiquidateBorrowSelf rejects borrowers liquidating themselves.
	ErrLiquidateBorrowSelf = errors.New("bond: borrower cannot liquidate itself")
	// ErrAccountNotUnderwater is returned when the borrower is neither
	// underwater nor past maturity.
	ErrAccountNotUnderwater = errors.New("bond: account not eligible for liquidation")
)

const moduleName = "bond"

// Policy is the registry surface the controller consults.
type Policy interface {
	GetBond(id string) (registry.Bond, error)
	GetBorrowAllowed(id string) (bool, error)
	GetRepayBorrowAllowed(id string) (bool, error)
	GetLiquidateBorrowAllowed(id string) (bool, error)
}

// Vaults is the vault ledger surface the controller drives.
type Vaults interface {
	GetVault(bond string, account crypto.Address) (*vault.Vault, error)
	GetHypotheticalCollateralizationRatio(bond string, account crypto.Address, lockedCollateral, debt *big.Int) (*big.Int, error)
	GetClutchableCollateral(bond, asset string, repayAmount *big.Int) (*big.Int, error)
	IsAccountUnderwater(bond string, account crypto.Address) (bool, error)
	SetVaultDebt(caller crypto.Address, bond string, account crypto.Address, debt *big.Int) error
	ClutchCollateral(caller crypto.Address, bond string, liquidator, borrower crypto.Address, clutchable *big.Int) error
}

// DebtState persists per-bond aggregate debt for ceiling checks.
type DebtState interface {
	BondTotalDebt(id string) (*big.Int, error)
	BondPutTotalDebt(id string, debt *big.Int) error
}

// Controller orchestrates borrow, repay, and liquidation across the policy
// registry, the vault ledger, and the bond token ledger. It is the only
// identity allowed to mint/burn bond tokens and to mutate vault debt.
type Controller struct {
	policy  Policy
	vaults  Vaults
	ledger  *Ledger
	state   DebtState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	address crypto.Address
	now     func() time.Time
}

func NewController(policy Policy, vaults Vaults, ledger *Ledger) *Controller {
	return &Controller{
		policy:  policy,
		vaults:  vaults,
		ledger:  ledger,
		emitter: events.NoopEmitter{},
		address: crypto.ModuleAddress(moduleName),
		now:     time.Now,
	}
}

// Address returns the controller's module identity, the caller it presents to
// the vault ledger and token ledger for restricted effects.
func (c *Controller) Address() crypto.Address { return c.address }

// SetState wires the aggregate debt table.
func (c *Controller) SetState(state DebtState) { c.state = state }

// SetEmitter swaps the event sink. A nil emitter silences events.
func (c *Controller) SetEmitter(emitter events.Emitter) {
	if c == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	c.emitter = emitter
}

func (c *Controller) SetPauses(p nativecommon.PauseView) {
	if c == nil {
		return
	}
	c.pauses = p
}

// SetTimeSource overrides the clock used for maturity checks.
func (c *Controller) SetTimeSource(now func() time.Time) {
	if c == nil || now == nil {
		return
	}
	c.now = now
}

func (c *Controller) ready() error {
	if c == nil || c.policy == nil || c.vaults == nil || c.ledger == nil || c.state == nil {
		return errNilDeps
	}
	return nil
}

// TotalDebt returns the bond's aggregate outstanding debt.
func (c *Controller) TotalDebt(id string) (*big.Int, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	debt, err := c.state.BondTotalDebt(registry.NormalizeSymbol(id))
	if err != nil {
		return nil, err
	}
	if debt == nil {
		return big.NewInt(0), nil
	}
	return debt, nil
}

// Borrow mints amount bond tokens to the caller against locked vault
// collateral, increasing the vault's debt.
func (c *Controller) Borrow(caller crypto.Address, bondID string, amount *big.Int) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return err
	}
	bondID = registry.NormalizeSymbol(bondID)
	allowed, err := c.policy.GetBorrowAllowed(bondID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrBorrowNotAllowed
	}
	token, err := c.ledger.Token(bondID)
	if err != nil {
		return err
	}
	if token.IsMatured(c.now()) {
		return ErrBondMatured
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrBorrowZero
	}
	entry, err := c.policy.GetBond(bondID)
	if err != nil {
		return err
	}
	totalDebt, err := c.TotalDebt(bondID)
	if err != nil {
		return err
	}
	newTotal := new(big.Int).Add(totalDebt, amount)
	ceiling := entry.DebtCeiling
	if ceiling == nil {
		ceiling = big.NewInt(0)
	}
	if newTotal.Cmp(ceiling) > 0 {
		return ErrBorrowDebtCeilingOverflow
	}
	borrowerVault, err := c.vaults.GetVault(bondID, caller)
	if err != nil {
		return err
	}
	if borrowerVault == nil || !borrowerVault.Open {
		return vault.ErrVaultNotOpen
	}
	newDebt := new(big.Int).Add(borrowerVault.Debt, amount)
	ratio, err := c.vaults.GetHypotheticalCollateralizationRatio(bondID, caller, borrowerVault.LockedCollateral, newDebt)
	if err != nil {
		return err
	}
	required := entry.CollateralizationRatio
	if required == nil {
		required = big.NewInt(0)
	}
	if ratio.Cmp(required) < 0 {
		return vault.ErrBelowCollateralizationRatio
	}

	// Debt is committed before the mint so the minted tokens can never be
	// observed against stale vault state.
	if err := c.vaults.SetVaultDebt(c.address, bondID, caller, newDebt); err != nil {
		return err
	}
	if err := c.state.BondPutTotalDebt(bondID, newTotal); err != nil {
		return err
	}
	if err := c.ledger.Mint(c.address, bondID, caller, amount); err != nil {
		return err
	}
	c.emitter.Emit(events.Borrow{Bond: bondID, Borrower: addressArray(caller), Amount: amount})
	return nil
}

// RepayBorrow burns amount of the caller's bond tokens and reduces the
// caller's vault debt.
func (c *Controller) RepayBorrow(caller crypto.Address, bondID string, amount *big.Int) error {
	return c.repay(caller, bondID, caller, amount)
}

// RepayBorrowBehalf burns amount of the caller's bond tokens to reduce
// another borrower's vault debt.
func (c *Controller) RepayBorrowBehalf(caller crypto.Address, bondID string, borrower crypto.Address, amount *big.Int) error {
	return c.repay(caller, bondID, borrower, amount)
}

func (c *Controller) repay(payer crypto.Address, bondID string, borrower crypto.Address, amount *big.Int) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return err
	}
	bondID = registry.NormalizeSymbol(bondID)
	allowed, err := c.policy.GetRepayBorrowAllowed(bondID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrRepayBorrowNotAllowed
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrRepayBorrowZero
	}
	borrowerVault, err := c.vaults.GetVault(bondID, borrower)
	if err != nil {
		return err
	}
	if borrowerVault == nil || !borrowerVault.Open {
		return vault.ErrVaultNotOpen
	}
	if borrowerVault.Debt.Cmp(amount) < 0 {
		return ErrRepayBorrowInsufficientDebt
	}
	balance, err := c.ledger.BalanceOf(bondID, payer)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrRepayBorrowInsufficientBalance
	}
	newDebt := new(big.Int).Sub(borrowerVault.Debt, amount)
	if err := c.vaults.SetVaultDebt(c.address, bondID, borrower, newDebt); err != nil {
		return err
	}
	totalDebt, err := c.TotalDebt(bondID)
	if err != nil {
		return err
	}
	newTotal := new(big.Int).Sub(totalDebt, amount)
	if newTotal.Sign() < 0 {
		newTotal = big.NewInt(0)
	}
	if err := c.state.BondPutTotalDebt(bondID, newTotal); err != nil {
		return err
	}
	if err := c.ledger.Burn(c.address, bondID, payer, amount); err != nil {
		return err
	}
	c.emitter.Emit(events.RepayBorrow{
		Bond:     bondID,
		Payer:    addressArray(payer),
		Borrower: addressArray(borrower),
		Amount:   amount,
		NewDebt:  newDebt,
	})
	return nil
}

// LiquidateBorrow lets a third party repay an underwater (or matured)
// borrower's debt in exchange for clutching a bonus-bearing share of the
// borrower's locked collateral.
func (c *Controller) LiquidateBorrow(caller crypto.Address, bondID string, borrower crypto.Address, repayAmount *big.Int) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return err
	}
	bondID = registry.NormalizeSymbol(bondID)
	allowed, err := c.policy.GetLiquidateBorrowAllowed(bondID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrLiquidateBorrowNotAllowed
	}
	if caller.Equal(borrower) {
		return ErrLiquidateBorrowSelf
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return ErrLiquidateBorrowZero
	}
	token, err := c.ledger.Token(bondID)
	if err != nil {
		return err
	}
	if !token.IsMatured(c.now()) {
		underwater, err := c.vaults.IsAccountUnderwater(bondID, borrower)
		if err != nil {
			return err
		}
		if !underwater {
			return ErrAccountNotUnderwater
		}
	}
	borrowerVault, err := c.vaults.GetVault(bondID, borrower)
	if err != nil {
		return err
	}
	if borrowerVault == nil || !borrowerVault.Open {
		return vault.ErrVaultNotOpen
	}
	if borrowerVault.Debt.Cmp(repayAmount) < 0 {
		return ErrRepayBorrowInsufficientDebt
	}
	balance, err := c.ledger.BalanceOf(bondID, caller)
	if err != nil {
		return err
	}
	if balance.Cmp(repayAmount) < 0 {
		return ErrRepayBorrowInsufficientBalance
	}
	clutchable, err := c.vaults.GetClutchableCollateral(bondID, borrowerVault.CollateralAsset, repayAmount)
	if err != nil {
		return err
	}
	if borrowerVault.LockedCollateral.Cmp(clutchable) < 0 {
		return vault.ErrInsufficientLockedCollateral
	}

	newDebt := new(big.Int).Sub(borrowerVault.Debt, repayAmount)
	if err := c.vaults.SetVaultDebt(c.address, bondID, borrower, newDebt); err != nil {
		return err
	}
	totalDebt, err := c.TotalDebt(bondID)
	if err != nil {
		return err
	}
	newTotal := new(big.Int).Sub(totalDebt, repayAmount)
	if newTotal.Sign() < 0 {
		newTotal = big.NewInt(0)
	}
	if err := c.state.BondPutTotalDebt(bondID, newTotal); err != nil {
		return err
	}
	if err := c.ledger.Burn(c.address, bondID, caller, repayAmount); err != nil {
		return err
	}
	if err := c.vaults.ClutchCollateral(c.address, bondID, caller, borrower, clutchable); err != nil {
		return err
	}
	c.emitter.Emit(events.LiquidateBorrow{
		Bond:       bondID,
		Liquidator: addressArray(caller),
		Borrower:   addressArray(borrower),
		Repaid:     repayAmount,
		Asset:      borrowerVault.CollateralAsset,
		Clutched:   clutchable,
	})
	return nil
}
