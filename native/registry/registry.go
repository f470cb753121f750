package registry

import (
	"errors"
	"math/big"
	"strings"

	"bondchain/core/events"
	"bondchain/crypto"
)

var (
	errNilState = errors.New("registry: state not configured")

	// ErrNotAdmin rejects policy mutations from non-admin callers. It is
	// checked before any other guard.
	ErrNotAdmin = errors.New("registry: caller is not the admin")
	// ErrBondNotListed is returned when a setter or flag read addresses a
	// bond that was never listed.
	ErrBondNotListed = errors.New("registry: bond not listed")
	// ErrCollateralNotListed is returned when a bond listing references an
	// unlisted collateral asset.
	ErrCollateralNotListed = errors.New("registry: collateral not listed")
	// ErrTokenNotRegistered is returned when listing a collateral whose
	// token metadata is missing from the ledger.
	ErrTokenNotRegistered = errors.New("registry: token not registered")
	// ErrBondNotRegistered is returned when listing a bond whose token
	// metadata is missing from the ledger.
	ErrBondNotRegistered = errors.New("registry: bond token not registered")
	// ErrListCollateralDecimalsZero rejects assets reporting zero decimals.
	ErrListCollateralDecimalsZero = errors.New("registry: collateral decimals is zero")
	// ErrListCollateralDecimalsOverflow rejects assets reporting more than
	// 18 decimals.
	ErrListCollateralDecimalsOverflow = errors.New("registry: collateral decimals above 18")
	// ErrCollateralizationRatioUnderflow rejects ratios below 100%.
	ErrCollateralizationRatioUnderflow = errors.New("registry: collateralization ratio below lower bound")
	// ErrCollateralizationRatioOverflow rejects ratios above 10,000%.
	ErrCollateralizationRatioOverflow = errors.New("registry: collateralization ratio above upper bound")
	// ErrLiquidationIncentiveUnderflow rejects incentives below 100%.
	ErrLiquidationIncentiveUnderflow = errors.New("registry: liquidation incentive below lower bound")
	// ErrLiquidationIncentiveOverflow rejects incentives above 150%.
	ErrLiquidationIncentiveOverflow = errors.New("registry: liquidation incentive above upper bound")
)

const maxCollateralDecimals = 18

// Numeric parameter bounds, expressed as 18-decimal mantissas.
var (
	collateralizationRatioLowerBound = mantissa(1, 0)   // 100%
	collateralizationRatioUpperBound = mantissa(100, 0) // 10,000%
	liquidationIncentiveLowerBound   = mantissa(1, 0)   // 100%
	liquidationIncentiveUpperBound   = mantissa(1, 50)  // 150%
)

// mantissa builds units + hundredths/100 as an 18-decimal fixed-point value.
func mantissa(units, hundredths int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	v := new(big.Int).Mul(big.NewInt(units), scale)
	frac := new(big.Int).Mul(big.NewInt(hundredths), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	return v.Add(v, frac)
}

// State is the persistence surface the registry needs. The ledger's state
// manager implements it.
type State interface {
	RegistryGetCollateral(symbol string) (*Collateral, error)
	RegistryPutCollateral(collateral *Collateral) error
	RegistryCollateralList() ([]string, error)
	RegistryGetBond(id string) (*Bond, error)
	RegistryPutBond(bond *Bond) error
	RegistryBondList() ([]string, error)
	RegistryMaxBonds() (uint64, error)
	RegistryPutMaxBonds(limit uint64) error
	TokenDecimals(symbol string) (uint8, bool, error)
	BondTokenExists(id string) (bool, error)
}

// Registry holds per-asset and per-bond policy. All mutations are gated on
// the admin identity fixed at construction; reads are open.
type Registry struct {
	admin   crypto.Address
	state   State
	emitter events.Emitter
}

func New(admin crypto.Address, emitter events.Emitter) *Registry {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Registry{admin: admin, emitter: emitter}
}

// SetState wires the registry to the external persistence layer.
func (r *Registry) SetState(state State) { r.state = state }

// SetEmitter swaps the event sink. A nil emitter silences events.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

// Admin returns the fixed admin identity.
func (r *Registry) Admin() crypto.Address { return r.admin }

func (r *Registry) requireAdmin(caller crypto.Address) error {
	if !caller.Equal(r.admin) {
		return ErrNotAdmin
	}
	if r.state == nil {
		return errNilState
	}
	return nil
}

// NormalizeSymbol canonicalizes asset and bond identifiers.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ListCollateral registers an asset as usable collateral. The asset's native
// decimals are read from the token ledger and bounds-checked before any state
// is written.
func (r *Registry) ListCollateral(caller crypto.Address, symbol string) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	symbol = NormalizeSymbol(symbol)
	decimals, ok, err := r.state.TokenDecimals(symbol)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotRegistered
	}
	if decimals == 0 {
		return ErrListCollateralDecimalsZero
	}
	if decimals > maxCollateralDecimals {
		return ErrListCollateralDecimalsOverflow
	}
	entry := &Collateral{
		Symbol:          symbol,
		Listed:          true,
		Decimals:        decimals,
		PrecisionScalar: PrecisionScalar(decimals),
	}
	if err := r.state.RegistryPutCollateral(entry); err != nil {
		return err
	}
	r.emitter.Emit(events.ListCollateral{Admin: addressArray(caller), Asset: symbol})
	return nil
}

// ListBond registers a bond market together with its accepted collateral set.
// Every accepted collateral must already be listed.
func (r *Registry) ListBond(caller crypto.Address, id string, acceptedCollateral []string) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	id = NormalizeSymbol(id)
	exists, err := r.state.BondTokenExists(id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrBondNotRegistered
	}
	accepted := make([]string, 0, len(acceptedCollateral))
	for _, symbol := range acceptedCollateral {
		symbol = NormalizeSymbol(symbol)
		collateral, err := r.state.RegistryGetCollateral(symbol)
		if err != nil {
			return err
		}
		if collateral == nil || !collateral.Listed {
			return ErrCollateralNotListed
		}
		accepted = append(accepted, symbol)
	}
	entry := &Bond{
		ID:                 id,
		Listed:             true,
		AcceptedCollateral: accepted,
	}
	if err := r.state.RegistryPutBond(entry); err != nil {
		return err
	}
	r.emitter.Emit(events.ListBond{Admin: addressArray(caller), Bond: id})
	return nil
}

func (r *Registry) loadListedBond(id string) (*Bond, error) {
	if r.state == nil {
		return nil, errNilState
	}
	bond, err := r.state.RegistryGetBond(NormalizeSymbol(id))
	if err != nil {
		return nil, err
	}
	if bond == nil || !bond.Listed {
		return nil, ErrBondNotListed
	}
	return bond, nil
}

// SetCollateralizationRatio sets the minimum collateral-to-debt ratio for a
// bond, bounded to [100%, 10,000%].
func (r *Registry) SetCollateralizationRatio(caller crypto.Address, id string, ratio *big.Int) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if ratio == nil || ratio.Cmp(collateralizationRatioLowerBound) < 0 {
		return ErrCollateralizationRatioUnderflow
	}
	if ratio.Cmp(collateralizationRatioUpperBound) > 0 {
		return ErrCollateralizationRatioOverflow
	}
	bond, err := r.loadListedBond(id)
	if err != nil {
		return err
	}
	old := bond.CollateralizationRatio
	bond.CollateralizationRatio = new(big.Int).Set(ratio)
	if err := r.state.RegistryPutBond(bond); err != nil {
		return err
	}
	r.emitter.Emit(events.SetCollateralizationRatio{
		Admin:    addressArray(caller),
		Bond:     bond.ID,
		OldRatio: old,
		NewRatio: bond.CollateralizationRatio,
	})
	return nil
}

// SetLiquidationIncentive sets the liquidator bonus for a bond, bounded to
// [100%, 150%].
func (r *Registry) SetLiquidationIncentive(caller crypto.Address, id string, incentive *big.Int) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if incentive == nil || incentive.Cmp(liquidationIncentiveLowerBound) < 0 {
		return ErrLiquidationIncentiveUnderflow
	}
	if incentive.Cmp(liquidationIncentiveUpperBound) > 0 {
		return ErrLiquidationIncentiveOverflow
	}
	bond, err := r.loadListedBond(id)
	if err != nil {
		return err
	}
	old := bond.LiquidationIncentive
	bond.LiquidationIncentive = new(big.Int).Set(incentive)
	if err := r.state.RegistryPutBond(bond); err != nil {
		return err
	}
	r.emitter.Emit(events.SetLiquidationIncentive{
		Admin:        addressArray(caller),
		Bond:         bond.ID,
		OldIncentive: old,
		NewIncentive: bond.LiquidationIncentive,
	})
	return nil
}

// SetDebtCeiling caps the aggregate debt permitted for a bond.
func (r *Registry) SetDebtCeiling(caller crypto.Address, id string, ceiling *big.Int) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if ceiling == nil {
		ceiling = big.NewInt(0)
	}
	bond, err := r.loadListedBond(id)
	if err != nil {
		return err
	}
	old := bond.DebtCeiling
	bond.DebtCeiling = new(big.Int).Set(ceiling)
	if err := r.state.RegistryPutBond(bond); err != nil {
		return err
	}
	r.emitter.Emit(events.SetDebtCeiling{
		Admin:      addressArray(caller),
		Bond:       bond.ID,
		OldCeiling: old,
		NewCeiling: bond.DebtCeiling,
	})
	return nil
}

// Flag names carried on registry.setBondFlag events.
const (
	FlagBorrowAllowed            = "borrowAllowed"
	FlagDepositCollateralAllowed = "depositCollateralAllowed"
	FlagLiquidateBorrowAllowed   = "liquidateBorrowAllowed"
	FlagRepayBorrowAllowed       = "repayBorrowAllowed"
)

func (r *Registry) setFlag(caller crypto.Address, id, flag string, allowed bool, apply func(*Bond)) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	bond, err := r.loadListedBond(id)
	if err != nil {
		return err
	}
	apply(bond)
	if err := r.state.RegistryPutBond(bond); err != nil {
		return err
	}
	r.emitter.Emit(events.SetBondFlag{
		Admin:   addressArray(caller),
		Bond:    bond.ID,
		Flag:    flag,
		Allowed: allowed,
	})
	return nil
}

func (r *Registry) SetBorrowAllowed(caller crypto.Address, id string, allowed bool) error {
	return r.setFlag(caller, id, FlagBorrowAllowed, allowed, func(b *Bond) { b.BorrowAllowed = allowed })
}

func (r *Registry) SetDepositCollateralAllowed(caller crypto.Address, id string, allowed bool) error {
	return r.setFlag(caller, id, FlagDepositCollateralAllowed, allowed, func(b *Bond) { b.DepositCollateralAllowed = allowed })
}

func (r *Registry) SetLiquidateBorrowAllowed(caller crypto.Address, id string, allowed bool) error {
	return r.setFlag(caller, id, FlagLiquidateBorrowAllowed, allowed, func(b *Bond) { b.LiquidateBorrowAllowed = allowed })
}

func (r *Registry) SetRepayBorrowAllowed(caller crypto.Address, id string, allowed bool) error {
	return r.setFlag(caller, id, FlagRepayBorrowAllowed, allowed, func(b *Bond) { b.RepayBorrowAllowed = allowed })
}

// SetMaxBonds caps how many vaults a single account may hold open.
func (r *Registry) SetMaxBonds(caller crypto.Address, limit uint64) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	old, err := r.state.RegistryMaxBonds()
	if err != nil {
		return err
	}
	if err := r.state.RegistryPutMaxBonds(limit); err != nil {
		return err
	}
	r.emitter.Emit(events.SetMaxBonds{Admin: addressArray(caller), OldMax: old, NewMax: limit})
	return nil
}

// GetBond returns the stored bond entry, or the zero value when unlisted.
func (r *Registry) GetBond(id string) (Bond, error) {
	if r.state == nil {
		return Bond{}, errNilState
	}
	bond, err := r.state.RegistryGetBond(NormalizeSymbol(id))
	if err != nil {
		return Bond{}, err
	}
	if bond == nil {
		return Bond{}, nil
	}
	return *bond.Clone(), nil
}

// GetCollateral returns the stored collateral entry, or the zero value.
func (r *Registry) GetCollateral(symbol string) (Collateral, error) {
	if r.state == nil {
		return Collateral{}, errNilState
	}
	collateral, err := r.state.RegistryGetCollateral(NormalizeSymbol(symbol))
	if err != nil {
		return Collateral{}, err
	}
	if collateral == nil {
		return Collateral{}, nil
	}
	return *collateral.Clone(), nil
}

func (r *Registry) IsBondListed(id string) (bool, error) {
	bond, err := r.GetBond(id)
	if err != nil {
		return false, err
	}
	return bond.Listed, nil
}

func (r *Registry) IsCollateralListed(symbol string) (bool, error) {
	collateral, err := r.GetCollateral(symbol)
	if err != nil {
		return false, err
	}
	return collateral.Listed, nil
}

func (r *Registry) GetBorrowAllowed(id string) (bool, error) {
	bond, err := r.loadListedBond(id)
	if err != nil {
		return false, err
	}
	return bond.BorrowAllowed, nil
}

func (r *Registry) GetDepositCollateralAllowed(id string) (bool, error) {
	bond, err := r.loadListedBond(id)
	if err != nil {
		return false, err
	}
	return bond.DepositCollateralAllowed, nil
}

func (r *Registry) GetLiquidateBorrowAllowed(id string) (bool, error) {
	bond, err := r.loadListedBond(id)
	if err != nil {
		return false, err
	}
	return bond.LiquidateBorrowAllowed, nil
}

func (r *Registry) GetRepayBorrowAllowed(id string) (bool, error) {
	bond, err := r.loadListedBond(id)
	if err != nil {
		return false, err
	}
	return bond.RepayBorrowAllowed, nil
}

// MaxBonds returns the per-account open vault limit. Zero means unlimited.
func (r *Registry) MaxBonds() (uint64, error) {
	if r.state == nil {
		return 0, errNilState
	}
	return r.state.RegistryMaxBonds()
}

// CollateralList returns the listed collateral symbols.
func (r *Registry) CollateralList() ([]string, error) {
	if r.state == nil {
		return nil, errNilState
	}
	return r.state.RegistryCollateralList()
}

// BondList returns the listed bond identifiers.
func (r *Registry) BondList() ([]string, error) {
	if r.state == nil {
		return nil, errNilState
	}
	return r.state.RegistryBondList()
}

// PrecisionScalar computes 10^(18-decimals).
func PrecisionScalar(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
}

func addressArray(addr crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out
}
