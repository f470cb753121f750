package state

import (
	"math/big"

	"bondchain/native/registry"
)

// storedCollateral is the RLP shape of a collateral policy entry. A nil
// PrecisionScalar cannot round-trip through RLP, so amounts default to zero.
type storedCollateral struct {
	Symbol          string
	Listed          bool
	Decimals        uint8
	PrecisionScalar *big.Int
}

type storedBondPolicy struct {
	ID                       string
	Listed                   bool
	CollateralizationRatio   *big.Int
	DebtCeiling              *big.Int
	LiquidationIncentive     *big.Int
	BorrowAllowed            bool
	DepositCollateralAllowed bool
	LiquidateBorrowAllowed   bool
	RepayBorrowAllowed       bool
	AcceptedCollateral       []string
}

// RegistryGetCollateral loads a collateral policy entry, nil when absent.
func (m *Manager) RegistryGetCollateral(symbol string) (*registry.Collateral, error) {
	stored := new(storedCollateral)
	ok, err := m.load(prefixedKey(collateralPrefix, symbol), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &registry.Collateral{
		Symbol:          stored.Symbol,
		Listed:          stored.Listed,
		Decimals:        stored.Decimals,
		PrecisionScalar: stored.PrecisionScalar,
	}, nil
}

// RegistryPutCollateral persists a collateral policy entry and records it in
// the collateral index.
func (m *Manager) RegistryPutCollateral(collateral *registry.Collateral) error {
	if err := m.appendToList(collateralListKey, collateral.Symbol); err != nil {
		return err
	}
	return m.store(prefixedKey(collateralPrefix, collateral.Symbol), &storedCollateral{
		Symbol:          collateral.Symbol,
		Listed:          collateral.Listed,
		Decimals:        collateral.Decimals,
		PrecisionScalar: bigOrZero(collateral.PrecisionScalar),
	})
}

func (m *Manager) RegistryCollateralList() ([]string, error) {
	return m.loadList(collateralListKey)
}

// RegistryGetBond loads a bond policy entry, nil when absent.
func (m *Manager) RegistryGetBond(id string) (*registry.Bond, error) {
	stored := new(storedBondPolicy)
	ok, err := m.load(prefixedKey(bondPolicyPrefix, id), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &registry.Bond{
		ID:                       stored.ID,
		Listed:                   stored.Listed,
		CollateralizationRatio:   stored.CollateralizationRatio,
		DebtCeiling:              stored.DebtCeiling,
		LiquidationIncentive:     stored.LiquidationIncentive,
		BorrowAllowed:            stored.BorrowAllowed,
		DepositCollateralAllowed: stored.DepositCollateralAllowed,
		LiquidateBorrowAllowed:   stored.LiquidateBorrowAllowed,
		RepayBorrowAllowed:       stored.RepayBorrowAllowed,
		AcceptedCollateral:       stored.AcceptedCollateral,
	}, nil
}

// RegistryPutBond persists a bond policy entry and records it in the bond
// index.
func (m *Manager) RegistryPutBond(bond *registry.Bond) error {
	if err := m.appendToList(bondPolicyListKey, bond.ID); err != nil {
		return err
	}
	return m.store(prefixedKey(bondPolicyPrefix, bond.ID), &storedBondPolicy{
		ID:                       bond.ID,
		Listed:                   bond.Listed,
		CollateralizationRatio:   bigOrZero(bond.CollateralizationRatio),
		DebtCeiling:              bigOrZero(bond.DebtCeiling),
		LiquidationIncentive:     bigOrZero(bond.LiquidationIncentive),
		BorrowAllowed:            bond.BorrowAllowed,
		DepositCollateralAllowed: bond.DepositCollateralAllowed,
		LiquidateBorrowAllowed:   bond.LiquidateBorrowAllowed,
		RepayBorrowAllowed:       bond.RepayBorrowAllowed,
		AcceptedCollateral:       bond.AcceptedCollateral,
	})
}

func (m *Manager) RegistryBondList() ([]string, error) {
	return m.loadList(bondPolicyListKey)
}

// RegistryMaxBonds returns the per-account vault limit, zero when never set.
func (m *Manager) RegistryMaxBonds() (uint64, error) {
	var limit uint64
	ok, err := m.load(maxBondsKey, &limit)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return limit, nil
}

func (m *Manager) RegistryPutMaxBonds(limit uint64) error {
	return m.store(maxBondsKey, limit)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
