package vault

import "math/big"

// Vault is a borrower's collateral-and-debt position for one bond, keyed by
// (bond, account). Collateral balances are kept in the asset's native
// decimals; debt is an 18-decimal bond token amount.
type Vault struct {
	Bond             string
	Open             bool
	CollateralAsset  string
	FreeCollateral   *big.Int
	LockedCollateral *big.Int
	Debt             *big.Int
}

// Clone returns a deep copy so stored vaults never alias caller-held values.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	clone.FreeCollateral = copyBig(v.FreeCollateral)
	clone.LockedCollateral = copyBig(v.LockedCollateral)
	clone.Debt = copyBig(v.Debt)
	return &clone
}

// TotalCollateral returns free + locked collateral.
func (v *Vault) TotalCollateral() *big.Int {
	total := new(big.Int)
	if v == nil {
		return total
	}
	if v.FreeCollateral != nil {
		total.Add(total, v.FreeCollateral)
	}
	if v.LockedCollateral != nil {
		total.Add(total, v.LockedCollateral)
	}
	return total
}

func (v *Vault) normalize() {
	if v.FreeCollateral == nil {
		v.FreeCollateral = big.NewInt(0)
	}
	if v.LockedCollateral == nil {
		v.LockedCollateral = big.NewInt(0)
	}
	if v.Debt == nil {
		v.Debt = big.NewInt(0)
	}
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
