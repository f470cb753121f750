package registry

import "math/big"

// Collateral is the per-asset listing entry. PrecisionScalar converts the
// asset's native decimal amounts to the common 18-decimal accounting scale.
type Collateral struct {
	Symbol          string
	Listed          bool
	Decimals        uint8
	PrecisionScalar *big.Int
}

// Bond is the per-bond policy entry. A never-configured bond reads back as
// the zero value; callers must check Listed before trusting other fields.
type Bond struct {
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

// AcceptsCollateral reports whether symbol is in the bond's accepted set.
func (b *Bond) AcceptsCollateral(symbol string) bool {
	if b == nil {
		return false
	}
	for _, accepted := range b.AcceptedCollateral {
		if accepted == symbol {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stored entries never alias caller-held values.
func (b *Bond) Clone() *Bond {
	if b == nil {
		return nil
	}
	clone := *b
	clone.CollateralizationRatio = copyBig(b.CollateralizationRatio)
	clone.DebtCeiling = copyBig(b.DebtCeiling)
	clone.LiquidationIncentive = copyBig(b.LiquidationIncentive)
	clone.AcceptedCollateral = append([]string(nil), b.AcceptedCollateral...)
	return &clone
}

// Clone returns a deep copy of the collateral entry.
func (c *Collateral) Clone() *Collateral {
	if c == nil {
		return nil
	}
	clone := *c
	clone.PrecisionScalar = copyBig(c.PrecisionScalar)
	return &clone
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
