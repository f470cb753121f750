package vault

import "math/big"

// mantissaOne is 1.0 in 18-decimal fixed point.
var mantissaOne = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// mulMantissa multiplies two 18-decimal mantissas: a * b / 1e18.
func mulMantissa(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, mantissaOne)
}

// divMantissa divides two 18-decimal mantissas: a * 1e18 / b. The divisor
// must be nonzero.
func divMantissa(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, mantissaOne)
	return out.Quo(out, b)
}

// normalizeAmount rescales a native-decimal token amount to the common
// 18-decimal accounting scale.
func normalizeAmount(amount, precisionScalar *big.Int) *big.Int {
	if precisionScalar == nil || precisionScalar.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	return new(big.Int).Mul(amount, precisionScalar)
}

// denormalizeAmount rescales an 18-decimal amount back to native decimals.
func denormalizeAmount(amount, precisionScalar *big.Int) *big.Int {
	if precisionScalar == nil || precisionScalar.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	return new(big.Int).Quo(amount, precisionScalar)
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}
