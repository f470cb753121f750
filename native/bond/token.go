package bond

import (
	"errors"
	"math/big"
	"time"

	"bondchain/native/registry"
)

var (
	// ErrConstructorUnderlyingDecimalsZero rejects bond tokens whose
	// underlying reports zero decimals.
	ErrConstructorUnderlyingDecimalsZero = errors.New("bond: underlying decimals is zero")
	// ErrConstructorUnderlyingDecimalsOverflow rejects underlyings with
	// more than 18 decimals.
	ErrConstructorUnderlyingDecimalsOverflow = errors.New("bond: underlying decimals above 18")
	// ErrConstructorExpirationTimePast rejects expiration times at or
	// before construction time.
	ErrConstructorExpirationTimePast = errors.New("bond: expiration time is in the past")
)

// tokenDecimals is the fixed decimal count of every bond token.
const tokenDecimals = 18

// Token is a zero-coupon bond instrument: it trades at a discount and
// redeems one-for-one against the underlying at maturity.
type Token struct {
	Symbol                    string
	Name                      string
	Decimals                  uint8
	Underlying                string
	UnderlyingDecimals        uint8
	UnderlyingPrecisionScalar *big.Int
	ExpirationTime            uint64
}

// NewToken validates and builds a bond token. The expiration must be strictly
// in the future relative to now.
func NewToken(symbol, name, underlying string, underlyingDecimals uint8, expiration uint64, now time.Time) (*Token, error) {
	if underlyingDecimals == 0 {
		return nil, ErrConstructorUnderlyingDecimalsZero
	}
	if underlyingDecimals > tokenDecimals {
		return nil, ErrConstructorUnderlyingDecimalsOverflow
	}
	if expiration <= uint64(now.Unix()) {
		return nil, ErrConstructorExpirationTimePast
	}
	return &Token{
		Symbol:                    registry.NormalizeSymbol(symbol),
		Name:                      name,
		Decimals:                  tokenDecimals,
		Underlying:                registry.NormalizeSymbol(underlying),
		UnderlyingDecimals:        underlyingDecimals,
		UnderlyingPrecisionScalar: registry.PrecisionScalar(underlyingDecimals),
		ExpirationTime:            expiration,
	}, nil
}

// IsMatured reports whether the bond has reached its expiration time.
func (t *Token) IsMatured(now time.Time) bool {
	if t == nil {
		return false
	}
	return uint64(now.Unix()) >= t.ExpirationTime
}
