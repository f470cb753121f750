package bond

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestNewTokenGuards(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	future := uint64(now.Unix()) + 86_400

	if _, err := NewToken("BUSD-DEC26", "Bond USDC Dec 2026", "USDC", 0, future, now); !errors.Is(err, ErrConstructorUnderlyingDecimalsZero) {
		t.Fatalf("decimals 0: expected ErrConstructorUnderlyingDecimalsZero, got %v", err)
	}
	if _, err := NewToken("BUSD-DEC26", "Bond USDC Dec 2026", "USDC", 19, future, now); !errors.Is(err, ErrConstructorUnderlyingDecimalsOverflow) {
		t.Fatalf("decimals 19: expected ErrConstructorUnderlyingDecimalsOverflow, got %v", err)
	}
	if _, err := NewToken("BUSD-DEC26", "Bond USDC Dec 2026", "USDC", 6, uint64(now.Unix()), now); !errors.Is(err, ErrConstructorExpirationTimePast) {
		t.Fatalf("expiration now: expected ErrConstructorExpirationTimePast, got %v", err)
	}
	if _, err := NewToken("BUSD-DEC26", "Bond USDC Dec 2026", "USDC", 6, uint64(now.Unix())-1, now); !errors.Is(err, ErrConstructorExpirationTimePast) {
		t.Fatalf("expiration past: expected ErrConstructorExpirationTimePast, got %v", err)
	}

	token, err := NewToken("busd-dec26", "Bond USDC Dec 2026", "usdc", 6, future, now)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if token.Symbol != "BUSD-DEC26" || token.Underlying != "USDC" || token.Decimals != 18 {
		t.Fatalf("unexpected token: %+v", token)
	}
	if want := new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil); token.UnderlyingPrecisionScalar.Cmp(want) != 0 {
		t.Fatalf("precision scalar: expected %s, got %s", want, token.UnderlyingPrecisionScalar)
	}
	if token.IsMatured(now) {
		t.Fatalf("token must not be matured before expiration")
	}
	if !token.IsMatured(now.Add(25 * time.Hour)) {
		t.Fatalf("token must be matured after expiration")
	}
}
