package oracle

import (
	"errors"
	"math/big"
	"testing"

	"bondchain/core/events"
	"bondchain/crypto"
)

type fakeFeed struct {
	decimals uint8
	price    *big.Int
	err      error
}

func (f *fakeFeed) Decimals() uint8 { return f.decimals }

func (f *fakeFeed) LatestPrice() (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.price, nil
}

func makeAddress(b byte) crypto.Address {
	buf := make([]byte, 20)
	for i := range buf {
		buf[i] = b
	}
	return crypto.NewAddress(crypto.BondPrefix, buf)
}

func TestSetFeedRejectsNonAdmin(t *testing.T) {
	admin := makeAddress(0x01)
	adapter := NewAdapter(admin, nil)
	feed := &fakeFeed{decimals: 8, price: big.NewInt(100_000_000)}

	if err := adapter.SetFeed(makeAddress(0x02), "WETH", "WETH", "WETH/USD", feed); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if adapter.GetFeed("WETH").IsSet {
		t.Fatalf("feed must not be stored after rejected call")
	}
}

func TestSetFeedRejectsWrongDecimals(t *testing.T) {
	admin := makeAddress(0x01)
	adapter := NewAdapter(admin, nil)
	for _, decimals := range []uint8{0, 6, 18} {
		feed := &fakeFeed{decimals: decimals, price: big.NewInt(1)}
		if err := adapter.SetFeed(admin, "WETH", "WETH", "WETH/USD", feed); !errors.Is(err, ErrFeedIncorrectDecimals) {
			t.Fatalf("decimals %d: expected ErrFeedIncorrectDecimals, got %v", decimals, err)
		}
	}
}

func TestSetFeedStoresAndEmits(t *testing.T) {
	admin := makeAddress(0x01)
	recorder := events.NewRecorder()
	adapter := NewAdapter(admin, recorder)
	feed := &fakeFeed{decimals: 8, price: big.NewInt(100_000_000)}

	if err := adapter.SetFeed(admin, "weth", "WETH", "WETH/USD", feed); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	stored := adapter.GetFeed("WETH")
	if !stored.IsSet || stored.Asset != "WETH" || stored.Description != "WETH/USD" {
		t.Fatalf("unexpected stored feed: %+v", stored)
	}
	emitted := recorder.Events()
	if len(emitted) != 1 || emitted[0].EventType() != events.TypeSetFeed {
		t.Fatalf("expected one set feed event, got %v", emitted)
	}
}

func TestGetAdjustedPriceRescalesToMantissa(t *testing.T) {
	admin := makeAddress(0x01)
	adapter := NewAdapter(admin, nil)
	// $100.00 at 8 decimals.
	feed := &fakeFeed{decimals: 8, price: big.NewInt(10_000_000_000)}
	if err := adapter.SetFeed(admin, "WBTC", "WBTC", "WBTC/USD", feed); err != nil {
		t.Fatalf("set feed: %v", err)
	}

	price, err := adapter.GetAdjustedPrice("WBTC")
	if err != nil {
		t.Fatalf("adjusted price: %v", err)
	}
	want, _ := new(big.Int).SetString("100000000000000000000", 10)
	if price.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, price)
	}
}

func TestGetAdjustedPriceFailures(t *testing.T) {
	admin := makeAddress(0x01)
	adapter := NewAdapter(admin, nil)

	if _, err := adapter.GetAdjustedPrice("UNSET"); !errors.Is(err, ErrPriceZero) {
		t.Fatalf("unset feed: expected ErrPriceZero, got %v", err)
	}

	if err := adapter.SetFeed(admin, "DAI", "DAI", "DAI/USD", &fakeFeed{decimals: 8, price: big.NewInt(0)}); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	if _, err := adapter.GetAdjustedPrice("DAI"); !errors.Is(err, ErrPriceZero) {
		t.Fatalf("zero price: expected ErrPriceZero, got %v", err)
	}

	if err := adapter.SetFeed(admin, "USDC", "USDC", "USDC/USD", &fakeFeed{decimals: 8, price: big.NewInt(-5)}); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	if _, err := adapter.GetAdjustedPrice("USDC"); !errors.Is(err, ErrPriceZero) {
		t.Fatalf("negative price: expected ErrPriceZero, got %v", err)
	}

	feedErr := errors.New("feed offline")
	if err := adapter.SetFeed(admin, "LINK", "LINK", "LINK/USD", &fakeFeed{decimals: 8, err: feedErr}); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	if _, err := adapter.GetAdjustedPrice("LINK"); !errors.Is(err, feedErr) {
		t.Fatalf("source error must propagate, got %v", err)
	}
}

func TestDeleteFeed(t *testing.T) {
	admin := makeAddress(0x01)
	recorder := events.NewRecorder()
	adapter := NewAdapter(admin, recorder)
	if err := adapter.SetFeed(admin, "WETH", "WETH", "WETH/USD", &fakeFeed{decimals: 8, price: big.NewInt(1)}); err != nil {
		t.Fatalf("set feed: %v", err)
	}

	if err := adapter.DeleteFeed(makeAddress(0x02), "WETH"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := adapter.DeleteFeed(admin, "MISSING"); !errors.Is(err, ErrFeedNotSet) {
		t.Fatalf("expected ErrFeedNotSet, got %v", err)
	}
	if err := adapter.DeleteFeed(admin, "WETH"); err != nil {
		t.Fatalf("delete feed: %v", err)
	}
	if adapter.GetFeed("WETH").IsSet {
		t.Fatalf("feed must be gone after delete")
	}
	if _, err := adapter.GetAdjustedPrice("WETH"); !errors.Is(err, ErrPriceZero) {
		t.Fatalf("deleted feed: expected ErrPriceZero, got %v", err)
	}
}
