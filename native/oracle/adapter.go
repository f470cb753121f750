package oracle

import (
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"

	"bondchain/core/events"
	"bondchain/crypto"
)

var (
	// ErrNotAdmin rejects feed mutations from any caller other than the
	// configured admin.
	ErrNotAdmin = errors.New("oracle: caller is not the admin")
	// ErrFeedIncorrectDecimals rejects feed sources that do not report
	// 8-decimal prices.
	ErrFeedIncorrectDecimals = errors.New("oracle: feed must report 8 decimals")
	// ErrFeedNotSet is returned when a feed is deleted or queried by an
	// operation that requires it to exist.
	ErrFeedNotSet = errors.New("oracle: feed not set")
	// ErrPriceZero is returned when a feed is unset or reports a
	// non-positive price.
	ErrPriceZero = errors.New("oracle: price is zero")
	// ErrNilSource rejects feed registration without a price source.
	ErrNilSource = errors.New("oracle: feed source is nil")
)

// feedDecimals is the only decimal count accepted from external sources.
const feedDecimals = 8

// pricePrecisionScalar rescales an 8-decimal feed price to the 18-decimal
// mantissa used by all solvency arithmetic.
var pricePrecisionScalar = new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil)

// FeedSource is the external price feed capability. Implementations report a
// fixed decimal count and the latest observed price at that scale.
type FeedSource interface {
	Decimals() uint8
	LatestPrice() (*big.Int, error)
}

// Feed is the stored registration for one symbol.
type Feed struct {
	Asset       string
	Description string
	IsSet       bool
	source      FeedSource
}

// Adapter normalizes external price feeds to the common 18-decimal mantissa
// scale. Registration is admin gated; reads are open.
type Adapter struct {
	mu      sync.RWMutex
	admin   crypto.Address
	emitter events.Emitter
	feeds   map[string]*Feed
}

func NewAdapter(admin crypto.Address, emitter events.Emitter) *Adapter {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Adapter{
		admin:   admin,
		emitter: emitter,
		feeds:   make(map[string]*Feed),
	}
}

// SetEmitter swaps the event sink. A nil emitter silences events.
func (a *Adapter) SetEmitter(emitter events.Emitter) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	a.emitter = emitter
}

// SetFeed registers a price source for symbol. The source must report exactly
// 8 decimals.
func (a *Adapter) SetFeed(caller crypto.Address, symbol, asset, description string, source FeedSource) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !caller.Equal(a.admin) {
		return ErrNotAdmin
	}
	if source == nil {
		return ErrNilSource
	}
	if source.Decimals() != feedDecimals {
		return ErrFeedIncorrectDecimals
	}
	symbol = normalizeSymbol(symbol)
	a.feeds[symbol] = &Feed{
		Asset:       asset,
		Description: description,
		IsSet:       true,
		source:      source,
	}
	a.emitter.Emit(events.SetFeed{
		Admin: addressArray(caller),
		Asset: symbol,
		Feed:  description,
	})
	return nil
}

// DeleteFeed removes a registered feed.
func (a *Adapter) DeleteFeed(caller crypto.Address, symbol string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !caller.Equal(a.admin) {
		return ErrNotAdmin
	}
	symbol = normalizeSymbol(symbol)
	feed, ok := a.feeds[symbol]
	if !ok {
		return ErrFeedNotSet
	}
	delete(a.feeds, symbol)
	a.emitter.Emit(events.DeleteFeed{
		Admin: addressArray(caller),
		Asset: symbol,
		Feed:  feed.Description,
	})
	return nil
}

// GetFeed returns the stored feed for symbol, or a zero-value Feed with
// IsSet=false when none is registered.
func (a *Adapter) GetFeed(symbol string) Feed {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if feed, ok := a.feeds[normalizeSymbol(symbol)]; ok {
		return *feed
	}
	return Feed{}
}

// Symbols returns the registered feed symbols in sorted order.
func (a *Adapter) Symbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	symbols := make([]string, 0, len(a.feeds))
	for symbol := range a.feeds {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// GetAdjustedPrice reads the latest feed price for symbol and rescales it to
// an 18-decimal mantissa. Unset feeds and non-positive prices fail with
// ErrPriceZero.
func (a *Adapter) GetAdjustedPrice(symbol string) (*big.Int, error) {
	a.mu.RLock()
	feed, ok := a.feeds[normalizeSymbol(symbol)]
	a.mu.RUnlock()
	if !ok || feed.source == nil {
		return nil, ErrPriceZero
	}
	price, err := feed.source.LatestPrice()
	if err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrPriceZero
	}
	return new(big.Int).Mul(price, pricePrecisionScalar), nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func addressArray(addr crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out
}
