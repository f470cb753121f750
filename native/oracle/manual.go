package oracle

import (
	"math/big"
	"sync"
)

// ManualSource is an operator-driven price feed. Prices are pushed through
// SubmitPrice (typically from an RPC handler) and read back at 8 decimals like
// any external feed. A source with no submitted price reports ErrPriceZero
// through the adapter.
type ManualSource struct {
	mu    sync.RWMutex
	price *big.Int
}

func NewManualSource() *ManualSource {
	return &ManualSource{}
}

func (s *ManualSource) Decimals() uint8 {
	return feedDecimals
}

// SubmitPrice records the latest observed price at 8 decimals.
func (s *ManualSource) SubmitPrice(price *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if price == nil {
		s.price = nil
		return
	}
	s.price = new(big.Int).Set(price)
}

func (s *ManualSource) LatestPrice() (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.price == nil {
		return nil, nil
	}
	return new(big.Int).Set(s.price), nil
}
