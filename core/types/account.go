package types

import "math/big"

// Account is the ledger-level record for an address. Token balances are kept
// per symbol so multiple collateral assets and bond tokens can coexist.
type Account struct {
	Nonce    uint64              `json:"nonce"`
	Balances map[string]*big.Int `json:"balances"`
}

// Balance returns the named token balance, defaulting to zero. The returned
// value is the stored pointer; callers mutate balances via SetBalance.
func (a *Account) Balance(symbol string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if balance, ok := a.Balances[symbol]; ok && balance != nil {
		return balance
	}
	return big.NewInt(0)
}

// SetBalance records the named token balance, allocating the map lazily.
func (a *Account) SetBalance(symbol string, amount *big.Int) {
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	a.Balances[symbol] = new(big.Int).Set(amount)
}
