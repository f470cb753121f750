package state

import (
	"math/big"

	"bondchain/native/bond"
)

type storedBondToken struct {
	Symbol                    string
	Name                      string
	Decimals                  uint8
	Underlying                string
	UnderlyingDecimals        uint8
	UnderlyingPrecisionScalar *big.Int
	ExpirationTime            uint64
}

// BondTokenGet loads bond token metadata, nil when unknown.
func (m *Manager) BondTokenGet(id string) (*bond.Token, error) {
	stored := new(storedBondToken)
	ok, err := m.load(prefixedKey(bondTokenPrefix, id), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &bond.Token{
		Symbol:                    stored.Symbol,
		Name:                      stored.Name,
		Decimals:                  stored.Decimals,
		Underlying:                stored.Underlying,
		UnderlyingDecimals:        stored.UnderlyingDecimals,
		UnderlyingPrecisionScalar: stored.UnderlyingPrecisionScalar,
		ExpirationTime:            stored.ExpirationTime,
	}, nil
}

// BondTokenPut persists bond token metadata and records it in the bond token
// index.
func (m *Manager) BondTokenPut(token *bond.Token) error {
	if err := m.appendToList(bondTokenListKey, token.Symbol); err != nil {
		return err
	}
	return m.store(prefixedKey(bondTokenPrefix, token.Symbol), &storedBondToken{
		Symbol:                    token.Symbol,
		Name:                      token.Name,
		Decimals:                  token.Decimals,
		Underlying:                token.Underlying,
		UnderlyingDecimals:        token.UnderlyingDecimals,
		UnderlyingPrecisionScalar: bigOrZero(token.UnderlyingPrecisionScalar),
		ExpirationTime:            token.ExpirationTime,
	})
}

// BondTokenList returns the registered bond token identifiers.
func (m *Manager) BondTokenList() ([]string, error) {
	return m.loadList(bondTokenListKey)
}

// BondTokenExists reports whether metadata is stored for id.
func (m *Manager) BondTokenExists(id string) (bool, error) {
	token, err := m.BondTokenGet(id)
	if err != nil {
		return false, err
	}
	return token != nil, nil
}

// BondSupply returns the outstanding supply of a bond token, nil when never
// minted.
func (m *Manager) BondSupply(id string) (*big.Int, error) {
	supply := new(big.Int)
	ok, err := m.load(prefixedKey(bondSupplyPrefix, id), supply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return supply, nil
}

func (m *Manager) BondPutSupply(id string, supply *big.Int) error {
	return m.store(prefixedKey(bondSupplyPrefix, id), bigOrZero(supply))
}

// BondTotalDebt returns a bond's aggregate outstanding debt, nil when never
// borrowed against.
func (m *Manager) BondTotalDebt(id string) (*big.Int, error) {
	debt := new(big.Int)
	ok, err := m.load(prefixedKey(bondTotalDebtPrefix, id), debt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return debt, nil
}

func (m *Manager) BondPutTotalDebt(id string, debt *big.Int) error {
	return m.store(prefixedKey(bondTotalDebtPrefix, id), bigOrZero(debt))
}
