package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"bondchain/core/types"
	"bondchain/crypto"
	"bondchain/storage"
)

// KV is the raw byte store the manager writes through. Both the database and
// the per-call overlay satisfy it.
type KV interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
}

// Manager reads and writes the ledger's state tables: token metadata and
// balances, policy entries, vaults, and bond token records. Every value is
// RLP encoded under a keccak-hashed prefixed key.
type Manager struct {
	kv KV
}

func NewManager(kv KV) *Manager {
	return &Manager{kv: kv}
}

// TokenMetadata describes one transferable asset known to the ledger.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// storedAccount is the RLP shape of an account; balances are a sorted slice
// because RLP has no map encoding.
type storedAccount struct {
	Nonce    uint64
	Balances []storedBalance
}

type storedBalance struct {
	Symbol string
	Amount *big.Int
}

func (m *Manager) load(key []byte, into interface{}) (bool, error) {
	data, err := m.kv.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, into); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) store(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

func (m *Manager) loadList(key []byte) ([]string, error) {
	var list []string
	ok, err := m.load(key, &list)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	return list, nil
}

// appendToList records value in the sorted index under key, once.
func (m *Manager) appendToList(key []byte, value string) error {
	list, err := m.loadList(key)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == value {
			return nil
		}
	}
	list = append(list, value)
	sort.Strings(list)
	return m.store(key, list)
}

// RegisterToken stores the metadata for a transferable asset and records it
// in the token index.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("token %s: name must not be empty", normalized)
	}
	existing, err := m.Token(normalized)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("token %s already registered", normalized)
	}
	if err := m.appendToList(tokenListKey, normalized); err != nil {
		return err
	}
	return m.store(prefixedKey(tokenPrefix, normalized), &TokenMetadata{
		Symbol:   normalized,
		Name:     name,
		Decimals: decimals,
	})
}

// Token returns the stored metadata for symbol, nil when unknown.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	meta := new(TokenMetadata)
	ok, err := m.load(prefixedKey(tokenPrefix, strings.ToUpper(strings.TrimSpace(symbol))), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return meta, nil
}

// TokenList returns the registered token symbols in sorted order.
func (m *Manager) TokenList() ([]string, error) {
	return m.loadList(tokenListKey)
}

// TokenDecimals reports the native decimals of a registered token.
func (m *Manager) TokenDecimals(symbol string) (uint8, bool, error) {
	meta, err := m.Token(symbol)
	if err != nil {
		return 0, false, err
	}
	if meta == nil {
		return 0, false, nil
	}
	return meta.Decimals, true, nil
}

// GetAccount loads the account record for addr. Unknown addresses read back
// as an empty account.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	stored := new(storedAccount)
	ok, err := m.load(accountKey(addr.Bytes()), stored)
	if err != nil {
		return nil, err
	}
	account := &types.Account{Balances: make(map[string]*big.Int)}
	if !ok {
		return account, nil
	}
	account.Nonce = stored.Nonce
	for _, balance := range stored.Balances {
		account.Balances[balance.Symbol] = new(big.Int).Set(balance.Amount)
	}
	return account, nil
}

// PutAccount persists the account record for addr. Zero balances are dropped
// from the stored form.
func (m *Manager) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		account = &types.Account{}
	}
	stored := &storedAccount{Nonce: account.Nonce}
	symbols := make([]string, 0, len(account.Balances))
	for symbol, amount := range account.Balances {
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		stored.Balances = append(stored.Balances, storedBalance{
			Symbol: symbol,
			Amount: new(big.Int).Set(account.Balances[symbol]),
		})
	}
	return m.store(accountKey(addr.Bytes()), stored)
}
