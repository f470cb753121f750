package state

import (
	"math/big"

	"bondchain/crypto"
	"bondchain/native/vault"
)

type storedVault struct {
	Bond             string
	Open             bool
	CollateralAsset  string
	FreeCollateral   *big.Int
	LockedCollateral *big.Int
	Debt             *big.Int
}

// VaultGet loads the vault for (bond, addr), nil when never opened.
func (m *Manager) VaultGet(bond string, addr crypto.Address) (*vault.Vault, error) {
	stored := new(storedVault)
	ok, err := m.load(vaultKey(bond, addr.Bytes()), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &vault.Vault{
		Bond:             stored.Bond,
		Open:             stored.Open,
		CollateralAsset:  stored.CollateralAsset,
		FreeCollateral:   stored.FreeCollateral,
		LockedCollateral: stored.LockedCollateral,
		Debt:             stored.Debt,
	}, nil
}

// VaultPut persists the vault for (bond, addr).
func (m *Manager) VaultPut(bond string, addr crypto.Address, v *vault.Vault) error {
	return m.store(vaultKey(bond, addr.Bytes()), &storedVault{
		Bond:             v.Bond,
		Open:             v.Open,
		CollateralAsset:  v.CollateralAsset,
		FreeCollateral:   bigOrZero(v.FreeCollateral),
		LockedCollateral: bigOrZero(v.LockedCollateral),
		Debt:             bigOrZero(v.Debt),
	})
}

// VaultList returns the bonds for which addr holds a vault.
func (m *Manager) VaultList(addr crypto.Address) ([]string, error) {
	return m.loadList(vaultListKey(addr.Bytes()))
}

// VaultPutList overwrites addr's vault index.
func (m *Manager) VaultPutList(addr crypto.Address, bonds []string) error {
	return m.store(vaultListKey(addr.Bytes()), bonds)
}
