package modules

import (
	"encoding/json"

	"bondchain/core"
)

// VaultModule exposes the vault ledger over JSON-RPC: opening vaults, moving
// collateral through the free/locked pools, and the solvency read surface.
type VaultModule struct {
	node *core.Node
}

func NewVaultModule(node *core.Node) *VaultModule {
	return &VaultModule{node: node}
}

type vaultCallParams struct {
	Caller string `json:"caller"`
	Bond   string `json:"bond"`
	Asset  string `json:"asset,omitempty"`
	Amount string `json:"amount,omitempty"`
}

type vaultQueryParams struct {
	Bond    string `json:"bond"`
	Account string `json:"account"`
}

type vaultListParams struct {
	Account string `json:"account"`
}

type hypotheticalRatioParams struct {
	Bond    string `json:"bond"`
	Account string `json:"account"`
	Locked  string `json:"lockedCollateral"`
	Debt    string `json:"debt"`
}

type clutchableParams struct {
	Bond  string `json:"bond"`
	Asset string `json:"asset"`
	Repay string `json:"repayAmount"`
}

// VaultResult is the wire form of one vault record.
type VaultResult struct {
	Bond             string `json:"bond"`
	Open             bool   `json:"open"`
	CollateralAsset  string `json:"collateralAsset,omitempty"`
	FreeCollateral   string `json:"freeCollateral"`
	LockedCollateral string `json:"lockedCollateral"`
	Debt             string `json:"debt"`
}

func (m *VaultModule) ready() *ModuleError {
	if m == nil || m.node == nil {
		return moduleOffline("vault")
	}
	return nil
}

func (m *VaultModule) call(raw json.RawMessage, needsAmount bool, apply func(params vaultCallParams) error) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params vaultCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return false, invalidParams("invalid parameter object", err.Error())
	}
	if _, errResp := requireSymbol("bond", params.Bond); errResp != nil {
		return false, errResp
	}
	if needsAmount {
		if _, errResp := parseAmount("amount", params.Amount); errResp != nil {
			return false, errResp
		}
	}
	if err := apply(params); err != nil {
		if moduleErr, ok := err.(*ModuleError); ok {
			return false, moduleErr
		}
		return false, wrapError(err)
	}
	return true, nil
}

func (m *VaultModule) Open(raw json.RawMessage) (bool, *ModuleError) {
	return m.call(raw, false, func(params vaultCallParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		return m.node.OpenVault(caller, params.Bond)
	})
}

func (m *VaultModule) DepositCollateral(raw json.RawMessage) (bool, *ModuleError) {
	return m.call(raw, true, func(params vaultCallParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		asset, errResp := requireSymbol("asset", params.Asset)
		if errResp != nil {
			return errResp
		}
		amount, errResp := parseAmount("amount", params.Amount)
		if errResp != nil {
			return errResp
		}
		return m.node.DepositCollateral(caller, params.Bond, asset, amount)
	})
}

func (m *VaultModule) WithdrawCollateral(raw json.RawMessage) (bool, *ModuleError) {
	return m.call(raw, true, func(params vaultCallParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		amount, errResp := parseAmount("amount", params.Amount)
		if errResp != nil {
			return errResp
		}
		return m.node.WithdrawCollateral(caller, params.Bond, amount)
	})
}

func (m *VaultModule) LockCollateral(raw json.RawMessage) (bool, *ModuleError) {
	return m.call(raw, true, func(params vaultCallParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		amount, errResp := parseAmount("amount", params.Amount)
		if errResp != nil {
			return errResp
		}
		return m.node.LockCollateral(caller, params.Bond, amount)
	})
}

func (m *VaultModule) FreeCollateral(raw json.RawMessage) (bool, *ModuleError) {
	return m.call(raw, true, func(params vaultCallParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		amount, errResp := parseAmount("amount", params.Amount)
		if errResp != nil {
			return errResp
		}
		return m.node.FreeCollateral(caller, params.Bond, amount)
	})
}

func (m *VaultModule) Get(raw json.RawMessage) (*VaultResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params vaultQueryParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	bondID, errResp := requireSymbol("bond", params.Bond)
	if errResp != nil {
		return nil, errResp
	}
	account, errResp := parseAddress("account", params.Account)
	if errResp != nil {
		return nil, errResp
	}
	v, err := m.node.GetVault(bondID, account)
	if err != nil {
		return nil, wrapError(err)
	}
	if v == nil {
		return &VaultResult{Bond: bondID, FreeCollateral: "0", LockedCollateral: "0", Debt: "0"}, nil
	}
	return &VaultResult{
		Bond:             v.Bond,
		Open:             v.Open,
		CollateralAsset:  v.CollateralAsset,
		FreeCollateral:   bigString(v.FreeCollateral),
		LockedCollateral: bigString(v.LockedCollateral),
		Debt:             bigString(v.Debt),
	}, nil
}

func (m *VaultModule) List(raw json.RawMessage) ([]string, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params vaultListParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	account, errResp := parseAddress("account", params.Account)
	if errResp != nil {
		return nil, errResp
	}
	list, err := m.node.VaultList(account)
	if err != nil {
		return nil, wrapError(err)
	}
	return list, nil
}

func (m *VaultModule) HypotheticalCollateralizationRatio(raw json.RawMessage) (string, *ModuleError) {
	if err := m.ready(); err != nil {
		return "", err
	}
	var params hypotheticalRatioParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return "", invalidParams("invalid parameter object", err.Error())
	}
	account, errResp := parseAddress("account", params.Account)
	if errResp != nil {
		return "", errResp
	}
	locked, errResp := parseAmount("lockedCollateral", params.Locked)
	if errResp != nil {
		return "", errResp
	}
	debt, errResp := parseAmount("debt", params.Debt)
	if errResp != nil {
		return "", errResp
	}
	ratio, err := m.node.GetHypotheticalCollateralizationRatio(params.Bond, account, locked, debt)
	if err != nil {
		return "", wrapError(err)
	}
	return bigString(ratio), nil
}

func (m *VaultModule) ClutchableCollateral(raw json.RawMessage) (string, *ModuleError) {
	if err := m.ready(); err != nil {
		return "", err
	}
	var params clutchableParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return "", invalidParams("invalid parameter object", err.Error())
	}
	repay, errResp := parseAmount("repayAmount", params.Repay)
	if errResp != nil {
		return "", errResp
	}
	clutchable, err := m.node.GetClutchableCollateral(params.Bond, params.Asset, repay)
	if err != nil {
		return "", wrapError(err)
	}
	return bigString(clutchable), nil
}

func (m *VaultModule) IsUnderwater(raw json.RawMessage) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params vaultQueryParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return false, invalidParams("invalid parameter object", err.Error())
	}
	account, errResp := parseAddress("account", params.Account)
	if errResp != nil {
		return false, errResp
	}
	underwater, err := m.node.IsAccountUnderwater(params.Bond, account)
	if err != nil {
		return false, wrapError(err)
	}
	return underwater, nil
}
