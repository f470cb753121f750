package modules

import (
	"encoding/json"

	"bondchain/core"
)

// RegistryModule exposes the policy registry over JSON-RPC: listing assets and
// bonds, tuning per-bond solvency parameters, and flipping permission flags.
type RegistryModule struct {
	node *core.Node
}

func NewRegistryModule(node *core.Node) *RegistryModule {
	return &RegistryModule{node: node}
}

type listCollateralParams struct {
	Caller string `json:"caller"`
	Symbol string `json:"symbol"`
}

type listBondParams struct {
	Caller     string   `json:"caller"`
	Bond       string   `json:"bond"`
	Collateral []string `json:"collateral"`
}

type setParameterParams struct {
	Caller string `json:"caller"`
	Bond   string `json:"bond"`
	Value  string `json:"value"`
}

type setFlagParams struct {
	Caller  string `json:"caller"`
	Bond    string `json:"bond"`
	Allowed bool   `json:"allowed"`
}

type setMaxBondsParams struct {
	Caller   string `json:"caller"`
	MaxBonds uint64 `json:"maxBonds"`
}

type bondQueryParams struct {
	Bond string `json:"bond"`
}

type collateralQueryParams struct {
	Symbol string `json:"symbol"`
}

// BondPolicyResult is the wire form of a bond's policy entry.
type BondPolicyResult struct {
	Bond                     string   `json:"bond"`
	Listed                   bool     `json:"listed"`
	CollateralizationRatio   string   `json:"collateralizationRatio"`
	DebtCeiling              string   `json:"debtCeiling"`
	LiquidationIncentive     string   `json:"liquidationIncentive"`
	BorrowAllowed            bool     `json:"borrowAllowed"`
	DepositCollateralAllowed bool     `json:"depositCollateralAllowed"`
	LiquidateBorrowAllowed   bool     `json:"liquidateBorrowAllowed"`
	RepayBorrowAllowed       bool     `json:"repayBorrowAllowed"`
	AcceptedCollateral       []string `json:"acceptedCollateral"`
}

// CollateralPolicyResult is the wire form of a collateral policy entry.
type CollateralPolicyResult struct {
	Symbol          string `json:"symbol"`
	Listed          bool   `json:"listed"`
	Decimals        uint8  `json:"decimals"`
	PrecisionScalar string `json:"precisionScalar"`
}

func (m *RegistryModule) ready() *ModuleError {
	if m == nil || m.node == nil {
		return moduleOffline("registry")
	}
	return nil
}

func (m *RegistryModule) ListCollateral(raw json.RawMessage) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params listCollateralParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return false, invalidParams("invalid parameter object", err.Error())
	}
	caller, errResp := parseAddress("caller", params.Caller)
	if errResp != nil {
		return false, errResp
	}
	symbol, errResp := requireSymbol("symbol", params.Symbol)
	if errResp != nil {
		return false, errResp
	}
	if err := m.node.ListCollateral(caller, symbol); err != nil {
		return false, wrapError(err)
	}
	return true, nil
}

func (m *RegistryModule) ListBond(raw json.RawMessage) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params listBondParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return false, invalidParams("invalid parameter object", err.Error())
	}
	caller, errResp := parseAddress("caller", params.Caller)
	if errResp != nil {
		return false, errResp
	}
	bondID, errResp := requireSymbol("bond", params.Bond)
	if errResp != nil {
		return false, errResp
	}
	if err := m.node.ListBond(caller, bondID, params.Collateral); err != nil {
		return false, wrapError(err)
	}
	return true, nil
}

func (m *RegistryModule) applyParameter(raw json.RawMessage, call func(params setParameterParams) error) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params setParameterParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return false, invalidParams("invalid parameter object", err.Error())
	}
	if err := call(params); err != nil {
		if moduleErr, ok := err.(*ModuleError); ok {
			return false, moduleErr
		}
		return false, wrapError(err)
	}
	return true, nil
}

func (m *RegistryModule) SetCollateralizationRatio(raw json.RawMessage) (bool, *ModuleError) {
	return m.applyParameter(raw, func(params setParameterParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		ratio, errResp := parseAmount("value", params.Value)
		if errResp != nil {
			return errResp
		}
		return m.node.SetCollateralizationRatio(caller, params.Bond, ratio)
	})
}

func (m *RegistryModule) SetLiquidationIncentive(raw json.RawMessage) (bool, *ModuleError) {
	return m.applyParameter(raw, func(params setParameterParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		incentive, errResp := parseAmount("value", params.Value)
		if errResp != nil {
			return errResp
		}
		return m.node.SetLiquidationIncentive(caller, params.Bond, incentive)
	})
}

func (m *RegistryModule) SetDebtCeiling(raw json.RawMessage) (bool, *ModuleError) {
	return m.applyParameter(raw, func(params setParameterParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		ceiling, errResp := parseAmount("value", params.Value)
		if errResp != nil {
			return errResp
		}
		return m.node.SetDebtCeiling(caller, params.Bond, ceiling)
	})
}

func (m *RegistryModule) setFlag(raw json.RawMessage, apply func(caller setFlagParams) error) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params setFlagParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return false, invalidParams("invalid parameter object", err.Error())
	}
	if err := apply(params); err != nil {
		if moduleErr, ok := err.(*ModuleError); ok {
			return false, moduleErr
		}
		return false, wrapError(err)
	}
	return true, nil
}

func (m *RegistryModule) SetBorrowAllowed(raw json.RawMessage) (bool, *ModuleError) {
	return m.setFlag(raw, func(params setFlagParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		return m.node.SetBorrowAllowed(caller, params.Bond, params.Allowed)
	})
}

func (m *RegistryModule) SetDepositCollateralAllowed(raw json.RawMessage) (bool, *ModuleError) {
	return m.setFlag(raw, func(params setFlagParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		return m.node.SetDepositCollateralAllowed(caller, params.Bond, params.Allowed)
	})
}

func (m *RegistryModule) SetLiquidateBorrowAllowed(raw json.RawMessage) (bool, *ModuleError) {
	return m.setFlag(raw, func(params setFlagParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		return m.node.SetLiquidateBorrowAllowed(caller, params.Bond, params.Allowed)
	})
}

func (m *RegistryModule) SetRepayBorrowAllowed(raw json.RawMessage) (bool, *ModuleError) {
	return m.setFlag(raw, func(params setFlagParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		return m.node.SetRepayBorrowAllowed(caller, params.Bond, params.Allowed)
	})
}

func (m *RegistryModule) SetMaxBonds(raw json.RawMessage) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params setMaxBondsParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return false, invalidParams("invalid parameter object", err.Error())
	}
	caller, errResp := parseAddress("caller", params.Caller)
	if errResp != nil {
		return false, errResp
	}
	if err := m.node.SetMaxBonds(caller, params.MaxBonds); err != nil {
		return false, wrapError(err)
	}
	return true, nil
}

func (m *RegistryModule) GetBond(raw json.RawMessage) (*BondPolicyResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params bondQueryParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	bondID, errResp := requireSymbol("bond", params.Bond)
	if errResp != nil {
		return nil, errResp
	}
	policy, err := m.node.GetBondPolicy(bondID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &BondPolicyResult{
		Bond:                     bondID,
		Listed:                   policy.Listed,
		CollateralizationRatio:   bigString(policy.CollateralizationRatio),
		DebtCeiling:              bigString(policy.DebtCeiling),
		LiquidationIncentive:     bigString(policy.LiquidationIncentive),
		BorrowAllowed:            policy.BorrowAllowed,
		DepositCollateralAllowed: policy.DepositCollateralAllowed,
		LiquidateBorrowAllowed:   policy.LiquidateBorrowAllowed,
		RepayBorrowAllowed:       policy.RepayBorrowAllowed,
		AcceptedCollateral:       policy.AcceptedCollateral,
	}, nil
}

func (m *RegistryModule) GetCollateral(raw json.RawMessage) (*CollateralPolicyResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params collateralQueryParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	symbol, errResp := requireSymbol("symbol", params.Symbol)
	if errResp != nil {
		return nil, errResp
	}
	policy, err := m.node.GetCollateralPolicy(symbol)
	if err != nil {
		return nil, wrapError(err)
	}
	return &CollateralPolicyResult{
		Symbol:          symbol,
		Listed:          policy.Listed,
		Decimals:        policy.Decimals,
		PrecisionScalar: bigString(policy.PrecisionScalar),
	}, nil
}

func (m *RegistryModule) BondList() ([]string, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	list, err := m.node.BondList()
	if err != nil {
		return nil, wrapError(err)
	}
	return list, nil
}

func (m *RegistryModule) CollateralList() ([]string, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	list, err := m.node.CollateralList()
	if err != nil {
		return nil, wrapError(err)
	}
	return list, nil
}

func (m *RegistryModule) MaxBonds() (uint64, *ModuleError) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	limit, err := m.node.MaxBonds()
	if err != nil {
		return 0, wrapError(err)
	}
	return limit, nil
}
