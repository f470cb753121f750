package modules

import (
	"encoding/json"

	"bondchain/core"
)

// BondModule exposes the bond controller and token ledger over JSON-RPC:
// borrowing, repaying, liquidating, and the token read surface.
type BondModule struct {
	node *core.Node
}

func NewBondModule(node *core.Node) *BondModule {
	return &BondModule{node: node}
}

type bondCallParams struct {
	Caller   string `json:"caller"`
	Bond     string `json:"bond"`
	Borrower string `json:"borrower,omitempty"`
	To       string `json:"to,omitempty"`
	Amount   string `json:"amount"`
}

type bondTokenParams struct {
	Bond string `json:"bond"`
}

type bondBalanceParams struct {
	Bond    string `json:"bond"`
	Account string `json:"account"`
}

// BondTokenResult is the wire form of bond token metadata.
type BondTokenResult struct {
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	Decimals       uint8  `json:"decimals"`
	Underlying     string `json:"underlying"`
	ExpirationTime uint64 `json:"expirationTime"`
	TotalSupply    string `json:"totalSupply"`
	TotalDebt      string `json:"totalDebt"`
}

func (m *BondModule) ready() *ModuleError {
	if m == nil || m.node == nil {
		return moduleOffline("bond")
	}
	return nil
}

func (m *BondModule) call(raw json.RawMessage, apply func(params bondCallParams) error) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params bondCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return false, invalidParams("invalid parameter object", err.Error())
	}
	if _, errResp := requireSymbol("bond", params.Bond); errResp != nil {
		return false, errResp
	}
	if err := apply(params); err != nil {
		if moduleErr, ok := err.(*ModuleError); ok {
			return false, moduleErr
		}
		return false, wrapError(err)
	}
	return true, nil
}

func (m *BondModule) Borrow(raw json.RawMessage) (bool, *ModuleError) {
	return m.call(raw, func(params bondCallParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		amount, errResp := parseAmount("amount", params.Amount)
		if errResp != nil {
			return errResp
		}
		return m.node.Borrow(caller, params.Bond, amount)
	})
}

func (m *BondModule) RepayBorrow(raw json.RawMessage) (bool, *ModuleError) {
	return m.call(raw, func(params bondCallParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		amount, errResp := parseAmount("amount", params.Amount)
		if errResp != nil {
			return errResp
		}
		return m.node.RepayBorrow(caller, params.Bond, amount)
	})
}

func (m *BondModule) RepayBorrowBehalf(raw json.RawMessage) (bool, *ModuleError) {
	return m.call(raw, func(params bondCallParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		borrower, errResp := parseAddress("borrower", params.Borrower)
		if errResp != nil {
			return errResp
		}
		amount, errResp := parseAmount("amount", params.Amount)
		if errResp != nil {
			return errResp
		}
		return m.node.RepayBorrowBehalf(caller, params.Bond, borrower, amount)
	})
}

func (m *BondModule) LiquidateBorrow(raw json.RawMessage) (bool, *ModuleError) {
	return m.call(raw, func(params bondCallParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		borrower, errResp := parseAddress("borrower", params.Borrower)
		if errResp != nil {
			return errResp
		}
		amount, errResp := parseAmount("amount", params.Amount)
		if errResp != nil {
			return errResp
		}
		return m.node.LiquidateBorrow(caller, params.Bond, borrower, amount)
	})
}

func (m *BondModule) Transfer(raw json.RawMessage) (bool, *ModuleError) {
	return m.call(raw, func(params bondCallParams) error {
		caller, errResp := parseAddress("caller", params.Caller)
		if errResp != nil {
			return errResp
		}
		to, errResp := parseAddress("to", params.To)
		if errResp != nil {
			return errResp
		}
		amount, errResp := parseAmount("amount", params.Amount)
		if errResp != nil {
			return errResp
		}
		return m.node.TransferBond(caller, params.Bond, to, amount)
	})
}

func (m *BondModule) Token(raw json.RawMessage) (*BondTokenResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params bondTokenParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	bondID, errResp := requireSymbol("bond", params.Bond)
	if errResp != nil {
		return nil, errResp
	}
	token, err := m.node.BondToken(bondID)
	if err != nil {
		return nil, wrapError(err)
	}
	supply, err := m.node.BondTotalSupply(bondID)
	if err != nil {
		return nil, wrapError(err)
	}
	debt, err := m.node.BondTotalDebt(bondID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &BondTokenResult{
		Symbol:         token.Symbol,
		Name:           token.Name,
		Decimals:       token.Decimals,
		Underlying:     token.Underlying,
		ExpirationTime: token.ExpirationTime,
		TotalSupply:    bigString(supply),
		TotalDebt:      bigString(debt),
	}, nil
}

func (m *BondModule) Tokens() ([]string, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	list, err := m.node.BondTokens()
	if err != nil {
		return nil, wrapError(err)
	}
	return list, nil
}

func (m *BondModule) BalanceOf(raw json.RawMessage) (string, *ModuleError) {
	if err := m.ready(); err != nil {
		return "", err
	}
	var params bondBalanceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return "", invalidParams("invalid parameter object", err.Error())
	}
	bondID, errResp := requireSymbol("bond", params.Bond)
	if errResp != nil {
		return "", errResp
	}
	account, errResp := parseAddress("account", params.Account)
	if errResp != nil {
		return "", errResp
	}
	balance, err := m.node.BondBalanceOf(bondID, account)
	if err != nil {
		return "", wrapError(err)
	}
	return bigString(balance), nil
}
