package modules

import (
	"encoding/json"
	"sort"

	"bondchain/core"
)

// LedgerModule exposes the token ledger and node administration over JSON-RPC.
type LedgerModule struct {
	node *core.Node
}

func NewLedgerModule(node *core.Node) *LedgerModule {
	return &LedgerModule{node: node}
}

type mintTokenParams struct {
	Caller  string `json:"caller"`
	Symbol  string `json:"symbol"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type accountParams struct {
	Address string `json:"address"`
}

type setPausedParams struct {
	Caller string `json:"caller"`
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

// AccountResult is the wire form of one ledger account.
type AccountResult struct {
	Address  string            `json:"address"`
	Nonce    uint64            `json:"nonce"`
	Balances map[string]string `json:"balances"`
}

// EventResult is the wire form of one committed event.
type EventResult struct {
	Sequence   int               `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (m *LedgerModule) ready() *ModuleError {
	if m == nil || m.node == nil {
		return moduleOffline("ledger")
	}
	return nil
}

func (m *LedgerModule) MintToken(raw json.RawMessage) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params mintTokenParams
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
	account, errResp := parseAddress("account", params.Account)
	if errResp != nil {
		return false, errResp
	}
	amount, errResp := parseAmount("amount", params.Amount)
	if errResp != nil {
		return false, errResp
	}
	if err := m.node.MintToken(caller, symbol, account, amount); err != nil {
		return false, wrapError(err)
	}
	return true, nil
}

func (m *LedgerModule) GetAccount(raw json.RawMessage) (*AccountResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params accountParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	addr, errResp := parseAddress("address", params.Address)
	if errResp != nil {
		return nil, errResp
	}
	account, err := m.node.GetAccount(addr)
	if err != nil {
		return nil, wrapError(err)
	}
	balances := make(map[string]string, len(account.Balances))
	for symbol, amount := range account.Balances {
		balances[symbol] = bigString(amount)
	}
	return &AccountResult{
		Address:  addr.String(),
		Nonce:    account.Nonce,
		Balances: balances,
	}, nil
}

func (m *LedgerModule) TokenList() ([]string, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	list, err := m.node.TokenList()
	if err != nil {
		return nil, wrapError(err)
	}
	sort.Strings(list)
	return list, nil
}

func (m *LedgerModule) SetModulePaused(raw json.RawMessage) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params setPausedParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return false, invalidParams("invalid parameter object", err.Error())
	}
	caller, errResp := parseAddress("caller", params.Caller)
	if errResp != nil {
		return false, errResp
	}
	module, errResp := requireSymbol("module", params.Module)
	if errResp != nil {
		return false, errResp
	}
	if err := m.node.SetModulePaused(caller, module, params.Paused); err != nil {
		return false, wrapError(err)
	}
	return true, nil
}

func (m *LedgerModule) Events() ([]EventResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	emitted := m.node.Events()
	out := make([]EventResult, 0, len(emitted))
	for i, event := range emitted {
		out = append(out, EventResult{
			Sequence:   i,
			Type:       event.Type,
			Attributes: event.Attributes,
		})
	}
	return out, nil
}
