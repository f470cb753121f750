package modules

import (
	"encoding/json"

	"bondchain/core"
)

// OracleModule exposes the price feed adapter over JSON-RPC: feed management,
// operator price submission, and adjusted price reads.
type OracleModule struct {
	node *core.Node
}

func NewOracleModule(node *core.Node) *OracleModule {
	return &OracleModule{node: node}
}

type setFeedParams struct {
	Caller      string `json:"caller"`
	Symbol      string `json:"symbol"`
	Asset       string `json:"asset"`
	Description string `json:"description"`
}

type feedParams struct {
	Caller string `json:"caller,omitempty"`
	Symbol string `json:"symbol"`
}

type submitPriceParams struct {
	Caller string `json:"caller"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// FeedResult is the wire form of a feed registration.
type FeedResult struct {
	Symbol      string `json:"symbol"`
	Asset       string `json:"asset"`
	Description string `json:"description"`
	IsSet       bool   `json:"isSet"`
}

func (m *OracleModule) ready() *ModuleError {
	if m == nil || m.node == nil {
		return moduleOffline("oracle")
	}
	return nil
}

func (m *OracleModule) SetFeed(raw json.RawMessage) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params setFeedParams
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
	if err := m.node.SetFeed(caller, symbol, params.Asset, params.Description); err != nil {
		return false, wrapError(err)
	}
	return true, nil
}

func (m *OracleModule) DeleteFeed(raw json.RawMessage) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params feedParams
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
	if err := m.node.DeleteFeed(caller, symbol); err != nil {
		return false, wrapError(err)
	}
	return true, nil
}

func (m *OracleModule) SubmitPrice(raw json.RawMessage) (bool, *ModuleError) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var params submitPriceParams
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
	price, errResp := parseAmount("price", params.Price)
	if errResp != nil {
		return false, errResp
	}
	if err := m.node.SubmitPrice(caller, symbol, price); err != nil {
		return false, wrapError(err)
	}
	return true, nil
}

func (m *OracleModule) GetPrice(raw json.RawMessage) (string, *ModuleError) {
	if err := m.ready(); err != nil {
		return "", err
	}
	var params feedParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return "", invalidParams("invalid parameter object", err.Error())
	}
	symbol, errResp := requireSymbol("symbol", params.Symbol)
	if errResp != nil {
		return "", errResp
	}
	price, err := m.node.GetAdjustedPrice(symbol)
	if err != nil {
		return "", wrapError(err)
	}
	return bigString(price), nil
}

func (m *OracleModule) GetFeed(raw json.RawMessage) (*FeedResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params feedParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	symbol, errResp := requireSymbol("symbol", params.Symbol)
	if errResp != nil {
		return nil, errResp
	}
	feed := m.node.GetFeed(symbol)
	return &FeedResult{
		Symbol:      symbol,
		Asset:       feed.Asset,
		Description: feed.Description,
		IsSet:       feed.IsSet,
	}, nil
}

func (m *OracleModule) Symbols() ([]string, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.node.FeedSymbols(), nil
}
