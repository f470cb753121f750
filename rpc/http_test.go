package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bondchain/core"
	"bondchain/crypto"
	"bondchain/storage"

	"github.com/stretchr/testify/require"
)

const (
	testToken = "test-rpc-token"
	testBond  = "BUSD-DEC26"
)

type rpcFixture struct {
	server   *httptest.Server
	admin    crypto.Address
	borrower crypto.Address
}

func makeAddress(b byte) crypto.Address {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = b
	}
	return crypto.NewAddress(crypto.BondPrefix, raw)
}

func newRPCFixture(t *testing.T) *rpcFixture {
	t.Helper()
	admin := makeAddress(0xAA)
	node := core.NewNode(storage.NewMemDB(), admin, nil)
	node.SetTimeSource(func() time.Time {
		return time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	})
	require.NoError(t, node.ApplyGenesis(core.Genesis{
		Tokens: []core.GenesisToken{
			{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
			{Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
		},
		Bonds: []core.GenesisBond{
			{Symbol: testBond, Name: "BUSD December 2026", Underlying: "USDC", ExpirationTime: 1798761600},
		},
		Feeds: []core.GenesisFeed{
			{Symbol: "WETH", Asset: "WETH", Description: "WETH / USD"},
			{Symbol: "USDC", Asset: "USDC", Description: "USDC / USD"},
		},
		MaxBonds: 10,
	}))

	server := httptest.NewServer(NewServer(node, testToken).Handler())
	t.Cleanup(server.Close)
	return &rpcFixture{server: server, admin: admin, borrower: makeAddress(0x01)}
}

func (f *rpcFixture) call(t *testing.T, method string, params interface{}, authorized bool) (*RPCResponse, int) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.server.URL, bytes.NewReader(encoded))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := &RPCResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(decoded))
	return decoded, resp.StatusCode
}

func (f *rpcFixture) mustCall(t *testing.T, method string, params interface{}) *RPCResponse {
	t.Helper()
	resp, status := f.call(t, method, params, true)
	require.Nil(t, resp.Error, "method %s: %+v", method, resp.Error)
	require.Equal(t, http.StatusOK, status)
	return resp
}

func (f *rpcFixture) seedMarket(t *testing.T) {
	t.Helper()
	admin := f.admin.String()
	f.mustCall(t, "oracle_submitPrice", map[string]string{"caller": admin, "symbol": "WETH", "price": "10000000000"})
	f.mustCall(t, "oracle_submitPrice", map[string]string{"caller": admin, "symbol": "USDC", "price": "100000000"})
	f.mustCall(t, "registry_listCollateral", map[string]string{"caller": admin, "symbol": "WETH"})
	f.mustCall(t, "registry_listBond", map[string]interface{}{"caller": admin, "bond": testBond, "collateral": []string{"WETH"}})
	f.mustCall(t, "registry_setCollateralizationRatio", map[string]string{"caller": admin, "bond": testBond, "value": "1500000000000000000"})
	f.mustCall(t, "registry_setLiquidationIncentive", map[string]string{"caller": admin, "bond": testBond, "value": "1100000000000000000"})
	f.mustCall(t, "registry_setDebtCeiling", map[string]string{"caller": admin, "bond": testBond, "value": "1000000000000000000000000"})
	for _, flag := range []string{
		"registry_setBorrowAllowed",
		"registry_setDepositCollateralAllowed",
		"registry_setLiquidateBorrowAllowed",
		"registry_setRepayBorrowAllowed",
	} {
		f.mustCall(t, flag, map[string]interface{}{"caller": admin, "bond": testBond, "allowed": true})
	}
}

func TestMutationRequiresAuth(t *testing.T) {
	f := newRPCFixture(t)
	resp, status := f.call(t, "vault_open", map[string]string{"caller": f.borrower.String(), "bond": testBond}, false)
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestReadDoesNotRequireAuth(t *testing.T) {
	f := newRPCFixture(t)
	resp, status := f.call(t, "ledger_listTokens", nil, false)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
}

func TestMethodNotFound(t *testing.T) {
	f := newRPCFixture(t)
	resp, status := f.call(t, "registry_unknownMethod", nil, true)
	require.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestInvalidParamsRejected(t *testing.T) {
	f := newRPCFixture(t)
	resp, status := f.call(t, "vault_open", map[string]string{"caller": "not-an-address", "bond": testBond}, true)
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
}

func TestNegativeAmountRejectedAtWire(t *testing.T) {
	f := newRPCFixture(t)
	f.seedMarket(t)

	admin := f.admin.String()
	borrower := f.borrower.String()
	f.mustCall(t, "ledger_mintToken", map[string]string{"caller": admin, "symbol": "WETH", "account": borrower, "amount": "10000000000000000000"})
	f.mustCall(t, "vault_open", map[string]string{"caller": borrower, "bond": testBond})

	resp, status := f.call(t, "vault_depositCollateral", map[string]string{
		"caller": borrower, "bond": testBond, "asset": "WETH", "amount": "-5000000000000000000",
	}, true)
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32602, resp.Error.Code)

	resp = f.mustCall(t, "ledger_getAccount", map[string]string{"address": borrower})
	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var account struct {
		Balances map[string]string `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(encoded, &account))
	require.Equal(t, "10000000000000000000", account.Balances["WETH"])
}

func TestNonAdminPolicyMutationForbidden(t *testing.T) {
	f := newRPCFixture(t)
	resp, status := f.call(t, "registry_listCollateral", map[string]string{"caller": f.borrower.String(), "symbol": "WETH"}, true)
	require.Equal(t, http.StatusForbidden, status)
	require.NotNil(t, resp.Error)
}

func TestBorrowFlowOverRPC(t *testing.T) {
	f := newRPCFixture(t)
	f.seedMarket(t)

	admin := f.admin.String()
	borrower := f.borrower.String()
	tenWETH := "10000000000000000000"

	f.mustCall(t, "ledger_mintToken", map[string]string{"caller": admin, "symbol": "WETH", "account": borrower, "amount": tenWETH})
	f.mustCall(t, "vault_open", map[string]string{"caller": borrower, "bond": testBond})
	f.mustCall(t, "vault_depositCollateral", map[string]string{"caller": borrower, "bond": testBond, "asset": "WETH", "amount": tenWETH})
	f.mustCall(t, "vault_lockCollateral", map[string]string{"caller": borrower, "bond": testBond, "amount": tenWETH})
	f.mustCall(t, "bond_borrow", map[string]string{"caller": borrower, "bond": testBond, "amount": "500000000000000000000"})

	resp := f.mustCall(t, "bond_balanceOf", map[string]string{"bond": testBond, "account": borrower})
	require.Equal(t, "500000000000000000000", resp.Result)

	resp = f.mustCall(t, "vault_get", map[string]string{"bond": testBond, "account": borrower})
	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var v struct {
		Open             bool   `json:"open"`
		LockedCollateral string `json:"lockedCollateral"`
		Debt             string `json:"debt"`
	}
	require.NoError(t, json.Unmarshal(encoded, &v))
	require.True(t, v.Open)
	require.Equal(t, tenWETH, v.LockedCollateral)
	require.Equal(t, "500000000000000000000", v.Debt)

	resp = f.mustCall(t, "bond_getToken", map[string]string{"bond": testBond})
	encoded, err = json.Marshal(resp.Result)
	require.NoError(t, err)
	var token struct {
		Underlying  string `json:"underlying"`
		TotalSupply string `json:"totalSupply"`
		TotalDebt   string `json:"totalDebt"`
	}
	require.NoError(t, json.Unmarshal(encoded, &token))
	require.Equal(t, "USDC", token.Underlying)
	require.Equal(t, "500000000000000000000", token.TotalSupply)
	require.Equal(t, "500000000000000000000", token.TotalDebt)
}

func TestDomainRejectionOverRPC(t *testing.T) {
	f := newRPCFixture(t)
	f.seedMarket(t)

	borrower := f.borrower.String()
	resp, status := f.call(t, "vault_depositCollateral", map[string]string{
		"caller": borrower, "bond": testBond, "asset": "WETH", "amount": "1000000000000000000",
	}, true)
	// Vault never opened, so the whole call is rejected.
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
	require.Contains(t, fmt.Sprint(resp.Error.Message), "vault")
}

func TestAllowSourceWindowAndPruning(t *testing.T) {
	s := NewServer(nil, testToken)
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < maxTxPerWindow; i++ {
		require.True(t, s.allowSource("10.0.0.1", now))
	}
	require.False(t, s.allowSource("10.0.0.1", now))

	// A fresh window admits the source again.
	later := now.Add(rateLimitWindow)
	require.True(t, s.allowSource("10.0.0.1", later))

	// Rotating source addresses must not grow the map without bound: once
	// their windows lapse, stale entries are swept.
	for i := 0; i < 100; i++ {
		require.True(t, s.allowSource(fmt.Sprintf("10.1.0.%d", i), later))
	}
	afterSweep := later.Add(2 * rateLimitWindow)
	require.True(t, s.allowSource("10.0.0.1", afterSweep))
	s.mu.Lock()
	size := len(s.rateLimiters)
	s.mu.Unlock()
	require.Equal(t, 1, size)
}

func TestEventsExposedOverRPC(t *testing.T) {
	f := newRPCFixture(t)
	f.seedMarket(t)

	borrower := f.borrower.String()
	f.mustCall(t, "vault_open", map[string]string{"caller": borrower, "bond": testBond})

	resp := f.mustCall(t, "ledger_events", nil)
	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var emitted []struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(encoded, &emitted))
	require.NotEmpty(t, emitted)
	require.Equal(t, "vault.open", emitted[len(emitted)-1].Type)
}
