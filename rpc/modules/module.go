package modules

import (
	"errors"
	"math/big"
	"net/http"
	"strings"

	"bondchain/core"
	"bondchain/crypto"
	"bondchain/native/bond"
	nativecommon "bondchain/native/common"
	"bondchain/native/oracle"
	"bondchain/native/registry"
	"bondchain/native/vault"
)

const (
	codeInvalidParams = -32602
	codeServerError   = -32000
	codeUnauthorized  = -32001
	codeModuleError   = -32050
	codePaused        = -32030
)

type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidParams(message string, data interface{}) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: message, Data: data}
}

func moduleOffline(module string) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: module + " module not initialised"}
}

// authorizationErrors are rejections of the caller's identity rather than the
// call's content.
var authorizationErrors = []error{
	core.ErrNotAdmin,
	registry.ErrNotAdmin,
	oracle.ErrNotAdmin,
	vault.ErrNotController,
	bond.ErrMintNotAuthorized,
	bond.ErrBurnNotAuthorized,
}

// wrapError translates a node-level failure into the RPC error contract.
// Domain rejections keep their sentinel message so clients can match on it.
func wrapError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	for _, sentinel := range authorizationErrors {
		if errors.Is(err, sentinel) {
			return &ModuleError{HTTPStatus: http.StatusForbidden, Code: codeUnauthorized, Message: err.Error()}
		}
	}
	if errors.Is(err, nativecommon.ErrModulePaused) {
		return &ModuleError{HTTPStatus: http.StatusServiceUnavailable, Code: codePaused, Message: err.Error()}
	}
	return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeModuleError, Message: err.Error()}
}

func parseAddress(field, value string) (crypto.Address, *ModuleError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, invalidParams(field+" is required", nil)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, invalidParams("invalid "+field, err.Error())
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, *ModuleError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, invalidParams(field+" is required", nil)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, invalidParams("invalid "+field, value)
	}
	if amount.Sign() < 0 {
		return nil, invalidParams(field+" must not be negative", value)
	}
	return amount, nil
}

func requireSymbol(field, value string) (string, *ModuleError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", invalidParams(field+" is required", nil)
	}
	return trimmed, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
