package bond

import (
	"errors"
	"math/big"

	"bondchain/core/events"
	"bondchain/core/types"
	"bondchain/crypto"
	"bondchain/native/registry"
)

var (
	errNilLedgerState = errors.New("bond: ledger state not configured")

	// ErrBondUnknown is returned when an operation names a bond token that
	// was never registered.
	ErrBondUnknown = errors.New("bond: unknown bond token")
	// ErrBondExists rejects registering the same bond token twice.
	ErrBondExists = errors.New("bond: bond token already registered")
	// ErrMintNotAuthorized rejects mints from anything other than the
	// controller.
	ErrMintNotAuthorized = errors.New("bond: mint not authorized")
	// ErrBurnNotAuthorized rejects burns from anything other than the
	// controller.
	ErrBurnNotAuthorized = errors.New("bond: burn not authorized")
	// ErrMintZero rejects zero-amount mints.
	ErrMintZero = errors.New("bond: mint amount is zero")
	// ErrBurnZero rejects zero-amount burns.
	ErrBurnZero = errors.New("bond: burn amount is zero")
	// ErrBurnInsufficientBalance is returned when the burn target's
	// balance cannot cover the amount.
	ErrBurnInsufficientBalance = errors.New("bond: insufficient balance to burn")
	// ErrTransferInsufficientBalance is returned when a transfer exceeds
	// the sender's balance.
	ErrTransferInsufficientBalance = errors.New("bond: insufficient balance to transfer")
	// ErrTransferZero rejects zero-amount transfers.
	ErrTransferZero = errors.New("bond: transfer amount is zero")
)

// LedgerState is the persistence surface for bond token metadata, supply,
// and balances.
type LedgerState interface {
	BondTokenGet(id string) (*Token, error)
	BondTokenPut(token *Token) error
	BondTokenList() ([]string, error)
	BondSupply(id string) (*big.Int, error)
	BondPutSupply(id string, supply *big.Int) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Ledger keeps bond token balances in the account ledger. Mint and burn are
// reserved to the fixed controller identity; transfers are open to holders.
type Ledger struct {
	state      LedgerState
	controller crypto.Address
	emitter    events.Emitter
}

func NewLedger(controller crypto.Address) *Ledger {
	return &Ledger{controller: controller, emitter: events.NoopEmitter{}}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state LedgerState) { l.state = state }

// SetEmitter swaps the event sink. A nil emitter silences events.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return errNilLedgerState
	}
	return nil
}

// Register stores a new bond token's metadata.
func (l *Ledger) Register(token *Token) error {
	if err := l.ready(); err != nil {
		return err
	}
	existing, err := l.state.BondTokenGet(token.Symbol)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrBondExists
	}
	return l.state.BondTokenPut(token)
}

// Token returns the stored metadata for id.
func (l *Ledger) Token(id string) (*Token, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	token, err := l.state.BondTokenGet(registry.NormalizeSymbol(id))
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrBondUnknown
	}
	return token, nil
}

// Tokens returns the registered bond token identifiers.
func (l *Ledger) Tokens() ([]string, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.state.BondTokenList()
}

// UnderlyingSymbol resolves the bond's underlying asset symbol. It satisfies
// the vault engine's instrument lookup.
func (l *Ledger) UnderlyingSymbol(id string) (string, error) {
	token, err := l.Token(id)
	if err != nil {
		return "", err
	}
	return token.Underlying, nil
}

// BondTokenExists reports whether metadata is registered for id. It satisfies
// the registry's listing precondition check.
func (l *Ledger) BondTokenExists(id string) (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	token, err := l.state.BondTokenGet(registry.NormalizeSymbol(id))
	if err != nil {
		return false, err
	}
	return token != nil, nil
}

// BalanceOf returns the holder's bond token balance.
func (l *Ledger) BalanceOf(id string, holder crypto.Address) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	account, err := l.state.GetAccount(holder)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return big.NewInt(0), nil
	}
	return account.Balance(registry.NormalizeSymbol(id)), nil
}

// TotalSupply returns the outstanding supply of the bond token.
func (l *Ledger) TotalSupply(id string) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	supply, err := l.state.BondSupply(registry.NormalizeSymbol(id))
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return big.NewInt(0), nil
	}
	return supply, nil
}

// Mint creates amount bond tokens for account. Only the controller may mint.
func (l *Ledger) Mint(caller crypto.Address, id string, account crypto.Address, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if !caller.Equal(l.controller) {
		return ErrMintNotAuthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrMintZero
	}
	token, err := l.Token(id)
	if err != nil {
		return err
	}
	holder, err := l.loadAccount(account)
	if err != nil {
		return err
	}
	holder.SetBalance(token.Symbol, new(big.Int).Add(holder.Balance(token.Symbol), amount))
	if err := l.state.PutAccount(account, holder); err != nil {
		return err
	}
	supply, err := l.TotalSupply(token.Symbol)
	if err != nil {
		return err
	}
	if err := l.state.BondPutSupply(token.Symbol, new(big.Int).Add(supply, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.Mint{Bond: token.Symbol, Account: addressArray(account), Amount: amount})
	return nil
}

// Burn destroys amount bond tokens held by account. Only the controller may
// burn.
func (l *Ledger) Burn(caller crypto.Address, id string, account crypto.Address, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if !caller.Equal(l.controller) {
		return ErrBurnNotAuthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrBurnZero
	}
	token, err := l.Token(id)
	if err != nil {
		return err
	}
	holder, err := l.loadAccount(account)
	if err != nil {
		return err
	}
	balance := holder.Balance(token.Symbol)
	if balance.Cmp(amount) < 0 {
		return ErrBurnInsufficientBalance
	}
	holder.SetBalance(token.Symbol, new(big.Int).Sub(balance, amount))
	if err := l.state.PutAccount(account, holder); err != nil {
		return err
	}
	supply, err := l.TotalSupply(token.Symbol)
	if err != nil {
		return err
	}
	if err := l.state.BondPutSupply(token.Symbol, new(big.Int).Sub(supply, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.Burn{Bond: token.Symbol, Account: addressArray(account), Amount: amount})
	return nil
}

// Transfer moves amount bond tokens from the caller to another holder.
func (l *Ledger) Transfer(caller crypto.Address, id string, to crypto.Address, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrTransferZero
	}
	token, err := l.Token(id)
	if err != nil {
		return err
	}
	sender, err := l.loadAccount(caller)
	if err != nil {
		return err
	}
	balance := sender.Balance(token.Symbol)
	if balance.Cmp(amount) < 0 {
		return ErrTransferInsufficientBalance
	}
	sender.SetBalance(token.Symbol, new(big.Int).Sub(balance, amount))
	if err := l.state.PutAccount(caller, sender); err != nil {
		return err
	}
	receiver, err := l.loadAccount(to)
	if err != nil {
		return err
	}
	receiver.SetBalance(token.Symbol, new(big.Int).Add(receiver.Balance(token.Symbol), amount))
	if err := l.state.PutAccount(to, receiver); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{
		Bond:   token.Symbol,
		From:   addressArray(caller),
		To:     addressArray(to),
		Amount: amount,
	})
	return nil
}

func (l *Ledger) loadAccount(addr crypto.Address) (*types.Account, error) {
	account, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &types.Account{}
	}
	return account, nil
}

func addressArray(addr crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out
}
