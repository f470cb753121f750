package events

import (
	"math/big"

	"bondchain/core/types"
)

const (
	// TypeBorrow is emitted when a borrower mints bond tokens against a vault.
	TypeBorrow = "bond.borrow"
	// TypeRepayBorrow is emitted on debt repayment.
	TypeRepayBorrow = "bond.repayBorrow"
	// TypeLiquidateBorrow is emitted when a liquidator repays a borrower's
	// debt and clutches collateral.
	TypeLiquidateBorrow = "bond.liquidateBorrow"
	// TypeMint is emitted when bond tokens are created.
	TypeMint = "bond.mint"
	// TypeBurn is emitted when bond tokens are destroyed.
	TypeBurn = "bond.burn"
	// TypeTransfer is emitted on bond token transfers.
	TypeTransfer = "bond.transfer"
)

type Borrow struct {
	Bond     string
	Borrower [20]byte
	Amount   *big.Int
}

func (Borrow) EventType() string { return TypeBorrow }

func (e Borrow) Event() *types.Event {
	return &types.Event{
		Type: TypeBorrow,
		Attributes: map[string]string{
			"bond":     e.Bond,
			"borrower": addressString(e.Borrower),
			"amount":   bigString(e.Amount),
		},
	}
}

type RepayBorrow struct {
	Bond     string
	Payer    [20]byte
	Borrower [20]byte
	Amount   *big.Int
	NewDebt  *big.Int
}

func (RepayBorrow) EventType() string { return TypeRepayBorrow }

func (e RepayBorrow) Event() *types.Event {
	return &types.Event{
		Type: TypeRepayBorrow,
		Attributes: map[string]string{
			"bond":     e.Bond,
			"payer":    addressString(e.Payer),
			"borrower": addressString(e.Borrower),
			"amount":   bigString(e.Amount),
			"newDebt":  bigString(e.NewDebt),
		},
	}
}

type LiquidateBorrow struct {
	Bond       string
	Liquidator [20]byte
	Borrower   [20]byte
	Repaid     *big.Int
	Asset      string
	Clutched   *big.Int
}

func (LiquidateBorrow) EventType() string { return TypeLiquidateBorrow }

func (e LiquidateBorrow) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidateBorrow,
		Attributes: map[string]string{
			"bond":       e.Bond,
			"liquidator": addressString(e.Liquidator),
			"borrower":   addressString(e.Borrower),
			"repaid":     bigString(e.Repaid),
			"asset":      e.Asset,
			"clutched":   bigString(e.Clutched),
		},
	}
}

type Mint struct {
	Bond    string
	Account [20]byte
	Amount  *big.Int
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() *types.Event {
	return &types.Event{
		Type: TypeMint,
		Attributes: map[string]string{
			"bond":    e.Bond,
			"account": addressString(e.Account),
			"amount":  bigString(e.Amount),
		},
	}
}

type Burn struct {
	Bond    string
	Account [20]byte
	Amount  *big.Int
}

func (Burn) EventType() string { return TypeBurn }

func (e Burn) Event() *types.Event {
	return &types.Event{
		Type: TypeBurn,
		Attributes: map[string]string{
			"bond":    e.Bond,
			"account": addressString(e.Account),
			"amount":  bigString(e.Amount),
		},
	}
}

type Transfer struct {
	Bond   string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTransfer,
		Attributes: map[string]string{
			"bond":   e.Bond,
			"from":   addressString(e.From),
			"to":     addressString(e.To),
			"amount": bigString(e.Amount),
		},
	}
}
