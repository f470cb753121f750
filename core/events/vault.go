package events

import (
	"math/big"

	"bondchain/core/types"
)

const (
	// TypeOpenVault is emitted when an account opens a vault for a bond.
	TypeOpenVault = "vault.open"
	// TypeDepositCollateral is emitted on collateral deposit.
	TypeDepositCollateral = "vault.depositCollateral"
	// TypeWithdrawCollateral is emitted on collateral withdrawal.
	TypeWithdrawCollateral = "vault.withdrawCollateral"
	// TypeLockCollateral is emitted when free collateral is locked.
	TypeLockCollateral = "vault.lockCollateral"
	// TypeFreeCollateral is emitted when locked collateral is freed.
	TypeFreeCollateral = "vault.freeCollateral"
	// TypeClutchCollateral is emitted when a liquidator seizes collateral.
	TypeClutchCollateral = "vault.clutchCollateral"
)

type OpenVault struct {
	Account [20]byte
	Bond    string
}

func (OpenVault) EventType() string { return TypeOpenVault }

func (e OpenVault) Event() *types.Event {
	return &types.Event{
		Type: TypeOpenVault,
		Attributes: map[string]string{
			"account": addressString(e.Account),
			"bond":    e.Bond,
		},
	}
}

type DepositCollateral struct {
	Bond    string
	Account [20]byte
	Asset   string
	Amount  *big.Int
}

func (DepositCollateral) EventType() string { return TypeDepositCollateral }

func (e DepositCollateral) Event() *types.Event {
	return &types.Event{
		Type: TypeDepositCollateral,
		Attributes: map[string]string{
			"bond":    e.Bond,
			"account": addressString(e.Account),
			"asset":   e.Asset,
			"amount":  bigString(e.Amount),
		},
	}
}

type WithdrawCollateral struct {
	Bond    string
	Account [20]byte
	Asset   string
	Amount  *big.Int
}

func (WithdrawCollateral) EventType() string { return TypeWithdrawCollateral }

func (e WithdrawCollateral) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawCollateral,
		Attributes: map[string]string{
			"bond":    e.Bond,
			"account": addressString(e.Account),
			"asset":   e.Asset,
			"amount":  bigString(e.Amount),
		},
	}
}

type LockCollateral struct {
	Bond    string
	Account [20]byte
	Asset   string
	Amount  *big.Int
}

func (LockCollateral) EventType() string { return TypeLockCollateral }

func (e LockCollateral) Event() *types.Event {
	return &types.Event{
		Type: TypeLockCollateral,
		Attributes: map[string]string{
			"bond":    e.Bond,
			"account": addressString(e.Account),
			"asset":   e.Asset,
			"amount":  bigString(e.Amount),
		},
	}
}

type FreeCollateral struct {
	Bond    string
	Account [20]byte
	Asset   string
	Amount  *big.Int
}

func (FreeCollateral) EventType() string { return TypeFreeCollateral }

func (e FreeCollateral) Event() *types.Event {
	return &types.Event{
		Type: TypeFreeCollateral,
		Attributes: map[string]string{
			"bond":    e.Bond,
			"account": addressString(e.Account),
			"asset":   e.Asset,
			"amount":  bigString(e.Amount),
		},
	}
}

type ClutchCollateral struct {
	Bond       string
	Liquidator [20]byte
	Borrower   [20]byte
	Asset      string
	Clutched   *big.Int
}

func (ClutchCollateral) EventType() string { return TypeClutchCollateral }

func (e ClutchCollateral) Event() *types.Event {
	return &types.Event{
		Type: TypeClutchCollateral,
		Attributes: map[string]string{
			"bond":       e.Bond,
			"liquidator": addressString(e.Liquidator),
			"borrower":   addressString(e.Borrower),
			"asset":      e.Asset,
			"clutched":   bigString(e.Clutched),
		},
	}
}
