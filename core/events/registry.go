package events

import (
	"math/big"
	"strconv"

	"bondchain/core/types"
	"bondchain/crypto"
)

const (
	// TypeListCollateral is emitted when the admin lists a collateral asset.
	TypeListCollateral = "registry.listCollateral"
	// TypeListBond is emitted when the admin lists a bond.
	TypeListBond = "registry.listBond"
	// TypeSetCollateralizationRatio is emitted when a collateral ratio changes.
	TypeSetCollateralizationRatio = "registry.setCollateralizationRatio"
	// TypeSetLiquidationIncentive is emitted when the incentive changes.
	TypeSetLiquidationIncentive = "registry.setLiquidationIncentive"
	// TypeSetDebtCeiling is emitted when a bond debt ceiling changes.
	TypeSetDebtCeiling = "registry.setDebtCeiling"
	// TypeSetBondFlag is emitted for every per-bond permission toggle.
	TypeSetBondFlag = "registry.setBondFlag"
	// TypeSetMaxBonds is emitted when the per-account bond limit changes.
	TypeSetMaxBonds = "registry.setMaxBonds"
)

type ListCollateral struct {
	Admin [20]byte
	Asset string
}

func (ListCollateral) EventType() string { return TypeListCollateral }

func (e ListCollateral) Event() *types.Event {
	return &types.Event{
		Type: TypeListCollateral,
		Attributes: map[string]string{
			"admin": addressString(e.Admin),
			"asset": e.Asset,
		},
	}
}

type ListBond struct {
	Admin [20]byte
	Bond  string
}

func (ListBond) EventType() string { return TypeListBond }

func (e ListBond) Event() *types.Event {
	return &types.Event{
		Type: TypeListBond,
		Attributes: map[string]string{
			"admin": addressString(e.Admin),
			"bond":  e.Bond,
		},
	}
}

type SetCollateralizationRatio struct {
	Admin    [20]byte
	Bond     string
	OldRatio *big.Int
	NewRatio *big.Int
}

func (SetCollateralizationRatio) EventType() string { return TypeSetCollateralizationRatio }

func (e SetCollateralizationRatio) Event() *types.Event {
	return &types.Event{
		Type: TypeSetCollateralizationRatio,
		Attributes: map[string]string{
			"admin":    addressString(e.Admin),
			"bond":     e.Bond,
			"oldRatio": bigString(e.OldRatio),
			"newRatio": bigString(e.NewRatio),
		},
	}
}

type SetLiquidationIncentive struct {
	Admin        [20]byte
	Bond         string
	OldIncentive *big.Int
	NewIncentive *big.Int
}

func (SetLiquidationIncentive) EventType() string { return TypeSetLiquidationIncentive }

func (e SetLiquidationIncentive) Event() *types.Event {
	return &types.Event{
		Type: TypeSetLiquidationIncentive,
		Attributes: map[string]string{
			"admin":        addressString(e.Admin),
			"bond":         e.Bond,
			"oldIncentive": bigString(e.OldIncentive),
			"newIncentive": bigString(e.NewIncentive),
		},
	}
}

type SetDebtCeiling struct {
	Admin      [20]byte
	Bond       string
	OldCeiling *big.Int
	NewCeiling *big.Int
}

func (SetDebtCeiling) EventType() string { return TypeSetDebtCeiling }

func (e SetDebtCeiling) Event() *types.Event {
	return &types.Event{
		Type: TypeSetDebtCeiling,
		Attributes: map[string]string{
			"admin":      addressString(e.Admin),
			"bond":       e.Bond,
			"oldCeiling": bigString(e.OldCeiling),
			"newCeiling": bigString(e.NewCeiling),
		},
	}
}

// SetBondFlag covers the borrow, repay, and liquidate permission toggles.
type SetBondFlag struct {
	Admin   [20]byte
	Bond    string
	Flag    string
	Allowed bool
}

func (SetBondFlag) EventType() string { return TypeSetBondFlag }

func (e SetBondFlag) Event() *types.Event {
	return &types.Event{
		Type: TypeSetBondFlag,
		Attributes: map[string]string{
			"admin":   addressString(e.Admin),
			"bond":    e.Bond,
			"flag":    e.Flag,
			"allowed": boolString(e.Allowed),
		},
	}
}

type SetMaxBonds struct {
	Admin  [20]byte
	OldMax uint64
	NewMax uint64
}

func (SetMaxBonds) EventType() string { return TypeSetMaxBonds }

func (e SetMaxBonds) Event() *types.Event {
	return &types.Event{
		Type: TypeSetMaxBonds,
		Attributes: map[string]string{
			"admin":  addressString(e.Admin),
			"oldMax": uintString(e.OldMax),
			"newMax": uintString(e.NewMax),
		},
	}
}

func addressString(raw [20]byte) string {
	if raw == ([20]byte{}) {
		return ""
	}
	return crypto.NewAddress(crypto.BondPrefix, raw[:]).String()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
