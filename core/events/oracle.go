package events

import "bondchain/core/types"

const (
	// TypeSetFeed is emitted when a price feed is registered for an asset.
	TypeSetFeed = "oracle.setFeed"
	// TypeDeleteFeed is emitted when a price feed is removed.
	TypeDeleteFeed = "oracle.deleteFeed"
)

type SetFeed struct {
	Admin [20]byte
	Asset string
	Feed  string
}

func (SetFeed) EventType() string { return TypeSetFeed }

func (e SetFeed) Event() *types.Event {
	return &types.Event{
		Type: TypeSetFeed,
		Attributes: map[string]string{
			"admin": addressString(e.Admin),
			"asset": e.Asset,
			"feed":  e.Feed,
		},
	}
}

type DeleteFeed struct {
	Admin [20]byte
	Asset string
	Feed  string
}

func (DeleteFeed) EventType() string { return TypeDeleteFeed }

func (e DeleteFeed) Event() *types.Event {
	return &types.Event{
		Type: TypeDeleteFeed,
		Attributes: map[string]string{
			"admin": addressString(e.Admin),
			"asset": e.Asset,
			"feed":  e.Feed,
		},
	}
}
