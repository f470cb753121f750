package types

// Event is one committed ledger event. Attributes are flat string pairs so
// events serialize the same way over RPC and into logs.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
