package types

// Event represents a typed event emitted during state transitions. Attributes
// carry the literal amounts and resulting rates/ids needed to reconstruct the
// transition from a log alone.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
