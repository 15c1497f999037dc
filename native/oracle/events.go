package oracle

import (
	"fmt"
	"math/big"

	"stayer/core/types"
)

const (
	// EventTypePriceUpdated is emitted after every accepted price round.
	EventTypePriceUpdated = "oracle.price_updated"
	// EventTypeConfigUpdated is emitted on owner configuration changes.
	EventTypeConfigUpdated = "oracle.config_updated"
)

// NewPriceUpdatedEvent reports an accepted price round.
func NewPriceUpdatedEvent(price *big.Int, roundID, updatedAt uint64) *types.Event {
	value := "0"
	if price != nil {
		value = price.String()
	}
	return &types.Event{
		Type: EventTypePriceUpdated,
		Attributes: map[string]string{
			"price":     value,
			"roundId":   fmt.Sprintf("%d", roundID),
			"updatedAt": fmt.Sprintf("%d", updatedAt),
		},
	}
}

// NewConfigUpdatedEvent reports a single configuration field change.
func NewConfigUpdatedEvent(field, value string) *types.Event {
	return &types.Event{
		Type: EventTypeConfigUpdated,
		Attributes: map[string]string{
			"field": field,
			"value": value,
		},
	}
}
