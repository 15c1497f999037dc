package registry

import (
	"fmt"

	"stayer/core/types"
)

const (
	// EventTypeValidatorsUpdated is emitted after every accepted keeper batch.
	EventTypeValidatorsUpdated = "registry.validators_updated"
	// EventTypeKeeperRotated is emitted when the owner changes the keeper.
	EventTypeKeeperRotated = "registry.keeper_rotated"
)

// NewValidatorsUpdatedEvent reports an accepted keeper batch.
func NewValidatorsUpdatedEvent(count int, pAvg, era uint64) *types.Event {
	return &types.Event{
		Type: EventTypeValidatorsUpdated,
		Attributes: map[string]string{
			"count": fmt.Sprintf("%d", count),
			"pAvg":  fmt.Sprintf("%d", pAvg),
			"era":   fmt.Sprintf("%d", era),
		},
	}
}

// NewKeeperRotatedEvent reports a keeper rotation.
func NewKeeperRotatedEvent(keeper string) *types.Event {
	return &types.Event{
		Type: EventTypeKeeperRotated,
		Attributes: map[string]string{
			"keeper": keeper,
		},
	}
}
