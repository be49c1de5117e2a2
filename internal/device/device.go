// Package device defines the contracts lightseq consumes from a light transport:
// per-light control and broadcast discovery.
package device

import (
	"context"
	"fmt"
)

// ID identifies a light on the network (its IP address for WiZ bulbs).
type ID string

// RGB is a raw 8-bit color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

func (c RGB) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.R, c.G, c.B)
}

// State is the last observed state of a light.
type State struct {
	On   bool   `json:"on"`
	RGB  *RGB   `json:"rgb,omitempty"`
	Mode string `json:"mode,omitempty"`
}

// Pilot is a turn-on request. Nil/zero fields are left to the device.
type Pilot struct {
	RGB        *RGB
	Brightness *uint8
	Scene      int
	Speed      int
}

// Light controls a single device. Every call carries its own bounded timeout.
type Light interface {
	ID() ID
	TurnOn(ctx context.Context, p Pilot) error
	TurnOff(ctx context.Context) error
	UpdateState(ctx context.Context) (State, error)
}

// Discoverer finds lights reachable through a broadcast address.
type Discoverer interface {
	Discover(ctx context.Context, broadcast string) ([]Light, error)
}
