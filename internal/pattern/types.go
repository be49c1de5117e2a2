// Package pattern defines lighting sequences and their persisted document form.
//
// A Pattern is an ordered list of timed steps. Each step names a target
// (all lights, one light, or a set of lights), an action, and how long to hold
// after the action completes before advancing. Targets are resolved when the
// step executes, never when the document is loaded.
package pattern

import (
	"time"

	"github.com/dokzlo13/lightseq/internal/device"
)

// TargetKind discriminates Target.
type TargetKind int

const (
	TargetAll TargetKind = iota
	TargetOne
	TargetMany
)

func (k TargetKind) String() string {
	switch k {
	case TargetAll:
		return "all"
	case TargetOne:
		return "one"
	case TargetMany:
		return "many"
	default:
		return "unknown"
	}
}

// Target declares which lights a step affects.
type Target struct {
	Kind TargetKind
	IDs  []device.ID // exactly one entry for TargetOne
}

// All targets every known light.
func All() Target { return Target{Kind: TargetAll} }

// One targets a single light.
func One(id device.ID) Target { return Target{Kind: TargetOne, IDs: []device.ID{id}} }

// Many targets a set of lights.
func Many(ids ...device.ID) Target {
	cp := make([]device.ID, len(ids))
	copy(cp, ids)
	return Target{Kind: TargetMany, IDs: cp}
}

// ActionKind discriminates Action.
type ActionKind string

const (
	ActionSetColor ActionKind = "set_color"
	ActionTurnOff  ActionKind = "turn_off"
	ActionSetScene ActionKind = "set_scene"
)

// Color is a raw RGB color.
type Color struct {
	R, G, B uint8
}

// White is the default color of a set_color step with no color.
var White = Color{R: 255, G: 255, B: 255}

// RGB converts to the device representation.
func (c Color) RGB() device.RGB {
	return device.RGB{R: c.R, G: c.G, B: c.B}
}

// Action is what a step does to each targeted light.
// Color applies to set_color, Scene and Speed to set_scene, Brightness to both.
type Action struct {
	Kind       ActionKind
	Color      Color
	Brightness uint8
	Scene      int
	Speed      int
}

// SetColor builds a set_color action.
func SetColor(c Color, brightness uint8) Action {
	return Action{Kind: ActionSetColor, Color: c, Brightness: brightness}
}

// TurnOff builds a turn_off action.
func TurnOff() Action {
	return Action{Kind: ActionTurnOff}
}

// SetScene builds a set_scene action.
func SetScene(scene, speed int, brightness uint8) Action {
	return Action{Kind: ActionSetScene, Scene: scene, Speed: speed, Brightness: brightness}
}

// Pilot translates the action into a turn-on request. ok is false for turn_off.
func (a Action) Pilot() (p device.Pilot, ok bool) {
	bri := a.Brightness
	switch a.Kind {
	case ActionSetColor:
		rgb := a.Color.RGB()
		return device.Pilot{RGB: &rgb, Brightness: &bri}, true
	case ActionSetScene:
		return device.Pilot{Scene: a.Scene, Speed: a.Speed, Brightness: &bri}, true
	default:
		return device.Pilot{}, false
	}
}

// Step is one timed action plus its target. Duration is the hold time after
// the action completes.
type Step struct {
	Target   Target
	Action   Action
	Duration time.Duration
}

// Pattern is a named, ordered sequence of steps.
type Pattern struct {
	Name        string
	Description string
	Steps       []Step
}

// Snapshot returns a deep copy of the steps. Runners iterate the snapshot so
// edits to the pattern never reach a running loop.
func (p *Pattern) Snapshot() []Step {
	steps := make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = s
		if s.Target.IDs != nil {
			steps[i].Target.IDs = append([]device.ID(nil), s.Target.IDs...)
		}
	}
	return steps
}

// DeclaredLights returns every light named by a one or many target, in
// order of first appearance.
func (p *Pattern) DeclaredLights() []device.ID {
	seen := make(map[device.ID]bool)
	var ids []device.ID
	for _, s := range p.Steps {
		for _, id := range s.Target.IDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
