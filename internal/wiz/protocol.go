// Package wiz talks to WiZ smart bulbs over their local JSON-over-UDP protocol.
package wiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/dokzlo13/lightseq/internal/device"
)

// Port is the UDP port WiZ bulbs listen on.
const Port = 38899

// Dimming bounds accepted by the bulbs, in percent.
const (
	MinDimming = 10
	MaxDimming = 100
)

var (
	// ErrTimeout is returned when a bulb does not answer before the call deadline.
	ErrTimeout = errors.New("wiz: bulb did not respond")
	// ErrRejected is returned when a bulb answers with an error object.
	ErrRejected = errors.New("wiz: bulb rejected request")
)

type request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type pilotParams struct {
	State   bool `json:"state"`
	R       *int `json:"r,omitempty"`
	G       *int `json:"g,omitempty"`
	B       *int `json:"b,omitempty"`
	Dimming *int `json:"dimming,omitempty"`
	SceneID *int `json:"sceneId,omitempty"`
	Speed   *int `json:"speed,omitempty"`
}

type registrationParams struct {
	PhoneMAC string `json:"phoneMac"`
	Register bool   `json:"register"`
	PhoneIP  string `json:"phoneIp"`
	ID       string `json:"id"`
}

type response struct {
	Method string          `json:"method"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type pilotResult struct {
	MAC     string `json:"mac"`
	State   bool   `json:"state"`
	SceneID int    `json:"sceneId"`
	R       *int   `json:"r"`
	G       *int   `json:"g"`
	B       *int   `json:"b"`
	Temp    *int   `json:"temp"`
	Dimming *int   `json:"dimming"`
}

// DimmingPercent maps an 8-bit brightness onto the bulb's 10-100% range.
func DimmingPercent(brightness uint8) int {
	p := int(math.Round(float64(brightness) * 100 / 255))
	return clamp(p, MinDimming, MaxDimming)
}

// BrightnessFromDimming maps a dimming percentage back to 8 bits.
func BrightnessFromDimming(percent int) uint8 {
	percent = clamp(percent, 0, 100)
	return uint8(math.Round(float64(percent) * 255 / 100))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func intPtr(v int) *int { return &v }

func setPilotMessage(p device.Pilot) ([]byte, error) {
	params := pilotParams{State: true}
	if p.RGB != nil {
		params.R, params.G, params.B = intPtr(int(p.RGB.R)), intPtr(int(p.RGB.G)), intPtr(int(p.RGB.B))
	}
	if p.Brightness != nil {
		params.Dimming = intPtr(DimmingPercent(*p.Brightness))
	}
	if p.Scene != 0 {
		if device.SceneName(p.Scene) == "" {
			return nil, fmt.Errorf("wiz: unknown scene %d", p.Scene)
		}
		params.SceneID = intPtr(p.Scene)
		if p.Speed != 0 {
			params.Speed = intPtr(clamp(p.Speed, device.MinSceneSpeed, device.MaxSceneSpeed))
		}
	}
	return json.Marshal(request{Method: "setPilot", Params: params})
}

func turnOffMessage() ([]byte, error) {
	return json.Marshal(request{Method: "setPilot", Params: pilotParams{State: false}})
}

func getPilotMessage() ([]byte, error) {
	return json.Marshal(request{Method: "getPilot", Params: struct{}{}})
}

func registrationMessage() ([]byte, error) {
	return json.Marshal(request{
		Method: "registration",
		Params: registrationParams{PhoneMAC: "AAAAAAAAAAAA", Register: false, PhoneIP: "1.2.3.4", ID: "1"},
	})
}

func decodeResponse(data []byte, method string) (*response, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("wiz: malformed response: %w", err)
	}
	if resp.Method != method {
		return nil, fmt.Errorf("wiz: expected %s response, got %q", method, resp.Method)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s (code %d)", ErrRejected, resp.Error.Message, resp.Error.Code)
	}
	return &resp, nil
}

// stateFromPilot converts a getPilot result into a device state. Mode is the
// scene name when a scene is active, otherwise "rgb" or "white".
func stateFromPilot(raw json.RawMessage) (device.State, error) {
	var r pilotResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return device.State{}, fmt.Errorf("wiz: malformed pilot: %w", err)
	}
	st := device.State{On: r.State}
	if r.R != nil && r.G != nil && r.B != nil {
		st.RGB = &device.RGB{R: uint8(clamp(*r.R, 0, 255)), G: uint8(clamp(*r.G, 0, 255)), B: uint8(clamp(*r.B, 0, 255))}
	}
	switch {
	case r.SceneID != 0:
		st.Mode = device.SceneName(r.SceneID)
		if st.Mode == "" {
			st.Mode = fmt.Sprintf("scene %d", r.SceneID)
		}
	case st.RGB != nil:
		st.Mode = "rgb"
	case r.Temp != nil:
		st.Mode = "white"
	}
	return st, nil
}
