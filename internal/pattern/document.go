package pattern

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/lightseq/internal/device"
)

// Document defaults for fields the authoring tools may omit.
const (
	DefaultBrightness     = 255
	DefaultLegacyDuration = 1000 * time.Millisecond
)

// rawDocument is the loosely typed top level of a pattern document.
type rawDocument struct {
	Name        string           `mapstructure:"name"`
	Description string           `mapstructure:"description"`
	Steps       []map[string]any `mapstructure:"steps"`
}

// rawStep is one canonical step entry, or one light entry of a legacy step.
type rawStep struct {
	LightIP    any    `mapstructure:"light_ip"`
	Action     string `mapstructure:"action"`
	Color      any    `mapstructure:"color"`
	Brightness *int64 `mapstructure:"brightness"`
	Scene      any    `mapstructure:"scene"`
	Speed      *int64 `mapstructure:"speed"`
	Duration   *int64 `mapstructure:"duration"`
}

// rawLegacyStep groups several light actions under one shared duration.
type rawLegacyStep struct {
	Duration *int64           `mapstructure:"duration"`
	Lights   []map[string]any `mapstructure:"lights"`
}

// Parse reads a pattern document (JSON or YAML), flattens legacy grouped
// steps into canonical steps, and validates the result.
func Parse(data []byte) (*Pattern, error) {
	var root map[string]any
	unmarshal := yaml.Unmarshal
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(data, &root); err != nil {
		return nil, invalid("", "malformed document: %v", err)
	}
	if root == nil {
		return nil, invalid("", "empty document")
	}

	var doc rawDocument
	if err := decode(root, &doc); err != nil {
		return nil, invalid("", "%v", err)
	}

	p := &Pattern{Name: doc.Name, Description: doc.Description}
	var errs []error
	for i, entry := range doc.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if _, legacy := entry["lights"]; legacy {
			steps, err := flattenLegacy(path, entry)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			p.Steps = append(p.Steps, steps...)
			continue
		}

		var rs rawStep
		if err := decode(entry, &rs); err != nil {
			errs = append(errs, invalid(path, "%v", err))
			continue
		}
		step, err := buildStep(path, rs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Steps = append(p.Steps, step)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// flattenLegacy emits one canonical step per light action, each carrying the
// parent's duration.
func flattenLegacy(path string, entry map[string]any) ([]Step, error) {
	var legacy rawLegacyStep
	if err := decode(entry, &legacy); err != nil {
		return nil, invalid(path, "%v", err)
	}

	duration := DefaultLegacyDuration
	if legacy.Duration != nil {
		d, err := parseDuration(path+".duration", *legacy.Duration)
		if err != nil {
			return nil, err
		}
		duration = d
	}

	var errs []error
	steps := make([]Step, 0, len(legacy.Lights))
	for j, light := range legacy.Lights {
		lpath := fmt.Sprintf("%s.lights[%d]", path, j)
		var rs rawStep
		if err := decode(light, &rs); err != nil {
			errs = append(errs, invalid(lpath, "%v", err))
			continue
		}
		rs.Duration = nil
		step, err := buildStep(lpath, rs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		step.Duration = duration
		steps = append(steps, step)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return steps, nil
}

func buildStep(path string, rs rawStep) (Step, error) {
	var errs []error
	var step Step

	target, err := parseTarget(path+".light_ip", rs.LightIP)
	if err != nil {
		errs = append(errs, err)
	}
	step.Target = target

	if rs.Duration != nil {
		d, err := parseDuration(path+".duration", *rs.Duration)
		if err != nil {
			errs = append(errs, err)
		}
		step.Duration = d
	}

	brightness, err := parseByte(path+".brightness", rs.Brightness, DefaultBrightness)
	if err != nil {
		errs = append(errs, err)
	}

	switch ActionKind(rs.Action) {
	case ActionSetColor:
		color, err := parseColor(path+".color", rs.Color)
		if err != nil {
			errs = append(errs, err)
		}
		step.Action = SetColor(color, brightness)
	case ActionTurnOff:
		step.Action = TurnOff()
	case ActionSetScene:
		scene, err := parseScene(path+".scene", rs.Scene)
		if err != nil {
			errs = append(errs, err)
		}
		speed := int64(device.DefaultSceneSpeed)
		if rs.Speed != nil {
			speed = *rs.Speed
		}
		step.Action = SetScene(scene, int(speed), brightness)
	case "":
		errs = append(errs, invalid(path+".action", "missing action"))
	default:
		errs = append(errs, invalid(path+".action", "unknown action %q", rs.Action))
	}

	return step, errors.Join(errs...)
}

// parseDuration converts milliseconds, rejecting values that overflow time.Duration.
func parseDuration(path string, ms int64) (time.Duration, error) {
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return 0, invalid(path, "%d out of range", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseTarget(path string, v any) (Target, error) {
	switch t := v.(type) {
	case nil:
		return Target{}, invalid(path, "missing target")
	case string:
		id := strings.TrimSpace(t)
		if id == "" {
			return Target{}, invalid(path, "empty target")
		}
		if strings.EqualFold(id, "all") {
			return All(), nil
		}
		return One(device.ID(id)), nil
	case []any:
		ids := make([]device.ID, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return Target{}, invalid(fmt.Sprintf("%s[%d]", path, i), "expected a non-empty address, got %v", item)
			}
			ids = append(ids, device.ID(strings.TrimSpace(s)))
		}
		return Many(ids...), nil
	default:
		return Target{}, invalid(path, "expected \"all\", an address or a list of addresses, got %T", v)
	}
}

func parseColor(path string, v any) (Color, error) {
	var channels [3]any
	switch c := v.(type) {
	case nil:
		return White, nil
	case map[string]any:
		for i, key := range []string{"r", "g", "b"} {
			if val, ok := c[key]; ok {
				channels[i] = val
			} else {
				channels[i] = int64(255)
			}
		}
	case []any:
		if len(c) != 3 {
			return Color{}, invalid(path, "expected 3 channels, got %d", len(c))
		}
		copy(channels[:], c)
	default:
		return Color{}, invalid(path, "expected {r,g,b} or [r,g,b], got %T", v)
	}

	var out [3]uint8
	var errs []error
	for i, name := range []string{"r", "g", "b"} {
		n, err := toInt(channels[i])
		if err != nil {
			errs = append(errs, invalid(path+"."+name, "%v", err))
			continue
		}
		if n < 0 || n > 255 {
			errs = append(errs, invalid(path+"."+name, "%d out of range [0,255]", n))
			continue
		}
		out[i] = uint8(n)
	}
	if len(errs) > 0 {
		return Color{}, errors.Join(errs...)
	}
	return Color{R: out[0], G: out[1], B: out[2]}, nil
}

func parseByte(path string, v *int64, def uint8) (uint8, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 || *v > 255 {
		return 0, invalid(path, "%d out of range [0,255]", *v)
	}
	return uint8(*v), nil
}

func parseScene(path string, v any) (int, error) {
	if s, ok := v.(string); ok {
		if id, ok := device.SceneByName(s); ok {
			return id, nil
		}
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			v = int64(n)
		} else {
			return 0, invalid(path, "unknown scene %q", s)
		}
	}
	if v == nil {
		return 0, invalid(path, "missing scene")
	}
	n, err := toInt(v)
	if err != nil {
		return 0, invalid(path, "%v", err)
	}
	if device.SceneName(int(n)) == "" {
		return 0, invalid(path, "unknown scene %d", n)
	}
	return int(n), nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

// integralHook refuses to truncate fractional numbers into integer fields.
func integralHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return data, nil
	}
	if f, ok := data.(float64); ok {
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not an integer", f)
		}
		return int64(f), nil
	}
	return data, nil
}

func decode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: integralHook,
		Result:     out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// document is the canonical on-disk shape.
type document struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Steps       []documentStep `json:"steps"`
}

type documentStep struct {
	LightIP    any            `json:"light_ip"`
	Action     ActionKind     `json:"action"`
	Color      *documentColor `json:"color,omitempty"`
	Brightness *int           `json:"brightness,omitempty"`
	Scene      *int           `json:"scene,omitempty"`
	Speed      *int           `json:"speed,omitempty"`
	Duration   int64          `json:"duration"`
}

type documentColor struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Marshal writes the canonical document form of a pattern.
func Marshal(p *Pattern) ([]byte, error) {
	doc := document{
		Name:        p.Name,
		Description: p.Description,
		Steps:       make([]documentStep, 0, len(p.Steps)),
	}
	for _, s := range p.Steps {
		ds := documentStep{
			Action:   s.Action.Kind,
			Duration: s.Duration.Milliseconds(),
		}
		switch s.Target.Kind {
		case TargetAll:
			ds.LightIP = "all"
		case TargetOne:
			ds.LightIP = string(s.Target.IDs[0])
		default:
			ids := make([]string, len(s.Target.IDs))
			for i, id := range s.Target.IDs {
				ids[i] = string(id)
			}
			ds.LightIP = ids
		}
		bri := int(s.Action.Brightness)
		switch s.Action.Kind {
		case ActionSetColor:
			ds.Color = &documentColor{R: int(s.Action.Color.R), G: int(s.Action.Color.G), B: int(s.Action.Color.B)}
			ds.Brightness = &bri
		case ActionSetScene:
			scene, speed := s.Action.Scene, s.Action.Speed
			ds.Scene, ds.Speed, ds.Brightness = &scene, &speed, &bri
		}
		doc.Steps = append(doc.Steps, ds)
	}
	return json.MarshalIndent(doc, "", "    ")
}
