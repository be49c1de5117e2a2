package pattern

import (
	"errors"
	"fmt"

	"github.com/dokzlo13/lightseq/internal/device"
)

// ErrInvalid is matched by every ValidationError via errors.Is.
var ErrInvalid = errors.New("invalid pattern")

// ValidationError describes one problem in a pattern or pattern document.
// Path locates the offending field, e.g. "steps[2].color.r".
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return e.Path + ": " + e.Reason
}

// Is reports whether target is ErrInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

func invalid(path, format string, args ...any) *ValidationError {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks an in-memory pattern. All problems are returned joined.
func (p *Pattern) Validate() error {
	var errs []error
	if len(p.Steps) == 0 {
		errs = append(errs, invalid("steps", "pattern has no steps"))
	}
	for i, s := range p.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if s.Duration < 0 {
			errs = append(errs, invalid(path+".duration", "negative duration %dms", s.Duration.Milliseconds()))
		}
		switch s.Target.Kind {
		case TargetAll:
		case TargetOne:
			if len(s.Target.IDs) != 1 || s.Target.IDs[0] == "" {
				errs = append(errs, invalid(path+".light_ip", "single target needs exactly one non-empty id"))
			}
		case TargetMany:
			for j, id := range s.Target.IDs {
				if id == "" {
					errs = append(errs, invalid(fmt.Sprintf("%s.light_ip[%d]", path, j), "empty id"))
				}
			}
		default:
			errs = append(errs, invalid(path+".light_ip", "unknown target kind %d", s.Target.Kind))
		}
		switch s.Action.Kind {
		case ActionSetColor, ActionTurnOff:
		case ActionSetScene:
			if device.SceneName(s.Action.Scene) == "" {
				errs = append(errs, invalid(path+".scene", "unknown scene %d", s.Action.Scene))
			}
			if s.Action.Speed < device.MinSceneSpeed || s.Action.Speed > device.MaxSceneSpeed {
				errs = append(errs, invalid(path+".speed", "%d out of range [%d,%d]", s.Action.Speed, device.MinSceneSpeed, device.MaxSceneSpeed))
			}
		default:
			errs = append(errs, invalid(path+".action", "unknown action %q", s.Action.Kind))
		}
	}
	return errors.Join(errs...)
}
