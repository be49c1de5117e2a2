package mqtt

import (
	"fmt"

	"github.com/dokzlo13/lightseq/internal/device"
)

// Topics builds lightseq topics under a configurable root.
//
//	topics := Topics{Root: "lightseq"}
//	topics.DeviceState("192.168.1.20") // "lightseq/devices/192.168.1.20/state"
type Topics struct {
	Root string
}

// Status carries the retained online/offline marker and the last will.
func (t Topics) Status() string {
	return t.Root + "/status"
}

// DeviceState is the retained last observed state of one light.
func (t Topics) DeviceState(id device.ID) string {
	return fmt.Sprintf("%s/devices/%s/state", t.Root, id)
}

// Discovery receives one message per successful refresh.
func (t Topics) Discovery() string {
	return t.Root + "/discovery"
}

// Pattern is the retained active pattern, or an empty run when stopped.
func (t Topics) Pattern() string {
	return t.Root + "/pattern"
}

// Steps receives one message per dispatched step.
func (t Topics) Steps() string {
	return t.Root + "/steps"
}
