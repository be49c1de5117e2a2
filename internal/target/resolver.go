// Package target maps a step's declared target onto a concrete set of lights.
package target

import (
	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/pattern"
)

// Resolve returns the lights a target selects from members, plus the number of
// declared ids that were not members. Unknown ids are skipped, never an error.
//
// All yields members in their given order. One and Many yield ids in declared
// order with duplicates removed. The result is always a fresh slice.
func Resolve(t pattern.Target, members []device.ID) (ids []device.ID, misses int) {
	if t.Kind == pattern.TargetAll {
		ids = make([]device.ID, len(members))
		copy(ids, members)
		return ids, 0
	}

	known := make(map[device.ID]struct{}, len(members))
	for _, m := range members {
		known[m] = struct{}{}
	}

	ids = make([]device.ID, 0, len(t.IDs))
	seen := make(map[device.ID]struct{}, len(t.IDs))
	for _, id := range t.IDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := known[id]; !ok {
			misses++
			continue
		}
		ids = append(ids, id)
	}
	return ids, misses
}
