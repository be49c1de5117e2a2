package target

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dokzlo13/lightseq/internal/device"
	"github.com/dokzlo13/lightseq/internal/pattern"
)

func TestResolve(t *testing.T) {
	members := []device.ID{"x", "y", "z"}

	tests := []struct {
		name   string
		target pattern.Target
		want   []device.ID
		misses int
	}{
		{"all", pattern.All(), []device.ID{"x", "y", "z"}, 0},
		{"one_present", pattern.One("y"), []device.ID{"y"}, 0},
		{"one_missing", pattern.One("q"), []device.ID{}, 1},
		{"many_all_present", pattern.Many("z", "x"), []device.ID{"z", "x"}, 0},
		{"many_partial", pattern.Many("x", "q", "z", "r"), []device.ID{"x", "z"}, 2},
		{"many_duplicates", pattern.Many("x", "x", "y"), []device.ID{"x", "y"}, 0},
		{"many_empty", pattern.Many(), []device.ID{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, misses := Resolve(tt.target, members)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.misses, misses)
		})
	}
}

func TestResolve_ManyAgainstSubset(t *testing.T) {
	got, misses := Resolve(pattern.Many("x", "y", "z"), []device.ID{"x", "z"})
	assert.Equal(t, []device.ID{"x", "z"}, got)
	assert.Equal(t, 1, misses)
}

func TestResolve_Idempotent(t *testing.T) {
	members := []device.ID{"a", "b", "c"}
	for _, tgt := range []pattern.Target{pattern.All(), pattern.One("b"), pattern.Many("c", "d", "a")} {
		first, m1 := Resolve(tgt, members)
		second, m2 := Resolve(tgt, members)
		assert.Equal(t, first, second)
		assert.Equal(t, m1, m2)
	}
}

func TestResolve_AllEmptyRegistry(t *testing.T) {
	got, misses := Resolve(pattern.All(), nil)
	assert.Empty(t, got)
	assert.Zero(t, misses)
}

func TestResolve_DoesNotAliasMembers(t *testing.T) {
	members := []device.ID{"a", "b"}
	got, _ := Resolve(pattern.All(), members)
	got[0] = "changed"
	assert.Equal(t, device.ID("a"), members[0])
}
