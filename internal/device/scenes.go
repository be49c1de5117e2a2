package device

import (
	"sort"
	"strings"
)

// Speed bounds for dynamic scenes.
const (
	MinSceneSpeed     = 10
	MaxSceneSpeed     = 200
	DefaultSceneSpeed = 100
)

// Scenes maps built-in bulb scene IDs to their names.
var Scenes = map[int]string{
	1:    "Ocean",
	2:    "Romance",
	3:    "Sunset",
	4:    "Party",
	5:    "Fireplace",
	6:    "Cozy",
	7:    "Forest",
	8:    "Pastel colors",
	9:    "Wake-up",
	10:   "Bedtime",
	11:   "Warm white",
	12:   "Daylight",
	13:   "Cool white",
	14:   "Night light",
	15:   "Focus",
	16:   "Relax",
	17:   "True colors",
	18:   "TV time",
	19:   "Plant growth",
	20:   "Spring",
	21:   "Summer",
	22:   "Fall",
	23:   "Deep dive",
	24:   "Jungle",
	25:   "Mojito",
	26:   "Club",
	27:   "Christmas",
	28:   "Halloween",
	29:   "Candlelight",
	30:   "Golden white",
	31:   "Pulse",
	32:   "Steampunk",
	33:   "Diwali",
	34:   "White",
	35:   "Alarm",
	1000: "Rhythm",
}

// SceneByName looks a scene up case-insensitively.
func SceneByName(name string) (int, bool) {
	for id, n := range Scenes {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return id, true
		}
	}
	return 0, false
}

// SceneName returns the name of a scene ID, or "" if unknown.
func SceneName(id int) string {
	return Scenes[id]
}

// SceneIDs returns all known scene IDs in ascending order.
func SceneIDs() []int {
	ids := make([]int, 0, len(Scenes))
	for id := range Scenes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
