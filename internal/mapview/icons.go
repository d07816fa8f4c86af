package mapview

import (
	"strings"

	"github.com/navbridge/extension/internal/marker"
)

var knownIcons = map[string]struct{}{}

func init() {
	for _, id := range []string{
		"pin", "star", "heart", "flag", "warning", "info", "question",
		"petrol_station", "charging_station", "parking", "bus_stop", "train_station", "airport", "port",
		"restaurant", "cafe", "hotel", "shop", "pharmacy", "hospital", "police", "fire_station",
		"scenic", "park", "beach", "mountain", "lake", "waterfall", "viewpoint", "hiking",
		"speed_camera", "accident", "construction", "traffic_light", "speed_bump", "school_zone",
		"school", "church", "shopping", "bank", "atm", "gas_station", "car_wash", "toll", "border", "custom",
	} {
		knownIcons[id] = struct{}{}
	}
}

var defaultAliases = map[string]string{
	"petrol":        "petrol_station",
	"gas":           "petrol_station",
	"fuel":          "petrol_station",
	"food":          "restaurant",
	"accommodation": "hotel",
	"medical":       "hospital",
	"charging":      "charging_station",
	"ev":            "charging_station",
	"camera":        "speed_camera",
}

// IconMapper resolves icon ids to the icon set the surfaces can draw.
type IconMapper struct {
	aliases map[string]string
}

// NewIconMapper returns a mapper with the built-in aliases plus extra ones.
// Extra aliases override built-in ones.
func NewIconMapper(extra map[string]string) *IconMapper {
	aliases := make(map[string]string, len(defaultAliases)+len(extra))
	for k, v := range defaultAliases {
		aliases[k] = v
	}
	for k, v := range extra {
		aliases[normalizeIcon(k)] = normalizeIcon(v)
	}
	return &IconMapper{aliases: aliases}
}

func normalizeIcon(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.ReplaceAll(id, " ", "_")
	return strings.TrimPrefix(id, "ic_")
}

// Resolve returns a drawable icon id, falling back to marker.FallbackIcon.
func (m *IconMapper) Resolve(id string) string {
	id = normalizeIcon(id)
	if alias, ok := m.aliases[id]; ok {
		id = alias
	}
	if _, ok := knownIcons[id]; ok {
		return id
	}
	return marker.FallbackIcon
}

// Exists reports whether id resolves without falling back.
func (m *IconMapper) Exists(id string) bool {
	id = normalizeIcon(id)
	if alias, ok := m.aliases[id]; ok {
		id = alias
	}
	_, ok := knownIcons[id]
	return ok
}
