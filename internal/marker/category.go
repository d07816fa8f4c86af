package marker

import "strings"

// FallbackIcon is drawn when nothing more specific applies.
const FallbackIcon = "pin"

var (
	colorScenic   = mustColor("#FF9800")
	colorServices = mustColor("#4CAF50")
	colorFood     = mustColor("#F44336")
	colorHazard   = mustColor("#FF5722")
	colorSafety   = mustColor("#2196F3")
	colorDefault  = mustColor("#9C27B0")
)

var categoryColors = map[string]Color{
	"scenic":           colorScenic,
	"park":             colorScenic,
	"beach":            colorScenic,
	"mountain":         colorScenic,
	"lake":             colorScenic,
	"waterfall":        colorScenic,
	"viewpoint":        colorScenic,
	"hiking":           colorScenic,
	"petrol_station":   colorServices,
	"charging_station": colorServices,
	"parking":          colorServices,
	"restaurant":       colorFood,
	"cafe":             colorFood,
	"hotel":            colorFood,
	"shop":             colorFood,
	"speed_camera":     colorHazard,
	"accident":         colorHazard,
	"construction":     colorHazard,
	"warning":          colorHazard,
	"hospital":         colorSafety,
	"police":           colorSafety,
	"fire_station":     colorSafety,
}

var categoryIcons = map[string]string{
	"scenic":           "scenic",
	"park":             "scenic",
	"beach":            "scenic",
	"mountain":         "scenic",
	"lake":             "scenic",
	"waterfall":        "scenic",
	"viewpoint":        "scenic",
	"hiking":           "scenic",
	"petrol_station":   "petrol_station",
	"charging_station": "charging_station",
	"parking":          "parking",
	"restaurant":       "restaurant",
	"cafe":             "cafe",
	"hotel":            "hotel",
	"shop":             "shop",
	"speed_camera":     "speed_camera",
	"accident":         "accident",
	"construction":     "construction",
	"warning":          "warning",
	"hospital":         "hospital",
	"police":           "police",
	"fire_station":     "fire_station",
}

// DefaultColor returns the palette color for a category.
func DefaultColor(category string) Color {
	if c, ok := categoryColors[strings.ToLower(category)]; ok {
		return c
	}
	return colorDefault
}

// DefaultIcon returns the icon drawn for a category when none is set.
func DefaultIcon(category string) string {
	if icon, ok := categoryIcons[strings.ToLower(category)]; ok {
		return icon
	}
	return FallbackIcon
}

// DisplayColor resolves the marker color, then the configured default,
// then the category palette.
func (m Marker) DisplayColor(cfg Configuration) Color {
	switch {
	case m.CustomColor != nil:
		return *m.CustomColor
	case cfg.DefaultColor != nil:
		return *cfg.DefaultColor
	default:
		return DefaultColor(m.Category)
	}
}

// DisplayIcon resolves the marker icon, then the configured default,
// then the category icon.
func (m Marker) DisplayIcon(cfg Configuration) string {
	switch {
	case m.IconID != nil && *m.IconID != "":
		return *m.IconID
	case cfg.DefaultIconID != nil && *cfg.DefaultIconID != "":
		return *cfg.DefaultIconID
	default:
		return DefaultIcon(m.Category)
	}
}
