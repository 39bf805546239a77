package domain

import (
	"errors"
	"strings"
)

// ErrUnknownZone is returned when a zone name cannot be parsed
var ErrUnknownZone = errors.New("unknown zone")

// Zone is one of the mutually exclusive arena areas an observer can mark
type Zone int

const (
	ZoneCorner Zone = iota
	ZoneLateral
	ZoneCenter
)

// zoneCount is the number of zones tracked per session
const zoneCount = 3

// Zones returns all zones in display order
func Zones() []Zone {
	return []Zone{ZoneCorner, ZoneLateral, ZoneCenter}
}

// String returns the display name of the zone
func (z Zone) String() string {
	switch z {
	case ZoneCorner:
		return "Corner"
	case ZoneLateral:
		return "Lateral"
	case ZoneCenter:
		return "Center"
	default:
		return "Unknown"
	}
}

// Valid reports whether z is one of the known zones
func (z Zone) Valid() bool {
	return z >= ZoneCorner && z <= ZoneCenter
}

// ParseZone parses a zone name, short alias or Portuguese name
func ParseZone(s string) (Zone, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "corner", "c", "canto":
		return ZoneCorner, nil
	case "lateral", "l", "side":
		return ZoneLateral, nil
	case "center", "centre", "m", "middle", "centro":
		return ZoneCenter, nil
	}
	return 0, ErrUnknownZone
}
