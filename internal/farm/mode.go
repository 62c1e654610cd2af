package farm

import "strings"

// Mode is the tool mode that gates input on a tile.
type Mode int

const (
	ModeNone Mode = iota
	ModeCultivate
	ModeWater
	ModePlant
)

func (m Mode) String() string {
	switch m {
	case ModeCultivate:
		return "cultivate"
	case ModeWater:
		return "water"
	case ModePlant:
		return "plant"
	default:
		return "none"
	}
}

// ModeForItem maps the selected backpack item to a tool mode.
func ModeForItem(item string) Mode {
	switch {
	case strings.HasSuffix(item, "_Seed"):
		return ModePlant
	case item == "Hoe":
		return ModeCultivate
	case item == "WateringCan":
		return ModeWater
	default:
		return ModeNone
	}
}
