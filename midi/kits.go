package midi

import "fmt"

// DrumChannel is where General MIDI expects percussion (channel 10).
const DrumChannel Channel = 9

// DrumSlots names the 16 pads every kit maps
var DrumSlots = [16]string{
	"Kick", "Snare", "Closed HH", "Open HH",
	"Low Tom", "Mid Tom", "High Tom", "Crash",
	"Ride", "Clap", "Rimshot", "Cowbell",
	"Clave", "Maracas", "Low Conga", "High Conga",
}

// DrumKit maps the drum slots to MIDI keys
type DrumKit struct {
	Name  string
	Notes [16]uint8
}

// Kits contains all available drum kit mappings
var Kits = map[string]DrumKit{
	"gm": {
		Name:  "General MIDI",
		Notes: [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 64, 63},
	},
	"rd8": {
		Name:  "Behringer RD-8",
		Notes: [16]uint8{36, 40, 42, 46, 45, 48, 50, 49, 51, 39, 37, 56, 75, 70, 64, 63}, // snare on 40
	},
	"tr8s": {
		Name:  "Roland TR-8S",
		Notes: [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 62, 63},
	},
}

// DefaultKit is the default kit name
const DefaultKit = "gm"

// GetKit returns a kit by name, defaulting to GM if not found
func GetKit(name string) DrumKit {
	if kit, ok := Kits[name]; ok {
		return kit
	}
	return Kits[DefaultKit]
}

// Slot returns the slot whose key is key, or -1.
func (k DrumKit) Slot(key uint8) int {
	for i, n := range k.Notes {
		if n == key {
			return i
		}
	}
	return -1
}

var pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName spells key with middle C (60) as C4.
func NoteName(key uint8) string {
	return fmt.Sprintf("%s%d", pitchClasses[key%12], int(key)/12-1)
}

// KeyLabel names key for display on ch: a drum slot on the drum channel
// when the GM kit has one, otherwise the pitch.
func KeyLabel(ch Channel, key uint8) string {
	if ch == DrumChannel {
		if slot := GetKit(DefaultKit).Slot(key); slot >= 0 {
			return DrumSlots[slot]
		}
	}
	return NoteName(key)
}
