package sequencer

import (
	"fmt"

	"midiseq/midi"
)

// Instrument routes events to an output port and channel.
type Instrument struct {
	Name    string       `yaml:"name" json:"name"`
	Port    midi.PortID  `yaml:"port" json:"port"`
	Channel midi.Channel `yaml:"channel" json:"channel"`
}

func (i Instrument) String() string {
	return fmt.Sprintf("%s (port %d ch %d)", i.Name, i.Port, i.Channel+1)
}

// validate checks the instrument against the number of configured ports.
func (i Instrument) validate(ports int) error {
	if !within(int(i.Port), 0, ports-1) {
		return fmt.Errorf("port %d outside 0-%d: %w", i.Port, ports-1, ErrInvalidParameter)
	}
	if !within(i.Channel, 0, midi.NumChannels-1) {
		return fmt.Errorf("channel %d outside 0-15: %w", i.Channel, ErrInvalidParameter)
	}
	return nil
}

// cloneInstrument copies an optional override so stored entries never share
// it with the caller.
func cloneInstrument(in *Instrument) *Instrument {
	if in == nil {
		return nil
	}
	c := *in
	return &c
}
