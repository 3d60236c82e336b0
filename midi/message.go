package midi

import "fmt"

// Status bytes
const (
	StatusNoteOff       uint8 = 0x80
	StatusNoteOn        uint8 = 0x90
	StatusControlChange uint8 = 0xB0
)

// AllNotesOff is the channel-mode controller that silences every sounding note.
const AllNotesOff uint8 = 123

// Channel is a MIDI channel, 0-15 on the wire.
type Channel uint8

// NumChannels is the number of addressable channels per port.
const NumChannels = 16

// PortID indexes the configured output ports.
type PortID int

// Note is a pitch on a channel at a velocity.
type Note struct {
	Key      uint8   `yaml:"key" json:"key"`
	Channel  Channel `yaml:"channel" json:"channel"`
	Velocity uint8   `yaml:"velocity" json:"velocity"`
}

// Valid reports whether every field fits its 7-bit (or 4-bit channel) range.
func (n Note) Valid() bool {
	return n.Key <= 127 && n.Velocity <= 127 && n.Channel < NumChannels
}

// Kind tags the variant held by a Message.
type Kind uint8

const (
	KindNoteOn Kind = iota
	KindNoteOff
	KindGlobalNoteOff
)

func (k Kind) String() string {
	switch k {
	case KindNoteOn:
		return "note-on"
	case KindNoteOff:
		return "note-off"
	case KindGlobalNoteOff:
		return "global-note-off"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "note-on":
		return KindNoteOn, nil
	case "note-off":
		return KindNoteOff, nil
	case "global-note-off":
		return KindGlobalNoteOff, nil
	}
	return 0, fmt.Errorf("unknown message kind %q", s)
}

// Message is a sequenced MIDI message. Key and Velocity are ignored for
// KindGlobalNoteOff.
type Message struct {
	Kind     Kind
	Key      uint8
	Velocity uint8
}

func NoteOn(key, velocity uint8) Message {
	return Message{Kind: KindNoteOn, Key: key, Velocity: velocity}
}

func NoteOff(key, velocity uint8) Message {
	return Message{Kind: KindNoteOff, Key: key, Velocity: velocity}
}

func GlobalNoteOff() Message {
	return Message{Kind: KindGlobalNoteOff}
}

// ToWire encodes the message as three bytes for the given channel. The
// channel and data bytes are masked to their wire widths. GlobalNoteOff
// ignores the channel and always encodes B0 7B 00.
func (m Message) ToWire(ch Channel) [3]byte {
	c := uint8(ch) & 0x0F
	switch m.Kind {
	case KindNoteOn:
		return [3]byte{StatusNoteOn | c, m.Key & 0x7F, m.Velocity & 0x7F}
	case KindNoteOff:
		return [3]byte{StatusNoteOff | c, m.Key & 0x7F, m.Velocity & 0x7F}
	default:
		return [3]byte{StatusControlChange, AllNotesOff, 0}
	}
}

func (m Message) String() string {
	if m.Kind == KindGlobalNoteOff {
		return m.Kind.String()
	}
	return fmt.Sprintf("%s key=%d vel=%d", m.Kind, m.Key, m.Velocity)
}

// Dispatch is one message addressed to an output port, ready for the wire.
type Dispatch struct {
	Tick    uint64
	Port    PortID
	Channel Channel
	Message Message
	Bytes   [3]byte
}

// NewDispatch encodes msg for ch and addresses it to port.
func NewDispatch(tick uint64, port PortID, ch Channel, msg Message) Dispatch {
	return Dispatch{
		Tick:    tick,
		Port:    port,
		Channel: ch,
		Message: msg,
		Bytes:   msg.ToWire(ch),
	}
}
