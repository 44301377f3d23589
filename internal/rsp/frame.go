package rsp

// Kind discriminates the three frame variants spec.md §3 defines.
type Kind int

const (
	// KindEmpty is a zero-byte read (connection idle tick); ignored.
	KindEmpty Kind = iota
	// KindControl is a single in-band byte: '+', '-', or the 0x03 interrupt.
	KindControl
	// KindPacket is a well-formed "$DATA#CC" frame.
	KindPacket
)

const (
	Ack       = '+'
	Nak       = '-'
	Interrupt = 0x03
)

// Packet is the parsed frame exposed to the command dispatcher: a kind tag,
// a payload slice, and — for binary-carrying commands like X — the
// underlying buffer plus the indices of the ',' and ':' separators, so the
// dispatcher never has to scan binary payload bytes looking for ASCII
// framing characters (spec.md §4.1, §9 "sentinel-based binary parsing").
type Packet struct {
	Kind    Kind
	Control byte // valid when Kind == KindControl

	// Tag is the first data byte of a KindPacket frame (e.g. 'g', 'm', 'X').
	// Zero for KindControl/KindEmpty.
	Tag byte

	// Data is the packet payload. For every command except X this is the
	// full, checksum-verified payload. For X it is nil — use Raw/CommaIdx/
	// ColonIdx instead, since X payload bytes may not be valid text.
	Data []byte

	// Raw is the full payload span (same bytes as Data would cover) for
	// binary-carrying packets, before any escape decoding.
	Raw []byte

	// CommaIdx/ColonIdx locate the ',' and ':' separators in Raw for the X
	// command's "addr,len:bytes" header. -1 when not applicable.
	CommaIdx int
	ColonIdx int

	// Checksum holds the two raw checksum bytes as received.
	Checksum []byte

	// PiggyAck records a leading '+'/'-' seen immediately before '$' while
	// ack mode was still active (spec.md §3); zero if none was present.
	PiggyAck byte
}

// ParseFrame splits one read of length len(buf) into a Frame/Packet per
// spec.md §4.1. ackMode controls whether a leading '+'/'-' before '$' is
// accepted as a piggy-backed ack.
func ParseFrame(buf []byte, ackMode bool) (Packet, error) {
	n := len(buf)
	switch {
	case n == 0:
		return Packet{Kind: KindEmpty}, nil
	case n == 1:
		return Packet{Kind: KindControl, Control: buf[0]}, nil
	}

	dollar := 0
	var piggy byte
	switch {
	case buf[0] == '$':
		dollar = 0
	case ackMode && (buf[0] == Ack || buf[0] == Nak) && n >= 2 && buf[1] == '$':
		dollar = 1
		piggy = buf[0]
	default:
		return Packet{}, errFraming("rsp: frame does not start with '$' (first bytes %q)", buf[:min(n, 2)])
	}

	if n-dollar < 4 {
		// "$#cc" is the shortest possible packet: 1 + 0 + 1 + 2 = 4 bytes.
		return Packet{}, errFraming("rsp: frame too short to contain checksum framing")
	}

	sharpPos := n - 3
	if buf[sharpPos] != '#' {
		return Packet{}, errFraming("rsp: missing '#' at expected position %d", sharpPos)
	}
	checksum := buf[sharpPos+1 : sharpPos+3]

	want, err := ParseChecksum(checksum)
	if err != nil {
		return Packet{}, errFraming("rsp: %v", err)
	}

	data := buf[dollar+1 : sharpPos]
	if Sum(data) != want {
		return Packet{}, errFraming("rsp: checksum mismatch: got %02x, computed %02x", want, Sum(data))
	}

	if len(data) == 0 {
		return Packet{Kind: KindPacket, PiggyAck: piggy, Checksum: checksum, Data: data, Raw: data, CommaIdx: -1, ColonIdx: -1}, nil
	}

	tag := data[0]
	pkt := Packet{
		Kind:     KindPacket,
		Tag:      tag,
		PiggyAck: piggy,
		Checksum: checksum,
		CommaIdx: -1,
		ColonIdx: -1,
	}

	if tag == 'X' {
		// X carries an arbitrary binary payload after the ':'. Locate the
		// ',' and ':' by scanning forward from the start of data — the
		// "X<addr>,<len>:" header is always plain ASCII and precedes any
		// binary byte, so this scan never touches the payload itself.
		pkt.Raw = data
		comma := indexByte(data, ',')
		colon := indexByte(data, ':')
		pkt.CommaIdx = comma
		pkt.ColonIdx = colon
		return pkt, nil
	}

	pkt.Data = data
	pkt.Raw = data
	return pkt, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
