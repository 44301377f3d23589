package rsp

// EncodePacket frames payload as "$payload#cc". It panics with a
// ProgrammingError if the framed length would exceed packetSize — per
// spec.md §4.1 this is a programming error, never a silent truncation.
func EncodePacket(payload []byte, packetSize int) []byte {
	framed := make([]byte, 0, len(payload)+4)
	framed = append(framed, '$')
	framed = append(framed, payload...)
	framed = append(framed, '#')
	framed = append(framed, FormatChecksum(Sum(payload))...)
	if len(framed) > packetSize {
		panic(NewProgrammingError("rsp: framed reply length %d exceeds packet size %d", len(framed), packetSize))
	}
	return framed
}

// EncodeOutputText frames a "$O<hex>#cc" console-output packet carrying msg,
// valid only immediately before a stop-reply or a qRcmd OK (spec.md §4.1).
func EncodeOutputText(msg string, packetSize int) []byte {
	payload := append([]byte{'O'}, EncodeHex([]byte(msg))...)
	return EncodePacket(payload, packetSize)
}

// EncodeAck returns the single-byte acknowledgment frame.
func EncodeAck() []byte { return []byte{Ack} }

// EncodeNak returns the single-byte retransmit-request frame.
func EncodeNak() []byte { return []byte{Nak} }

// EncodeEmpty returns the canonical "unsupported command" reply, "$#00".
func EncodeEmpty(packetSize int) []byte { return EncodePacket(nil, packetSize) }

// OK and common stop-reply literals, matching spec.md §4.3/§8 byte-for-byte.
var (
	ReplyOK   = []byte("$OK#9a")
	ReplyT02  = []byte("$T02#b6") // SIGINT
	ReplyT05  = []byte("$T05#b9") // SIGTRAP
)

// DecodeMonitorCommand hex-decodes the command text carried after
// "qRcmd,". An odd-length payload is a protocol error (spec.md §4.1).
func DecodeMonitorCommand(hexPayload []byte) (string, error) {
	raw, err := DecodeHex(hexPayload)
	if err != nil {
		return "", errProtocol("rsp: qRcmd: " + err.Error())
	}
	return string(raw), nil
}

// EncodeMonitorText hex-encodes text the same way a monitor command's
// argument is decoded, for symmetry in tests and for any future monitor
// command that needs to echo hex back.
func EncodeMonitorText(text string) []byte {
	return EncodeHex([]byte(text))
}
