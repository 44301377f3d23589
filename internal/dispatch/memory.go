package dispatch

import (
	"bytes"

	"github.com/dmi391/gdbstub/internal/rsp"
)

// handleReadMemory implements 'm<addr>,<len>'.
func (d *Dispatcher) handleReadMemory(pkt rsp.Packet) Reply {
	body := pkt.Data[1:]
	comma := bytes.IndexByte(body, ',')
	if comma < 0 {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "m: missing ','", nil))
	}
	addr, err := parseHexUint(body[:comma])
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "m: malformed address", err))
	}
	length, err := parseHexUint(body[comma+1:])
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "m: malformed length", err))
	}
	mem, err := d.target.ReadMemory(addr, length)
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeTarget, "m: target read failed", err))
	}
	return d.reply(rsp.EncodePacket(rsp.EncodeHex(mem), d.packetSize))
}

// handleWriteMemory implements 'M<addr>,<len>:<hexbytes>'.
func (d *Dispatcher) handleWriteMemory(pkt rsp.Packet) Reply {
	body := pkt.Data[1:]
	colon := bytes.IndexByte(body, ':')
	if colon < 0 {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "M: missing ':'", nil))
	}
	header := body[:colon]
	hexData := body[colon+1:]

	comma := bytes.IndexByte(header, ',')
	if comma < 0 {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "M: missing ','", nil))
	}
	addr, err := parseHexUint(header[:comma])
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "M: malformed address", err))
	}
	length, err := parseHexUint(header[comma+1:])
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "M: malformed length", err))
	}
	data, err := rsp.DecodeHex(hexData)
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "M: malformed hex payload", err))
	}
	if uint64(len(data)) != length {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeLengthMismatch, "M: declared length does not match payload", nil))
	}
	if err := d.target.WriteMemory(addr, data); err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeTarget, "M: target write failed", err))
	}
	return d.replyOK()
}

// handleWriteMemoryBinary implements 'X<addr>,<len>:<bytes>', the
// binary-safe write-memory command. Per spec.md §4.1/§9, the header fields
// are located via pkt.CommaIdx/ColonIdx (computed by the frame codec by
// scanning from the start of the packet, never by treating the binary
// payload as text), and the payload is unescaped before being handed to the
// target.
func (d *Dispatcher) handleWriteMemoryBinary(pkt rsp.Packet) Reply {
	if pkt.CommaIdx < 0 || pkt.ColonIdx < 0 || pkt.CommaIdx > pkt.ColonIdx {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "X: malformed addr,len: header", nil))
	}
	header := pkt.Raw[:pkt.ColonIdx]
	addrField := header[1:pkt.CommaIdx]
	lenField := header[pkt.CommaIdx+1:]

	addr, err := parseHexUint(addrField)
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "X: malformed address", err))
	}
	length, err := parseHexUint(lenField)
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "X: malformed length", err))
	}

	escaped := pkt.Raw[pkt.ColonIdx+1:]
	payload, err := rsp.UnescapeBinary(escaped)
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "X: truncated escape sequence", err))
	}
	if uint64(len(payload)) != length {
		// The empty probe "X<addr>,0:" is the one length that must always
		// succeed (spec.md §4.3), and len(payload)==0==length covers it
		// through the normal path without a special case here.
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeLengthMismatch, "X: declared length does not match payload", nil))
	}
	if err := d.target.WriteMemory(addr, payload); err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeTarget, "X: target write failed", err))
	}
	return d.replyOK()
}
