package dispatch

import (
	"bytes"

	"github.com/dmi391/gdbstub/internal/rsp"
)

// handleReadAllRegisters implements 'g': read all GPRs, concatenated
// little-endian per register (spec.md §4.3). Unlike original_source, which
// truncates register values through an integer-from-hex conversion (spec.md
// §9 point (a)), this reads the full-width byte string the target reports.
func (d *Dispatcher) handleReadAllRegisters() Reply {
	regs := d.target.ReadRegisters()
	return d.reply(rsp.EncodePacket(rsp.EncodeHex(regs), d.packetSize))
}

// handleWriteAllRegisters implements 'G<bytes>'.
func (d *Dispatcher) handleWriteAllRegisters(pkt rsp.Packet) Reply {
	hexBody := pkt.Data[1:]
	data, err := rsp.DecodeHex(hexBody)
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "G: malformed hex payload", err))
	}
	if err := d.target.WriteRegisters(data); err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeTarget, "G: target rejected register write", err))
	}
	return d.replyOK()
}

// handleReadRegister implements 'p<n>'.
func (d *Dispatcher) handleReadRegister(pkt rsp.Packet) Reply {
	n, err := parseHexUint(pkt.Data[1:])
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "p: malformed register index", err))
	}
	val, err := d.target.ReadRegister(int(n))
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeBadRegister, "p: register out of range", err))
	}
	return d.reply(rsp.EncodePacket(rsp.EncodeHex(val), d.packetSize))
}

// handleWriteRegister implements 'P<n>=<v>'.
func (d *Dispatcher) handleWriteRegister(pkt rsp.Packet) Reply {
	body := pkt.Data[1:]
	eq := bytes.IndexByte(body, '=')
	if eq < 0 {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "P: missing '='", nil))
	}
	n, err := parseHexUint(body[:eq])
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "P: malformed register index", err))
	}
	val, err := rsp.DecodeHex(body[eq+1:])
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "P: malformed register value", err))
	}
	if err := d.target.WriteRegister(int(n), val); err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeBadRegister, "P: register rejected", err))
	}
	return d.replyOK()
}
