package dispatch

import (
	"bytes"
	"fmt"

	"github.com/dmi391/gdbstub/internal/rsp"
	"github.com/dmi391/gdbstub/internal/target"
)

var (
	prefixQSupported = []byte("qSupported")
	prefixQfThread   = []byte("qfThreadInfo")
	prefixQsThread   = []byte("qsThreadInfo")
	prefixQC         = []byte("qC")
	prefixQAttached  = []byte("qAttached")
	prefixQSymbol    = []byte("qSymbol")
	prefixQOffsets   = []byte("qOffsets")
	prefixQRcmd      = []byte("qRcmd,")
)

// handleQuery implements the 'q' general-query commands spec.md §4.3 lists.
// Any q-query not recognised here falls through to the generic unsupported
// reply, which is the correct way to answer GDB's optional-feature probes.
func (d *Dispatcher) handleQuery(pkt rsp.Packet) Reply {
	data := pkt.Data
	switch {
	case bytes.HasPrefix(data, prefixQSupported):
		return d.handleQSupported()
	case bytes.Equal(data, prefixQfThread):
		return d.reply(rsp.EncodePacket([]byte("l"), d.packetSize))
	case bytes.Equal(data, prefixQsThread):
		return d.reply(rsp.EncodePacket([]byte("l"), d.packetSize))
	case bytes.Equal(data, prefixQC):
		return d.reply(rsp.EncodePacket([]byte("QC0"), d.packetSize))
	case bytes.HasPrefix(data, prefixQAttached):
		return d.reply(rsp.EncodePacket([]byte("0"), d.packetSize))
	case bytes.HasPrefix(data, prefixQSymbol):
		return d.replyOK()
	case bytes.Equal(data, prefixQOffsets):
		return d.reply(rsp.EncodePacket([]byte("Text=0;Data=0;Bss=0"), d.packetSize))
	case bytes.HasPrefix(data, prefixQRcmd):
		return d.handleQRcmd(data[len(prefixQRcmd):])
	default:
		return d.unsupported()
	}
}

// handleQSupported advertises PacketSize, no-ack-mode support, and vCont
// support, per spec.md §4.3.
func (d *Dispatcher) handleQSupported() Reply {
	payload := []byte(fmt.Sprintf("PacketSize=%x;QStartNoAckMode+;vContSupported+", d.packetSize))
	return d.reply(rsp.EncodePacket(payload, d.packetSize))
}

// handleQRcmd decodes and executes a "monitor" command (spec.md §4.1's
// monitor-command decode plus §4.3's qRcmd handling). A known command
// reports its status via an O-text frame followed by OK; an unknown one
// reports the error the same way, also followed by OK, and an odd-length
// hex payload is a protocol error answered with E01.
func (d *Dispatcher) handleQRcmd(hexCmd []byte) Reply {
	cmd, err := rsp.DecodeMonitorCommand(hexCmd)
	if err != nil {
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "qRcmd: malformed hex command", err))
	}
	text, merr := d.target.Monitor(cmd)
	if merr != nil {
		if merr == target.ErrUnknownMonitorCommand {
			text = fmt.Sprintf("unknown monitor command %q\n", cmd)
		} else {
			text = fmt.Sprintf("monitor command %q failed: %v\n", cmd, merr)
		}
	}
	return Reply{
		OutputText: rsp.EncodeOutputText(text, d.packetSize),
		Primary:    rsp.ReplyOK,
	}
}

// handleSet implements the 'Q' general-set commands.
func (d *Dispatcher) handleSet(pkt rsp.Packet) Reply {
	data := pkt.Data
	if bytes.HasPrefix(data, []byte("QStartNoAckMode")) {
		return Reply{
			Primary: rsp.ReplyOK,
			Effects: Effects{AckModeOff: true},
		}
	}
	return d.unsupported()
}
