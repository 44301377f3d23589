package dispatch

import (
	"bytes"

	"github.com/dmi391/gdbstub/internal/cancel"
	"github.com/dmi391/gdbstub/internal/rsp"
	"github.com/dmi391/gdbstub/internal/target"
)

var (
	prefixVCont = []byte("vCont")
	prefixVKill = []byte("vKill")
)

// handleV implements the 'v' packet-family commands this core supports:
// vCont?, vCont;c, vCont;s, and vKill. Everything else (including
// vMustReplyEmpty, which exists purely so GDB can probe for unsupported
// features) falls through to the generic unsupported reply.
func (d *Dispatcher) handleV(pkt rsp.Packet, c *cancel.Flag) Reply {
	data := pkt.Data
	switch {
	case bytes.Equal(data, []byte("vCont?")):
		return d.reply(rsp.EncodePacket([]byte("vCont;c;C;s;S"), d.packetSize))
	case bytes.HasPrefix(data, []byte("vCont;c")):
		return d.handleContinue(c)
	case bytes.HasPrefix(data, []byte("vCont;s")):
		return d.handleStep()
	case bytes.HasPrefix(data, prefixVKill):
		return Reply{
			Primary: rsp.ReplyOK,
			Effects: Effects{KillPending: true},
		}
	default:
		return d.unsupported()
	}
}

// handleContinue implements the 'c' action of vCont;c (spec.md §4.3
// "vCont;c semantics"). Cancel is cleared via Take() both before and after
// RunUntilStop: the before-clear discards any stale interrupt left over
// from an earlier, already-answered run so it can never cause a spurious
// immediate T02 (spec.md §8); the after-clear captures whatever the target
// actually observed during this run.
func (d *Dispatcher) handleContinue(c *cancel.Flag) Reply {
	c.Take()
	stop := d.target.RunUntilStop(c)
	wasCancelled := c.Take()
	if wasCancelled || stop.Signal == target.SigInt {
		d.lastStop = rsp.ReplyT02
		return Reply{
			OutputText: rsp.EncodeOutputText("target halted: interrupted by ^C\n", d.packetSize),
			Primary:    rsp.ReplyT02,
		}
	}
	d.lastStop = rsp.ReplyT05
	return Reply{
		OutputText: rsp.EncodeOutputText("target halted: breakpoint\n", d.packetSize),
		Primary:    rsp.ReplyT05,
	}
}

// handleStep implements the 's' action of vCont;s.
func (d *Dispatcher) handleStep() Reply {
	d.target.Step()
	d.lastStop = rsp.ReplyT05
	return Reply{
		OutputText: rsp.EncodeOutputText("target halted: single step\n", d.packetSize),
		Primary:    rsp.ReplyT05,
	}
}
