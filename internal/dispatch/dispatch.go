// Package dispatch implements the command dispatcher: it inspects the tag
// byte of a parsed rsp.Packet and produces the reply frames and session
// side-effects spec.md §4.3 describes. One Dispatcher is constructed per
// accepted connection; it is not safe for concurrent use by more than the
// single session-loop goroutine that owns it (spec.md §5's "every other
// piece of session state is owned by exactly one thread").
package dispatch

import (
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/dmi391/gdbstub/internal/cancel"
	"github.com/dmi391/gdbstub/internal/metrics"
	"github.com/dmi391/gdbstub/internal/rsp"
	"github.com/dmi391/gdbstub/internal/target"
)

// Effects are session-state transitions the dispatcher asks the session
// loop to apply after sending this Reply. The dispatcher never touches the
// session loop's connection or ack-mode bookkeeping directly.
type Effects struct {
	AckModeOff  bool
	KillPending bool
}

// Reply is zero, one, or two frames to emit, in order, plus Effects
// (spec.md §3 "Reply").
type Reply struct {
	// OutputText is an optional "$O<hex>#cc" console frame. When present it
	// is always written before Primary (spec.md §4.3 "Ordering rule").
	OutputText []byte
	Primary    []byte
	Effects    Effects
}

// Dispatcher holds everything needed to turn one rsp.Packet into a Reply:
// the target collaborator, the negotiated packet size, and the small bits
// of cross-command state (extended mode, last stop reason) spec.md §4.3
// requires.
type Dispatcher struct {
	target     target.Target
	packetSize int
	metrics    *metrics.Metrics
	log        *logrus.Entry

	extendedMode bool
	lastStop     []byte // last stop-reply frame text, for '?'
}

// New constructs a Dispatcher bound to t, framing replies no larger than
// packetSize. m may be nil (tests construct a Dispatcher without a
// registered collector).
func New(t target.Target, packetSize int, m *metrics.Metrics, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		target:     t,
		packetSize: packetSize,
		metrics:    m,
		log:        log,
		lastStop:   rsp.ReplyT02, // spec.md §4.3: '?' reports T02 at connection start
	}
}

// Dispatch handles one KindPacket frame. Callers handle KindControl/KindEmpty
// themselves (spec.md §4.4 step 2); Dispatch panics if given anything else.
func (d *Dispatcher) Dispatch(pkt rsp.Packet, c *cancel.Flag) Reply {
	if pkt.Kind != rsp.KindPacket {
		panic(rsp.NewProgrammingError("dispatch: Dispatch called with non-packet frame kind %v", pkt.Kind))
	}
	d.countCommand(pkt.Tag)

	switch pkt.Tag {
	case '?':
		return d.reply(d.lastStop)
	case 'g':
		return d.handleReadAllRegisters()
	case 'G':
		return d.handleWriteAllRegisters(pkt)
	case 'p':
		return d.handleReadRegister(pkt)
	case 'P':
		return d.handleWriteRegister(pkt)
	case 'm':
		return d.handleReadMemory(pkt)
	case 'M':
		return d.handleWriteMemory(pkt)
	case 'X':
		return d.handleWriteMemoryBinary(pkt)
	case 'z':
		return d.handleRemoveMatchpoint(pkt)
	case 'Z':
		return d.handleInsertMatchpoint(pkt)
	case 'q':
		return d.handleQuery(pkt)
	case 'Q':
		return d.handleSet(pkt)
	case 'v':
		return d.handleV(pkt, c)
	case '!':
		d.extendedMode = true
		return d.replyOK()
	case 'R':
		return d.handleRestart()
	default:
		d.log.WithField("tag", string(pkt.Tag)).Debug("unsupported command")
		return d.unsupported()
	}
}

func (d *Dispatcher) countCommand(tag byte) {
	if d.metrics == nil {
		return
	}
	d.metrics.CommandsTotal.WithLabelValues(string(tag)).Inc()
}

// reply wraps a pre-framed literal (e.g. rsp.ReplyOK) into a Reply.
func (d *Dispatcher) reply(framed []byte) Reply {
	return Reply{Primary: framed}
}

func (d *Dispatcher) replyOK() Reply { return d.reply(rsp.ReplyOK) }

// unsupported is the correct, canonical reply to any command this server
// does not implement: an empty payload packet, "$#00" (spec.md §9 point
// (b): never the source's non-canonical "+$#00" inside no-ack mode).
func (d *Dispatcher) unsupported() Reply {
	return d.reply(rsp.EncodeEmpty(d.packetSize))
}

// errorReply is the single choke point every CommandError-based reply passes
// through, so it is also where ProtocolErrors (the E01 replies) is counted.
func (d *Dispatcher) errorReply(err *rsp.CommandError) Reply {
	if d.metrics != nil && err.Code() == rsp.ErrCodeMalformed {
		d.metrics.ProtocolErrors.Inc()
	}
	return d.reply(rsp.EncodePacket(err.Reply(), d.packetSize))
}

func (d *Dispatcher) handleRestart() Reply {
	if !d.extendedMode {
		// Open question in spec.md §4.3b: R before '!' is a protocol
		// violation, not a silent restart.
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeMalformed, "R received before extended mode was enabled", nil))
	}
	d.lastStop = rsp.ReplyT02
	return Reply{} // spec.md §4.3: R has no reply
}

// parseHexUint parses s as an unsigned hex integer. It returns strconv's
// error as is; callers wrap it in an rsp.CommandError.
func parseHexUint(s []byte) (uint64, error) {
	return strconv.ParseUint(string(s), 16, 64)
}
