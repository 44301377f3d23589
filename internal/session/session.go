// Package session implements the per-connection read-dispatch-write loop
// (spec.md §4.4) and owns every piece of state exclusive to one connection:
// ack mode, the last-sent reply (for '-' retransmission), and the
// cancellation flag shared with the interrupt watcher.
package session

import (
	"errors"
	"io"
	"net"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/dmi391/gdbstub/internal/cancel"
	"github.com/dmi391/gdbstub/internal/dispatch"
	"github.com/dmi391/gdbstub/internal/metrics"
	"github.com/dmi391/gdbstub/internal/rsp"
)

// Config carries the per-session tunables the caller (cmd/gdbstubd) derives
// from process configuration.
type Config struct {
	// PacketSize sizes the read buffer (PacketSize plus 256 bytes of
	// slack). Framed replies are bounded by the packet size the Dispatcher
	// was constructed with, not by this field.
	PacketSize int
}

// Serve drives one accepted connection to completion. It returns nil when
// the session ended cleanly (peer EOF, or vKill), and a non-nil error for
// anything that tore the connection down early (a framing error while
// no-ack mode is active, a write failure, a ProgrammingError panic
// recovered at the edge).
//
// Modelled on spec.md §4.4's three-step connection lifecycle; the
// structure — spawn a watcher goroutine, then loop reading frames off the
// same connection in the caller's goroutine — mirrors how
// Daedaluz-goserial's port_linux.go separates the read-loop goroutine from
// the state the caller owns.
func Serve(conn net.Conn, disp *dispatch.Dispatcher, cfg Config, m *metrics.Metrics, log *logrus.Entry) (err error) {
	sessionID := xid.New().String()
	log = log.WithField("session", sessionID).WithField("remote", conn.RemoteAddr())
	log.Info("session started")

	if m != nil {
		m.SessionsTotal.Inc()
		m.ActiveSessions.Inc()
		defer m.ActiveSessions.Dec()
	}

	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*rsp.ProgrammingError); ok {
				log.WithError(pe).Error("session aborted by programming error")
				err = pe
				return
			}
			panic(r) // not ours to handle
		}
	}()

	c := &cancel.Flag{}
	bufSize := cfg.PacketSize + 256
	watcherDone := make(chan struct{})
	src := newFrameSource(conn, bufSize)
	go func() {
		defer close(watcherDone)
		Watch(conn, c, m, log, src.fallbackSink())
	}()
	defer func() {
		conn.Close()
		<-watcherDone
	}()

	ackMode := true
	var lastReply []byte

	for {
		buf, rerr := src.next()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				log.Info("session ended: peer closed connection")
				return nil
			}
			return rerr
		}

		pkt, ferr := rsp.ParseFrame(buf, ackMode)
		if ferr != nil {
			if m != nil {
				m.FramingErrors.Inc()
			}
			if ackMode {
				// A garbled frame in ack mode costs nothing but a NAK;
				// GDB retransmits.
				log.WithError(ferr).Debug("malformed frame, sending NAK")
				if _, werr := conn.Write(rsp.EncodeNak()); werr != nil {
					return werr
				}
				continue
			}
			// Neither side can resynchronise without +/-, so a malformed
			// frame in no-ack mode ends the session (spec.md §7).
			log.WithError(ferr).Error("malformed frame in no-ack mode, closing session")
			return ferr
		}

		switch pkt.Kind {
		case rsp.KindEmpty:
			continue
		case rsp.KindControl:
			if werr := handleControl(conn, pkt, lastReply); werr != nil {
				return werr
			}
			continue
		}

		if pkt.PiggyAck != 0 {
			// A leading '+'/'-' folded into this same read (spec.md §3):
			// the ack itself needs no separate reply beyond the normal
			// ack-mode handling below.
			log.Debug("piggy-backed ack/nak consumed with packet")
		}

		reply := disp.Dispatch(pkt, c)

		if ackMode {
			if _, werr := conn.Write(rsp.EncodeAck()); werr != nil {
				return werr
			}
		}
		if reply.OutputText != nil {
			if _, werr := conn.Write(reply.OutputText); werr != nil {
				return werr
			}
		}
		if reply.Primary != nil {
			if _, werr := conn.Write(reply.Primary); werr != nil {
				return werr
			}
			lastReply = reply.Primary
		}
		if reply.Effects.AckModeOff {
			log.Debug("switching to no-ack mode")
			ackMode = false
		}
		if reply.Effects.KillPending {
			log.Info("session ended: vKill")
			return nil
		}
	}
}

// frameSource is how Serve obtains the next raw frame to parse. Over a
// *net.TCPConn it reads the connection directly — Watch only peeks, never
// consumes, so ownership of Read stays with Serve. Over any other net.Conn
// (peek needs a real file descriptor, which only TCP exposes via
// SyscallConn), Watch becomes the connection's sole reader and forwards
// every chunk that isn't a lone 0x03 over a buffered channel, per spec.md
// §4.5a's portable fallback.
type frameSource struct {
	conn   net.Conn
	isTCP  bool
	buf    []byte
	frames chan []byte
}

func newFrameSource(conn net.Conn, bufSize int) *frameSource {
	_, isTCP := conn.(*net.TCPConn)
	fs := &frameSource{conn: conn, isTCP: isTCP, buf: make([]byte, bufSize)}
	if !isTCP {
		fs.frames = make(chan []byte, 8)
	}
	return fs
}

// fallbackSink is the channel Watch forwards non-interrupt chunks over when
// it is acting as the connection's sole reader. It is nil for TCP
// connections, where Watch never sends on it.
func (fs *frameSource) fallbackSink() chan<- []byte {
	return fs.frames
}

func (fs *frameSource) next() ([]byte, error) {
	if fs.isTCP {
		n, err := fs.conn.Read(fs.buf)
		if err != nil {
			return nil, err
		}
		return fs.buf[:n], nil
	}
	buf, ok := <-fs.frames
	if !ok {
		return nil, io.EOF
	}
	return buf, nil
}

// handleControl answers a single in-band '+'/'-' byte (spec.md §4.4 step 2).
// 0x03 never reaches here: over TCP the interrupt watcher drains it before
// Serve's own Read can observe it as a lone byte; over the portable
// fallback path Watch filters it out before anything reaches frameSource —
// 0x03 can never be confused with '+'/'-' either way.
func handleControl(conn net.Conn, pkt rsp.Packet, lastReply []byte) error {
	switch pkt.Control {
	case rsp.Ack:
		_, err := conn.Write(rsp.EncodeAck())
		return err
	case rsp.Nak:
		if lastReply == nil {
			return nil
		}
		_, err := conn.Write(lastReply)
		return err
	default:
		return nil
	}
}
