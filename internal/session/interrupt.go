package session

import (
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/dmi391/gdbstub/internal/cancel"
	"github.com/dmi391/gdbstub/internal/metrics"
	"github.com/dmi391/gdbstub/internal/rsp"
)

// Watch is the interrupt watcher of spec.md §4.5. It runs on its own
// goroutine, sharing only c (and, on the fallback path, frames) with the
// session loop. Over a *net.TCPConn it peeks the socket's receive queue
// without consuming bytes, draining exactly a lone leading 0x03 and leaving
// everything else for frameSource's own Read. Over any other net.Conn — no
// raw file descriptor to peek, e.g. the net.Pipe connections used in tests
// — it falls back to being the connection's sole reader, forwarding every
// chunk that isn't a lone 0x03 to frames, per spec.md §4.5a's portable
// fallback. Either way, 0x03 never reaches the dispatcher as packet data.
func Watch(conn net.Conn, c *cancel.Flag, m *metrics.Metrics, log *logrus.Entry, frames chan<- []byte) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		watchFallback(conn, c, m, log, frames)
		return
	}

	buf := make([]byte, 1)
	for {
		n, err := peekByte(tcpConn, buf)
		if err != nil {
			log.WithError(err).Debug("interrupt watcher: stopping")
			return
		}
		if n == 0 {
			// Peer closed the connection; nothing left to watch.
			return
		}
		if buf[0] != rsp.Interrupt {
			continue // not ^C; leave it for frameSource's real read
		}
		if _, err := tcpConn.Read(buf); err != nil {
			return
		}
		c.Set()
		bumpInterrupt(m)
		log.Debug("interrupt watcher: observed ^C")
	}
}

// watchFallback drives conn directly when peeking isn't available: it is
// the only reader of conn, so every byte that arrives passes through here
// first. A read that comes back as exactly one byte equal to 0x03 is
// treated as the interrupt signal and swallowed; everything else — any
// other single byte, or a multi-byte chunk — is forwarded verbatim to
// frames for frameSource.next() to hand to Serve as the next frame.
func watchFallback(conn net.Conn, c *cancel.Flag, m *metrics.Metrics, log *logrus.Entry, frames chan<- []byte) {
	defer close(frames)
	buf := make([]byte, 8192)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Debug("interrupt watcher: fallback read failed, stopping")
			}
			return
		}
		if n == 0 {
			continue
		}
		if n == 1 && buf[0] == rsp.Interrupt {
			c.Set()
			bumpInterrupt(m)
			log.Debug("interrupt watcher: observed ^C (fallback path)")
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		frames <- chunk
	}
}

func bumpInterrupt(m *metrics.Metrics) {
	if m != nil {
		m.InterruptsTotal.Inc()
	}
}

// peekByte performs a single non-destructive MSG_PEEK recv of up to
// len(buf) bytes, blocking (via the runtime network poller) until the
// socket is readable.
func peekByte(conn *net.TCPConn, buf []byte) (int, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var recvErr error
	ctrlErr := rawConn.Read(func(fd uintptr) bool {
		n, _, recvErr = unix.Recvfrom(int(fd), buf, unix.MSG_PEEK)
		if recvErr == unix.EAGAIN || recvErr == unix.EWOULDBLOCK {
			return false // not ready yet; wait for the next readiness event
		}
		return true
	})
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	if recvErr != nil {
		return 0, recvErr
	}
	return n, nil
}
