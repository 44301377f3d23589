package session

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/dmi391/gdbstub/internal/cancel"
	"github.com/dmi391/gdbstub/internal/dispatch"
	"github.com/dmi391/gdbstub/internal/rsp"
	"github.com/dmi391/gdbstub/internal/target"
)

// blockingTarget's RunUntilStop spins on the cancel flag instead of
// returning immediately, giving a concurrently-arriving 0x03 a real window
// to land before the target "stops". This is the one path stubTarget can't
// exercise: stubTarget returns before Watch's MSG_PEEK goroutine ever gets a
// chance to observe anything.
type blockingTarget struct{ stubTarget }

func (blockingTarget) RunUntilStop(c *cancel.Flag) target.StopReason {
	for !c.Load() {
		time.Sleep(time.Millisecond)
	}
	return target.StopReason{Signal: target.SigInt}
}

// readUntilHash reads one byte at a time until it has consumed a full
// "$...#cc" frame, returning the accumulated bytes.
func readUntilHash(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	var out bytes.Buffer
	for {
		b := readN(t, conn, 1)
		out.Write(b)
		if b[0] == '#' {
			out.Write(readN(t, conn, 2))
			return out.Bytes()
		}
	}
}

// TestRealTCPInterruptMidContinue is spec.md §8 scenario 4 ("Continue then
// user interrupt") driven over an actual TCP socket, the one path that
// exercises Watch's MSG_PEEK/SyscallConn branch instead of the net.Pipe
// fallback every other session test uses.
func TestRealTCPInterruptMidContinue(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- conn
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	client.SetDeadline(time.Now().Add(10 * time.Second))

	var srv net.Conn
	select {
	case srv = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("accept: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("accept timed out")
	}

	disp := dispatch.New(blockingTarget{}, 4096, nil, testLog())
	done := make(chan error, 1)
	go func() { done <- Serve(srv, disp, Config{PacketSize: 4096}, nil, testLog()) }()

	req := rsp.EncodePacket([]byte("vCont;c"), 4096)
	if _, err := client.Write(req); err != nil {
		t.Fatalf("write vCont;c: %v", err)
	}

	// The dispatcher is now blocked inside blockingTarget.RunUntilStop until
	// the cancel flag is set, and no ack is sent until Dispatch returns — so
	// the interrupt must be sent before reading anything back, not after.
	// The watcher goroutine is peeking the same TCP connection concurrently;
	// a raw 0x03 sent here must be observed by the peek, never by
	// frameSource's own Read.
	time.Sleep(50 * time.Millisecond) // give the dispatcher goroutine time to enter RunUntilStop
	if _, err := client.Write([]byte{rsp.Interrupt}); err != nil {
		t.Fatalf("write ^C: %v", err)
	}

	ack := readN(t, client, 1)
	if ack[0] != rsp.Ack {
		t.Fatalf("expected ack byte, got %q", ack)
	}

	outText := readUntilHash(t, client)
	if !bytes.HasPrefix(outText, []byte("$O")) {
		t.Fatalf("expected O-text frame before stop reply, got %q", outText)
	}

	stopReply := readUntilHash(t, client)
	if !bytes.Equal(stopReply, rsp.ReplyT02) {
		t.Fatalf("stop reply = %q, want %q (T02)", stopReply, rsp.ReplyT02)
	}

	client.Write(rsp.EncodePacket([]byte("vKill"), 4096))
	readN(t, client, 1)
	readN(t, client, len(rsp.ReplyOK))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after vKill")
	}
}
