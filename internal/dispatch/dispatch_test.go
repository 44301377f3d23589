package dispatch

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dmi391/gdbstub/internal/cancel"
	"github.com/dmi391/gdbstub/internal/rsp"
	"github.com/dmi391/gdbstub/internal/target"
)

// fakeTarget is a minimal, hand-rolled target.Target used to drive the
// dispatcher in isolation from the reference simulator.
type fakeTarget struct {
	regs       []byte
	mem        map[uint64]byte
	stopSignal byte
	cancelled  bool
	monitor    func(string) (string, error)
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		regs:       make([]byte, 17*4),
		mem:        make(map[uint64]byte),
		stopSignal: target.SigTrap,
	}
}

func (f *fakeTarget) RunUntilStop(c *cancel.Flag) target.StopReason {
	if f.cancelled {
		c.Set()
	}
	return target.StopReason{Signal: f.stopSignal}
}
func (f *fakeTarget) Step() target.StopReason { return target.StopReason{Signal: target.SigTrap} }

func (f *fakeTarget) ReadRegisters() []byte { return f.regs }
func (f *fakeTarget) WriteRegisters(data []byte) error {
	f.regs = append([]byte(nil), data...)
	return nil
}
func (f *fakeTarget) ReadRegister(n int) ([]byte, error) {
	if n < 0 || n*4+4 > len(f.regs) {
		return nil, errors.New("out of range")
	}
	return f.regs[n*4 : n*4+4], nil
}
func (f *fakeTarget) WriteRegister(n int, value []byte) error {
	if n < 0 || n*4+4 > len(f.regs) {
		return errors.New("out of range")
	}
	copy(f.regs[n*4:n*4+4], value)
	return nil
}
func (f *fakeTarget) ReadMemory(addr, length uint64) ([]byte, error) {
	out := make([]byte, length)
	for i := range out {
		out[i] = f.mem[addr+uint64(i)]
	}
	return out, nil
}
func (f *fakeTarget) WriteMemory(addr uint64, data []byte) error {
	for i, b := range data {
		f.mem[addr+uint64(i)] = b
	}
	return nil
}
func (f *fakeTarget) InsertMatchpoint(kind int, addr, size uint64) error { return nil }
func (f *fakeTarget) RemoveMatchpoint(kind int, addr, size uint64) error { return nil }
func (f *fakeTarget) Monitor(cmd string) (string, error) {
	if f.monitor != nil {
		return f.monitor(cmd)
	}
	return "", target.ErrUnknownMonitorCommand
}

func parse(t *testing.T, payload string) rsp.Packet {
	t.Helper()
	buf := rsp.EncodePacket([]byte(payload), 4096)
	pkt, err := rsp.ParseFrame(buf, true)
	if err != nil {
		t.Fatalf("ParseFrame(%q): %v", payload, err)
	}
	return pkt
}

func TestDispatchQueryHandling(t *testing.T) {
	d := New(newFakeTarget(), 4096, nil, nil)
	reply := d.Dispatch(parse(t, "qSupported:multiprocess+"), &cancel.Flag{})
	if !bytes.Contains(reply.Primary, []byte("PacketSize=")) {
		t.Errorf("qSupported reply = %q, missing PacketSize", reply.Primary)
	}
}

func TestDispatchUnsupportedQuery(t *testing.T) {
	d := New(newFakeTarget(), 4096, nil, nil)
	reply := d.Dispatch(parse(t, "qNonsenseFeature"), &cancel.Flag{})
	if string(reply.Primary) != "$#00" {
		t.Errorf("unsupported query reply = %q, want %q", reply.Primary, "$#00")
	}
}

func TestDispatchStartNoAckMode(t *testing.T) {
	d := New(newFakeTarget(), 4096, nil, nil)
	reply := d.Dispatch(parse(t, "QStartNoAckMode"), &cancel.Flag{})
	if string(reply.Primary) != string(rsp.ReplyOK) {
		t.Errorf("QStartNoAckMode reply = %q, want OK", reply.Primary)
	}
	if !reply.Effects.AckModeOff {
		t.Error("QStartNoAckMode should set Effects.AckModeOff")
	}
}

func TestDispatchInitialStopReasonIsSigint(t *testing.T) {
	d := New(newFakeTarget(), 4096, nil, nil)
	reply := d.Dispatch(parse(t, "?"), &cancel.Flag{})
	if string(reply.Primary) != string(rsp.ReplyT02) {
		t.Errorf("initial '?' reply = %q, want T02", reply.Primary)
	}
}

func TestDispatchVContInterrupted(t *testing.T) {
	ft := newFakeTarget()
	ft.cancelled = true
	d := New(ft, 4096, nil, nil)
	c := &cancel.Flag{}
	reply := d.Dispatch(parse(t, "vCont;c"), c)
	if string(reply.Primary) != string(rsp.ReplyT02) {
		t.Errorf("interrupted vCont;c reply = %q, want T02", reply.Primary)
	}
	if reply.OutputText == nil {
		t.Error("interrupted vCont;c should emit O-text before the stop reply")
	}
	if c.Load() {
		t.Error("cancel flag must be cleared after handleContinue consumes it")
	}
}

func TestDispatchVContStaleCancelDoesNotLeak(t *testing.T) {
	ft := newFakeTarget() // not cancelled this run
	d := New(ft, 4096, nil, nil)
	c := &cancel.Flag{}
	c.Set() // simulate a stale interrupt from an earlier, already-answered run
	reply := d.Dispatch(parse(t, "vCont;c"), c)
	if string(reply.Primary) != string(rsp.ReplyT05) {
		t.Errorf("vCont;c with stale cancel = %q, want T05 (not a spurious T02)", reply.Primary)
	}
}

func TestDispatchWriteReadMemory(t *testing.T) {
	d := New(newFakeTarget(), 4096, nil, nil)
	c := &cancel.Flag{}
	writeReply := d.Dispatch(parse(t, "M1000,3:aabbcc"), c)
	if string(writeReply.Primary) != string(rsp.ReplyOK) {
		t.Fatalf("M write reply = %q, want OK", writeReply.Primary)
	}
	readReply := d.Dispatch(parse(t, "m1000,3"), c)
	payload := readReply.Primary[1 : len(readReply.Primary)-3]
	if string(payload) != "aabbcc" {
		t.Errorf("m read reply payload = %q, want %q", payload, "aabbcc")
	}
}

func TestDispatchWriteMemoryLengthMismatch(t *testing.T) {
	d := New(newFakeTarget(), 4096, nil, nil)
	reply := d.Dispatch(parse(t, "M1000,4:aabbcc"), &cancel.Flag{})
	if !bytes.HasPrefix(reply.Primary, []byte("$E")) {
		t.Errorf("length-mismatch M reply = %q, want an E-prefixed error", reply.Primary)
	}
}

func TestDispatchXWriteEmptyProbe(t *testing.T) {
	d := New(newFakeTarget(), 4096, nil, nil)
	pkt := parse(t, "X1000,0:")
	reply := d.Dispatch(pkt, &cancel.Flag{})
	if string(reply.Primary) != string(rsp.ReplyOK) {
		t.Errorf("empty X probe reply = %q, want OK", reply.Primary)
	}
}

func TestDispatchRestartBeforeExtendedModeIsError(t *testing.T) {
	d := New(newFakeTarget(), 4096, nil, nil)
	reply := d.Dispatch(parse(t, "R00"), &cancel.Flag{})
	if !bytes.HasPrefix(reply.Primary, []byte("$E")) {
		t.Errorf("R before '!' reply = %q, want an E-prefixed error", reply.Primary)
	}
}

func TestDispatchExtendedModeThenRestart(t *testing.T) {
	d := New(newFakeTarget(), 4096, nil, nil)
	c := &cancel.Flag{}
	bangReply := d.Dispatch(parse(t, "!"), c)
	if string(bangReply.Primary) != string(rsp.ReplyOK) {
		t.Fatalf("'!' reply = %q, want OK", bangReply.Primary)
	}
	restartReply := d.Dispatch(parse(t, "R00"), c)
	if restartReply.Primary != nil {
		t.Errorf("R after '!' should have no reply, got %q", restartReply.Primary)
	}
}

func TestDispatchQRcmdUnknownCommand(t *testing.T) {
	d := New(newFakeTarget(), 4096, nil, nil)
	hexCmd := rsp.EncodeHex([]byte("bogus"))
	reply := d.Dispatch(parse(t, "qRcmd,"+string(hexCmd)), &cancel.Flag{})
	if string(reply.Primary) != string(rsp.ReplyOK) {
		t.Errorf("qRcmd unknown command reply = %q, want OK", reply.Primary)
	}
	if reply.OutputText == nil {
		t.Error("qRcmd should emit O-text describing the failure")
	}
}

func TestDispatchQRcmdMalformedHex(t *testing.T) {
	d := New(newFakeTarget(), 4096, nil, nil)
	reply := d.Dispatch(parse(t, "qRcmd,abc"), &cancel.Flag{})
	if !bytes.HasPrefix(reply.Primary, []byte("$E")) {
		t.Errorf("qRcmd with odd-length hex = %q, want an E-prefixed error", reply.Primary)
	}
}
