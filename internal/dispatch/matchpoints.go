package dispatch

import (
	"bytes"

	"github.com/dmi391/gdbstub/internal/rsp"
	"github.com/dmi391/gdbstub/internal/target"
)

// parseMatchpoint parses the "<type>,<addr>,<kind>" body shared by 'z' and
// 'Z' (the tag byte itself has already been consumed by the caller).
func parseMatchpoint(body []byte) (kind int, addr, size uint64, err error) {
	parts := bytes.Split(body, []byte{','})
	if len(parts) != 3 {
		return 0, 0, 0, rsp.NewCommandError(rsp.ErrCodeMalformed, "matchpoint: expected type,addr,kind", nil)
	}
	t, err1 := parseHexUint(parts[0])
	a, err2 := parseHexUint(parts[1])
	k, err3 := parseHexUint(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, rsp.NewCommandError(rsp.ErrCodeMalformed, "matchpoint: malformed type/addr/kind", nil)
	}
	return int(t), a, k, nil
}

// handleInsertMatchpoint implements 'Z<type>,<addr>,<kind>'.
func (d *Dispatcher) handleInsertMatchpoint(pkt rsp.Packet) Reply {
	kind, addr, size, err := parseMatchpoint(pkt.Data[1:])
	if err != nil {
		return d.errorReply(err.(*rsp.CommandError))
	}
	if err := d.target.InsertMatchpoint(kind, addr, size); err != nil {
		if err == target.ErrUnsupportedMatchpoint {
			return d.unsupported()
		}
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeBadMatchpoint, "Z: target rejected matchpoint", err))
	}
	return d.replyOK()
}

// handleRemoveMatchpoint implements 'z<type>,<addr>,<kind>'.
func (d *Dispatcher) handleRemoveMatchpoint(pkt rsp.Packet) Reply {
	kind, addr, size, err := parseMatchpoint(pkt.Data[1:])
	if err != nil {
		return d.errorReply(err.(*rsp.CommandError))
	}
	if err := d.target.RemoveMatchpoint(kind, addr, size); err != nil {
		if err == target.ErrUnsupportedMatchpoint {
			return d.unsupported()
		}
		return d.errorReply(rsp.NewCommandError(rsp.ErrCodeBadMatchpoint, "z: target rejected matchpoint", err))
	}
	return d.replyOK()
}
