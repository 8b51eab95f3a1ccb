package proxy

import (
	"encoding/binary"
	"fmt"

	"github.com/bbque/rtrm/pkg/app"
)

// Payload encodings for the request/response bodies following a Header.
// Nothing here pretends to be a general serialization format — each
// message type gets exactly the fields it needs, in the order the
// reference RTLib marshals them.

// respPayload encodes a plain RTLIB_ExitCode response body.
func respPayload(code RTLIBExitCode) []byte {
	return []byte{byte(code)}
}

// preChangeRespPayload encodes a PreChange reply: exit code followed by the
// EXC-reported reconfiguration latency in milliseconds.
func preChangeRespPayload(code RTLIBExitCode, syncLatencyMs uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(code)
	binary.BigEndian.PutUint32(buf[1:], syncLatencyMs)
	return buf
}

func decodeRespPayload(payload []byte) (RTLIBExitCode, error) {
	if len(payload) < 1 {
		return 0, fmt.Errorf("proxy: response payload too short")
	}
	return RTLIBExitCode(payload[0]), nil
}

func decodePreChangeResp(payload []byte) (RTLIBExitCode, uint32, error) {
	if len(payload) < 5 {
		return 0, 0, fmt.Errorf("proxy: prechange response payload too short")
	}
	return RTLIBExitCode(payload[0]), binary.BigEndian.Uint32(payload[1:5]), nil
}

// registerEXCPayload: priority(1) | weakLoad(1) | recipeLen(1) | recipe | nameLen(1) | name
func decodeRegisterEXC(payload []byte) (priority int, weakLoad bool, recipe, name string, err error) {
	if len(payload) < 3 {
		return 0, false, "", "", fmt.Errorf("proxy: register_exc payload too short")
	}
	priority = int(payload[0])
	weakLoad = payload[1] != 0
	rlen := int(payload[2])
	off := 3
	if len(payload) < off+rlen+1 {
		return 0, false, "", "", fmt.Errorf("proxy: register_exc payload truncated")
	}
	recipe = string(payload[off : off+rlen])
	off += rlen
	nlen := int(payload[off])
	off++
	if len(payload) < off+nlen {
		return 0, false, "", "", fmt.Errorf("proxy: register_exc payload truncated")
	}
	name = string(payload[off : off+nlen])
	return priority, weakLoad, recipe, name, nil
}

// constraintPayload: bound(1) | pathLen(1) | path | value(8, present only when setting)
func decodeSetConstraint(payload []byte) (bound app.BoundType, path string, value uint64, err error) {
	if len(payload) < 2 {
		return 0, "", 0, fmt.Errorf("proxy: set_constraint payload too short")
	}
	bound = app.BoundType(payload[0])
	plen := int(payload[1])
	off := 2
	if len(payload) < off+plen+8 {
		return 0, "", 0, fmt.Errorf("proxy: set_constraint payload truncated")
	}
	path = string(payload[off : off+plen])
	off += plen
	value = binary.BigEndian.Uint64(payload[off : off+8])
	return bound, path, value, nil
}

func decodeClearConstraint(payload []byte) (bound app.BoundType, path string, err error) {
	if len(payload) < 2 {
		return 0, "", fmt.Errorf("proxy: clear_constraint payload too short")
	}
	bound = app.BoundType(payload[0])
	plen := int(payload[1])
	off := 2
	if len(payload) < off+plen {
		return 0, "", fmt.Errorf("proxy: clear_constraint payload truncated")
	}
	path = string(payload[off : off+plen])
	return bound, path, nil
}

// EncodeRegisterEXC builds the payload a client-side stub would send for a
// REGISTER_EXC request; exported so a future RTLib-side test helper or an
// in-tree fake client can build valid frames without duplicating the format.
func EncodeRegisterEXC(priority int, weakLoad bool, recipe, name string) []byte {
	buf := make([]byte, 0, 3+len(recipe)+1+len(name))
	buf = append(buf, byte(priority), boolByte(weakLoad), byte(len(recipe)))
	buf = append(buf, recipe...)
	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)
	return buf
}

// EncodeSetConstraint builds the payload for a SET_CONSTRAINT request.
func EncodeSetConstraint(bound app.BoundType, path string, value uint64) []byte {
	buf := make([]byte, 0, 2+len(path)+8)
	buf = append(buf, byte(bound), byte(len(path)))
	buf = append(buf, path...)
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, value)
	return append(buf, v...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
