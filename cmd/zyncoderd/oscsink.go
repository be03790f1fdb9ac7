package main

// oscsink is a minimal OSC 1.0 UDP sender. It exists only so this binary
// has a concrete OscSink to wire up end to end; the OSC transport
// library itself is explicitly out of scope for the core (spec §1) and
// no OSC library appears anywhere in the example corpus, so this is
// hand-rolled rather than adapted from a dependency (see DESIGN.md).

import (
	"fmt"
	"net"
)

type udpOscSink struct{}

func newUDPOscSink() *udpOscSink { return &udpOscSink{} }

func (s *udpOscSink) SendBool(path string, port uint16, v bool) error {
	tag := "F"
	if v {
		tag = "T"
	}
	return s.send(path, port, tag, nil)
}

func (s *udpOscSink) SendInt(path string, port uint16, v int32) error {
	arg := make([]byte, 4)
	arg[0] = byte(v >> 24)
	arg[1] = byte(v >> 16)
	arg[2] = byte(v >> 8)
	arg[3] = byte(v)
	return s.send(path, port, "i", arg)
}

func (s *udpOscSink) send(path string, port uint16, typeTag string, arg []byte) error {
	msg := append(osc4(path), osc4(","+typeTag)...)
	msg = append(msg, arg...)

	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(msg)
	return err
}

// osc4 encodes an OSC string: NUL-terminated, padded to a 4-byte
// boundary.
func osc4(s string) []byte {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}
