package wlclient

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// The Wayland wire format is a stream of 32-bit words in the host's native
// byte order. Every message starts with an 8-byte header: the sender object
// id, then one word holding the total message size in its upper 16 bits and
// the opcode in its lower 16 bits.
const headerSize = 8

var (
	// ErrMissingNul reports a wire string without its NUL terminator.
	ErrMissingNul = errors.New("wlclient: string argument missing NUL terminator")

	errShortMessage = errors.New("wlclient: message body shorter than its arguments")
)

// pad4 rounds n up to the next 32-bit boundary.
func pad4(n int) int {
	return (n + 3) &^ 3
}

// Request is an outgoing protocol message under construction. Arguments are
// appended in declaration order; file descriptors travel out of band and
// occupy no space in the body.
type Request struct {
	sender uint32
	opcode uint16
	body   []byte
	fds    []int
}

// NewRequest starts a request for opcode on the proxy p.
func NewRequest(p Proxy, opcode uint16) *Request {
	return &Request{sender: p.ID(), opcode: opcode}
}

// PutUint32 appends a uint argument.
func (r *Request) PutUint32(v uint32) {
	r.body = binary.NativeEndian.AppendUint32(r.body, v)
}

// PutInt32 appends an int argument.
func (r *Request) PutInt32(v int32) {
	r.PutUint32(uint32(v))
}

// PutString appends a string argument: a length word counting the NUL
// terminator, the bytes, the NUL, then zero padding to a word boundary.
func (r *Request) PutString(s string) {
	r.PutUint32(uint32(len(s) + 1))
	r.body = append(r.body, s...)
	padded := pad4(len(s) + 1)
	for range padded - len(s) {
		r.body = append(r.body, 0)
	}
}

// PutObject appends an object argument; nil encodes as the null object.
func (r *Request) PutObject(p Proxy) {
	if p == nil {
		r.PutUint32(0)
		return
	}
	r.PutUint32(p.ID())
}

// PutNewID appends the id of a freshly registered proxy.
func (r *Request) PutNewID(p Proxy) {
	r.PutUint32(p.ID())
}

// PutFd attaches a file descriptor to the message's ancillary data.
func (r *Request) PutFd(fd int) {
	r.fds = append(r.fds, fd)
}

// marshal lays the header in front of the body. The size field covers the
// header itself.
func (r *Request) marshal() ([]byte, error) {
	size := headerSize + len(r.body)
	if size > 0xffff {
		return nil, fmt.Errorf("wlclient: request exceeds maximum message size (%d bytes)", size)
	}
	msg := make([]byte, 0, size)
	msg = binary.NativeEndian.AppendUint32(msg, r.sender)
	msg = binary.NativeEndian.AppendUint32(msg, uint32(size)<<16|uint32(r.opcode))
	return append(msg, r.body...), nil
}

// EventReader decodes the body of an incoming event. Decoding errors are
// sticky: once a read fails every later read returns the zero value, and the
// dispatcher reports Err after the handler ran.
type EventReader struct {
	body []byte
	off  int
	err  error
}

func newEventReader(body []byte) *EventReader {
	return &EventReader{body: body}
}

// Err returns the first decoding error, if any.
func (d *EventReader) Err() error {
	return d.err
}

// Uint32 decodes a uint argument.
func (d *EventReader) Uint32() uint32 {
	if d.err != nil {
		return 0
	}
	if d.off+4 > len(d.body) {
		d.err = errShortMessage
		return 0
	}
	v := binary.NativeEndian.Uint32(d.body[d.off:])
	d.off += 4
	return v
}

// Int32 decodes an int argument.
func (d *EventReader) Int32() int32 {
	return int32(d.Uint32())
}

// String decodes a string argument and verifies its NUL terminator.
func (d *EventReader) String() string {
	size := int(d.Uint32())
	if d.err != nil {
		return ""
	}
	if size == 0 {
		// Null string; the protocol encodes it as a zero-length word.
		return ""
	}
	if d.off+pad4(size) > len(d.body) {
		d.err = errShortMessage
		return ""
	}
	if d.body[d.off+size-1] != 0 {
		d.err = ErrMissingNul
		return ""
	}
	s := string(d.body[d.off : d.off+size-1])
	d.off += pad4(size)
	return s
}
