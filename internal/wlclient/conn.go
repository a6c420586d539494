package wlclient

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// ErrDispatchTimeout reports that a DispatchDeadline call hit its deadline
// before a complete event arrived. The connection stays usable.
var ErrDispatchTimeout = errors.New("wlclient: dispatch deadline reached")

// ProtocolError is a fatal error event sent by the compositor. After one is
// received the connection is dead and every call returns it.
type ProtocolError struct {
	ObjectID uint32
	Code     uint32
	Message  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wayland protocol error on object %d (code %d): %s", e.ObjectID, e.Code, e.Message)
}

// Proxy is the client-side handle of a protocol object. Concrete proxies
// embed BaseProxy and add their requests and event handlers; protocol
// extension packages do the same against this package.
type Proxy interface {
	ID() uint32
	// Dispatch decodes one event aimed at this proxy and invokes the
	// matching handler. Unknown opcodes are ignored.
	Dispatch(opcode uint16, d *EventReader)

	setID(id uint32)
	setContext(ctx *Context)
}

// BaseProxy supplies the identity plumbing shared by all proxies.
type BaseProxy struct {
	id  uint32
	ctx *Context
}

// ID returns the protocol object id.
func (p *BaseProxy) ID() uint32 { return p.id }

// Context returns the connection this proxy lives on.
func (p *BaseProxy) Context() *Context { return p.ctx }

func (p *BaseProxy) setID(id uint32)         { p.id = id }
func (p *BaseProxy) setContext(ctx *Context) { p.ctx = ctx }

// Context owns the compositor connection: the socket, the object table and
// the incoming byte stream. It is not safe for concurrent use; the tool runs
// a single event loop by design.
type Context struct {
	conn    *net.UnixConn
	objects map[uint32]Proxy
	nextID  uint32
	display *Display
	pending []byte // received, not yet dispatched
	fatal   error  // sticky: protocol error or broken socket
}

// Connect dials the compositor socket. The display name defaults to
// $WAYLAND_DISPLAY then "wayland-0"; relative names resolve inside
// $XDG_RUNTIME_DIR.
func Connect(name string) (*Display, error) {
	if name == "" {
		name = os.Getenv("WAYLAND_DISPLAY")
	}
	if name == "" {
		name = "wayland-0"
	}
	path := name
	if !filepath.IsAbs(path) {
		runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
		if runtimeDir == "" {
			return nil, errors.New("wlclient: XDG_RUNTIME_DIR is not set")
		}
		path = filepath.Join(runtimeDir, name)
	}

	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("wlclient: connect %s: %w", path, err)
	}

	ctx := &Context{
		conn:    conn,
		objects: make(map[uint32]Proxy),
		nextID:  1, // the display claims id 1
	}
	display := &Display{}
	ctx.Register(display)
	ctx.display = display
	return display, nil
}

// Register assigns p the next client id and adds it to the object table.
// Protocol packages call this from their NewXxx constructors before sending
// the request that carries the new id. Client ids count up from 1; ids from
// 0xff000000 belong to the server and are never reached here.
func (c *Context) Register(p Proxy) {
	p.setID(c.nextID)
	p.setContext(c)
	c.objects[c.nextID] = p
	c.nextID++
}

func (c *Context) forget(id uint32) {
	delete(c.objects, id)
}

// Send writes one request to the compositor, with any attached file
// descriptors as SCM_RIGHTS ancillary data.
func (c *Context) Send(r *Request) error {
	if c.fatal != nil {
		return c.fatal
	}
	msg, err := r.marshal()
	if err != nil {
		return err
	}
	var oob []byte
	if len(r.fds) > 0 {
		oob = unix.UnixRights(r.fds...)
	}
	if _, _, err := c.conn.WriteMsgUnix(msg, oob, nil); err != nil {
		c.fatal = fmt.Errorf("wlclient: write: %w", err)
		return c.fatal
	}
	return nil
}

// Dispatch blocks until one complete event has been read and handled.
func (c *Context) Dispatch() error {
	return c.dispatch(time.Time{})
}

// DispatchDeadline is Dispatch with an upper bound: it returns
// ErrDispatchTimeout if no complete event arrived by the deadline, leaving
// any partial data buffered for the next call.
func (c *Context) DispatchDeadline(deadline time.Time) error {
	return c.dispatch(deadline)
}

func (c *Context) dispatch(deadline time.Time) error {
	if c.fatal != nil {
		return c.fatal
	}
	for len(c.pending) < headerSize {
		if err := c.read(deadline); err != nil {
			return err
		}
	}
	sender := binary.NativeEndian.Uint32(c.pending)
	sizeOp := binary.NativeEndian.Uint32(c.pending[4:])
	size := int(sizeOp >> 16)
	opcode := uint16(sizeOp & 0xffff)
	if size < headerSize {
		c.fatal = fmt.Errorf("wlclient: malformed header from compositor (size %d)", size)
		return c.fatal
	}
	for len(c.pending) < size {
		if err := c.read(deadline); err != nil {
			return err
		}
	}
	body := c.pending[headerSize:size]
	c.pending = c.pending[size:]

	p, ok := c.objects[sender]
	if !ok {
		// Event raced with a destructor; the protocol says drop it.
		return nil
	}
	d := newEventReader(body)
	p.Dispatch(opcode, d)
	if err := d.Err(); err != nil {
		c.fatal = fmt.Errorf("wlclient: event %d on object %d: %w", opcode, sender, err)
		return c.fatal
	}
	return c.fatal
}

// read pulls more bytes (and ancillary data) off the socket into the pending
// buffer. A deadline maps timeouts to ErrDispatchTimeout.
func (c *Context) read(deadline time.Time) error {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	var buf [4096]byte
	var oob [256]byte
	n, oobn, _, _, err := c.conn.ReadMsgUnix(buf[:], oob[:])
	if err != nil {
		if os.IsTimeout(err) {
			return ErrDispatchTimeout
		}
		c.fatal = fmt.Errorf("wlclient: read: %w", err)
		return c.fatal
	}
	c.pending = append(c.pending, buf[:n]...)
	if oobn > 0 {
		c.closeAncillaryFds(oob[:oobn])
	}
	return nil
}

// closeAncillaryFds drops file descriptors the compositor passed us. None of
// the interfaces this client binds deliver fds, so holding them would only
// leak.
func (c *Context) closeAncillaryFds(oob []byte) {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return
	}
	for i := range scms {
		fds, err := unix.ParseUnixRights(&scms[i])
		if err != nil {
			continue
		}
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
	}
}

// Close shuts the connection down. Proxies become inert; in-flight events
// are discarded.
func (c *Context) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
