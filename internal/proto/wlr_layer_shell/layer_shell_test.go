package wlr_layer_shell

import (
	"encoding/binary"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcrosshair/rcrosshair/internal/wlclient"
)

type testConn struct {
	display *wlclient.Display
	server  *net.UnixConn
}

func dial(t *testing.T) *testConn {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("WAYLAND_DISPLAY", "wayland-test")

	addr := &net.UnixAddr{Name: filepath.Join(dir, "wayland-test"), Net: "unix"}
	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	type accepted struct {
		conn *net.UnixConn
		err  error
	}
	ch := make(chan accepted, 1)
	go func() {
		_ = l.SetDeadline(time.Now().Add(5 * time.Second))
		conn, err := l.AcceptUnix()
		ch <- accepted{conn, err}
	}()

	display, err := wlclient.Connect("")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	a := <-ch
	if a.err != nil {
		t.Fatalf("accept: %v", a.err)
	}

	t.Cleanup(func() {
		display.Context().Close()
		a.conn.Close()
	})
	return &testConn{display: display, server: a.conn}
}

// readRequest pulls one client request off the server side of the socket.
func (tc *testConn) readRequest(t *testing.T) (sender uint32, opcode uint16, body []byte) {
	t.Helper()
	header := make([]byte, 8)
	_ = tc.server.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(tc.server, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	sender = binary.NativeEndian.Uint32(header)
	sizeOp := binary.NativeEndian.Uint32(header[4:])
	size := int(sizeOp >> 16)
	opcode = uint16(sizeOp & 0xffff)
	body = make([]byte, size-8)
	if size > 8 {
		if _, err := io.ReadFull(tc.server, body); err != nil {
			t.Fatalf("read body: %v", err)
		}
	}
	return sender, opcode, body
}

// writeEvent pushes one event with uint32 arguments at the client.
func (tc *testConn) writeEvent(t *testing.T, sender uint32, opcode uint16, args ...uint32) {
	t.Helper()
	size := 8 + 4*len(args)
	msg := make([]byte, 0, size)
	msg = binary.NativeEndian.AppendUint32(msg, sender)
	msg = binary.NativeEndian.AppendUint32(msg, uint32(size)<<16|uint32(opcode))
	for _, a := range args {
		msg = binary.NativeEndian.AppendUint32(msg, a)
	}
	if _, err := tc.server.Write(msg); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

func newTestLayerSurface(t *testing.T, tc *testConn) *LayerSurface {
	t.Helper()
	compositor := wlclient.NewCompositor(tc.display.Context())
	surface, err := compositor.CreateSurface()
	if err != nil {
		t.Fatalf("CreateSurface() error = %v", err)
	}
	shell := NewLayerShell(tc.display.Context())
	ls, err := shell.GetLayerSurface(surface, nil, LayerOverlay, "rcrosshair")
	if err != nil {
		t.Fatalf("GetLayerSurface() error = %v", err)
	}
	// Drain the create_surface and get_layer_surface requests.
	tc.readRequest(t)
	tc.readRequest(t)
	return ls
}

func TestSetMargin_Encoding(t *testing.T) {
	tc := dial(t)
	ls := newTestLayerSurface(t, tc)

	if err := ls.SetMargin(412, 0, 0, -768); err != nil {
		t.Fatalf("SetMargin() error = %v", err)
	}

	sender, opcode, body := tc.readRequest(t)
	if sender != ls.ID() {
		t.Errorf("sender = %d, want %d", sender, ls.ID())
	}
	if opcode != 3 {
		t.Errorf("opcode = %d, want 3 (set_margin)", opcode)
	}
	want := []int32{412, 0, 0, -768} // top, right, bottom, left
	for i, w := range want {
		if got := int32(binary.NativeEndian.Uint32(body[i*4:])); got != w {
			t.Errorf("margin[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestSetSizeAndAnchor_Encoding(t *testing.T) {
	tc := dial(t)
	ls := newTestLayerSurface(t, tc)

	if err := ls.SetSize(384, 256); err != nil {
		t.Fatalf("SetSize() error = %v", err)
	}
	_, opcode, body := tc.readRequest(t)
	if opcode != 0 {
		t.Errorf("opcode = %d, want 0 (set_size)", opcode)
	}
	if w := binary.NativeEndian.Uint32(body); w != 384 {
		t.Errorf("width = %d, want 384", w)
	}
	if h := binary.NativeEndian.Uint32(body[4:]); h != 256 {
		t.Errorf("height = %d, want 256", h)
	}

	if err := ls.SetAnchor(AnchorTop | AnchorLeft); err != nil {
		t.Fatalf("SetAnchor() error = %v", err)
	}
	_, opcode, body = tc.readRequest(t)
	if opcode != 1 {
		t.Errorf("opcode = %d, want 1 (set_anchor)", opcode)
	}
	if a := binary.NativeEndian.Uint32(body); a != AnchorTop|AnchorLeft {
		t.Errorf("anchor = %d, want %d", a, AnchorTop|AnchorLeft)
	}
}

func TestConfigureEvent_Dispatch(t *testing.T) {
	tc := dial(t)
	ls := newTestLayerSurface(t, tc)

	var got ConfigureEvent
	ls.SetConfigureHandler(func(e ConfigureEvent) { got = e })

	tc.writeEvent(t, ls.ID(), 0, 17, 384, 256)
	if err := tc.display.Context().Dispatch(); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if got.Serial != 17 || got.Width != 384 || got.Height != 256 {
		t.Errorf("configure = %+v, want {17 384 256}", got)
	}
}

func TestClosedEvent_Dispatch(t *testing.T) {
	tc := dial(t)
	ls := newTestLayerSurface(t, tc)

	closed := false
	ls.SetClosedHandler(func(ClosedEvent) { closed = true })

	tc.writeEvent(t, ls.ID(), 1)
	if err := tc.display.Context().Dispatch(); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !closed {
		t.Error("closed handler did not fire")
	}
}
