package overlay

import (
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcrosshair/rcrosshair/internal/imgsource"
	"github.com/rcrosshair/rcrosshair/internal/params"
	"github.com/rcrosshair/rcrosshair/internal/proto/wlr_layer_shell"
	"github.com/rcrosshair/rcrosshair/internal/wlclient"
)

func TestPlacementMargins(t *testing.T) {
	tests := []struct {
		name              string
		outW, outH        int
		targetX, targetY  int
		wantLeft, wantTop int32
	}{
		{
			name:     "center target on 1080p",
			outW:     1920,
			outH:     1080,
			targetX:  192,
			targetY:  128,
			wantLeft: 768,
			wantTop:  412,
		},
		{
			name:     "target at origin",
			outW:     1920,
			outH:     1080,
			targetX:  0,
			targetY:  0,
			wantLeft: 960,
			wantTop:  540,
		},
		{
			name:     "target right of screen center goes negative",
			outW:     800,
			outH:     600,
			targetX:  500,
			targetY:  400,
			wantLeft: -100,
			wantTop:  -100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, top := placementMargins(tt.outW, tt.outH, tt.targetX, tt.targetY)
			if left != tt.wantLeft || top != tt.wantTop {
				t.Errorf("margins = (%d, %d), want (%d, %d)", left, top, tt.wantLeft, tt.wantTop)
			}
		})
	}
}

func TestOutputLogicalSize(t *testing.T) {
	tests := []struct {
		name         string
		out          *outputInfo
		wantW, wantH int
	}{
		{
			name:  "plain 1080p",
			out:   &outputInfo{width: 1920, height: 1080, scale: 1},
			wantW: 1920,
			wantH: 1080,
		},
		{
			name:  "4k at scale 2",
			out:   &outputInfo{width: 3840, height: 2160, scale: 2},
			wantW: 1920,
			wantH: 1080,
		},
		{
			name:  "missing scale treated as 1",
			out:   &outputInfo{width: 2560, height: 1440},
			wantW: 2560,
			wantH: 1440,
		},
		{
			name:  "no mode yet falls back",
			out:   &outputInfo{scale: 1},
			wantW: fallbackOutputWidth,
			wantH: fallbackOutputHeight,
		},
		{
			name:  "nil output falls back",
			out:   nil,
			wantW: fallbackOutputWidth,
			wantH: fallbackOutputHeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := tt.out.logicalSize()
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("logicalSize() = (%d, %d), want (%d, %d)", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestParseLayer(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", wlr_layer_shell.LayerOverlay},
		{"overlay", wlr_layer_shell.LayerOverlay},
		{"top", wlr_layer_shell.LayerTop},
		{"bottom", wlr_layer_shell.LayerBottom},
		{"background", wlr_layer_shell.LayerBackground},
	}

	for _, tt := range tests {
		got, err := ParseLayer(tt.in)
		if err != nil {
			t.Errorf("ParseLayer(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLayer(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseLayer_Invalid(t *testing.T) {
	_, err := ParseLayer("middle")

	var cfgErr *params.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("ParseLayer error = %v, want *params.ConfigError", err)
	}
	if cfgErr.Field != "layer" {
		t.Errorf("Field = %q, want \"layer\"", cfgErr.Field)
	}
}

// connectFakeCompositor accepts the display connection on a throwaway unix
// socket. Requests the controller writes are never read back; the socket
// buffer absorbs them, which is all these tests need.
func connectFakeCompositor(t *testing.T) *wlclient.Display {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("WAYLAND_DISPLAY", "wayland-test")

	addr := &net.UnixAddr{Name: filepath.Join(dir, "wayland-test"), Net: "unix"}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	type accepted struct {
		conn *net.UnixConn
		err  error
	}
	ch := make(chan accepted, 1)
	go func() {
		_ = listener.SetDeadline(time.Now().Add(5 * time.Second))
		conn, err := listener.AcceptUnix()
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
		_ = display.Context().Close()
		_ = a.conn.Close()
		_ = listener.Close()
	})
	return display
}

func TestPresent_AppliesPendingConfigure(t *testing.T) {
	display := connectFakeCompositor(t)

	pix := make([]byte, 2*2*4)
	src := imgsource.New(2, 2, []imgsource.Frame{
		{Pix: pix, Duration: 50 * time.Millisecond},
		{Pix: pix, Duration: 50 * time.Millisecond},
	})

	c := &Controller{
		logger:   log.New(io.Discard),
		wctx:     display.Context(),
		display:  display,
		source:   src,
		resolved: params.Resolved{TargetX: 1, TargetY: 1, Opacity: 1},
	}
	t.Cleanup(c.teardown)

	c.compositor = wlclient.NewCompositor(c.wctx)
	c.shm = wlclient.NewShm(c.wctx)
	surface, err := c.compositor.CreateSurface()
	if err != nil {
		t.Fatalf("CreateSurface() error = %v", err)
	}
	c.surface = surface

	// Initial configure grants the requested size.
	c.pendingConfigure, c.grantedW, c.grantedH = true, 2, 2
	var frame imgsource.Frame
	for f := range src.Frames() {
		frame = f
		break
	}
	if err := c.present(frame); err != nil {
		t.Fatalf("present() error = %v", err)
	}
	if c.buf.width != 2 || c.buf.height != 2 {
		t.Fatalf("buffer = %dx%d, want 2x2", c.buf.width, c.buf.height)
	}

	// A configure arriving mid-animation is acked by the handler; once the
	// flag is up, the very next commit must carry a buffer of the new size.
	c.pendingConfigure, c.grantedW, c.grantedH = true, 4, 3
	if err := c.present(frame); err != nil {
		t.Fatalf("present() after reconfigure error = %v", err)
	}
	if c.pendingConfigure {
		t.Error("pendingConfigure still set after present")
	}
	if c.buf.width != 4 || c.buf.height != 3 {
		t.Errorf("buffer = %dx%d, want 4x3", c.buf.width, c.buf.height)
	}
	if c.state != StateCommitted {
		t.Errorf("state = %d, want StateCommitted", c.state)
	}
}

func TestMinVersion(t *testing.T) {
	if got := minVersion(3, 4); got != 3 {
		t.Errorf("minVersion(3, 4) = %d, want 3", got)
	}
	if got := minVersion(6, 4); got != 4 {
		t.Errorf("minVersion(6, 4) = %d, want 4", got)
	}
}
