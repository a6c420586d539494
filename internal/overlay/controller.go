// Package overlay owns the layer-shell surface: creation and anchor
// negotiation, shared-memory buffers, frame rendering and the animated
// redraw loop.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcrosshair/rcrosshair/internal/imgsource"
	"github.com/rcrosshair/rcrosshair/internal/params"
	"github.com/rcrosshair/rcrosshair/internal/proto/wlr_layer_shell"
	"github.com/rcrosshair/rcrosshair/internal/wlclient"
)

// ErrLayerShellUnsupported means the compositor offers no
// zwlr_layer_shell_v1 global. Fatal before any surface is shown.
var ErrLayerShellUnsupported = errors.New("compositor does not support zwlr_layer_shell_v1")

// The compositor may not have told us any output mode by the time the
// surface is placed; assume a common screen rather than anchoring at 0,0.
const (
	fallbackOutputWidth  = 1920
	fallbackOutputHeight = 1080
)

// Dispatch slice while waiting for events, so context cancellation is
// observed promptly.
const dispatchSlice = 50 * time.Millisecond

// State tracks the surface lifecycle.
type State int

const (
	StateUnbound State = iota
	StateSurfaceRequested
	StateConfigured
	StateCommitted
	StateClosed
)

// Options selects where and on which layer the surface appears.
type Options struct {
	Layer  uint32 // wlr_layer_shell.Layer*
	Output string // connector name, e.g. "DP-1"; empty lets the compositor pick
}

// ParseLayer maps a config/flag value to a layer-shell layer.
func ParseLayer(name string) (uint32, error) {
	switch name {
	case "", "overlay":
		return wlr_layer_shell.LayerOverlay, nil
	case "top":
		return wlr_layer_shell.LayerTop, nil
	case "bottom":
		return wlr_layer_shell.LayerBottom, nil
	case "background":
		return wlr_layer_shell.LayerBackground, nil
	}
	return 0, &params.ConfigError{
		Field:  "layer",
		Reason: fmt.Sprintf("%q is not one of overlay, top, bottom, background", name),
	}
}

// placementMargins translates the target point into layer-shell anchoring:
// anchored TOP|LEFT, the margins push the surface so that the target pixel
// lands on the output's center. Coordinates are surface-local (logical).
func placementMargins(outputW, outputH, targetX, targetY int) (left, top int32) {
	return int32(outputW/2 - targetX), int32(outputH/2 - targetY)
}

type outputInfo struct {
	proxy  *wlclient.Output
	name   string
	width  int
	height int
	scale  int
}

// logicalSize is the output's current mode divided by its integer scale,
// the coordinate space layer-shell margins live in.
func (o *outputInfo) logicalSize() (int, int) {
	if o == nil || o.width == 0 || o.height == 0 {
		return fallbackOutputWidth, fallbackOutputHeight
	}
	scale := o.scale
	if scale < 1 {
		scale = 1
	}
	return o.width / scale, o.height / scale
}

// Controller drives the surface state machine. All event handlers run on
// the single dispatch thread; they record what happened and the run loop
// reacts, so transitions stay explicit.
type Controller struct {
	logger *log.Logger
	wctx   *wlclient.Context

	display      *wlclient.Display
	compositor   *wlclient.Compositor
	shm          *wlclient.Shm
	layerShell   *wlr_layer_shell.LayerShell
	outputs      []*outputInfo
	surface      *wlclient.Surface
	layerSurface *wlr_layer_shell.LayerSurface

	source   *imgsource.Source
	resolved params.Resolved
	opts     Options

	buf      *shmBuffer
	wlBuffer *wlclient.Buffer

	state      State
	closed     bool
	frameDone  bool
	lastCommit time.Time

	// set by the configure handler, consumed by the run loop
	pendingConfigure bool
	grantedW         int
	grantedH         int
}

// Run connects to the compositor, shows the overlay and blocks until the
// context is canceled or the compositor closes the surface. Teardown runs
// on every exit path.
func Run(ctx context.Context, src *imgsource.Source, resolved params.Resolved, opts Options, logger *log.Logger) error {
	display, err := wlclient.Connect("")
	if err != nil {
		return err
	}

	c := &Controller{
		logger:   logger,
		wctx:     display.Context(),
		display:  display,
		source:   src,
		resolved: resolved,
		opts:     opts,
		state:    StateUnbound,
	}
	defer c.teardown()

	if err := c.bindGlobals(); err != nil {
		return err
	}
	if err := c.requestSurface(); err != nil {
		return err
	}
	if err := c.waitConfigured(ctx); err != nil {
		return err
	}

	if src.Animated() {
		return newScheduler(c, src).run(ctx)
	}
	return c.waitClosed(ctx)
}

// bindGlobals enumerates the registry and binds the globals the overlay
// consumes. Missing layer-shell support is fatal here, before any surface
// exists.
func (c *Controller) bindGlobals() error {
	registry, err := c.display.GetRegistry()
	if err != nil {
		return err
	}

	registry.SetGlobalHandler(func(e wlclient.RegistryGlobalEvent) {
		switch e.Interface {
		case wlclient.CompositorInterfaceName:
			c.compositor = wlclient.NewCompositor(c.wctx)
			_ = registry.Bind(e.Name, e.Interface, minVersion(e.Version, 4), c.compositor)
		case wlclient.ShmInterfaceName:
			c.shm = wlclient.NewShm(c.wctx)
			_ = registry.Bind(e.Name, e.Interface, 1, c.shm)
		case wlr_layer_shell.InterfaceName:
			c.layerShell = wlr_layer_shell.NewLayerShell(c.wctx)
			_ = registry.Bind(e.Name, e.Interface, minVersion(e.Version, 4), c.layerShell)
		case wlclient.OutputInterfaceName:
			out := &outputInfo{proxy: wlclient.NewOutput(c.wctx), scale: 1}
			out.proxy.SetModeHandler(func(m wlclient.OutputModeEvent) {
				if m.Flags&wlclient.OutputModeCurrent != 0 {
					out.width, out.height = int(m.Width), int(m.Height)
				}
			})
			out.proxy.SetScaleHandler(func(s wlclient.OutputScaleEvent) {
				out.scale = int(s.Factor)
			})
			out.proxy.SetNameHandler(func(n wlclient.OutputNameEvent) {
				out.name = n.Name
			})
			c.outputs = append(c.outputs, out)
			_ = registry.Bind(e.Name, e.Interface, minVersion(e.Version, 4), out.proxy)
		}
	})

	// First roundtrip announces globals, second delivers the property
	// bursts of the outputs bound during the first.
	if err := c.display.Roundtrip(); err != nil {
		return err
	}
	if err := c.display.Roundtrip(); err != nil {
		return err
	}

	if c.compositor == nil || c.shm == nil {
		return &wlclient.ProtocolError{Message: "compositor is missing wl_compositor or wl_shm"}
	}
	if c.layerShell == nil {
		return ErrLayerShellUnsupported
	}
	return nil
}

// pickOutput returns the output the surface should pin to, or nil to let
// the compositor choose. An unknown configured name degrades to the first
// output rather than failing the run.
func (c *Controller) pickOutput() *outputInfo {
	if len(c.outputs) == 0 {
		return nil
	}
	if c.opts.Output != "" {
		for _, out := range c.outputs {
			if out.name == c.opts.Output {
				return out
			}
		}
		c.logger.Warn("configured output not found, using first", "output", c.opts.Output)
	}
	return c.outputs[0]
}

// requestSurface creates the wl_surface, assigns it the layer-shell role
// with the placement translation applied, and commits the role state.
// Unbound -> SurfaceRequested.
func (c *Controller) requestSurface() error {
	width, height := c.source.Dimensions()
	out := c.pickOutput()
	outW, outH := out.logicalSize()
	left, top := placementMargins(outW, outH, c.resolved.TargetX, c.resolved.TargetY)

	c.logger.Debug("placing surface",
		"size", fmt.Sprintf("%dx%d", width, height),
		"output", fmt.Sprintf("%dx%d", outW, outH),
		"margin_left", left, "margin_top", top)

	surface, err := c.compositor.CreateSurface()
	if err != nil {
		return err
	}
	c.surface = surface

	// An empty input region makes the overlay click-through.
	region, err := c.compositor.CreateRegion()
	if err != nil {
		return err
	}
	if err := surface.SetInputRegion(region); err != nil {
		return err
	}
	if err := region.Destroy(); err != nil {
		return err
	}

	var outputProxy *wlclient.Output
	if out != nil {
		outputProxy = out.proxy
	}
	ls, err := c.layerShell.GetLayerSurface(surface, outputProxy, c.opts.Layer, "rcrosshair")
	if err != nil {
		return err
	}
	c.layerSurface = ls

	ls.SetConfigureHandler(func(e wlr_layer_shell.ConfigureEvent) {
		_ = ls.AckConfigure(e.Serial)
		c.pendingConfigure = true
		c.grantedW, c.grantedH = int(e.Width), int(e.Height)
	})
	ls.SetClosedHandler(func(wlr_layer_shell.ClosedEvent) {
		c.closed = true
	})

	if err := ls.SetSize(uint32(width), uint32(height)); err != nil {
		return err
	}
	if err := ls.SetAnchor(wlr_layer_shell.AnchorTop | wlr_layer_shell.AnchorLeft); err != nil {
		return err
	}
	if err := ls.SetExclusiveZone(-1); err != nil {
		return err
	}
	if err := ls.SetKeyboardInteractivity(wlr_layer_shell.KeyboardInteractivityNone); err != nil {
		return err
	}
	if err := ls.SetMargin(top, 0, 0, left); err != nil {
		return err
	}
	if err := surface.Commit(); err != nil {
		return err
	}

	c.state = StateSurfaceRequested
	return nil
}

// waitConfigured dispatches until the first configure arrived and the first
// frame is on screen. SurfaceRequested -> Configured -> Committed.
func (c *Controller) waitConfigured(ctx context.Context) error {
	for c.state != StateCommitted {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if c.closed {
			return &wlclient.ProtocolError{Message: "compositor closed the surface before the first frame"}
		}
		if err := c.dispatchOnce(); err != nil {
			return err
		}
		if c.pendingConfigure {
			if err := c.applyConfigure(); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyConfigure consumes a pending configure and shows the first frame.
func (c *Controller) applyConfigure() error {
	if err := c.reconfigure(); err != nil {
		return err
	}

	var first imgsource.Frame
	for f := range c.source.Frames() {
		first = f
		break
	}
	return c.present(first)
}

// reconfigure allocates (or reallocates) the buffer at the granted size.
// The handler already acked the configure; granted 0 means "use requested".
func (c *Controller) reconfigure() error {
	c.pendingConfigure = false
	width, height := c.source.Dimensions()
	if c.grantedW > 0 {
		width = c.grantedW
	}
	if c.grantedH > 0 {
		height = c.grantedH
	}

	if c.buf != nil && (c.buf.width != width || c.buf.height != height) {
		c.releaseBuffer()
	}
	if c.buf == nil {
		if err := c.allocateBuffer(width, height); err != nil {
			return err
		}
	}
	c.state = StateConfigured
	return nil
}

// allocateBuffer creates the memfd pool and cuts one wl_buffer from it. The
// pool object is destroyed right away; the buffer keeps the memory alive.
func (c *Controller) allocateBuffer(width, height int) error {
	buf, err := newShmBuffer(width, height)
	if err != nil {
		return err
	}

	pool, err := c.shm.CreatePool(buf.fd, buf.size())
	if err != nil {
		buf.close()
		return err
	}
	wlBuf, err := pool.CreateBuffer(0, int32(width), int32(height), int32(buf.stride), wlclient.ShmFormatArgb8888)
	if err != nil {
		buf.close()
		return err
	}
	if err := pool.Destroy(); err != nil {
		buf.close()
		return err
	}

	c.buf = buf
	c.wlBuffer = wlBuf
	return nil
}

// present renders one frame into the shared buffer, attaches it and
// commits, requesting a frame callback so the scheduler knows when the
// compositor consumed the buffer. Committed -> Committed.
func (c *Controller) present(frame imgsource.Frame) error {
	// A configure can arrive mid-animation; it is already acked, so the
	// next commit must carry a buffer of the granted size.
	if c.pendingConfigure {
		if err := c.reconfigure(); err != nil {
			return err
		}
	}

	srcW, srcH := c.source.Dimensions()
	renderFrame(frame.Pix, srcW, srcH, c.resolved.Opacity, c.buf.data, c.buf.width, c.buf.height)

	if err := c.surface.Attach(c.wlBuffer, 0, 0); err != nil {
		return err
	}
	if err := c.surface.DamageBuffer(0, 0, int32(c.buf.width), int32(c.buf.height)); err != nil {
		return err
	}
	cb, err := c.surface.Frame()
	if err != nil {
		return err
	}
	c.frameDone = false
	cb.SetDoneHandler(func(wlclient.CallbackDoneEvent) {
		c.frameDone = true
	})
	if err := c.surface.Commit(); err != nil {
		return err
	}
	c.lastCommit = time.Now()
	c.state = StateCommitted
	return nil
}

// awaitFrameDone dispatches until the compositor signals that the committed
// buffer has been consumed, or the context is canceled.
func (c *Controller) awaitFrameDone(ctx context.Context) error {
	for !c.frameDone && !c.closed {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := c.dispatchOnce(); err != nil {
			return err
		}
	}
	return nil
}

// waitClosed blocks for a static image: nothing to redraw, just keep the
// connection serviced until termination.
func (c *Controller) waitClosed(ctx context.Context) error {
	for !c.closed {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := c.dispatchOnce(); err != nil {
			return err
		}
		if c.pendingConfigure {
			if err := c.applyConfigure(); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatchOnce processes events for at most one dispatch slice; a timeout
// just means no events, which is not an error.
func (c *Controller) dispatchOnce() error {
	err := c.wctx.DispatchDeadline(time.Now().Add(dispatchSlice))
	if errors.Is(err, wlclient.ErrDispatchTimeout) {
		return nil
	}
	return err
}

func (c *Controller) isClosed() bool { return c.closed }

func (c *Controller) committedAt() time.Time { return c.lastCommit }

func (c *Controller) releaseBuffer() {
	if c.wlBuffer != nil {
		_ = c.wlBuffer.Destroy()
		c.wlBuffer = nil
	}
	if c.buf != nil {
		c.buf.close()
		c.buf = nil
	}
}

// teardown releases every protocol object and the connection. Runs on all
// exit paths; -> Closed.
func (c *Controller) teardown() {
	c.releaseBuffer()
	if c.layerSurface != nil {
		_ = c.layerSurface.Destroy()
		c.layerSurface = nil
	}
	if c.surface != nil {
		_ = c.surface.Destroy()
		c.surface = nil
	}
	_ = c.wctx.Close()
	c.state = StateClosed
}

func minVersion(advertised, wanted uint32) uint32 {
	if advertised < wanted {
		return advertised
	}
	return wanted
}
