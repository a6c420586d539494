// Package wlr_layer_shell binds the zwlr_layer_shell_v1 protocol extension:
// surfaces rendered as desktop components outside normal window stacking
// (backgrounds, bars, overlays). Only the requests and events an overlay
// client needs are covered.
package wlr_layer_shell

import (
	"github.com/rcrosshair/rcrosshair/internal/wlclient"
)

// InterfaceName is the name the global appears under in the registry.
const InterfaceName = "zwlr_layer_shell_v1"

// Layers, bottom to top. Overlay renders above every regular window,
// including fullscreen ones.
const (
	LayerBackground uint32 = 0
	LayerBottom     uint32 = 1
	LayerTop        uint32 = 2
	LayerOverlay    uint32 = 3
)

// Anchor bits. Combining two opposite edges stretches the surface; a corner
// combination pins it there with margins measured from the anchored edges.
const (
	AnchorTop    uint32 = 1
	AnchorBottom uint32 = 2
	AnchorLeft   uint32 = 4
	AnchorRight  uint32 = 8
)

// Keyboard interactivity modes.
const (
	KeyboardInteractivityNone      uint32 = 0
	KeyboardInteractivityExclusive uint32 = 1
	KeyboardInteractivityOnDemand  uint32 = 2
)

// LayerShell is the zwlr_layer_shell_v1 global.
type LayerShell struct {
	wlclient.BaseProxy
}

// NewLayerShell allocates the proxy to pass to Registry.Bind.
func NewLayerShell(ctx *wlclient.Context) *LayerShell {
	ls := &LayerShell{}
	ctx.Register(ls)
	return ls
}

// GetLayerSurface assigns surface the layer-shell role on the given layer.
// A nil output leaves output selection to the compositor. The namespace
// lets compositors apply per-client rules.
func (i *LayerShell) GetLayerSurface(surface *wlclient.Surface, output *wlclient.Output, layer uint32, namespace string) (*LayerSurface, error) {
	ls := &LayerSurface{}
	i.Context().Register(ls)
	r := wlclient.NewRequest(i, 0)
	r.PutNewID(ls)
	r.PutObject(surface)
	if output == nil {
		r.PutUint32(0)
	} else {
		r.PutObject(output)
	}
	r.PutUint32(layer)
	r.PutString(namespace)
	return ls, i.Context().Send(r)
}

// Destroy releases the global. Existing layer surfaces are unaffected.
func (i *LayerShell) Destroy() error {
	return i.Context().Send(wlclient.NewRequest(i, 1))
}

// Dispatch implements wlclient.Proxy; the global has no events.
func (i *LayerShell) Dispatch(uint16, *wlclient.EventReader) {}

// ConfigureEvent grants a size and must be acked before the next commit.
// Zero width or height means the client decides that dimension.
type ConfigureEvent struct {
	Serial uint32
	Width  uint32
	Height uint32
}

// ClosedEvent means the compositor withdrew the surface; the client should
// destroy it and stop committing.
type ClosedEvent struct{}

// LayerSurface is a zwlr_layer_surface_v1, the layer-shell role object of
// one wl_surface.
type LayerSurface struct {
	wlclient.BaseProxy
	configureHandler func(ConfigureEvent)
	closedHandler    func(ClosedEvent)
}

// SetConfigureHandler registers f for configure events.
func (i *LayerSurface) SetConfigureHandler(f func(ConfigureEvent)) {
	i.configureHandler = f
}

// SetClosedHandler registers f for the closed event.
func (i *LayerSurface) SetClosedHandler(f func(ClosedEvent)) {
	i.closedHandler = f
}

// SetSize requests the surface size. Zero in a dimension asks the
// compositor to pick, which requires anchoring both edges on that axis.
func (i *LayerSurface) SetSize(width, height uint32) error {
	r := wlclient.NewRequest(i, 0)
	r.PutUint32(width)
	r.PutUint32(height)
	return i.Context().Send(r)
}

// SetAnchor anchors the surface to a combination of Anchor* edges.
func (i *LayerSurface) SetAnchor(anchor uint32) error {
	r := wlclient.NewRequest(i, 1)
	r.PutUint32(anchor)
	return i.Context().Send(r)
}

// SetExclusiveZone sets the exclusive zone. -1 means the surface ignores
// other surfaces' zones and is positioned against the true screen edge.
func (i *LayerSurface) SetExclusiveZone(zone int32) error {
	r := wlclient.NewRequest(i, 2)
	r.PutInt32(zone)
	return i.Context().Send(r)
}

// SetMargin offsets the surface from its anchored edges, in surface-local
// coordinates. Margins on unanchored edges are ignored.
func (i *LayerSurface) SetMargin(top, right, bottom, left int32) error {
	r := wlclient.NewRequest(i, 3)
	r.PutInt32(top)
	r.PutInt32(right)
	r.PutInt32(bottom)
	r.PutInt32(left)
	return i.Context().Send(r)
}

// SetKeyboardInteractivity sets how the surface takes keyboard focus.
func (i *LayerSurface) SetKeyboardInteractivity(mode uint32) error {
	r := wlclient.NewRequest(i, 4)
	r.PutUint32(mode)
	return i.Context().Send(r)
}

// AckConfigure acknowledges a configure event by its serial. The next
// commit after the ack applies the configured state.
func (i *LayerSurface) AckConfigure(serial uint32) error {
	r := wlclient.NewRequest(i, 6)
	r.PutUint32(serial)
	return i.Context().Send(r)
}

// Destroy removes the role object.
func (i *LayerSurface) Destroy() error {
	return i.Context().Send(wlclient.NewRequest(i, 7))
}

// Dispatch implements wlclient.Proxy.
func (i *LayerSurface) Dispatch(opcode uint16, d *wlclient.EventReader) {
	switch opcode {
	case 0: // configure
		e := ConfigureEvent{
			Serial: d.Uint32(),
			Width:  d.Uint32(),
			Height: d.Uint32(),
		}
		if d.Err() == nil && i.configureHandler != nil {
			i.configureHandler(e)
		}
	case 1: // closed
		if i.closedHandler != nil {
			i.closedHandler(ClosedEvent{})
		}
	}
}
