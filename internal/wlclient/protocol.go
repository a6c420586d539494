package wlclient

// Interface names as they appear in registry global events.
const (
	CompositorInterfaceName = "wl_compositor"
	ShmInterfaceName        = "wl_shm"
	OutputInterfaceName     = "wl_output"
)

// Pixel formats this tool uses. ARGB8888 and XRGB8888 keep the historic
// values 0 and 1; all other wl_shm formats are fourcc codes.
const (
	ShmFormatArgb8888 uint32 = 0
	ShmFormatXrgb8888 uint32 = 1
)

// Compositor is the wl_compositor global, the factory for surfaces and
// regions.
type Compositor struct {
	BaseProxy
}

// NewCompositor allocates the proxy to pass to Registry.Bind.
func NewCompositor(ctx *Context) *Compositor {
	c := &Compositor{}
	ctx.Register(c)
	return c
}

// CreateSurface asks the compositor for a new surface.
func (i *Compositor) CreateSurface() (*Surface, error) {
	s := &Surface{}
	i.ctx.Register(s)
	r := NewRequest(i, 0)
	r.PutNewID(s)
	return s, i.ctx.Send(r)
}

// CreateRegion asks the compositor for a new, initially empty region.
func (i *Compositor) CreateRegion() (*Region, error) {
	reg := &Region{}
	i.ctx.Register(reg)
	r := NewRequest(i, 1)
	r.PutNewID(reg)
	return reg, i.ctx.Send(r)
}

// Dispatch implements Proxy; wl_compositor has no events.
func (i *Compositor) Dispatch(uint16, *EventReader) {}

// Region is a wl_region. A freshly created region is empty, which is exactly
// what a click-through input region needs.
type Region struct {
	BaseProxy
}

// Add extends the region by a rectangle.
func (i *Region) Add(x, y, width, height int32) error {
	r := NewRequest(i, 1)
	r.PutInt32(x)
	r.PutInt32(y)
	r.PutInt32(width)
	r.PutInt32(height)
	return i.ctx.Send(r)
}

// Destroy releases the region. Surfaces keep their own copy of whatever was
// set on them.
func (i *Region) Destroy() error {
	return i.ctx.Send(NewRequest(i, 0))
}

// Dispatch implements Proxy; wl_region has no events.
func (i *Region) Dispatch(uint16, *EventReader) {}

// Surface is a wl_surface.
type Surface struct {
	BaseProxy
}

// Destroy deletes the surface.
func (i *Surface) Destroy() error {
	return i.ctx.Send(NewRequest(i, 0))
}

// Attach sets the buffer to present on the next commit. A nil buffer
// detaches the current one.
func (i *Surface) Attach(b *Buffer, x, y int32) error {
	r := NewRequest(i, 1)
	if b == nil {
		r.PutUint32(0)
	} else {
		r.PutObject(b)
	}
	r.PutInt32(x)
	r.PutInt32(y)
	return i.ctx.Send(r)
}

// Frame requests a callback for when the compositor wants the next frame —
// the signal that the attached buffer has been consumed.
func (i *Surface) Frame() (*Callback, error) {
	cb := &Callback{}
	i.ctx.Register(cb)
	r := NewRequest(i, 3)
	r.PutNewID(cb)
	return cb, i.ctx.Send(r)
}

// SetInputRegion restricts where the surface accepts pointer input. An empty
// region makes the surface click-through; nil restores the default (the
// whole surface).
func (i *Surface) SetInputRegion(region *Region) error {
	r := NewRequest(i, 5)
	if region == nil {
		r.PutUint32(0)
	} else {
		r.PutObject(region)
	}
	return i.ctx.Send(r)
}

// Commit atomically applies all pending surface state.
func (i *Surface) Commit() error {
	return i.ctx.Send(NewRequest(i, 6))
}

// DamageBuffer marks a rectangle, in buffer coordinates, as needing repaint.
// Requires wl_compositor version 4.
func (i *Surface) DamageBuffer(x, y, width, height int32) error {
	r := NewRequest(i, 9)
	r.PutInt32(x)
	r.PutInt32(y)
	r.PutInt32(width)
	r.PutInt32(height)
	return i.ctx.Send(r)
}

// Dispatch implements Proxy. Enter/leave and the preferred buffer
// scale/transform hints are irrelevant to a fixed-size overlay and ignored.
func (i *Surface) Dispatch(uint16, *EventReader) {}

// ShmFormatEvent advertises one pixel format the compositor accepts.
type ShmFormatEvent struct {
	Format uint32
}

// Shm is the wl_shm global, the entry to shared-memory buffers.
type Shm struct {
	BaseProxy
	formatHandler func(ShmFormatEvent)
}

// NewShm allocates the proxy to pass to Registry.Bind.
func NewShm(ctx *Context) *Shm {
	s := &Shm{}
	ctx.Register(s)
	return s
}

// SetFormatHandler registers f for format advertisements, which arrive right
// after binding.
func (i *Shm) SetFormatHandler(f func(ShmFormatEvent)) {
	i.formatHandler = f
}

// CreatePool shares size bytes of the file behind fd with the compositor.
// The fd is duplicated in transit and may be closed by the caller afterward.
func (i *Shm) CreatePool(fd int, size int32) (*ShmPool, error) {
	p := &ShmPool{}
	i.ctx.Register(p)
	r := NewRequest(i, 0)
	r.PutNewID(p)
	r.PutFd(fd)
	r.PutInt32(size)
	return p, i.ctx.Send(r)
}

// Dispatch implements Proxy.
func (i *Shm) Dispatch(opcode uint16, d *EventReader) {
	if opcode != 0 {
		return
	}
	e := ShmFormatEvent{Format: d.Uint32()}
	if d.Err() == nil && i.formatHandler != nil {
		i.formatHandler(e)
	}
}

// ShmPool is a wl_shm_pool, a slab of shared memory buffers are cut from.
type ShmPool struct {
	BaseProxy
}

// CreateBuffer carves a buffer out of the pool at the given byte offset.
func (i *ShmPool) CreateBuffer(offset, width, height, stride int32, format uint32) (*Buffer, error) {
	b := &Buffer{}
	i.ctx.Register(b)
	r := NewRequest(i, 0)
	r.PutNewID(b)
	r.PutInt32(offset)
	r.PutInt32(width)
	r.PutInt32(height)
	r.PutInt32(stride)
	r.PutUint32(format)
	return b, i.ctx.Send(r)
}

// Destroy releases the pool object. Buffers created from it stay valid.
func (i *ShmPool) Destroy() error {
	return i.ctx.Send(NewRequest(i, 1))
}

// Dispatch implements Proxy; wl_shm_pool has no events.
func (i *ShmPool) Dispatch(uint16, *EventReader) {}

// BufferReleaseEvent means the compositor no longer reads the buffer and the
// client may write to it again.
type BufferReleaseEvent struct{}

// Buffer is a wl_buffer backed by pool memory.
type Buffer struct {
	BaseProxy
	releaseHandler func(BufferReleaseEvent)
}

// SetReleaseHandler registers f for release events.
func (i *Buffer) SetReleaseHandler(f func(BufferReleaseEvent)) {
	i.releaseHandler = f
}

// Destroy deletes the buffer object.
func (i *Buffer) Destroy() error {
	return i.ctx.Send(NewRequest(i, 0))
}

// Dispatch implements Proxy.
func (i *Buffer) Dispatch(opcode uint16, d *EventReader) {
	if opcode != 0 {
		return
	}
	if i.releaseHandler != nil {
		i.releaseHandler(BufferReleaseEvent{})
	}
}

// OutputGeometryEvent carries an output's position and physical properties.
type OutputGeometryEvent struct {
	X, Y                          int32
	PhysicalWidth, PhysicalHeight int32
	Subpixel                      int32
	Make, Model                   string
	Transform                     int32
}

// OutputModeEvent describes one display mode; the current one has
// OutputModeCurrent set in Flags. Width and height are physical pixels.
type OutputModeEvent struct {
	Flags         uint32
	Width, Height int32
	Refresh       int32
}

// OutputDoneEvent closes a burst of output property events.
type OutputDoneEvent struct{}

// OutputScaleEvent carries the output's integer scale factor.
type OutputScaleEvent struct {
	Factor int32
}

// OutputNameEvent carries the output's connector name, e.g. "DP-1".
// Since wl_output version 4.
type OutputNameEvent struct {
	Name string
}

// OutputModeCurrent flags the mode currently in use.
const OutputModeCurrent uint32 = 0x1

// Output is a wl_output global describing one monitor.
type Output struct {
	BaseProxy
	geometryHandler func(OutputGeometryEvent)
	modeHandler     func(OutputModeEvent)
	doneHandler     func(OutputDoneEvent)
	scaleHandler    func(OutputScaleEvent)
	nameHandler     func(OutputNameEvent)
}

// NewOutput allocates the proxy to pass to Registry.Bind.
func NewOutput(ctx *Context) *Output {
	o := &Output{}
	ctx.Register(o)
	return o
}

// SetGeometryHandler registers f for geometry events.
func (i *Output) SetGeometryHandler(f func(OutputGeometryEvent)) {
	i.geometryHandler = f
}

// SetModeHandler registers f for mode events.
func (i *Output) SetModeHandler(f func(OutputModeEvent)) {
	i.modeHandler = f
}

// SetDoneHandler registers f for done events.
func (i *Output) SetDoneHandler(f func(OutputDoneEvent)) {
	i.doneHandler = f
}

// SetScaleHandler registers f for scale events.
func (i *Output) SetScaleHandler(f func(OutputScaleEvent)) {
	i.scaleHandler = f
}

// SetNameHandler registers f for name events.
func (i *Output) SetNameHandler(f func(OutputNameEvent)) {
	i.nameHandler = f
}

// Dispatch implements Proxy.
func (i *Output) Dispatch(opcode uint16, d *EventReader) {
	switch opcode {
	case 0: // geometry
		e := OutputGeometryEvent{
			X:              d.Int32(),
			Y:              d.Int32(),
			PhysicalWidth:  d.Int32(),
			PhysicalHeight: d.Int32(),
			Subpixel:       d.Int32(),
			Make:           d.String(),
			Model:          d.String(),
			Transform:      d.Int32(),
		}
		if d.Err() == nil && i.geometryHandler != nil {
			i.geometryHandler(e)
		}
	case 1: // mode
		e := OutputModeEvent{
			Flags:   d.Uint32(),
			Width:   d.Int32(),
			Height:  d.Int32(),
			Refresh: d.Int32(),
		}
		if d.Err() == nil && i.modeHandler != nil {
			i.modeHandler(e)
		}
	case 2: // done
		if i.doneHandler != nil {
			i.doneHandler(OutputDoneEvent{})
		}
	case 3: // scale
		e := OutputScaleEvent{Factor: d.Int32()}
		if d.Err() == nil && i.scaleHandler != nil {
			i.scaleHandler(e)
		}
	case 4: // name
		e := OutputNameEvent{Name: d.String()}
		if d.Err() == nil && i.nameHandler != nil {
			i.nameHandler(e)
		}
	}
}
