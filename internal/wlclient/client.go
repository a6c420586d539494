// Package wlclient is a minimal Wayland client: connection bootstrap, wire
// codec and the handful of core interfaces a shared-memory overlay needs
// (compositor, shm, surface, output). Protocol extensions live in their own
// packages under internal/proto and build on the exported Proxy/Request
// surface here. Event delivery follows the usual generated-binding shape:
// per-event handler setters taking a typed event struct.
package wlclient

// Display is protocol object 1, the entry point of every connection.
type Display struct {
	BaseProxy
	errorHandler func(DisplayErrorEvent)
}

// DisplayErrorEvent is the compositor's fatal error report.
type DisplayErrorEvent struct {
	ObjectID uint32
	Code     uint32
	Message  string
}

// SetErrorHandler registers f for fatal protocol errors. The connection is
// already poisoned when f runs; the handler exists for logging.
func (i *Display) SetErrorHandler(f func(DisplayErrorEvent)) {
	i.errorHandler = f
}

// Sync asks the compositor to echo back a callback once all prior requests
// are processed.
func (i *Display) Sync() (*Callback, error) {
	cb := &Callback{}
	i.ctx.Register(cb)
	r := NewRequest(i, 0)
	r.PutNewID(cb)
	return cb, i.ctx.Send(r)
}

// GetRegistry creates the global registry object.
func (i *Display) GetRegistry() (*Registry, error) {
	reg := &Registry{}
	i.ctx.Register(reg)
	r := NewRequest(i, 1)
	r.PutNewID(reg)
	return reg, i.ctx.Send(r)
}

// Roundtrip blocks until the compositor has processed every request sent so
// far, dispatching whatever events arrive in the meantime.
func (i *Display) Roundtrip() error {
	cb, err := i.Sync()
	if err != nil {
		return err
	}
	done := false
	cb.SetDoneHandler(func(CallbackDoneEvent) {
		done = true
	})
	for !done {
		if err := i.ctx.Dispatch(); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch implements Proxy.
func (i *Display) Dispatch(opcode uint16, d *EventReader) {
	switch opcode {
	case 0: // error
		e := DisplayErrorEvent{
			ObjectID: d.Uint32(),
			Code:     d.Uint32(),
			Message:  d.String(),
		}
		if d.Err() != nil {
			return
		}
		i.ctx.fatal = &ProtocolError{ObjectID: e.ObjectID, Code: e.Code, Message: e.Message}
		if i.errorHandler != nil {
			i.errorHandler(e)
		}
	case 1: // delete_id
		id := d.Uint32()
		if d.Err() != nil {
			return
		}
		i.ctx.forget(id)
	}
}

// RegistryGlobalEvent announces one global object.
type RegistryGlobalEvent struct {
	Name      uint32
	Interface string
	Version   uint32
}

// RegistryGlobalRemoveEvent withdraws a global by name.
type RegistryGlobalRemoveEvent struct {
	Name uint32
}

// Registry enumerates and binds the compositor's global objects.
type Registry struct {
	BaseProxy
	globalHandler       func(RegistryGlobalEvent)
	globalRemoveHandler func(RegistryGlobalRemoveEvent)
}

// SetGlobalHandler registers f for global announcements. The compositor
// replays all existing globals right after GetRegistry, so set the handler
// before the next roundtrip.
func (i *Registry) SetGlobalHandler(f func(RegistryGlobalEvent)) {
	i.globalHandler = f
}

// SetGlobalRemoveHandler registers f for global removals.
func (i *Registry) SetGlobalRemoveHandler(f func(RegistryGlobalRemoveEvent)) {
	i.globalRemoveHandler = f
}

// Bind ties the global called name to the proxy p, which must have been
// created by the matching NewXxx constructor and not yet bound.
func (i *Registry) Bind(name uint32, iface string, version uint32, p Proxy) error {
	r := NewRequest(i, 0)
	r.PutUint32(name)
	r.PutString(iface)
	r.PutUint32(version)
	r.PutNewID(p)
	return i.ctx.Send(r)
}

// Dispatch implements Proxy.
func (i *Registry) Dispatch(opcode uint16, d *EventReader) {
	switch opcode {
	case 0: // global
		e := RegistryGlobalEvent{
			Name:      d.Uint32(),
			Interface: d.String(),
			Version:   d.Uint32(),
		}
		if d.Err() == nil && i.globalHandler != nil {
			i.globalHandler(e)
		}
	case 1: // global_remove
		e := RegistryGlobalRemoveEvent{Name: d.Uint32()}
		if d.Err() == nil && i.globalRemoveHandler != nil {
			i.globalRemoveHandler(e)
		}
	}
}

// CallbackDoneEvent fires when the request a callback was attached to has
// been processed. For frame callbacks the data is the current time in
// milliseconds, with an arbitrary epoch.
type CallbackDoneEvent struct {
	CallbackData uint32
}

// Callback is a one-shot completion notification (wl_display.sync,
// wl_surface.frame). The compositor deletes it after firing.
type Callback struct {
	BaseProxy
	doneHandler func(CallbackDoneEvent)
}

// SetDoneHandler registers f for the single done event.
func (i *Callback) SetDoneHandler(f func(CallbackDoneEvent)) {
	i.doneHandler = f
}

// Dispatch implements Proxy.
func (i *Callback) Dispatch(opcode uint16, d *EventReader) {
	if opcode != 0 {
		return
	}
	e := CallbackDoneEvent{CallbackData: d.Uint32()}
	if d.Err() == nil && i.doneHandler != nil {
		i.doneHandler(e)
	}
}
