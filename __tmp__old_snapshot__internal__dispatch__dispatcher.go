package dispatch

import "clustercoord/internal/coordfail"

// Dispatcher is a registration-table router: exactly one handler runs at a
// time, matching the coordinator's single-threaded event loop. Dispatcher
// itself does not enforce single-threadedness — that is a property of how
// the caller drives Dispatch — it only owns the type -> handler mapping
// and the Unimplemented fallback.
type Dispatcher struct {
	handlers map[RequestType]Handler
}

func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[RequestType]Handler)}
}

// Register installs handler for reqType, overwriting any previous
// registration.
func (d *Dispatcher) Register(reqType RequestType, handler Handler) {
	d.handlers[reqType] = handler
}

// Dispatch routes req to its registered handler. An unknown reqType is
// answered directly with UnimplementedRequest, without ever reaching a
// handler.
func (d *Dispatcher) Dispatch(reqType RequestType, req any, respond Responder) {
	handler, ok := d.handlers[reqType]
	if !ok {
		respond(nil, coordfail.New(coordfail.UnimplementedRequest, "unknown request type %v", reqType))
		return
	}
	handler(req, respond)
}


