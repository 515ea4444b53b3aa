// Package transport defines the wire-transport collaborators the
// coordinator core consumes and a length-prefixed TCP implementation of
// them.
package transport

// Session is one open connection to a cluster member's control endpoint.
type Session interface {
	SendRequest(payload []byte) ([]byte, error)
	Close() error
}

// Transport resolves a serviceLocator into a Session, caching or dialing
// as the implementation sees fit.
type Transport interface {
	GetSession(locator string) (Session, error)
}
