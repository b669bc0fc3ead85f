// Package notify fans change notifications out to connected clients.
//
// The Hub keeps a registry of observers (WebSocket connections in
// practice) and broadcasts JSON-serialized events to all of them.
// Delivery is best-effort: an observer that fails a send is dropped,
// and no delivery guarantee extends past the write into the socket.
package notify
