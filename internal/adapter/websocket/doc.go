// Package websocket connects browser clients to the realtime service over
// gorilla/websocket. Each accepted connection becomes one realtime session;
// the package owns the upgrade, the read pump and the Transport implementation.
package websocket
