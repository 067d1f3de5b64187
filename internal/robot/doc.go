// Package robot is the client for the remote robot platform.
//
// The platform speaks JSON-RPC 2.0 over a WebSocket connection. Dial
// authenticates with an API key and returns a handle from which named
// components (motor, camera) are obtained. The vendor's transport internals
// are out of scope here; this package only needs the small surface the
// feeder uses: run/stop a motor and fetch one camera frame.
package robot
