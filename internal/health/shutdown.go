package health

import "sync/atomic"

// ready gates the readiness probe during graceful shutdown so the load
// balancer drains traffic before in-flight orders are cut off.
var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness gate. Call with false at the start of
// shutdown, before closing the HTTP server.
func SetReady(v bool) { ready.Store(v) }

// Ready reports the current gate state.
func Ready() bool { return ready.Load() }
