// Package async provides safe detached execution for background work.
//
// SafeGo runs a function on its own goroutine with panic recovery and a
// per-task timeout; the caller never waits on it. WorkerPool bounds the
// number of concurrent background tasks so webhook event storms cannot
// unbind resource usage.
//
// The webhook dispatcher is the main consumer: every mutation fires its
// notifications through these primitives and returns immediately.
package async
