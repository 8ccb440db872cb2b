// Package pool implements the Worker Pool component.
//
// The Worker Pool:
//   - Runs a fixed number of workers over one shared job queue
//   - Invokes the supplied handler synchronously per job
//   - Forwards every non-empty outcome to a ResultSink
//   - Recovers handler errors and panics per job; a bad job never kills a worker
//   - Drains the queue on Stop: workers loop while running or while jobs remain
//
// Stop is cooperative. In-flight handlers are never interrupted; cancelling
// the context passed to Start is the only hard abort.
package pool
