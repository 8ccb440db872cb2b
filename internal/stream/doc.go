// Package stream replays a stored series as an ordered event stream.
//
// A Cursor reads one series from a store.Store and pushes a BarEvent per
// bar into a Sink, then a single ExitEvent once the range is exhausted.
//
// Two modes are supported:
//
//   - Materialized reads the whole range into memory at Initialize and
//     walks it by position.
//   - Lazy walks the store cursor directly and appends each consumed bar to
//     an in-memory buffer. The buffer is unbounded, so very long lazy
//     streams grow memory with every bar.
//
// After the ExitEvent, Advance returns model.ErrExhausted and emits nothing.
// A Cursor is single-consumer: Advance must not be called concurrently.
package stream
