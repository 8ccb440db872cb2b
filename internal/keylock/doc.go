// Package keylock serializes work per series key.
//
// Merges for the same series must not overlap, so callers take a lock for
// the key around each merge. Local locks cover a single process; Redis locks
// extend the guarantee across processes sharing one store.
package keylock
