// Package merge implements the Series Merger.
//
// Save keeps a stored series duplicate-free when a freshly fetched batch
// overlaps it: matching rows are deleted from the leading edge of the batch
// forward and from the trailing edge backward, each scan stopping at the
// first timestamp that is not stored, then the whole batch is inserted.
// Fresh values always win. A stored gap inside the overlap stops a scan
// early; when the insert then collides with a row the scans never reached,
// Save deletes the batch timestamps still stored within the batch span and
// inserts once more. Stored rows between batch timestamps are kept.
//
// Save is not transactional. Callers must run at most one merge per series
// at a time; merges on different series may run in parallel.
package merge
