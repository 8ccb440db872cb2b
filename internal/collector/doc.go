// Package collector runs bulk sync and update jobs.
//
// A Collector fills a job queue, runs a worker pool over it with the merge
// handlers, and gathers every result. Each job holds the series lock for
// its key while it runs, so a key listed twice is merged one job at a time.
package collector
