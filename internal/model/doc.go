// Package model defines shared data types used across barsync.
//
// Conventions:
//   - Timestamps: time.Time in UTC, unique and strictly increasing per series
//   - Prices and volume: float64 as delivered by the provider (midpoint candles)
//   - Series identity: SeriesKey, rendered as "SYMBOL.RESOLUTION" (e.g. "EUR_USD.M30")
package model
