// Package export writes stored series to files.
//
// Supported formats are parquet and indented JSON. Each row carries the bar
// time as Unix milliseconds under "datetime".
package export
