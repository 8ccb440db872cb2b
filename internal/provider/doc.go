// Package provider fetches OHLCV candles from an external market data API.
//
// REST endpoints (by credential environment):
//   - sandbox: http://api-sandbox.oanda.com/v1
//   - practice: https://api-fxpractice.oanda.com/v1
//   - live: https://api-fxtrade.oanda.com/v1
//
// Candles are requested in midpoint format. A request spanning more candles
// than the provider serves per call fails with error code 36, surfaced as
// an *Error matching ErrNeedsPagination.
package provider
