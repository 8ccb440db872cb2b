package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rickgao/barsync/internal/model"
)

// CodeTooManyCandles is the provider error code for a request whose span
// exceeds the per-call candle cap.
const CodeTooManyCandles = 36

// MaxCandles is the largest page the provider serves in one call.
const MaxCandles = 5000

// ErrNeedsPagination matches errors that ask the caller to split the request.
var ErrNeedsPagination = errors.New("provider page too large")

// Provider fetches ordered bars for a series.
type Provider interface {
	// Fetch returns bars in ascending timestamp order. An empty result
	// means the provider has no data for the window.
	Fetch(ctx context.Context, req Request) ([]model.Bar, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// Request describes one fetch.
type Request struct {
	Key   model.SeriesKey
	Start *time.Time // nil = provider default
	End   *time.Time // nil = open ended
	Count int        // 0 = provider default

	// StartExclusive drops the bar stamped exactly at Start.
	StartExclusive bool
}

// Error is an error response from the provider.
type Error struct {
	StatusCode int
	Code       int
	Message    string
	Body       []byte
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *Error) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// NeedsPagination reports whether the request must be split.
func (e *Error) NeedsPagination() bool {
	return e.Code == CodeTooManyCandles
}

// Is lets errors.Is(err, ErrNeedsPagination) classify the error.
func (e *Error) Is(target error) bool {
	return target == ErrNeedsPagination && e.NeedsPagination()
}

// Credentials is the JSON account file: {"environment": ..., "access_token": ...}.
type Credentials struct {
	Environment string `json:"environment"`
	AccessToken string `json:"access_token"`
}

// LoadCredentials reads a credentials file.
func LoadCredentials(path string) (Credentials, error) {
	var creds Credentials

	data, err := os.ReadFile(path)
	if err != nil {
		return creds, fmt.Errorf("read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.AccessToken == "" {
		return creds, fmt.Errorf("%w: credentials access_token is required", model.ErrConfig)
	}
	return creds, nil
}

// EnvironmentURL maps a credentials environment to its REST base URL.
func EnvironmentURL(env string) (string, error) {
	switch env {
	case "sandbox":
		return "http://api-sandbox.oanda.com/v1", nil
	case "practice", "":
		return "https://api-fxpractice.oanda.com/v1", nil
	case "live":
		return "https://api-fxtrade.oanda.com/v1", nil
	default:
		return "", fmt.Errorf("%w: unknown environment %q", model.ErrConfig, env)
	}
}
