package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rickgao/barsync/internal/model"
)

// EventType names an event on the wire.
type EventType string

const (
	TypeBar  EventType = "bar"
	TypeExit EventType = "exit"
)

// Event is a stream event.
type Event interface {
	Type() EventType
}

// BarEvent carries one bar.
type BarEvent struct {
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

func (BarEvent) Type() EventType { return TypeBar }

// NewBarEvent converts a stored bar.
func NewBarEvent(ticker string, b model.Bar) BarEvent {
	return BarEvent{
		Ticker:    ticker,
		Timestamp: b.Timestamp,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}
}

// ExitEvent marks the end of a stream.
type ExitEvent struct{}

func (ExitEvent) Type() EventType { return TypeExit }

type envelope struct {
	Type EventType `json:"type"`
	*BarEvent
}

// Marshal encodes an event as a JSON object tagged with its type.
func Marshal(e Event) ([]byte, error) {
	env := envelope{Type: e.Type()}
	switch ev := e.(type) {
	case BarEvent:
		env.BarEvent = &ev
	case *BarEvent:
		env.BarEvent = ev
	}
	return json.Marshal(env)
}

// Unmarshal decodes an event produced by Marshal.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	env.BarEvent = &BarEvent{}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case TypeBar:
		return *env.BarEvent, nil
	case TypeExit:
		return ExitEvent{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
