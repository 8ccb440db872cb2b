package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/rickgao/barsync/internal/model"
)

func TestMarshal(t *testing.T) {
	bar := BarEvent{Ticker: "EUR_USD", Timestamp: t0, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}

	data, err := Marshal(bar)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"type":"bar"`) {
		t.Errorf("Marshal(bar) = %s, missing type tag", data)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	gb := got.(BarEvent)
	if !gb.Timestamp.Equal(bar.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", gb.Timestamp, bar.Timestamp)
	}
	gb.Timestamp = bar.Timestamp
	if gb != bar {
		t.Errorf("Unmarshal() = %+v, want %+v", gb, bar)
	}

	data, _ = Marshal(ExitEvent{})
	if string(data) != `{"type":"exit"}` {
		t.Errorf("Marshal(exit) = %s, want {\"type\":\"exit\"}", data)
	}
	if _, err := Unmarshal([]byte(`{"type":"tick"}`)); err == nil {
		t.Error("Unmarshal(unknown type) should fail")
	}
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	c := NewCursor(seeded(t, 3), key, NewWriterSink(&buf), Config{}, nil, nil)
	if _, err := Replay(context.Background(), c, 0); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	var types []EventType
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		e, err := Unmarshal(sc.Bytes())
		if err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		types = append(types, e.Type())
	}
	want := []EventType{TypeBar, TypeBar, TypeBar, TypeExit}
	if len(types) != len(want) {
		t.Fatalf("got %d lines, want %d", len(types), len(want))
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("line %d type = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestMultiSink(t *testing.T) {
	a, b := NewQueueSink(), NewQueueSink()
	if err := (MultiSink{a, b}).Put(context.Background(), ExitEvent{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if a.Queue.Len() != 1 || b.Queue.Len() != 1 {
		t.Errorf("queue lengths = %d, %d, want 1, 1", a.Queue.Len(), b.Queue.Len())
	}

	boom := errors.New("boom")
	failing := SinkFunc(func(context.Context, Event) error { return boom })
	if err := (MultiSink{failing, a}).Put(context.Background(), ExitEvent{}); !errors.Is(err, boom) {
		t.Errorf("Put() error = %v, want boom", err)
	}
	if a.Queue.Len() != 1 {
		t.Error("sinks after a failure should not receive the event")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWSSink(t *testing.T) {
	sink := NewWSSink(WSSinkConfig{}, nil)
	server := httptest.NewServer(sink)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return sink.Clients() == 1 })

	c := NewCursor(seeded(t, 2), key, sink, Config{}, nil, nil)
	if _, err := Replay(context.Background(), c, 0); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got []Event
	for i := 0; i < 3; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		e, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		got = append(got, e)
	}
	if _, ok := got[2].(ExitEvent); !ok {
		t.Errorf("third message = %T, want ExitEvent", got[2])
	}

	sink.Close()
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadMessage() after Close error = %v, want normal closure", err)
	}
}

func TestWSSink_DropsDisconnected(t *testing.T) {
	sink := NewWSSink(WSSinkConfig{WriteTimeout: 100 * time.Millisecond}, nil)
	server := httptest.NewServer(sink)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	waitFor(t, func() bool { return sink.Clients() == 1 })

	conn.Close()
	waitFor(t, func() bool { return sink.Clients() == 0 })

	if err := sink.Put(context.Background(), ExitEvent{}); err != nil {
		t.Errorf("Put() with no clients error = %v", err)
	}
}

type fakePublisher struct {
	mu   sync.Mutex
	subj []string
	data [][]byte
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subj = append(p.subj, subject)
	p.data = append(p.data, data)
	return nil
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "bars", key)
	if sink.Subject() != "bars.EUR_USD.M1" {
		t.Errorf("Subject() = %q, want bars.EUR_USD.M1", sink.Subject())
	}

	c := NewCursor(seeded(t, 2), key, sink, Config{}, nil, nil)
	if _, err := Replay(context.Background(), c, 0); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(pub.data) != 3 {
		t.Fatalf("published %d messages, want 3", len(pub.data))
	}
	for _, s := range pub.subj {
		if s != "bars.EUR_USD.M1" {
			t.Errorf("published on %q", s)
		}
	}
	if Subject("", key) != "EUR_USD.M1" {
		t.Errorf("Subject(\"\") = %q, want EUR_USD.M1", Subject("", key))
	}
}

func TestNATSSink_Server(t *testing.T) {
	url := os.Getenv("BARSYNC_NATS_URL")
	if url == "" {
		t.Skip("BARSYNC_NATS_URL not set")
	}

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer nc.Close()

	k := model.SeriesKey{Symbol: "NATSTEST", Resolution: "M1"}
	sub, err := nc.SubscribeSync(Subject("barsync.test", k))
	if err != nil {
		t.Fatalf("SubscribeSync() error = %v", err)
	}
	nc.Flush()

	sink, err := ConnectNATS(url, "barsync.test", k)
	if err != nil {
		t.Fatalf("ConnectNATS() error = %v", err)
	}
	if err := sink.Put(context.Background(), ExitEvent{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	sink.Close()

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg() error = %v", err)
	}
	if e, err := Unmarshal(msg.Data); err != nil || e.Type() != TypeExit {
		t.Errorf("received %s, want exit event", msg.Data)
	}
}
