package log

import (
	"testing"
	"time"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	logger := NoopLogger{}

	// Should not panic with any event type
	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "test-conn",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
	}

	logger.Log(event)

	event.Frame = &FrameEvent{Size: 100, Data: []byte{1, 2, 3}}
	logger.Log(event)

	event.Frame = nil
	event.Message = &MessageEvent{Request: "WRITE_TEXT", Sender: 1, Length: 5}
	logger.Log(event)

	event.Message = nil
	event.StateChange = &StateChangeEvent{Entity: StateEntitySession, NewState: "ESTABLISHED"}
	logger.Log(event)

	event.StateChange = nil
	event.Handle = &HandleEvent{FD: 7}
	logger.Log(event)

	event.Handle = nil
	event.Retry = &RetryEvent{Operation: "send", Tries: 1, Limit: 5}
	logger.Log(event)

	event.Retry = nil
	event.Error = &ErrorEventData{Message: "test error"}
	logger.Log(event)
}

func TestNoopLoggerIsZeroValue(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
}

func TestLoggerFunc(t *testing.T) {
	var got []string
	var logger Logger = LoggerFunc(func(e Event) {
		got = append(got, e.ConnectionID)
	})

	logger.Log(Event{ConnectionID: "a"})
	logger.Log(Event{ConnectionID: "b"})

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v, want [a b]", got)
	}
}
