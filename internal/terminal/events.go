// Package terminal bridges an operator's terminal to a shell inside a
// sandbox over a WebSocket, so interactive plan steps can be completed by hand.
package terminal

import (
	"github.com/goccy/go-json"
)

// EventType names a bridge message.
type EventType string

// Client to server events.
const (
	EventStart      EventType = "start"
	EventInput      EventType = "input"
	EventResize     EventType = "resize"
	EventDisconnect EventType = "disconnect"
)

// Server to client events.
const (
	EventOutput EventType = "output"
	EventExit   EventType = "exit"
	EventError  EventType = "error"
)

// Event is one JSON message on the bridge.
type Event struct {
	Type    EventType `json:"type"`
	Data    string    `json:"data,omitempty"`
	Sandbox string    `json:"sandbox,omitempty"`
	Cols    uint16    `json:"cols,omitempty"`
	Rows    uint16    `json:"rows,omitempty"`
	Code    int       `json:"code,omitempty"`
}

// Size is a terminal size in character cells.
type Size struct {
	Cols uint16
	Rows uint16
}

func (s Size) orDefault() Size {
	if s.Cols == 0 {
		s.Cols = 80
	}
	if s.Rows == 0 {
		s.Rows = 24
	}
	return s
}

func encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

func decode(data []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}
