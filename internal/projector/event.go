package projector

import "encoding/json"

// EventType names the two event kinds a base's log carries.
type EventType string

const (
	EventPut    EventType = "PUT"
	EventDelete EventType = "DELETE"
)

// Event is the wire event payload, plus the OldData field the Projector
// populates at projection time (never sent by writers).
type Event struct {
	Type      EventType              `json:"type"`
	ID        string                 `json:"id"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`

	// OldData carries the prior projected value for DELETE subscriber
	// callbacks; the onMessage hook never sees it (see ObservedEvent). It
	// is populated by the Projector, never marshaled onto the wire by
	// writers.
	OldData map[string]interface{} `json:"-"`
}

// ObservedEvent is the Event shape without OldData, passed to the
// onMessage hook before OldData is attached.
type ObservedEvent struct {
	Type      EventType              `json:"type"`
	ID        string                 `json:"id"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func (e Event) observed() ObservedEvent {
	return ObservedEvent{Type: e.Type, ID: e.ID, Data: e.Data, Timestamp: e.Timestamp}
}

// DecodeEvent unmarshals a log message's payload into an Event.
func DecodeEvent(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// EncodeEvent marshals an Event as it appears on the wire (OldData never
// included, since writers never set it and json:"-" excludes it anyway).
func EncodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
