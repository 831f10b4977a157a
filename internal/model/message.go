package model

import "time"

// Outbound message types. The EXTERNAL_ variants tag data from external
// (json/xml) sources; the bare variants tag spreadsheet data.
const (
	MessageInitialData         = "INITIAL_DATA"
	MessageExternalInitialData = "EXTERNAL_INITIAL_DATA"
	MessageUpdate              = "UPDATE"
	MessageExternalUpdate      = "EXTERNAL_UPDATE"
)

// Message is the outbound push envelope. The wire shape is stable: clients
// key off Type and replace their view of the source with Data wholesale.
type Message struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	SourceType string    `json:"sourceType"`
	Data       any       `json:"data"`
	Timestamp  time.Time `json:"timestamp"`
}

// InitialDataMessage builds the one-time message pushed to a connection
// immediately after it subscribes.
func InitialDataMessage(sourceID, sourceType string, data any, ts time.Time) Message {
	typ := MessageInitialData
	if sourceType == SourceTypeExternal {
		typ = MessageExternalInitialData
	}
	return Message{
		Type:       typ,
		ID:         sourceID,
		SourceType: sourceType,
		Data:       data,
		Timestamp:  ts,
	}
}

// UpdateMessage builds the steady-state message fanned out on a change event.
func UpdateMessage(sourceID, sourceType string, data any, ts time.Time) Message {
	typ := MessageUpdate
	if sourceType == SourceTypeExternal {
		typ = MessageExternalUpdate
	}
	return Message{
		Type:       typ,
		ID:         sourceID,
		SourceType: sourceType,
		Data:       data,
		Timestamp:  ts,
	}
}
