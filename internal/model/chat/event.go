package chat

import "strings"

// EventType is the platform's value of the top-level "type" field.
type EventType string

const (
	EventAddedToSpace     EventType = "ADDED_TO_SPACE"
	EventRemovedFromSpace EventType = "REMOVED_FROM_SPACE"
	EventMessage          EventType = "MESSAGE"
)

// Kind classifies an event for dispatch.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindAdded
	KindRemoved
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindAdded:
		return "added"
	case KindRemoved:
		return "removed"
	case KindMessage:
		return "message"
	default:
		return "unrecognized"
	}
}

// Event is the subset of a Google Chat interaction event the relay reads.
type Event struct {
	Type      EventType `json:"type"`
	EventTime string    `json:"eventTime"`
	User      User      `json:"user"`
	Space     Space     `json:"space"`
	Message   Message   `json:"message"`
}

// User is the human that triggered the event.
type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
}

// Space is the room or direct message the event happened in.
type Space struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
}

// Message carries the text of a MESSAGE event.
type Message struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Kind maps the raw type onto the handled variants.
func (e Event) Kind() Kind {
	switch e.Type {
	case EventAddedToSpace:
		return KindAdded
	case EventRemovedFromSpace:
		return KindRemoved
	case EventMessage:
		return KindMessage
	default:
		return KindUnrecognized
	}
}

// ConversationID is the stable key for the space or DM.
func (e Event) ConversationID() string {
	return strings.TrimSpace(e.Space.Name)
}

// Text returns the message text with surrounding whitespace removed.
func (e Event) Text() string {
	return strings.TrimSpace(e.Message.Text)
}
